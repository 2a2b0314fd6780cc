package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"referrals-engine/internal/domain"
)

// TemplateRenderer renders from the per-kind template files. An unknown or
// unreadable kind falls back to the cold template.
type TemplateRenderer struct {
	Dir   string
	Files map[string]string // kind -> filename
}

type templateData struct {
	Name             string
	Company          string
	Role             string
	PersonalizedNote string
	JobLink          string
	JobID            string
}

func (t *TemplateRenderer) Render(ctx context.Context, row domain.ContactRow) (string, string, error) {
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	kind := strings.ToLower(row.Get(domain.FieldTemplate))
	if _, ok := templateKinds[kind]; !ok {
		kind = "cold"
	}

	tmpl, err := t.load(kind)
	if err != nil && kind != "cold" {
		tmpl, err = t.load("cold")
	}
	if err != nil {
		return "", "", err
	}

	var sb strings.Builder
	data := templateData{
		Name:             row.Get(domain.FieldName),
		Company:          row.Get(domain.FieldCompany),
		Role:             row.Get(domain.FieldRole),
		PersonalizedNote: row.Get(domain.FieldPersonalizedNote),
		JobLink:          row.Get(domain.FieldJobLink),
		JobID:            row.Get(domain.FieldJobID),
	}
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("render %s template: %w", kind, err)
	}

	subject, body := SplitSubject(sb.String())
	return subject, body, nil
}

func (t *TemplateRenderer) load(kind string) (*template.Template, error) {
	filename, ok := t.Files[kind]
	if !ok {
		return nil, fmt.Errorf("no template configured for kind %q", kind)
	}
	path := filename
	if t.Dir != "" && !filepath.IsAbs(filename) {
		path = filepath.Join(t.Dir, filename)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}
	return template.New(kind).Parse(string(b))
}
