package mailer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ResumeResolver turns a row's resume_flag into an attachment. Lookup order:
// the configured flag -> filename map, then the default file. A row whose
// flag resolves to nothing gets no attachment rather than failing the send.
type ResumeResolver struct {
	Dir         string
	DefaultFile string
	Map         map[string]string // lower-cased flag -> filename
}

func (r *ResumeResolver) Resolve(flag string) (*Attachment, error) {
	if r == nil {
		return nil, nil
	}

	flag = strings.ToLower(strings.TrimSpace(flag))
	filename := ""
	if flag != "" {
		filename = r.Map[flag]
	}
	if filename == "" {
		filename = r.DefaultFile
	}
	if filename == "" {
		return nil, nil
	}

	path := filename
	if r.Dir != "" && !filepath.IsAbs(filename) {
		path = filepath.Join(r.Dir, filename)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("resume file %s not found", path)
		}
		return nil, fmt.Errorf("read resume %s: %w", path, err)
	}

	return &Attachment{
		Filename: filepath.Base(path),
		MIMEType: mimeTypeFor(path),
		Bytes:    b,
	}, nil
}

func mimeTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".txt":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
