// Package render turns a contact row into a message subject and body, either
// from the plain template files or through an LLM with template fallback.
package render

import (
	"context"
	"strings"

	"referrals-engine/internal/domain"
)

type Renderer interface {
	Render(ctx context.Context, row domain.ContactRow) (subject, body string, err error)
}

// templateKinds are the plain template styles shipped with the app.
var templateKinds = map[string]struct{}{
	"cold":   {},
	"warm":   {},
	"coffee": {},
	"direct": {},
}

// SplitSubject pulls a leading "Subject:" line off rendered output. Templates
// without one get the generic subject.
func SplitSubject(rendered string) (subject, body string) {
	lines := strings.SplitN(rendered, "\n", 2)
	if len(lines) > 0 && strings.HasPrefix(strings.ToLower(lines[0]), "subject:") {
		subject = strings.TrimSpace(lines[0][len("subject:"):])
		if len(lines) > 1 {
			body = strings.TrimLeft(lines[1], "\r\n")
		}
		return subject, body
	}
	return "Hello", rendered
}
