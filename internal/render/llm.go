package render

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"referrals-engine/internal/domain"
)

// LLMRenderer drafts the message with a generative model, using one of the
// plain templates as style inspiration. Any generation failure falls back to
// the template renderer so a flaky model never blocks a send.
type LLMRenderer struct {
	Client   *genai.Client
	Model    string
	Fallback *TemplateRenderer
	Preview  func(ctx context.Context, jobLink string) string // optional page-title enricher
	Log      *zap.Logger
}

func NewLLMClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return client, nil
}

// WantsLLM reports whether the row's template value requests LLM drafting
// ("llm" or "llm-<style>").
func WantsLLM(row domain.ContactRow) bool {
	return strings.HasPrefix(strings.ToLower(row.Get(domain.FieldTemplate)), "llm")
}

func (r *LLMRenderer) Render(ctx context.Context, row domain.ContactRow) (string, string, error) {
	subject, body, err := r.generate(ctx, row)
	if err == nil {
		return subject, body, nil
	}
	if r.Log != nil {
		r.Log.Warn("llm generation failed, using template fallback",
			zap.String("contact", row.Label()), zap.Error(err))
	}
	if r.Fallback == nil {
		return "", "", err
	}
	return r.Fallback.Render(ctx, row)
}

func (r *LLMRenderer) generate(ctx context.Context, row domain.ContactRow) (string, string, error) {
	if r.Client == nil {
		return "", "", fmt.Errorf("llm client not configured")
	}

	inspiration := styleInspiration(row)
	prompt := r.buildPrompt(ctx, row, inspiration)

	resp, err := r.Client.Models.GenerateContent(ctx, r.Model, genai.Text(prompt), &genai.GenerateContentConfig{
		CandidateCount: 1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate content: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", "", fmt.Errorf("model returned empty draft")
	}

	subject, body := SplitSubject(text)
	return subject, body, nil
}

// styleInspiration picks which plain template the model should imitate: an
// explicit "llm-coffee" style wins, otherwise warm when a personal note
// exists, cold when not.
func styleInspiration(row domain.ContactRow) string {
	tmpl := strings.ToLower(row.Get(domain.FieldTemplate))
	if kind, ok := strings.CutPrefix(tmpl, "llm-"); ok {
		if _, known := templateKinds[kind]; known {
			return kind
		}
	}
	if row.Get(domain.FieldPersonalizedNote) != "" {
		return "warm"
	}
	return "cold"
}

func (r *LLMRenderer) buildPrompt(ctx context.Context, row domain.ContactRow, inspiration string) string {
	var sb strings.Builder
	sb.WriteString("Draft a short referral request email. ")
	sb.WriteString("Output the subject as a first line starting with 'Subject:', then a blank line, then the body.\n\n")
	fmt.Fprintf(&sb, "Recipient: %s, %s at %s.\n",
		row.Get(domain.FieldName), row.Get(domain.FieldRole), row.Get(domain.FieldCompany))
	if note := row.Get(domain.FieldPersonalizedNote); note != "" {
		fmt.Fprintf(&sb, "Personal context to weave in: %s\n", note)
	}
	if link := row.Get(domain.FieldJobLink); link != "" {
		fmt.Fprintf(&sb, "Job posting: %s\n", link)
		if r.Preview != nil {
			if title := r.Preview(ctx, link); title != "" {
				fmt.Fprintf(&sb, "Posting title: %s\n", title)
			}
		}
	}
	if id := row.Get(domain.FieldJobID); id != "" {
		fmt.Fprintf(&sb, "Job ID to mention: %s\n", id)
	}
	fmt.Fprintf(&sb, "Tone: like a %q outreach email. Keep it under 150 words.\n", inspiration)

	if r.Fallback != nil {
		if tmpl, err := r.Fallback.load(inspiration); err == nil {
			var example strings.Builder
			if tmpl.Execute(&example, templateData{
				Name: "Jane", Company: "Acme", Role: "Engineer",
			}) == nil {
				sb.WriteString("\nStyle example:\n")
				sb.WriteString(example.String())
			}
		}
	}
	return sb.String()
}
