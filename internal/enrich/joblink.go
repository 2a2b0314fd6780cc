// Package enrich fetches light context about a row's job link for the
// renderer prompt. Strictly best effort: every failure degrades to "no
// preview".
package enrich

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"
)

type JobLinkPreviewer struct {
	hc      *http.Client
	limiter *rate.Limiter
}

func NewJobLinkPreviewer() *JobLinkPreviewer {
	return &JobLinkPreviewer{
		hc: &http.Client{Timeout: 10 * time.Second},
		// Job boards throttle aggressively; one fetch per 2s is plenty for a
		// sequential pipeline.
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
	}
}

// Title returns the page title of the job posting, or "" when anything at all
// goes wrong.
func (p *JobLinkPreviewer) Title(ctx context.Context, rawURL string) string {
	if rawURL == "" {
		return ""
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return ""
	}
	req.Header.Set("User-Agent", "ReferralsEngine/1.0 (+local)")

	res, err := p.hc.Do(req)
	if err != nil {
		return ""
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(res.Body)
	if err != nil {
		return ""
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if len(title) > 200 {
		title = title[:200]
	}
	return title
}
