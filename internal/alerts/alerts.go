// Package alerts turns a finished run's ledger into the operator-facing
// summary email.
package alerts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"referrals-engine/internal/domain"
	"referrals-engine/internal/mailer"
)

type sender interface {
	Send(ctx context.Context, msg mailer.Outbound) (string, error)
}

type Notifier struct {
	Sender        sender
	Email         string
	Mode          string // never | error | always
	SubjectPrefix string
	Log           *zap.Logger
}

func (n *Notifier) shouldSend(failed bool) bool {
	if n == nil || n.Sender == nil || n.Email == "" || n.Mode == "never" {
		return false
	}
	if n.Mode == "always" {
		return true
	}
	return failed
}

// Notify mails the run summary with the full run log attached. Best effort:
// an alert failure is logged, never escalated, since the run itself already
// finished.
func (n *Notifier) Notify(ctx context.Context, ledger *domain.RunLedger, subjectSuffix string) {
	if !n.shouldSend(ledger.Failed()) {
		return
	}

	core := "Run report"
	if ledger.Failed() {
		core = "Run errors"
	}
	subject := strings.TrimSpace(fmt.Sprintf("%s %s", n.SubjectPrefix, core))
	if subjectSuffix != "" {
		subject += " - " + subjectSuffix
	}

	lines := ledger.ReportLines()
	body := fmt.Sprintf("%s\nTime: %s\n\n%s\n",
		ledger.Summary(),
		time.Now().UTC().Format("2006-01-02 15:04:05 UTC"),
		strings.Join(lines, "\n"))

	_, err := n.Sender.Send(ctx, mailer.Outbound{
		To:      n.Email,
		Subject: subject,
		Body:    body,
		Attachment: &mailer.Attachment{
			Filename: "run.log.txt",
			MIMEType: "text/plain",
			Bytes:    []byte(body),
		},
		Headers: map[string]string{
			"X-Referrals-Bot":   "1",
			"X-Referrals-Alert": "1",
		},
	})
	if err != nil && n.Log != nil {
		n.Log.Error("alert email failed", zap.String("to", n.Email), zap.Error(err))
	}
}
