package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SMTPSender dispatches messages through an authenticated SMTP relay and,
// when configured, archives a copy into the account's Sent mailbox over IMAP
// (plain SMTP relays don't keep one for you the way the Gmail API did).
type SMTPSender struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	Archive *SentArchive // nil disables archiving
	Log     *zap.Logger
}

// Send builds the MIME message, dispatches it and returns a message ID.
// The archive copy is best effort: the send already happened, so an archive
// failure is logged, not returned.
func (s *SMTPSender) Send(ctx context.Context, msg Outbound) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := time.Now().UTC()
	msgID := fmt.Sprintf("<%s@%s>", uuid.NewString(), s.Host)
	if msg.Headers == nil {
		msg.Headers = map[string]string{}
	}
	msg.Headers["Message-Id"] = msgID

	raw, err := BuildMIME(s.From, msg, now)
	if err != nil {
		return "", err
	}

	addr := fmt.Sprintf("%s:%d", s.Host, s.Port)
	auth := smtp.PlainAuth("", s.Username, s.Password, s.Host)
	if err := smtp.SendMail(addr, auth, s.From, []string{msg.To}, raw); err != nil {
		return "", fmt.Errorf("smtp send to %s: %w", msg.To, err)
	}

	if s.Archive != nil {
		if err := s.Archive.Store(ctx, raw, now); err != nil && s.Log != nil {
			s.Log.Warn("archive to sent mailbox failed", zap.Error(err))
		}
	}
	return msgID, nil
}
