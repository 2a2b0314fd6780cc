// Package mailer builds and dispatches outbound referral messages.
package mailer

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-message/mail"
)

// Attachment is an in-memory file to attach, usually a resume PDF.
type Attachment struct {
	Filename string
	MIMEType string
	Bytes    []byte
}

// Outbound is one message ready for dispatch.
type Outbound struct {
	To         string
	Subject    string
	Body       string
	Attachment *Attachment
	Headers    map[string]string
}

// BuildMIME renders an Outbound into RFC 822 bytes: multipart/mixed with a
// text/plain part and an optional attachment part.
func BuildMIME(from string, msg Outbound, at time.Time) ([]byte, error) {
	var h mail.Header
	h.SetDate(at)
	h.SetAddressList("From", []*mail.Address{{Address: from}})
	h.SetAddressList("To", []*mail.Address{{Address: msg.To}})
	h.SetSubject(msg.Subject)
	for k, v := range msg.Headers {
		h.Set(k, v)
	}

	var buf bytes.Buffer
	mw, err := mail.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("create mime writer: %w", err)
	}

	var ih mail.InlineHeader
	ih.SetContentType("text/plain", map[string]string{"charset": "utf-8"})
	body, err := mw.CreateSingleInline(ih)
	if err != nil {
		return nil, fmt.Errorf("create body part: %w", err)
	}
	if _, err := io.WriteString(body, msg.Body); err != nil {
		return nil, fmt.Errorf("write body: %w", err)
	}
	if err := body.Close(); err != nil {
		return nil, err
	}

	if a := msg.Attachment; a != nil && len(a.Bytes) > 0 {
		var ah mail.AttachmentHeader
		ah.SetFilename(a.Filename)
		mimeType := a.MIMEType
		if mimeType == "" {
			mimeType = "application/pdf"
		}
		ah.SetContentType(mimeType, nil)
		aw, err := mw.CreateAttachment(ah)
		if err != nil {
			return nil, fmt.Errorf("create attachment part: %w", err)
		}
		if _, err := aw.Write(a.Bytes); err != nil {
			return nil, fmt.Errorf("write attachment: %w", err)
		}
		if err := aw.Close(); err != nil {
			return nil, err
		}
	}

	if err := mw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
