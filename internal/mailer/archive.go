package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

// SentArchive appends dispatched messages to the account's Sent mailbox so
// the conversation shows up in the regular mail client.
type SentArchive struct {
	Addr     string // host:port
	Username string
	Password string
	Mailbox  string // e.g. "[Gmail]/Sent Mail"
}

func (a *SentArchive) Store(ctx context.Context, raw []byte, at time.Time) error {
	c, err := dialAndLoginIMAP(ctx, a.Addr, a.Username, a.Password)
	if err != nil {
		return err
	}
	defer func() {
		_ = c.Logout().Wait()
		_ = c.Close()
	}()

	cmd := c.Append(a.Mailbox, int64(len(raw)), &imap.AppendOptions{
		Flags: []imap.Flag{imap.FlagSeen},
		Time:  at,
	})
	if _, err := cmd.Write(raw); err != nil {
		return fmt.Errorf("imap append write: %w", err)
	}
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("imap append close: %w", err)
	}
	if _, err := cmd.Wait(); err != nil {
		return fmt.Errorf("imap append %q: %w", a.Mailbox, err)
	}
	return nil
}

// dialAndLoginIMAP connects over TLS and logs in.
func dialAndLoginIMAP(ctx context.Context, addr, username, password string) (*imapclient.Client, error) {
	if addr == "" {
		return nil, errors.New("imap addr is required")
	}
	if username == "" || password == "" {
		return nil, errors.New("imap username/password is required")
	}

	c, err := imapclient.DialTLS(addr, &imapclient.Options{
		TLSConfig: &tls.Config{MinVersion: tls.VersionTLS12},
	})
	if err != nil {
		return nil, fmt.Errorf("imap dial tls: %w", err)
	}

	// Best-effort close on context cancel.
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()

	if err := c.Login(username, password).Wait(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("imap login: %w", err)
	}
	return c, nil
}
