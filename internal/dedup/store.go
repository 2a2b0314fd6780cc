// Package dedup persists the identity keys of contacts already reached out
// to, so a run can refuse to message the same person twice even when the
// remote status column was lost or reset.
package dedup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"referrals-engine/internal/domain"
)

type Store struct {
	Pool *sql.DB
}

func Open(path string) (*Store, error) {
	// modernc sqlite DSN: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	pool, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	pool.SetMaxOpenConns(1) // sqlite typically wants 1 writer
	pool.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := pool.PingContext(ctx); err != nil {
		_ = pool.Close()
		return nil, err
	}

	s := &Store{Pool: pool}
	if err := s.migrate(); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.Pool == nil {
		return nil
	}
	return s.Pool.Close()
}

func (s *Store) migrate() error {
	tx, err := s.Pool.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var v int
	if err := tx.QueryRow(`PRAGMA user_version;`).Scan(&v); err != nil {
		return err
	}
	if v >= 1 {
		return tx.Commit()
	}

	if _, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS sent_log (
  key TEXT PRIMARY KEY,
  message_id TEXT NOT NULL DEFAULT '',
  sent_at TEXT NOT NULL
);
`); err != nil {
		return err
	}

	if _, err := tx.Exec(`PRAGMA user_version = 1;`); err != nil {
		return err
	}
	return tx.Commit()
}

// Key derives the dedup identity key from a contact row. Email is left out on
// purpose so the local log never stores addresses; the accepted trade-off is a
// false duplicate when two different people share name, role and company.
func Key(row domain.ContactRow) string {
	return joinKey(row.Get(domain.FieldName), row.Get(domain.FieldRole), row.Get(domain.FieldCompany))
}

// legacyKey is the older email-based form still honored on lookup.
func legacyKey(row domain.ContactRow) string {
	return joinKey(row.Get(domain.FieldEmail), row.Get(domain.FieldRole), row.Get(domain.FieldCompany))
}

func joinKey(parts ...string) string {
	norm := make([]string, len(parts))
	for i, p := range parts {
		norm[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	return strings.Join(norm, "::")
}

// Seen reports whether the contact was already sent to, under either the
// current or the legacy key form.
func (s *Store) Seen(ctx context.Context, row domain.ContactRow) (bool, error) {
	var one int
	err := s.Pool.QueryRowContext(ctx,
		`SELECT 1 FROM sent_log WHERE key = ? OR key = ? LIMIT 1;`,
		Key(row), legacyKey(row),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	return true, nil
}

// Mark records a send under the current key form and retires any legacy-keyed
// entry for the same contact. Past entries are never rewritten otherwise.
func (s *Store) Mark(ctx context.Context, row domain.ContactRow, messageID string, at time.Time) error {
	_, err := s.Pool.ExecContext(ctx, `
INSERT INTO sent_log (key, message_id, sent_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET message_id = excluded.message_id, sent_at = excluded.sent_at;`,
		Key(row), messageID, at.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("dedup mark: %w", err)
	}
	if lk := legacyKey(row); lk != Key(row) {
		_, _ = s.Pool.ExecContext(ctx, `DELETE FROM sent_log WHERE key = ?;`, lk)
	}
	return nil
}

// Count returns the number of recorded sends.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.Pool.QueryRowContext(ctx, `SELECT COUNT(*) FROM sent_log;`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
