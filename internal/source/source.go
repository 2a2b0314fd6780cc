// Package source loads contact rows from a tabular backing store (a local
// delimited file or a remote spreadsheet range) and writes row statuses back
// to it. Both adapters produce identical ContactRow shapes.
package source

import (
	"context"
	"errors"

	"referrals-engine/internal/domain"
)

var (
	// ErrSourceUnavailable wraps any failure to reach the backing store or a
	// missing file/range. Fatal for the whole run.
	ErrSourceUnavailable = errors.New("contact source unavailable")

	// ErrMissingStatusColumn means the header has no column normalizing to
	// "status". The status column is the source of truth for idempotency, so
	// this aborts the run before any row is processed.
	ErrMissingStatusColumn = errors.New("no status or email_sent column in header")
)

// StatusUpdate is one write-back instruction: set the status cell (and the
// sent_at cell, when the source has one) of the row at Position.
type StatusUpdate struct {
	Position int
	Status   string
	SentAt   string // RFC-3339 UTC, "" to leave the cell untouched
}

// Source is the narrow contract the pipeline runs against.
type Source interface {
	// Load reads the full table. Read-only; row positions are stable.
	Load(ctx context.Context) ([]domain.ContactRow, error)

	// WriteBack applies status updates by original row position. Only the
	// status and sent_at columns are ever touched.
	WriteBack(ctx context.Context, updates []StatusUpdate) error
}
