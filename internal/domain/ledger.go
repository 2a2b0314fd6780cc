package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Decision reasons recorded per row.
const (
	ReasonAlreadyHandled  = "already_handled"
	ReasonMissingField    = "missing_field"
	ReasonDuplicate       = "duplicate"
	ReasonLimitReached    = "limit_reached"
	ReasonSent            = "sent"
	ReasonDryRun          = "dry_run"
	ReasonSendFailed      = "send_failed"
	ReasonWriteBackFailed = "write_back_failed"
)

// Decision is one row's outcome within a run.
type Decision struct {
	Position   int
	Contact    string
	PrevStatus string
	NewStatus  string // "" when the status was not advanced
	Reason     string
	Detail     string // cause text for failures, missing field list, etc.
	At         time.Time
}

// RunLedger accumulates everything that happened during one invocation.
// It is process-scoped and strictly sequential: one append per row, in
// source order.
type RunLedger struct {
	RunID     uuid.UUID
	StartedAt time.Time
	Decisions []Decision
	SentCount int

	errorCount  int
	hazardCount int
}

func NewRunLedger(now time.Time) *RunLedger {
	return &RunLedger{
		RunID:     uuid.New(),
		StartedAt: now,
	}
}

func (l *RunLedger) Record(d Decision) {
	l.Decisions = append(l.Decisions, d)
	switch d.Reason {
	case ReasonSent:
		l.SentCount++
	case ReasonSendFailed:
		l.errorCount++
	case ReasonWriteBackFailed:
		// Message went out but the source still says otherwise.
		l.errorCount++
		l.hazardCount++
	}
}

// Failed reports whether the run should surface a non-zero/alerting outcome.
// Skipped already-handled rows are not failures.
func (l *RunLedger) Failed() bool { return l.errorCount > 0 }

// Hazards counts write-back failures after a successful send: rows that may be
// re-sent next run because the source of truth was not updated.
func (l *RunLedger) Hazards() int { return l.hazardCount }

func (l *RunLedger) Errors() int { return l.errorCount }

// Summary renders the one-line human summary used in logs and alert subjects.
func (l *RunLedger) Summary() string {
	return fmt.Sprintf("run %s: rows=%d sent=%d errors=%d hazards=%d",
		l.RunID, len(l.Decisions), l.SentCount, l.errorCount, l.hazardCount)
}

// ReportLines renders the ordered (position, prev, new, reason) tuples the
// alerting sink consumes.
func (l *RunLedger) ReportLines() []string {
	out := make([]string, 0, len(l.Decisions))
	for _, d := range l.Decisions {
		newStatus := d.NewStatus
		if newStatus == "" {
			newStatus = d.PrevStatus
		}
		line := fmt.Sprintf("%s row=%d %s: %s -> %s (%s)",
			d.At.UTC().Format(time.RFC3339), d.Position, d.Contact,
			orUnset(d.PrevStatus), orUnset(newStatus), d.Reason)
		if d.Detail != "" {
			line += ": " + d.Detail
		}
		out = append(out, line)
	}
	return out
}

func orUnset(s string) string {
	if s == "" {
		return "UNSET"
	}
	return s
}
