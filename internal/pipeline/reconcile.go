package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"referrals-engine/internal/domain"
	"referrals-engine/internal/source"
)

type outcome int

const (
	outcomeSent outcome = iota
	outcomeDryRun
)

// reconcile records the outcome of a dispatched (or dry-run) row: sent-log
// entry, write-back instruction and ledger decision. Ordering is always
// send-then-reconcile; this function only runs after the send already
// succeeded, so SENT can never be written for an undispatched message.
func (r *Runner) reconcile(ctx context.Context, rowLog *zap.Logger, ledger *domain.RunLedger, row domain.ContactRow, oc outcome, msgID string) {
	now := r.now()
	prev := row.Status()

	newStatus := domain.StatusSent
	sentAt := now.Format(time.RFC3339)
	reason := domain.ReasonSent
	if oc == outcomeDryRun {
		newStatus = domain.StatusDryRun
		sentAt = ""
		reason = domain.ReasonDryRun
		msgID = domain.StatusDryRun
	}

	// The sent log is written before the remote status column: if we crash in
	// between, the dedup guard still blocks a re-send next run. Dry runs stay
	// out of the log so the row is still eligible for a real send later.
	if r.Dedup != nil && oc == outcomeSent {
		if err := r.Dedup.Mark(ctx, row, msgID, now); err != nil {
			rowLog.Error("sent-log mark failed", zap.Error(err))
		}
	}

	update := source.StatusUpdate{Position: row.Position, Status: newStatus, SentAt: sentAt}
	if err := r.Source.WriteBack(ctx, []source.StatusUpdate{update}); err != nil {
		if oc == outcomeSent {
			// The message is out; this row is now a reconciliation hazard.
			rowLog.Error("write-back failed after send",
				zap.Error(err), zap.String("message_id", msgID))
			ledger.Record(domain.Decision{
				Position: row.Position, Contact: row.Label(),
				PrevStatus: prev, NewStatus: newStatus,
				Reason: domain.ReasonWriteBackFailed,
				Detail: ErrWriteBackFailed.Error() + ": " + err.Error(),
				At:     now,
			})
			return
		}
		rowLog.Error("write-back failed on dry run", zap.Error(err))
	}

	ledger.Record(domain.Decision{
		Position: row.Position, Contact: row.Label(),
		PrevStatus: prev, NewStatus: newStatus,
		Reason: reason, Detail: msgID, At: now,
	})
}
