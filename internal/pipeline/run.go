package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"referrals-engine/internal/domain"
	"referrals-engine/internal/mailer"
	"referrals-engine/internal/render"
	"referrals-engine/internal/source"
)

// ErrWriteBackFailed marks the reconciliation hazard: the message went out but
// the source still carries the old status, so the row may be re-sent next run
// unless the dedup guard catches it. Never swallowed.
var ErrWriteBackFailed = errors.New("status write-back failed after send")

// Sender dispatches one message and returns its message ID.
type Sender interface {
	Send(ctx context.Context, msg mailer.Outbound) (string, error)
}

// DedupLog is the persisted sent-log consulted before each send.
type DedupLog interface {
	Seen(ctx context.Context, row domain.ContactRow) (bool, error)
	Mark(ctx context.Context, row domain.ContactRow, messageID string, at time.Time) error
}

// AttachmentResolver turns a row's resume flag into an attachment, nil when
// nothing is configured for it.
type AttachmentResolver interface {
	Resolve(flag string) (*mailer.Attachment, error)
}

// Runner owns one invocation of the pipeline. All knobs come in as values; no
// global state is consulted mid-run.
type Runner struct {
	Source   source.Source
	Dedup    DedupLog // nil when the local sent-log guard is disabled
	Template render.Renderer
	LLM      render.Renderer // nil when LLM drafting is disabled
	Sender   Sender
	Resumes  AttachmentResolver

	DailyCap int
	DryRun   bool
	Pacer    *rate.Limiter // spacing between dispatches, nil = no pacing
	Log      *zap.Logger

	Now func() time.Time // test hook, defaults to time.Now
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Run processes the whole contact table sequentially. Fatal problems (source
// unreachable, missing status column, unreadable dedup log) return an error
// with a nil-decision ledger and zero write-backs; per-row problems are
// recorded in the ledger and do not stop the batch.
func (r *Runner) Run(ctx context.Context) (*domain.RunLedger, error) {
	ledger := domain.NewRunLedger(r.now())
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("run_id", ledger.RunID.String()))

	var rows []domain.ContactRow
	var priorSends int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = r.Source.Load(gctx)
		return err
	})
	if counter, ok := r.Dedup.(interface {
		Count(context.Context) (int, error)
	}); ok {
		g.Go(func() error {
			var err error
			priorSends, err = counter.Count(gctx)
			if err != nil {
				return fmt.Errorf("dedup log unreadable: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ledger, err
	}

	log.Info("contacts loaded", zap.Int("rows", len(rows)), zap.Int("prior_sends", priorSends))

	governor := NewGovernor(r.DailyCap)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			// Rows already reconciled stay terminal; the rest are untouched
			// and safe to re-run.
			return ledger, err
		}
		r.processRow(ctx, log, ledger, governor, row)
	}

	log.Info("run complete", zap.Int("sent", ledger.SentCount),
		zap.Int("errors", ledger.Errors()), zap.Int("hazards", ledger.Hazards()))
	return ledger, nil
}

func (r *Runner) processRow(ctx context.Context, log *zap.Logger, ledger *domain.RunLedger, governor *Governor, row domain.ContactRow) {
	contact := row.Label()
	prev := row.Status()
	rowLog := log.With(zap.Int("row", row.Position), zap.String("contact", contact))

	class, missing := Classify(row)
	switch class {
	case ClassAlreadyHandled:
		rowLog.Debug("skip, already handled", zap.String("status", prev))
		ledger.Record(domain.Decision{
			Position: row.Position, Contact: contact,
			PrevStatus: prev, NewStatus: prev,
			Reason: domain.ReasonAlreadyHandled, At: r.now(),
		})
		return

	case ClassMissingField:
		rowLog.Info("required field missing", zap.Strings("fields", missing))
		detail := fmt.Sprintf("missing %v", missing)
		if err := r.Source.WriteBack(ctx, []source.StatusUpdate{{
			Position: row.Position, Status: domain.StatusMissingField,
		}}); err != nil {
			rowLog.Error("mark missing-field row failed", zap.Error(err))
			detail += "; mark failed: " + err.Error()
		}
		ledger.Record(domain.Decision{
			Position: row.Position, Contact: contact,
			PrevStatus: prev, NewStatus: domain.StatusMissingField,
			Reason: domain.ReasonMissingField, Detail: detail, At: r.now(),
		})
		return
	}

	// A previously incomplete row that now validates gets its stale marker
	// cleared so the sheet reflects reality even if the send below fails.
	if domain.IsMissingFieldMarker(prev) {
		rowLog.Info("revalidating previously incomplete row")
		if err := r.Source.WriteBack(ctx, []source.StatusUpdate{{Position: row.Position}}); err != nil {
			rowLog.Warn("clear stale missing-field marker failed", zap.Error(err))
		}
	}

	if r.Dedup != nil {
		seen, err := r.Dedup.Seen(ctx, row)
		if err != nil {
			// The log was readable at startup; a mid-run read error makes its
			// answers untrustworthy, so refuse to send rather than risk a
			// double-contact.
			rowLog.Error("dedup lookup failed, not sending", zap.Error(err))
			ledger.Record(domain.Decision{
				Position: row.Position, Contact: contact, PrevStatus: prev,
				Reason: domain.ReasonSendFailed, Detail: "dedup lookup: " + err.Error(), At: r.now(),
			})
			return
		}
		if seen {
			rowLog.Info("skip, already in sent log")
			ledger.Record(domain.Decision{
				Position: row.Position, Contact: contact,
				PrevStatus: prev, NewStatus: prev,
				Reason: domain.ReasonDuplicate, At: r.now(),
			})
			return
		}
	}

	if !governor.Admit() {
		rowLog.Info("daily limit reached, leaving row for next run")
		ledger.Record(domain.Decision{
			Position: row.Position, Contact: contact,
			PrevStatus: prev, NewStatus: prev,
			Reason: domain.ReasonLimitReached, At: r.now(),
		})
		return
	}

	subject, body, err := r.renderRow(ctx, row)
	if err != nil {
		rowLog.Error("render failed", zap.Error(err))
		ledger.Record(domain.Decision{
			Position: row.Position, Contact: contact, PrevStatus: prev,
			Reason: domain.ReasonSendFailed, Detail: "render: " + err.Error(), At: r.now(),
		})
		return
	}

	var attachment *mailer.Attachment
	if r.Resumes != nil {
		attachment, err = r.Resumes.Resolve(row.Get(domain.FieldResumeFlag))
		if err != nil {
			// Send without the resume rather than dropping the row.
			rowLog.Warn("resume resolution failed", zap.Error(err))
		}
	}

	if r.DryRun {
		rowLog.Info("dry run", zap.String("subject", subject), zap.Bool("attachment", attachment != nil))
		r.reconcile(ctx, rowLog, ledger, row, outcomeDryRun, "")
		return
	}

	if r.Pacer != nil {
		if err := r.Pacer.Wait(ctx); err != nil {
			ledger.Record(domain.Decision{
				Position: row.Position, Contact: contact, PrevStatus: prev,
				Reason: domain.ReasonSendFailed, Detail: err.Error(), At: r.now(),
			})
			return
		}
	}

	msgID, err := r.Sender.Send(ctx, mailer.Outbound{
		To:         row.Get(domain.FieldEmail),
		Subject:    subject,
		Body:       body,
		Attachment: attachment,
		Headers:    map[string]string{"X-Referrals-Bot": "1"},
	})
	if err != nil {
		// Status is deliberately not advanced: the row retries next run.
		rowLog.Error("send failed", zap.Error(err))
		ledger.Record(domain.Decision{
			Position: row.Position, Contact: contact, PrevStatus: prev,
			Reason: domain.ReasonSendFailed, Detail: err.Error(), At: r.now(),
		})
		return
	}

	rowLog.Info("sent", zap.String("message_id", msgID))
	r.reconcile(ctx, rowLog, ledger, row, outcomeSent, msgID)
}

func (r *Runner) renderRow(ctx context.Context, row domain.ContactRow) (string, string, error) {
	if r.LLM != nil && render.WantsLLM(row) {
		return r.LLM.Render(ctx, row)
	}
	return r.Template.Render(ctx, row)
}
