package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"referrals-engine/internal/domain"
	"referrals-engine/internal/mailer"
	"referrals-engine/internal/source"
)

// fakeSource serves rows from memory and applies write-backs to them, so a
// second Run sees exactly what a real backing sheet would.
type fakeSource struct {
	mu        sync.Mutex
	header    []string
	rows      []domain.ContactRow
	updates   []source.StatusUpdate
	failAt    map[int]bool // position -> fail write-back
	loadErr   error
}

func (f *fakeSource) Load(ctx context.Context) ([]domain.ContactRow, error) {
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ContactRow, len(f.rows))
	for i, r := range f.rows {
		fields := make(map[string]string, len(r.Fields))
		for k, v := range r.Fields {
			fields[k] = v
		}
		out[i] = domain.ContactRow{Position: r.Position, Fields: fields}
	}
	return out, nil
}

func (f *fakeSource) WriteBack(ctx context.Context, updates []source.StatusUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range updates {
		if f.failAt[u.Position] {
			return fmt.Errorf("write-back refused for row %d", u.Position)
		}
	}
	for _, u := range updates {
		f.updates = append(f.updates, u)
		for i := range f.rows {
			if f.rows[i].Position == u.Position {
				f.rows[i].Fields[domain.FieldStatus] = u.Status
				if u.SentAt != "" {
					f.rows[i].Fields[domain.FieldSentAt] = u.SentAt
				}
			}
		}
	}
	return nil
}

func (f *fakeSource) statusOf(position int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.rows {
		if r.Position == position {
			return r.Fields[domain.FieldStatus]
		}
	}
	return ""
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []mailer.Outbound
	failFor map[string]error // recipient -> error
}

func (f *fakeSender) Send(ctx context.Context, msg mailer.Outbound) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[msg.To]; err != nil {
		return "", err
	}
	f.sent = append(f.sent, msg)
	return fmt.Sprintf("msg-%d", len(f.sent)), nil
}

func (f *fakeSender) recipients() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.To
	}
	return out
}

type memDedup struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemDedup() *memDedup { return &memDedup{keys: map[string]string{}} }

func dedupKey(row domain.ContactRow) string {
	parts := []string{
		row.Get(domain.FieldName), row.Get(domain.FieldRole), row.Get(domain.FieldCompany),
	}
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	return strings.Join(parts, "::")
}

func (d *memDedup) Seen(ctx context.Context, row domain.ContactRow) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.keys[dedupKey(row)]
	return ok, nil
}

func (d *memDedup) Mark(ctx context.Context, row domain.ContactRow, msgID string, at time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[dedupKey(row)] = msgID
	return nil
}

type stubRenderer struct{ err error }

func (s stubRenderer) Render(ctx context.Context, row domain.ContactRow) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return "Hello " + row.Get(domain.FieldName), "body", nil
}

func row(position int, overrides map[string]string) domain.ContactRow {
	fields := map[string]string{
		"name": fmt.Sprintf("Person %d", position), "email": fmt.Sprintf("p%d@example.com", position),
		"company": "Acme", "role": "Engineer", "template": "cold",
		"resume_flag": "default", "status": "",
	}
	for k, v := range overrides {
		fields[k] = v
	}
	return domain.ContactRow{Position: position, Fields: fields}
}

func newRunner(src *fakeSource, sender *fakeSender, extra func(*Runner)) *Runner {
	r := &Runner{
		Source:   src,
		Template: stubRenderer{},
		Sender:   sender,
	}
	if extra != nil {
		extra(r)
	}
	return r
}

func TestRunMixedBatch(t *testing.T) {
	// 3 rows: already sent, missing email, valid; cap = 1
	src := &fakeSource{rows: []domain.ContactRow{
		row(2, map[string]string{"status": "SENT"}),
		row(3, map[string]string{"email": ""}),
		row(4, nil),
	}}
	sender := &fakeSender{}
	runner := newRunner(src, sender, func(r *Runner) { r.DailyCap = 1 })

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ledger.Decisions, 3)

	assert.Equal(t, domain.ReasonAlreadyHandled, ledger.Decisions[0].Reason)
	assert.Equal(t, "SENT", ledger.Decisions[0].PrevStatus)

	assert.Equal(t, domain.ReasonMissingField, ledger.Decisions[1].Reason)
	assert.Equal(t, domain.StatusMissingField, ledger.Decisions[1].NewStatus)
	assert.Equal(t, domain.StatusMissingField, src.statusOf(3))

	assert.Equal(t, domain.ReasonSent, ledger.Decisions[2].Reason)
	assert.Equal(t, domain.StatusSent, src.statusOf(4))

	assert.Equal(t, 1, ledger.SentCount)
	assert.Equal(t, []string{"p4@example.com"}, sender.recipients())
	assert.False(t, ledger.Failed())
}

func TestRunIdempotency(t *testing.T) {
	src := &fakeSource{rows: []domain.ContactRow{row(2, nil), row(3, nil)}}
	sender := &fakeSender{}
	runner := newRunner(src, sender, nil)

	_, err := runner.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, sender.sent, 2)

	// second invocation over the same (now updated) source sends nothing
	second, err := newRunner(src, sender, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, sender.sent, 2)
	assert.Equal(t, 0, second.SentCount)
	for _, d := range second.Decisions {
		assert.Equal(t, domain.ReasonAlreadyHandled, d.Reason)
	}
}

func TestRunRequeueAfterFix(t *testing.T) {
	src := &fakeSource{rows: []domain.ContactRow{row(2, map[string]string{"email": ""})}}
	sender := &fakeSender{}

	_, err := newRunner(src, sender, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusMissingField, src.statusOf(2))
	assert.Empty(t, sender.sent)

	// operator fills in the email before the next run
	src.mu.Lock()
	src.rows[0].Fields[domain.FieldEmail] = "fixed@example.com"
	src.mu.Unlock()

	ledger, err := newRunner(src, sender, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.SentCount)
	assert.Equal(t, domain.StatusSent, src.statusOf(2))
	assert.Equal(t, []string{"fixed@example.com"}, sender.recipients())
}

func TestRunDailyLimitLaw(t *testing.T) {
	var rows []domain.ContactRow
	for i := 0; i < 5; i++ {
		rows = append(rows, row(2+i, nil))
	}
	src := &fakeSource{rows: rows}
	sender := &fakeSender{}
	runner := newRunner(src, sender, func(r *Runner) { r.DailyCap = 3 })

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.SentCount)
	assert.Len(t, sender.sent, 3)

	limited := 0
	for _, d := range ledger.Decisions {
		if d.Reason == domain.ReasonLimitReached {
			limited++
		}
	}
	assert.Equal(t, 2, limited)

	// limited rows stay non-terminal: no write-back was issued for them
	assert.Equal(t, "", src.statusOf(6))
	assert.Equal(t, "", src.statusOf(7))

	// and they are picked up on the next invocation
	next, err := newRunner(src, sender, func(r *Runner) { r.DailyCap = 3 }).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, next.SentCount)
}

func TestRunDedupLaw(t *testing.T) {
	// two different rows, same normalized name+role+company
	src := &fakeSource{rows: []domain.ContactRow{
		row(2, map[string]string{"name": "Ada Lovelace"}),
		row(3, map[string]string{"name": "  ada   LOVELACE "}),
	}}
	sender := &fakeSender{}
	runner := newRunner(src, sender, func(r *Runner) { r.Dedup = newMemDedup() })

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.SentCount)
	assert.Equal(t, []string{"p2@example.com"}, sender.recipients())
	assert.Equal(t, domain.ReasonDuplicate, ledger.Decisions[1].Reason)

	// the duplicate's remote status is untouched
	assert.Equal(t, "", src.statusOf(3))
}

func TestRunSendThenReconcileOrdering(t *testing.T) {
	src := &fakeSource{rows: []domain.ContactRow{row(2, nil)}}
	sender := &fakeSender{failFor: map[string]error{"p2@example.com": errors.New("relay down")}}
	runner := newRunner(src, sender, nil)

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err)

	// failed send: status never advances to SENT
	assert.Equal(t, "", src.statusOf(2))
	require.Len(t, ledger.Decisions, 1)
	assert.Equal(t, domain.ReasonSendFailed, ledger.Decisions[0].Reason)
	assert.Equal(t, "", ledger.Decisions[0].NewStatus)
	assert.True(t, ledger.Failed())
}

func TestRunWriteBackFailureAfterSendIsHazard(t *testing.T) {
	src := &fakeSource{
		rows:   []domain.ContactRow{row(2, nil)},
		failAt: map[int]bool{2: true},
	}
	sender := &fakeSender{}
	dl := newMemDedup()
	runner := newRunner(src, sender, func(r *Runner) { r.Dedup = dl })

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err)

	// message went out but the sheet still says UNSET
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "", src.statusOf(2))

	require.Len(t, ledger.Decisions, 1)
	assert.Equal(t, domain.ReasonWriteBackFailed, ledger.Decisions[0].Reason)
	assert.Contains(t, ledger.Decisions[0].Detail, ErrWriteBackFailed.Error())
	assert.True(t, ledger.Failed())
	assert.Equal(t, 1, ledger.Hazards())

	// the dedup log still has the send, so the next run will not re-send
	seen, err := dl.Seen(context.Background(), src.rows[0])
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestRunDryRun(t *testing.T) {
	src := &fakeSource{rows: []domain.ContactRow{row(2, nil)}}
	sender := &fakeSender{}
	dl := newMemDedup()
	runner := newRunner(src, sender, func(r *Runner) {
		r.DryRun = true
		r.Dedup = dl
	})

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, sender.sent)
	assert.Equal(t, domain.StatusDryRun, src.statusOf(2))
	require.Len(t, ledger.Decisions, 1)
	assert.Equal(t, domain.ReasonDryRun, ledger.Decisions[0].Reason)
	assert.Equal(t, 0, ledger.SentCount)

	// dry-run rows never get a sent_at
	for _, u := range src.updates {
		assert.Empty(t, u.SentAt)
	}

	// a dry run must not poison the sent log: the same row sends for real later
	runner.DryRun = false
	_, err = runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"p2@example.com"}, sender.recipients())
	assert.Equal(t, domain.StatusSent, src.statusOf(2))
}

func TestRunClearsStaleMissingFieldMarker(t *testing.T) {
	src := &fakeSource{rows: []domain.ContactRow{
		row(2, map[string]string{"status": domain.StatusMissingField}),
	}}
	sender := &fakeSender{}

	ledger, err := newRunner(src, sender, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ledger.SentCount)

	// first write-back clears the stale marker, second records the send
	require.GreaterOrEqual(t, len(src.updates), 2)
	assert.Equal(t, "", src.updates[0].Status)
	assert.Equal(t, domain.StatusSent, src.updates[len(src.updates)-1].Status)
}

func TestRunFatalOnLoadError(t *testing.T) {
	src := &fakeSource{loadErr: fmt.Errorf("%w: boom", source.ErrSourceUnavailable)}
	runner := newRunner(src, &fakeSender{}, nil)

	ledger, err := runner.Run(context.Background())
	require.ErrorIs(t, err, source.ErrSourceUnavailable)
	assert.Empty(t, ledger.Decisions)
	assert.Empty(t, src.updates, "zero write-backs on a fatal error")
}

func TestRunRenderFailureIsPerRow(t *testing.T) {
	src := &fakeSource{rows: []domain.ContactRow{row(2, nil), row(3, nil)}}
	sender := &fakeSender{}
	runner := newRunner(src, sender, func(r *Runner) {
		r.Template = stubRenderer{err: errors.New("template broken")}
	})

	ledger, err := runner.Run(context.Background())
	require.NoError(t, err, "per-row errors never abort the batch")
	assert.Len(t, ledger.Decisions, 2)
	assert.True(t, ledger.Failed())
	assert.Empty(t, sender.sent)
	assert.Equal(t, "", src.statusOf(2))
}
