package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"referrals-engine/internal/domain"
)

// FileSource reads contacts from a local delimited file. The first record is
// the header row, so data positions start at 2 (matching the sheet adapter).
type FileSource struct {
	Path string

	mu     sync.Mutex
	header HeaderMap
	loaded bool
}

func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

func (s *FileSource) Load(ctx context.Context) ([]domain.ContactRow, error) {
	records, err := s.readAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrSourceUnavailable, s.Path)
	}

	hm, err := NormalizeHeader(records[0])
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.header = hm
	s.loaded = true
	s.mu.Unlock()

	rows := make([]domain.ContactRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		rows = append(rows, hm.RowFromCells(2+i, rec))
	}
	return rows, nil
}

// WriteBack rewrites the file with the status (and sent_at, when present)
// cells of the given rows replaced. All other cells are carried over
// untouched, in their original column order.
func (s *FileSource) WriteBack(ctx context.Context, updates []StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return fmt.Errorf("write-back before load on %s", s.Path)
	}

	records, err := s.readAll()
	if err != nil {
		return err
	}

	for _, u := range updates {
		idx := u.Position - 1 // positions are 1-based over the whole file
		if idx < 1 || idx >= len(records) {
			return fmt.Errorf("write-back position %d out of range (%d rows)", u.Position, len(records))
		}
		records[idx] = setCell(records[idx], s.header.StatusIdx, u.Status)
		if s.header.SentAtIdx >= 0 && u.SentAt != "" {
			records[idx] = setCell(records[idx], s.header.SentAtIdx, u.SentAt)
		}
	}

	tmp := s.Path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("write contacts file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.WriteAll(records); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write contacts file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write contacts file: %w", err)
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileSource) readAll() ([][]string, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // ragged rows are normal in hand-edited sheets
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse %s: %v", ErrSourceUnavailable, s.Path, err)
	}
	return records, nil
}

func setCell(rec []string, idx int, val string) []string {
	for len(rec) <= idx {
		rec = append(rec, "")
	}
	rec[idx] = val
	return rec
}
