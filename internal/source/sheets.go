package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"referrals-engine/internal/domain"
)

const sheetsBaseURL = "https://sheets.googleapis.com/v4/spreadsheets"

// SheetSource reads a spreadsheet range over the Sheets values REST API.
// The http.Client must already be authenticated (OAuth is someone else's
// problem); this adapter only speaks the values.get / values:batchUpdate
// endpoints.
type SheetSource struct {
	SpreadsheetID string
	Range         string // A1 range, header row first, e.g. Contacts!A:J
	StatusColumn  string // optional A1 letter override
	SentAtColumn  string // optional A1 letter override

	hc      *http.Client
	baseURL string

	mu     sync.Mutex
	header HeaderMap
	loaded bool
}

func NewSheetSource(client *http.Client, spreadsheetID, a1Range, statusCol, sentAtCol string) *SheetSource {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SheetSource{
		SpreadsheetID: spreadsheetID,
		Range:         a1Range,
		StatusColumn:  statusCol,
		SentAtColumn:  sentAtCol,
		hc:            client,
		baseURL:       sheetsBaseURL,
	}
}

type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values"`
}

func (s *SheetSource) Load(ctx context.Context) ([]domain.ContactRow, error) {
	values, err := s.fetchValues(ctx)
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: range %s returned no values", ErrSourceUnavailable, s.Range)
	}

	hm, err := NormalizeHeader(values[0])
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.header = hm
	s.loaded = true
	s.mu.Unlock()

	firstDataRow := rangeStartRow(s.Range) + 1 // header occupies the first row
	rows := make([]domain.ContactRow, 0, len(values)-1)
	for i, cells := range values[1:] {
		rows = append(rows, hm.RowFromCells(firstDataRow+i, cells))
	}
	return rows, nil
}

func (s *SheetSource) WriteBack(ctx context.Context, updates []StatusUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	s.mu.Lock()
	hm, loaded := s.header, s.loaded
	s.mu.Unlock()
	if !loaded {
		return fmt.Errorf("write-back before load on spreadsheet %s", s.SpreadsheetID)
	}

	offset := rangeStartCol(s.Range)
	statusCol := s.StatusColumn
	if statusCol == "" {
		statusCol = numToCol(offset + hm.StatusIdx)
	}
	sentAtCol := s.SentAtColumn
	if sentAtCol == "" && hm.SentAtIdx >= 0 {
		sentAtCol = numToCol(offset + hm.SentAtIdx)
	}

	sheet := sheetName(s.Range)
	var data []valueRange
	for _, u := range updates {
		data = append(data, valueRange{
			Range:  cellRef(sheet, statusCol, u.Position),
			Values: [][]string{{u.Status}},
		})
		if sentAtCol != "" && u.SentAt != "" {
			data = append(data, valueRange{
				Range:  cellRef(sheet, sentAtCol, u.Position),
				Values: [][]string{{u.SentAt}},
			})
		}
	}

	body, err := json.Marshal(map[string]any{
		"data":             data,
		"valueInputOption": "RAW",
	})
	if err != nil {
		return err
	}

	u := fmt.Sprintf("%s/%s/values:batchUpdate", s.baseURL, url.PathEscape(s.SpreadsheetID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.hc.Do(req)
	if err != nil {
		return fmt.Errorf("sheets batch update: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return fmt.Errorf("sheets batch update status %d", res.StatusCode)
	}
	return nil
}

func (s *SheetSource) fetchValues(ctx context.Context) ([][]string, error) {
	u := fmt.Sprintf("%s/%s/values/%s", s.baseURL, url.PathEscape(s.SpreadsheetID), url.PathEscape(s.Range))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	res, err := s.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer res.Body.Close()
	if res.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: sheets values status %d", ErrSourceUnavailable, res.StatusCode)
	}

	var vr valueRange
	if err := json.NewDecoder(res.Body).Decode(&vr); err != nil {
		return nil, fmt.Errorf("%w: decode sheets values: %v", ErrSourceUnavailable, err)
	}
	return vr.Values, nil
}

// --- A1 range helpers ---

func sheetName(rng string) string {
	if i := strings.IndexByte(rng, '!'); i >= 0 {
		return rng[:i]
	}
	return ""
}

func cellRef(sheet, col string, row int) string {
	ref := fmt.Sprintf("%s%d", col, row)
	if sheet != "" {
		return sheet + "!" + ref
	}
	return ref
}

// numToCol converts a 0-based column number to its A1 letters.
func numToCol(num int) string {
	out := ""
	n := num
	for {
		var rem int
		n, rem = n/26, n%26
		out = string(rune('A'+rem)) + out
		if n == 0 {
			break
		}
		n--
	}
	return out
}

// colToNum converts A1 letters to a 0-based column number.
func colToNum(col string) int {
	col = strings.ToUpper(strings.TrimSpace(col))
	num := 0
	for _, ch := range col {
		if ch < 'A' || ch > 'Z' {
			continue
		}
		num = num*26 + int(ch-'A') + 1
	}
	if num == 0 {
		return 0
	}
	return num - 1
}

// rangeStartCol returns the 0-based column offset of the range start, so a
// range beginning at C maps header index 0 to column C.
func rangeStartCol(rng string) int {
	target := rng
	if i := strings.IndexByte(rng, '!'); i >= 0 {
		target = rng[i+1:]
	}
	start := target
	if i := strings.IndexByte(target, ':'); i >= 0 {
		start = target[:i]
	}
	letters := strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			return r
		}
		return -1
	}, start)
	if letters == "" {
		return 0
	}
	return colToNum(letters)
}

// rangeStartRow returns the 1-based row the range starts at (1 when the range
// has no explicit row, as in A:J).
func rangeStartRow(rng string) int {
	target := rng
	if i := strings.IndexByte(rng, '!'); i >= 0 {
		target = rng[i+1:]
	}
	start := target
	if i := strings.IndexByte(target, ':'); i >= 0 {
		start = target[:i]
	}
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, start)
	if digits == "" {
		return 1
	}
	row := 0
	for _, ch := range digits {
		row = row*10 + int(ch-'0')
	}
	if row < 1 {
		return 1
	}
	return row
}
