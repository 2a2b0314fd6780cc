package source

import (
	"sort"
	"strings"

	"referrals-engine/internal/domain"
)

// synonyms maps normalized header spellings to canonical field names. Applied
// after lowercasing and whitespace/punctuation normalization.
var synonyms = map[string]string{
	"personalizednote": domain.FieldPersonalizedNote,
	"personalized_no":  domain.FieldPersonalizedNote,
	"resume":           domain.FieldResumeFlag,
	"jobid":            domain.FieldJobID,
	"joburl":           domain.FieldJobLink,
	"job_url":          domain.FieldJobLink,
	"email_sent":       domain.FieldStatus,
}

// HeaderMap is the compiled column-index -> canonical-field mapping for one
// header row, plus the remembered positions of the write-back columns.
type HeaderMap struct {
	Fields    map[int]string
	StatusIdx int
	SentAtIdx int // -1 when the source has no sent_at column
}

func normalizeCell(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.ReplaceAll(h, " ", "_")
	h = strings.ReplaceAll(h, "-", "_")
	return h
}

// NormalizeHeader compiles a raw header row into a HeaderMap. Fails with
// ErrMissingStatusColumn when nothing normalizes to status.
//
// When both a literal "status" column and an "email_sent" column are present,
// "status" wins; email_sent only acts as the status alias in its absence.
func NormalizeHeader(cells []string) (HeaderMap, error) {
	hm := HeaderMap{
		Fields:    make(map[int]string, len(cells)),
		StatusIdx: -1,
		SentAtIdx: -1,
	}

	aliasStatusIdx := -1
	for i, raw := range cells {
		norm := normalizeCell(raw)
		canon, aliased := synonyms[norm]
		if !aliased {
			canon = norm
		}

		switch {
		case canon == domain.FieldStatus && aliased:
			if aliasStatusIdx == -1 {
				aliasStatusIdx = i
			}
			hm.Fields[i] = canon
		case canon == domain.FieldStatus:
			if hm.StatusIdx == -1 {
				hm.StatusIdx = i
			}
			hm.Fields[i] = canon
		case canon == domain.FieldSentAt:
			if hm.SentAtIdx == -1 {
				hm.SentAtIdx = i
			}
			hm.Fields[i] = canon
		default:
			hm.Fields[i] = canon
		}
	}

	if hm.StatusIdx == -1 {
		hm.StatusIdx = aliasStatusIdx
	}
	if hm.StatusIdx == -1 {
		return HeaderMap{}, ErrMissingStatusColumn
	}
	return hm, nil
}

// RowFromCells builds a ContactRow from one data row using the compiled
// header map. Cells beyond the row's length read as empty; when two columns
// normalize to the same canonical field the first non-empty value wins.
func (hm HeaderMap) RowFromCells(position int, cells []string) domain.ContactRow {
	idxs := make([]int, 0, len(hm.Fields))
	for i := range hm.Fields {
		idxs = append(idxs, i)
	}
	sort.Ints(idxs)

	fields := make(map[string]string, len(hm.Fields))
	for _, idx := range idxs {
		canon := hm.Fields[idx]
		var v string
		if idx < len(cells) {
			v = strings.TrimSpace(cells[idx])
		}
		if existing, ok := fields[canon]; ok && existing != "" {
			continue
		}
		fields[canon] = v
	}
	// The status column proper always wins over any alias column value.
	if hm.StatusIdx < len(cells) {
		fields[domain.FieldStatus] = strings.TrimSpace(cells[hm.StatusIdx])
	}
	return domain.ContactRow{Position: position, Fields: fields}
}
