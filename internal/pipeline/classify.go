// Package pipeline drives the per-row decision chain: classification, dedup
// guarding, daily-limit admission, send and status reconciliation.
package pipeline

import (
	"referrals-engine/internal/domain"
)

type Classification int

const (
	// ClassReady means the row is validated and eligible for the run-scoped
	// gates (dedup, limit).
	ClassReady Classification = iota

	// ClassMissingField means a required field is empty. Written back so
	// operators see it, re-evaluated every run.
	ClassMissingField

	// ClassAlreadyHandled means the row carries a terminal status value and
	// is excluded from all downstream processing. No write-back.
	ClassAlreadyHandled
)

// Classify decides a single row's fate. Deterministic and side-effect free;
// the dedup log and daily limit are later, run-scoped gates applied only to
// ready rows.
func Classify(row domain.ContactRow) (Classification, []string) {
	if domain.IsTerminal(row.Status()) {
		return ClassAlreadyHandled, nil
	}

	var missing []string
	for _, f := range domain.RequiredFields {
		if row.Get(f) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return ClassMissingField, missing
	}
	return ClassReady, nil
}
