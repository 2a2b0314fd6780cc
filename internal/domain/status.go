package domain

import "strings"

// Status values written back to the source by the pipeline.
const (
	StatusSent         = "SENT"
	StatusDryRun       = "DRY_RUN"
	StatusMissingField = "required_field_missing"
)

// terminalInputs are status values recognized on read as "already handled".
// Rows carrying one of these are never reprocessed or written back.
var terminalInputs = map[string]struct{}{
	"SENT": {},
	"YES":  {},
	"TRUE": {},
	"1":    {},
	"DONE": {},
}

// IsTerminal reports whether a raw status value excludes the row from all
// further processing. Matching is case-insensitive.
func IsTerminal(raw string) bool {
	_, ok := terminalInputs[strings.ToUpper(strings.TrimSpace(raw))]
	return ok
}

// IsMissingFieldMarker reports whether a raw status value is a previous run's
// required_field_missing marker. Unlike the terminal set, such rows are
// re-evaluated every run so a later fix can promote them.
func IsMissingFieldMarker(raw string) bool {
	return strings.EqualFold(strings.TrimSpace(raw), StatusMissingField)
}
