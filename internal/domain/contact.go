package domain

import "strings"

// Canonical field names a contact row can carry after header normalization.
const (
	FieldName             = "name"
	FieldEmail            = "email"
	FieldCompany          = "company"
	FieldRole             = "role"
	FieldTemplate         = "template"
	FieldResumeFlag       = "resume_flag"
	FieldPersonalizedNote = "personalized_note"
	FieldJobLink          = "job_link"
	FieldJobID            = "job_id"
	FieldStatus           = "status"
	FieldSentAt           = "sent_at"
)

// RequiredFields must be non-empty before a row is eligible to send.
var RequiredFields = []string{
	FieldName,
	FieldEmail,
	FieldCompany,
	FieldRole,
	FieldTemplate,
	FieldResumeFlag,
}

// ContactRow is one outreach target loaded from the source.
// Position is the 1-based row number in the backing sheet/file and is the
// locator used for write-back; it never changes after load.
type ContactRow struct {
	Position int
	Fields   map[string]string
}

// Get returns the trimmed value of a canonical field, "" when absent.
func (r ContactRow) Get(field string) string {
	return strings.TrimSpace(r.Fields[field])
}

// Status returns the row's current status value as read from the source.
func (r ContactRow) Status() string {
	return r.Get(FieldStatus)
}

// Label renders a human-readable contact identifier for logs and reports.
func (r ContactRow) Label() string {
	name := r.Get(FieldName)
	if name == "" {
		name = "(no name)"
	}
	role := r.Get(FieldRole)
	if role == "" {
		role = "(no role)"
	}
	company := r.Get(FieldCompany)
	if company == "" {
		company = "(no company)"
	}
	return name + " (" + role + " @ " + company + ")"
}
