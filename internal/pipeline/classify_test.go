package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"referrals-engine/internal/domain"
)

func contact(fields map[string]string) domain.ContactRow {
	base := map[string]string{
		"name": "Ada", "email": "ada@example.com", "company": "Acme",
		"role": "Engineer", "template": "cold", "resume_flag": "default",
		"status": "",
	}
	for k, v := range fields {
		base[k] = v
	}
	return domain.ContactRow{Position: 2, Fields: base}
}

func TestClassifyReady(t *testing.T) {
	class, missing := Classify(contact(nil))
	assert.Equal(t, ClassReady, class)
	assert.Empty(t, missing)
}

func TestClassifyTerminalStatuses(t *testing.T) {
	for _, status := range []string{"SENT", "sent", "YES", "yes", "TRUE", "1", "DONE", "done", " Done "} {
		class, _ := Classify(contact(map[string]string{"status": status}))
		assert.Equal(t, ClassAlreadyHandled, class, "status %q", status)
	}
}

func TestClassifyNonTerminalStatuses(t *testing.T) {
	for _, status := range []string{"", "required_field_missing", "DRY_RUN", "maybe", "0"}  {
		class, _ := Classify(contact(map[string]string{"status": status}))
		assert.Equal(t, ClassReady, class, "status %q", status)
	}
}

func TestClassifyMissingFields(t *testing.T) {
	class, missing := Classify(contact(map[string]string{"email": "", "role": "  "}))
	assert.Equal(t, ClassMissingField, class)
	assert.Equal(t, []string{"email", "role"}, missing)
}

func TestClassifyTerminalWinsOverMissing(t *testing.T) {
	// already-handled rows are excluded even when incomplete
	class, _ := Classify(contact(map[string]string{"status": "DONE", "email": ""}))
	assert.Equal(t, ClassAlreadyHandled, class)
}

func TestGovernorCap(t *testing.T) {
	g := NewGovernor(2)
	assert.True(t, g.Admit())
	assert.True(t, g.Admit())
	assert.False(t, g.Admit())
	assert.False(t, g.Admit())
	assert.Equal(t, 2, g.Admitted())
}

func TestGovernorUnlimited(t *testing.T) {
	g := NewGovernor(0)
	for i := 0; i < 100; i++ {
		assert.True(t, g.Admit())
	}
}
