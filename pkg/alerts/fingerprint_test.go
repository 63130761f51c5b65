package alerts

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testAlert() *Alert {
	return &Alert{
		ID:        "a-1",
		Type:      "injection_attempt",
		Severity:  SeverityHigh,
		Message:   "suspicious prompt",
		Source:    "detector",
		Timestamp: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		UserID:    "alice",
		TenantID:  "acme",
		ToolName:  "web_search",
	}
}

func TestFingerprintIsDeterministic(t *testing.T) {
	f := NewFingerprinter(nil)
	a := testAlert()
	b := testAlert()

	// Volatile fields do not participate.
	b.ID = "a-2"
	b.Timestamp = b.Timestamp.Add(time.Hour)
	b.Message = "a different message"

	assert.Equal(t, f.Fingerprint(a), f.Fingerprint(b))
}

func TestFingerprintChangesWithIdentity(t *testing.T) {
	f := NewFingerprinter(nil)
	a := testAlert()

	b := testAlert()
	b.UserID = "bob"
	assert.NotEqual(t, f.Fingerprint(a), f.Fingerprint(b))

	c := testAlert()
	c.Type = "tool_poisoning"
	assert.NotEqual(t, f.Fingerprint(a), f.Fingerprint(c))
}

func TestFingerprintMissingFieldsOmitted(t *testing.T) {
	f := NewFingerprinter(nil)

	a := testAlert()
	a.TenantID = ""
	a.ToolName = ""

	b := testAlert()
	b.TenantID = ""
	b.ToolName = ""

	assert.Equal(t, f.Fingerprint(a), f.Fingerprint(b))
	assert.NotEqual(t, f.Fingerprint(a), f.Fingerprint(testAlert()))
}

func TestFingerprintEvidenceKeysNotValues(t *testing.T) {
	f := NewFingerprinter(nil)

	a := testAlert()
	a.Evidence = map[string]interface{}{"pattern": "ignore previous", "offset": 42}

	// Same key set, different values: same fingerprint.
	b := testAlert()
	b.Evidence = map[string]interface{}{"offset": 7, "pattern": "disregard rules"}
	assert.Equal(t, f.Fingerprint(a), f.Fingerprint(b))

	// Different key set: different fingerprint.
	c := testAlert()
	c.Evidence = map[string]interface{}{"pattern": "ignore previous"}
	assert.NotEqual(t, f.Fingerprint(a), f.Fingerprint(c))
}

func TestFingerprintCustomFields(t *testing.T) {
	f := NewFingerprinter([]string{"type", "user_id"})

	a := testAlert()
	b := testAlert()
	b.Source = "another-detector"
	b.TenantID = "globex"

	// Only type and user_id participate.
	assert.Equal(t, f.Fingerprint(a), f.Fingerprint(b))

	b.UserID = "bob"
	assert.NotEqual(t, f.Fingerprint(a), f.Fingerprint(b))
}
