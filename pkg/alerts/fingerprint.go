package alerts

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// defaultFingerprintFields are the identity fields hashed by default.
var defaultFingerprintFields = []string{"type", "severity", "source", "user_id", "tenant_id", "tool_name"}

// Fingerprinter computes a deterministic content hash of an alert's
// identity fields. Missing optional fields are simply omitted, which widens
// the match set: looser identity, more aggressive suppression.
type Fingerprinter struct {
	fields []string
}

// NewFingerprinter creates a Fingerprinter over the given identity fields.
// Empty means the default set.
func NewFingerprinter(fields []string) *Fingerprinter {
	if len(fields) == 0 {
		fields = defaultFingerprintFields
	}
	return &Fingerprinter{fields: append([]string(nil), fields...)}
}

// Fingerprint hashes the configured identity fields plus the sorted key
// names (not values) of the evidence map. It is a pure function of the
// alert's identity and never fails.
func (f *Fingerprinter) Fingerprint(a *Alert) string {
	parts := make([]string, 0, len(f.fields)+1)
	for _, field := range f.fields {
		value := fieldValue(a, field)
		if value == "" {
			continue
		}
		parts = append(parts, field+":"+value)
	}

	if len(a.Evidence) > 0 {
		keys := make([]string, 0, len(a.Evidence))
		for k := range a.Evidence {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts = append(parts, "evidence_keys:"+strings.Join(keys, ","))
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func fieldValue(a *Alert, field string) string {
	switch field {
	case "type":
		return a.Type
	case "severity":
		return string(a.Severity)
	case "source":
		return a.Source
	case "user_id":
		return a.UserID
	case "tenant_id":
		return a.TenantID
	case "tool_name":
		return a.ToolName
	case "request_id":
		return a.RequestID
	case "message":
		return a.Message
	default:
		return ""
	}
}
