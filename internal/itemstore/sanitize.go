package itemstore

import (
	"regexp"
	"strings"

	"recload/internal/faults"
)

// Correlation ids become primary keys and blob file names, so they are
// restricted to a filesystem-safe alphabet with no leading separator.
var correlationIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

// SanitizeCorrelationID validates a caller-supplied correlation id and
// returns its trimmed form.
func SanitizeCorrelationID(value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", faults.Wrap(faults.ErrInvalidArgument, "itemstore", "sanitize", "empty correlation id", nil)
	}
	if !correlationIDPattern.MatchString(trimmed) {
		return "", faults.Wrap(faults.ErrInvalidArgument, "itemstore", "sanitize", "malformed correlation id "+trimmed, nil)
	}
	return trimmed, nil
}
