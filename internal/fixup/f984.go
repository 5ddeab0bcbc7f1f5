package fixup

import (
	"regexp"

	"recload/internal/marc"
)

var mergePreferencePattern = regexp.MustCompile(`^(ALWAYS|NEVER)-PREFER-IN-MERGE$`)

// stripF984s removes merge-preference instruction fields once they have
// served their purpose upstream.
func stripF984s(record *marc.Record) {
	doomed := marc.FilterFields(record.GetTag("984"), func(f marc.Field) bool {
		value, ok := f.Subfield("a")
		return ok && mergePreferencePattern.MatchString(value)
	})
	record.RemoveFields(doomed...)
}
