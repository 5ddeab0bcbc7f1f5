package fixup

import (
	"recload/internal/marc"
)

// generateMissingSIDs scans 035 fields for values matching a configured
// prefix pattern and inserts a SID field for each match not already mirrored
// by one. Filter lists pair positionally; a mismatch disables the pass.
func generateMissingSIDs(record *marc.Record, settings *SIDSettings) {
	if len(settings.F035Filters) == 0 || len(settings.F035Filters) != len(settings.SIDCodes) {
		return
	}

	f035s := record.GetTag("035")
	sids := record.GetTag("SID")

	var additions []marc.Field
	for i, pattern := range settings.F035Filters {
		sidCode := settings.SIDCodes[i]
		for _, field := range f035s {
			for _, sf := range field.Subfields {
				if !pattern.MatchString(sf.Value) {
					continue
				}
				stripped := pattern.ReplaceAllString(sf.Value, "")
				if hasSID(sids, sidCode, stripped) || hasSID(additions, sidCode, stripped) {
					continue
				}
				additions = append(additions, marc.Field{
					Tag: "SID",
					Subfields: []marc.Subfield{
						{Code: "c", Value: stripped},
						{Code: "b", Value: sidCode},
					},
				})
			}
		}
	}

	record.InsertFields(additions)
}

func hasSID(fields []marc.Field, sidCode, value string) bool {
	for _, field := range fields {
		if field.HasSubfield("b", sidCode) && field.HasSubfield("c", value) {
			return true
		}
	}
	return false
}
