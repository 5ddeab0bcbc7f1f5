package fixup

import (
	"recload/internal/marc"
)

// TempMarkerCode and TempMarkerValue identify the temporary-URN marker
// subfield written by upstream conversion.
const (
	TempMarkerCode  = "9"
	TempMarkerValue = "MELINDA<TEMP>"
)

// Apply runs the enabled fixup passes over the record in their fixed order
// and returns the resulting plain record value. The caller's record is
// cloned once at entry and never mutated; later passes assume earlier
// passes' postconditions, so the order is not configurable.
func Apply(record marc.Record, settings Settings) marc.Record {
	work := record.Clone()

	if settings.GenerateMissingSIDs != nil {
		generateMissingSIDs(&work, settings.GenerateMissingSIDs)
	}
	if len(settings.ReplacePrefixes) > 0 {
		replacePrefixes(&work, settings.ReplacePrefixes)
	}
	if settings.HandleTempURNs {
		handleTempURNs(&work)
	}
	if settings.StripF884s {
		stripF884s(&work)
	}
	if settings.StripF984s {
		stripF984s(&work)
	}
	if settings.StripTempSubfields {
		stripTempSubfields(&work)
	}

	return work
}
