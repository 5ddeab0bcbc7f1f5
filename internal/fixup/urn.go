package fixup

import (
	"regexp"

	"recload/internal/marc"
)

var urnPattern = regexp.MustCompile(`urn\.fi`)

// Legal-deposit subfields: an 856 carrying both of these already satisfies
// legal-deposit requirements, so temporary duplicates can be deleted
// outright instead of promoted.
const (
	legalDepositZ    = "Käytettävissä vapaakappalekirjastoissa"
	legalDepositFive = "FI-Vapaa"
)

// handleTempURNs resolves 856 URN fields carrying the temporary marker
// subfield. When a permanent URN field already satisfies the legal-deposit
// pair, the marked fields are deleted; otherwise they are re-inserted with
// the marker stripped (dropping any field stripped down to zero subfields).
func handleTempURNs(record *marc.Record) {
	var marked, unmarked []marc.Field
	for _, field := range record.GetTag("856") {
		value, ok := field.Subfield("u")
		if !ok || !urnPattern.MatchString(value) {
			continue
		}
		if field.HasSubfield(TempMarkerCode, TempMarkerValue) {
			marked = append(marked, field)
		} else {
			unmarked = append(unmarked, field)
		}
	}
	if len(marked) == 0 {
		return
	}

	for _, field := range unmarked {
		if field.HasSubfield("z", legalDepositZ) && field.HasSubfield("5", legalDepositFive) {
			record.RemoveFields(marked...)
			return
		}
	}

	var promoted []marc.Field
	for _, field := range marked {
		stripped, keep := marc.StripSubfieldValue(field, TempMarkerCode, TempMarkerValue)
		if keep {
			promoted = append(promoted, stripped)
		}
	}
	record.ReplaceFields(marked, promoted)
}

// stripTempSubfields removes the temporary marker subfield from 856 fields
// regardless of URN handling, for setups that want the blanket strip while
// leaving temp-URN resolution off.
func stripTempSubfields(record *marc.Record) {
	originals := record.GetTag("856")
	var rewritten []marc.Field
	changed := false
	for _, field := range originals {
		stripped, keep := marc.StripSubfieldValue(field, TempMarkerCode, TempMarkerValue)
		if !stripped.Equal(field) {
			changed = true
		}
		if keep {
			rewritten = append(rewritten, stripped)
		}
	}
	if !changed {
		return
	}
	record.ReplaceFields(originals, rewritten)
}
