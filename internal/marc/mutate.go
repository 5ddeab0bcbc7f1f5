package marc

// StripSubfield removes every subfield with the given code from a data
// field. Control-like fields (non-numeric or numeric tag < 10) pass through
// unmodified. The second return reports whether the field still carries any
// subfields; callers usually drop a field that stripped down to zero.
func StripSubfield(field Field, code string) (Field, bool) {
	if !IsDatafieldTag(field.Tag) {
		return field, true
	}
	out := field.Clone()
	kept := out.Subfields[:0]
	for _, sf := range out.Subfields {
		if sf.Code != code {
			kept = append(kept, sf)
		}
	}
	out.Subfields = kept
	return out, len(out.Subfields) > 0
}

// StripSubfieldValue removes subfields matching an exact (code, value) pair
// from a data field, with the same control-field passthrough as
// StripSubfield.
func StripSubfieldValue(field Field, code, value string) (Field, bool) {
	if !IsDatafieldTag(field.Tag) {
		return field, true
	}
	out := field.Clone()
	kept := out.Subfields[:0]
	for _, sf := range out.Subfields {
		if sf.Code != code || sf.Value != value {
			kept = append(kept, sf)
		}
	}
	out.Subfields = kept
	return out, len(out.Subfields) > 0
}

// FilterFields returns the fields satisfying the predicate, in record order.
func FilterFields(fields []Field, keep func(Field) bool) []Field {
	var out []Field
	for _, f := range fields {
		if keep(f) {
			out = append(out, f.Clone())
		}
	}
	return out
}

// UniqueFields deduplicates a field sequence by structural equality,
// preserving first-occurrence order.
func UniqueFields(fields []Field) []Field {
	var out []Field
	for _, f := range fields {
		duplicate := false
		for _, seen := range out {
			if seen.Equal(f) {
				duplicate = true
				break
			}
		}
		if !duplicate {
			out = append(out, f.Clone())
		}
	}
	return out
}
