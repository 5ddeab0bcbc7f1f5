package marc

import "testing"

func TestStripSubfield(t *testing.T) {
	field := Field{Tag: "856", Ind1: "4", Ind2: "0", Subfields: []Subfield{
		{Code: "u", Value: "http://urn.fi/URN:NBN:fi-fe1"},
		{Code: "9", Value: "MELINDA<TEMP>"},
	}}
	stripped, keep := StripSubfield(field, "9")
	if !keep {
		t.Fatal("field should keep remaining subfields")
	}
	if len(stripped.Subfields) != 1 || stripped.Subfields[0].Code != "u" {
		t.Fatalf("unexpected subfields: %v", stripped.Subfields)
	}
	// Original field untouched.
	if len(field.Subfields) != 2 {
		t.Fatal("input field mutated")
	}
}

func TestStripSubfieldEmptiesField(t *testing.T) {
	field := Field{Tag: "856", Subfields: []Subfield{{Code: "9", Value: "MELINDA<TEMP>"}}}
	_, keep := StripSubfield(field, "9")
	if keep {
		t.Fatal("field stripped to zero subfields should be dropped")
	}
}

func TestStripSubfieldControlPassthrough(t *testing.T) {
	for _, tag := range []string{"001", "009", "SID"} {
		field := Field{Tag: tag, Value: "x", Subfields: []Subfield{{Code: "9", Value: "MELINDA<TEMP>"}}}
		out, keep := StripSubfield(field, "9")
		if !keep || !out.Equal(field) {
			t.Fatalf("control-like field %s should pass through unmodified", tag)
		}
	}
}

func TestStripSubfieldValue(t *testing.T) {
	field := Field{Tag: "856", Subfields: []Subfield{
		{Code: "9", Value: "MELINDA<TEMP>"},
		{Code: "9", Value: "KEEP"},
	}}
	out, keep := StripSubfieldValue(field, "9", "MELINDA<TEMP>")
	if !keep || len(out.Subfields) != 1 || out.Subfields[0].Value != "KEEP" {
		t.Fatalf("unexpected result: %v keep=%v", out.Subfields, keep)
	}
}

func TestUniqueFields(t *testing.T) {
	a := Field{Tag: "884", Subfields: []Subfield{{Code: "a", Value: "conv"}}}
	b := a.Clone()
	c := Field{Tag: "884", Subfields: []Subfield{{Code: "a", Value: "other"}}}
	out := UniqueFields([]Field{a, b, c})
	if len(out) != 2 {
		t.Fatalf("expected 2 unique fields, got %d", len(out))
	}
}

func TestFilterFields(t *testing.T) {
	fields := []Field{{Tag: "035"}, {Tag: "245"}, {Tag: "035"}}
	out := FilterFields(fields, func(f Field) bool { return f.Tag == "035" })
	if len(out) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(out))
	}
}
