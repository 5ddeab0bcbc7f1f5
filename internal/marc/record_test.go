package marc

import (
	"regexp"
	"testing"
)

func sampleRecord() Record {
	return Record{
		Leader: "00000cam a22000003i 4500",
		Fields: []Field{
			{Tag: "001", Value: "000123"},
			{Tag: "008", Value: "200101s2020"},
			{Tag: "035", Ind1: " ", Ind2: " ", Subfields: []Subfield{{Code: "a", Value: "(FI-BTJ)12345"}}},
			{Tag: "245", Ind1: "1", Ind2: "0", Subfields: []Subfield{{Code: "a", Value: "Example title"}}},
			{Tag: "856", Ind1: "4", Ind2: "0", Subfields: []Subfield{{Code: "u", Value: "http://urn.fi/URN:NBN:fi-fe1"}}},
		},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	original := sampleRecord()
	clone := original.Clone()
	clone.Fields[2].Subfields[0].Value = "changed"
	if original.Fields[2].Subfields[0].Value != "(FI-BTJ)12345" {
		t.Fatal("clone mutation leaked into original")
	}
	if !original.Equal(sampleRecord()) {
		t.Fatal("original changed")
	}
}

func TestGetByPattern(t *testing.T) {
	rec := sampleRecord()
	got := rec.Get(regexp.MustCompile(`^0`))
	if len(got) != 3 {
		t.Fatalf("expected 3 0xx fields, got %d", len(got))
	}
	if got := rec.GetTag("245"); len(got) != 1 {
		t.Fatalf("expected one 245, got %d", len(got))
	}
}

func TestDatafieldsExcludesControlFields(t *testing.T) {
	rec := sampleRecord()
	data := rec.Datafields()
	for _, f := range data {
		if f.Tag == "001" || f.Tag == "008" {
			t.Fatalf("control field %s leaked into datafields", f.Tag)
		}
	}
	if len(data) != 3 {
		t.Fatalf("expected 3 datafields, got %d", len(data))
	}
}

func TestIsDatafieldTag(t *testing.T) {
	cases := map[string]bool{
		"001": false,
		"009": false,
		"010": true,
		"245": true,
		"SID": false,
		"LOW": false,
	}
	for tag, want := range cases {
		if got := IsDatafieldTag(tag); got != want {
			t.Fatalf("IsDatafieldTag(%q) = %v, want %v", tag, got, want)
		}
	}
}

func TestInsertFieldKeepsTagOrder(t *testing.T) {
	rec := sampleRecord()
	rec.InsertField(Field{Tag: "100", Ind1: "1", Subfields: []Subfield{{Code: "a", Value: "Author"}}})
	var tags []string
	for _, f := range rec.Fields {
		tags = append(tags, f.Tag)
	}
	want := []string{"001", "008", "035", "100", "245", "856"}
	for i := range want {
		if tags[i] != want[i] {
			t.Fatalf("tag order %v, want %v", tags, want)
		}
	}
}

func TestInsertFieldBeforeAll(t *testing.T) {
	rec := Record{Fields: []Field{{Tag: "245"}}}
	rec.InsertField(Field{Tag: "020"})
	if rec.Fields[0].Tag != "020" {
		t.Fatalf("expected 020 first, got %s", rec.Fields[0].Tag)
	}
}

func TestRemoveFieldsStructural(t *testing.T) {
	rec := sampleRecord()
	target := Field{Tag: "035", Ind1: " ", Ind2: " ", Subfields: []Subfield{{Code: "a", Value: "(FI-BTJ)12345"}}}
	rec.RemoveFields(target)
	if len(rec.GetTag("035")) != 0 {
		t.Fatal("035 should have been removed")
	}
	// Removing a field that is not present is a no-op.
	before := len(rec.Fields)
	rec.RemoveFields(Field{Tag: "999"})
	if len(rec.Fields) != before {
		t.Fatal("removing absent field changed record")
	}
}

func TestReplaceFields(t *testing.T) {
	rec := sampleRecord()
	old := rec.GetTag("856")
	replacement := []Field{{Tag: "856", Ind1: "4", Ind2: "0", Subfields: []Subfield{{Code: "u", Value: "http://example.org"}}}}
	rec.ReplaceFields(old, replacement)
	got := rec.GetTag("856")
	if len(got) != 1 {
		t.Fatalf("expected one 856, got %d", len(got))
	}
	if v, _ := got[0].Subfield("u"); v != "http://example.org" {
		t.Fatalf("unexpected 856 $u %q", v)
	}
}
