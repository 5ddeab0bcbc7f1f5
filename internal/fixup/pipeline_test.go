package fixup

import (
	"regexp"
	"testing"

	"recload/internal/marc"
)

func sidSettings(t *testing.T) Settings {
	t.Helper()
	return Settings{
		GenerateMissingSIDs: &SIDSettings{
			F035Filters: []*regexp.Regexp{regexp.MustCompile(`^\(FI-BTJ\)`)},
			SIDCodes:    []string{"FI-BTJ"},
		},
	}
}

func TestGenerateMissingSIDs(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "035", Subfields: []marc.Subfield{{Code: "a", Value: "(FI-BTJ)12345"}}},
	}}

	fixed := Apply(record, sidSettings(t))

	sids := fixed.GetTag("SID")
	if len(sids) != 1 {
		t.Fatalf("expected one SID field, got %d", len(sids))
	}
	if v, _ := sids[0].Subfield("c"); v != "12345" {
		t.Fatalf("SID $c = %q, want 12345", v)
	}
	if v, _ := sids[0].Subfield("b"); v != "FI-BTJ" {
		t.Fatalf("SID $b = %q, want FI-BTJ", v)
	}

	// Idempotence: refixing the fixed record adds nothing.
	again := Apply(fixed, sidSettings(t))
	if len(again.GetTag("SID")) != 1 {
		t.Fatalf("second run added SID fields: %d", len(again.GetTag("SID")))
	}
}

func TestGenerateMissingSIDsSkipsExisting(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "035", Subfields: []marc.Subfield{{Code: "a", Value: "(FI-BTJ)12345"}}},
		{Tag: "SID", Subfields: []marc.Subfield{{Code: "c", Value: "12345"}, {Code: "b", Value: "FI-BTJ"}}},
	}}
	fixed := Apply(record, sidSettings(t))
	if len(fixed.GetTag("SID")) != 1 {
		t.Fatalf("expected existing SID to suppress generation")
	}
}

func TestGenerateMissingSIDsMismatchedFiltersNoop(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "035", Subfields: []marc.Subfield{{Code: "a", Value: "(FI-BTJ)12345"}}},
	}}
	settings := Settings{GenerateMissingSIDs: &SIDSettings{
		F035Filters: []*regexp.Regexp{regexp.MustCompile(`^\(FI-BTJ\)`)},
		SIDCodes:    nil,
	}}
	fixed := Apply(record, settings)
	if len(fixed.GetTag("SID")) != 0 {
		t.Fatal("mismatched filter lists must disable the pass")
	}
}

func TestReplacePrefixes(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "100", Subfields: []marc.Subfield{{Code: "0", Value: "(FI-ASTERI-N)000001"}}},
		{Tag: "001", Value: "(FI-ASTERI-N)should-not-change"},
	}}
	settings := Settings{ReplacePrefixes: []PrefixRule{
		{OldPrefix: "FI-ASTERI-N", NewPrefix: "FIN11", Codes: []string{"0"}},
	}}

	fixed := Apply(record, settings)

	if v, _ := fixed.GetTag("100")[0].Subfield("0"); v != "(FIN11)000001" {
		t.Fatalf("100 $0 = %q, want (FIN11)000001", v)
	}
	if fixed.GetTag("001")[0].Value != "(FI-ASTERI-N)should-not-change" {
		t.Fatal("control field value must not be rewritten")
	}

	// Idempotence.
	again := Apply(fixed, settings)
	if !again.Equal(fixed) {
		t.Fatal("prefix replacement is not idempotent")
	}
}

func TestApplyDoesNotMutateCaller(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "035", Subfields: []marc.Subfield{{Code: "a", Value: "(FI-BTJ)12345"}}},
	}}
	snapshot := record.Clone()
	_ = Apply(record, sidSettings(t))
	if !record.Equal(snapshot) {
		t.Fatal("Apply mutated the caller's record")
	}
}

func TestApplyNoSettingsIsIdentity(t *testing.T) {
	record := marc.Record{Leader: "leader", Fields: []marc.Field{
		{Tag: "245", Subfields: []marc.Subfield{{Code: "a", Value: "Title"}}},
	}}
	fixed := Apply(record, Settings{})
	if !fixed.Equal(record) {
		t.Fatal("empty settings must be an identity transform")
	}
}

func TestStripF984s(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "984", Subfields: []marc.Subfield{{Code: "a", Value: "ALWAYS-PREFER-IN-MERGE"}}},
		{Tag: "984", Subfields: []marc.Subfield{{Code: "a", Value: "NEVER-PREFER-IN-MERGE"}}},
		{Tag: "984", Subfields: []marc.Subfield{{Code: "a", Value: "KEEP-ME"}}},
	}}
	fixed := Apply(record, Settings{StripF984s: true})
	remaining := fixed.GetTag("984")
	if len(remaining) != 1 {
		t.Fatalf("expected one surviving 984, got %d", len(remaining))
	}
	if v, _ := remaining[0].Subfield("a"); v != "KEEP-ME" {
		t.Fatalf("wrong survivor: %q", v)
	}
}

func TestStripTempSubfields(t *testing.T) {
	record := marc.Record{Fields: []marc.Field{
		{Tag: "856", Ind1: "4", Ind2: "0", Subfields: []marc.Subfield{
			{Code: "u", Value: "http://urn.fi/URN:NBN:fi-fe1"},
			{Code: "9", Value: TempMarkerValue},
		}},
		{Tag: "856", Ind1: "4", Ind2: "0", Subfields: []marc.Subfield{
			{Code: "9", Value: TempMarkerValue},
		}},
	}}
	fixed := Apply(record, Settings{StripTempSubfields: true})
	fields := fixed.GetTag("856")
	if len(fields) != 1 {
		t.Fatalf("expected the all-marker field to be dropped, got %d fields", len(fields))
	}
	if fields[0].HasSubfield("9", TempMarkerValue) {
		t.Fatal("marker subfield survived the strip")
	}
}
