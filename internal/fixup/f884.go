package fixup

import (
	"regexp"
	"strings"

	"recload/internal/marc"
)

// F884Sentinel marks 884 fields written by the Melinda conversion step.
const F884Sentinel = "MELINDA"

// Sort-safe placeholders for missing or malformed values: lower or equal to
// any real date/hash under plain string comparison.
const (
	sentinelDate = "00000000"
	sentinelHash = "0000000000000000000000000000000000000000000000000000000000000000"
)

var (
	singleDatePattern = regexp.MustCompile(`^\d{8}$`)
	dateRangePattern  = regexp.MustCompile(`^(\d{8}) - (\d{8})$`)
)

type f884Key struct {
	conversion string
	source     string
}

type f884Dates struct {
	first string
	last  string
	hash  string
}

// stripF884s consolidates duplicate conversion provenance fields. 884 fields
// carrying $5 MELINDA are grouped by (conversion, source); each group is
// reduced to one date range (earliest first, latest last) and the hash
// belonging to the latest date, every member is rewritten with the
// consolidated values and the set is deduplicated structurally.
func stripF884s(record *marc.Record) {
	qualifying := marc.FilterFields(record.GetTag("884"), func(f marc.Field) bool {
		return f.HasSubfield("5", F884Sentinel)
	})
	if len(qualifying) < 2 {
		return
	}

	groups := make(map[f884Key]f884Dates)
	for _, field := range qualifying {
		key := keyOf(field)
		first, last := datesOf(field)
		hash := hashOf(field)

		agg, seen := groups[key]
		if !seen {
			groups[key] = f884Dates{first: first, last: last, hash: hash}
			continue
		}
		if first < agg.first {
			agg.first = first
		}
		if last >= agg.last {
			agg.last = last
			agg.hash = hash
		}
		groups[key] = agg
	}

	rewritten := make([]marc.Field, 0, len(qualifying))
	for _, field := range qualifying {
		agg := groups[keyOf(field)]
		out := field.Clone()
		setSubfield(&out, "g", formatDateRange(agg.first, agg.last))
		if k := formatSourceHash(keyOf(field).source, agg.hash); k != "" {
			setSubfield(&out, "k", k)
		} else {
			dropSubfield(&out, "k")
		}
		rewritten = append(rewritten, out)
	}

	record.ReplaceFields(qualifying, marc.UniqueFields(rewritten))
}

func keyOf(field marc.Field) f884Key {
	conversion, _ := field.Subfield("a")
	source := ""
	if k, ok := field.Subfield("k"); ok {
		source, _, _ = strings.Cut(k, ":")
	}
	return f884Key{conversion: conversion, source: source}
}

func datesOf(field marc.Field) (first, last string) {
	g, ok := field.Subfield("g")
	if !ok {
		return sentinelDate, sentinelDate
	}
	if singleDatePattern.MatchString(g) {
		return g, g
	}
	if m := dateRangePattern.FindStringSubmatch(g); m != nil {
		return m[1], m[2]
	}
	return sentinelDate, sentinelDate
}

func hashOf(field marc.Field) string {
	k, ok := field.Subfield("k")
	if !ok {
		return sentinelHash
	}
	_, hash, found := strings.Cut(k, ":")
	if !found || hash == "" {
		return sentinelHash
	}
	return hash
}

func formatDateRange(first, last string) string {
	if first == last {
		return first
	}
	return first + " - " + last
}

func formatSourceHash(source, hash string) string {
	parts := make([]string, 0, 2)
	if source != "" {
		parts = append(parts, source)
	}
	if hash != sentinelHash {
		parts = append(parts, hash)
	}
	return strings.Join(parts, ":")
}

func setSubfield(field *marc.Field, code, value string) {
	for i := range field.Subfields {
		if field.Subfields[i].Code == code {
			field.Subfields[i].Value = value
			return
		}
	}
	field.Subfields = append(field.Subfields, marc.Subfield{Code: code, Value: value})
}

func dropSubfield(field *marc.Field, code string) {
	kept := field.Subfields[:0]
	for _, sf := range field.Subfields {
		if sf.Code != code {
			kept = append(kept, sf)
		}
	}
	field.Subfields = kept
}
