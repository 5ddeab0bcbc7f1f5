package fixup

import (
	"strings"

	"recload/internal/marc"
)

// replacePrefixes rewrites parenthesized prefixes inside the named subfield
// codes of every data field. Control fields pass through untouched.
func replacePrefixes(record *marc.Record, rules []PrefixRule) {
	for i := range record.Fields {
		field := &record.Fields[i]
		if !marc.IsDatafieldTag(field.Tag) {
			continue
		}
		for _, rule := range rules {
			old := "(" + rule.OldPrefix + ")"
			replacement := "(" + rule.NewPrefix + ")"
			for j := range field.Subfields {
				if !containsCode(rule.Codes, field.Subfields[j].Code) {
					continue
				}
				field.Subfields[j].Value = strings.ReplaceAll(field.Subfields[j].Value, old, replacement)
			}
		}
	}
}

func containsCode(codes []string, code string) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
