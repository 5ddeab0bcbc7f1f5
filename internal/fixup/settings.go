package fixup

import (
	"fmt"
	"regexp"

	"recload/internal/config"
)

// SIDSettings configures the missing-SID generation pass. F035Filters and
// SIDCodes pair positionally: a 035 value matching F035Filters[i] yields a
// SID field carrying SIDCodes[i].
type SIDSettings struct {
	F035Filters []*regexp.Regexp
	SIDCodes    []string
}

// PrefixRule rewrites one parenthesized prefix inside named subfield codes.
type PrefixRule struct {
	OldPrefix string
	NewPrefix string
	Codes     []string
}

// Settings selects and parameterizes the fixup passes. A nil or zero section
// disables its pass; the pass order itself is fixed (see Apply).
type Settings struct {
	GenerateMissingSIDs *SIDSettings
	ReplacePrefixes     []PrefixRule
	HandleTempURNs      bool
	StripF884s          bool
	StripF984s          bool
	StripTempSubfields  bool
}

// FromConfig compiles the configuration section into runtime settings.
func FromConfig(cfg config.Fixup) (Settings, error) {
	settings := Settings{
		HandleTempURNs:     cfg.HandleTempURNs,
		StripF884s:         cfg.StripF884s,
		StripF984s:         cfg.StripF984s,
		StripTempSubfields: cfg.StripTempSubfields,
	}

	if len(cfg.F035Filters) > 0 && len(cfg.F035Filters) == len(cfg.SIDFilters) {
		sid := &SIDSettings{SIDCodes: append([]string(nil), cfg.SIDFilters...)}
		for _, raw := range cfg.F035Filters {
			pattern, err := regexp.Compile(raw)
			if err != nil {
				return Settings{}, fmt.Errorf("compile 035 filter %q: %w", raw, err)
			}
			sid.F035Filters = append(sid.F035Filters, pattern)
		}
		settings.GenerateMissingSIDs = sid
	}

	for _, rule := range cfg.ReplacePrefixes {
		settings.ReplacePrefixes = append(settings.ReplacePrefixes, PrefixRule{
			OldPrefix: rule.OldPrefix,
			NewPrefix: rule.NewPrefix,
			Codes:     append([]string(nil), rule.Codes...),
		})
	}

	return settings, nil
}
