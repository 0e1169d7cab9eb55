package matcher

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Matcher finds which configured brands a piece of text mentions.
// Patterns are compiled once with RE2 semantics, so matching is linear in the
// length of the input.
type Matcher struct {
	brands   []string
	patterns map[string]*regexp.Regexp
}

// New compiles one case-insensitive pattern per brand
func New(patterns map[string]string) (*Matcher, error) {
	m := &Matcher{
		patterns: make(map[string]*regexp.Regexp, len(patterns)),
	}

	for brand, pattern := range patterns {
		brand = strings.TrimSpace(brand)
		if brand == "" {
			return nil, fmt.Errorf("brand name must not be empty")
		}
		if _, dup := m.patterns[brand]; dup {
			return nil, fmt.Errorf("brand %q is configured more than once", brand)
		}
		if strings.TrimSpace(pattern) == "" {
			return nil, fmt.Errorf("brand %q has an empty pattern", brand)
		}

		re, err := regexp.Compile("(?i)" + pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern for brand %q: %w", brand, err)
		}

		m.brands = append(m.brands, brand)
		m.patterns[brand] = re
	}

	sort.Strings(m.brands)
	return m, nil
}

// Match returns the sorted set of brands mentioned in text
func (m *Matcher) Match(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var found []string
	for _, brand := range m.brands {
		if m.patterns[brand].MatchString(text) {
			found = append(found, brand)
		}
	}

	return found
}

// Brands lists the configured brand identifiers
func (m *Matcher) Brands() []string {
	out := make([]string, len(m.brands))
	copy(out, m.brands)
	return out
}
