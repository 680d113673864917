package selection

import (
	"strings"

	"defaulter/internal/rules"
)

// Match is the track chosen by a chain together with the overrides of the
// rule that chose it.
type Match struct {
	Track Track
	// Disabled marks the sentinel produced by the "disabled" literal; the
	// track id is 0.
	Disabled bool
	OnMatch  *rules.OnMatch
}

// Select walks the chain in order and returns the first track satisfying the
// first rule that matches anything.
func Select(tracks []Track, chain rules.Chain) (Match, bool) {
	for i := range chain {
		rule := chain[i]
		for _, track := range tracks {
			if satisfies(track, rule) {
				return Match{Track: track, OnMatch: rule.OnMatch}, true
			}
		}
	}
	return Match{}, false
}

// SelectChoice resolves a choice: nil selects nothing, the disabled literal
// always yields the id 0 sentinel, and a chain defers to Select.
func SelectChoice(tracks []Track, choice *rules.Choice) (Match, bool) {
	if choice == nil {
		return Match{}, false
	}
	if choice.Disabled {
		return Match{Disabled: true}, true
	}
	return Select(tracks, choice.Chain)
}

func satisfies(track Track, rule rules.Rule) bool {
	for field, values := range rule.Include {
		value, ok := track.Field(field)
		if !ok {
			return false
		}
		value = strings.ToLower(value)
		for _, want := range values {
			if !strings.Contains(value, strings.ToLower(want)) {
				return false
			}
		}
	}
	for field, values := range rule.Exclude {
		value, ok := track.Field(field)
		if !ok {
			continue
		}
		value = strings.ToLower(value)
		for _, unwanted := range values {
			if strings.Contains(value, strings.ToLower(unwanted)) {
				return false
			}
		}
	}
	return true
}
