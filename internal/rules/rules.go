package rules

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Disabled is the literal that turns subtitles off instead of naming a chain.
const Disabled = "disabled"

// AllViewers expands to every known viewer when listed as a group member.
const AllViewers = "$ALL"

// Values holds the substrings a rule tests for a single stream field. The
// YAML form accepts either one scalar or a sequence of scalars.
type Values []string

// UnmarshalYAML accepts a scalar or a sequence of scalars.
func (v *Values) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*v = Values{node.Value}
		return nil
	case yaml.SequenceNode:
		out := make(Values, 0, len(node.Content))
		for _, item := range node.Content {
			if item.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected string value", item.Line)
			}
			out = append(out, item.Value)
		}
		*v = out
		return nil
	default:
		return fmt.Errorf("line %d: expected string or list of strings", node.Line)
	}
}

// Conditions maps stream field names (codec, language, displayTitle, ...) to
// the substrings tested against them.
type Conditions map[string]Values

// Rule is one entry of a chain.
type Rule struct {
	Include Conditions `yaml:"include,omitempty"`
	Exclude Conditions `yaml:"exclude,omitempty"`
	OnMatch *OnMatch   `yaml:"on_match,omitempty"`
}

// Chain is evaluated first to last; the first rule yielding a track wins.
type Chain []Rule

// Choice is either an ordered chain or the disabled sentinel.
type Choice struct {
	Disabled bool
	Chain    Chain
}

// DisabledChoice returns a choice that always selects "no track".
func DisabledChoice() *Choice {
	return &Choice{Disabled: true}
}

// ChainChoice wraps rules into a choice.
func ChainChoice(rules ...Rule) *Choice {
	return &Choice{Chain: Chain(rules)}
}

// UnmarshalYAML accepts the "disabled" literal or a sequence of rules.
func (c *Choice) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		if strings.EqualFold(strings.TrimSpace(node.Value), Disabled) {
			*c = Choice{Disabled: true}
			return nil
		}
		return fmt.Errorf("line %d: expected %q or a list of rules, got %q", node.Line, Disabled, node.Value)
	}
	var chain Chain
	if err := node.Decode(&chain); err != nil {
		return err
	}
	*c = Choice{Chain: chain}
	return nil
}

// OnMatch names chains that replace the other track kind's rules when the
// owning rule matches.
type OnMatch struct {
	Audio     *Choice `yaml:"audio,omitempty"`
	Subtitles *Choice `yaml:"subtitles,omitempty"`
}

// Filter is the rule set a single viewer group applies within one library.
type Filter struct {
	Audio     *Choice `yaml:"audio,omitempty"`
	Subtitles *Choice `yaml:"subtitles,omitempty"`
}

// GroupFilter binds a filter to a named group.
type GroupFilter struct {
	Group  string
	Filter Filter
}

// LibraryFilters lists group filters for one library in document order.
type LibraryFilters struct {
	Library string
	Groups  []GroupFilter
}

// Group is a named set of viewers.
type Group struct {
	Name    string
	Members []string
}

// Set is the decoded rules document. Group and library order follow the
// document so runs are deterministic.
type Set struct {
	Groups    []Group
	Libraries []LibraryFilters
}

// Library looks up a library case-insensitively.
func (s *Set) Library(name string) (LibraryFilters, bool) {
	if s == nil {
		return LibraryFilters{}, false
	}
	for _, lib := range s.Libraries {
		if strings.EqualFold(lib.Library, name) {
			return lib, true
		}
	}
	return LibraryFilters{}, false
}

// Members returns the configured member list of a group, unexpanded.
func (s *Set) Members(group string) ([]string, bool) {
	if s == nil {
		return nil, false
	}
	for _, g := range s.Groups {
		if g.Name == group {
			return g.Members, true
		}
	}
	return nil, false
}

// GroupsContaining lists the groups that name viewer explicitly.
func (s *Set) GroupsContaining(viewer string) []string {
	if s == nil {
		return nil
	}
	var out []string
	for _, g := range s.Groups {
		for _, member := range g.Members {
			if member == viewer {
				out = append(out, g.Name)
				break
			}
		}
	}
	return out
}
