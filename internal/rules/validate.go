package rules

import (
	"errors"
	"fmt"
	"strings"

	"defaulter/internal/services"
)

// Validate checks group references and rule shapes. Every failure is tagged
// with services.ErrConfiguration.
func (s *Set) Validate() error {
	if s == nil {
		return invalid("rules set is nil")
	}
	if err := s.validateGroups(); err != nil {
		return err
	}
	if len(s.Libraries) == 0 {
		return invalid("filters must configure at least one library")
	}
	seen := make(map[string]struct{}, len(s.Libraries))
	for _, lib := range s.Libraries {
		key := strings.ToLower(strings.TrimSpace(lib.Library))
		if key == "" {
			return invalid("filters: library name must not be empty")
		}
		if _, dup := seen[key]; dup {
			return invalid(fmt.Sprintf("filters.%s: library configured more than once", lib.Library))
		}
		seen[key] = struct{}{}
		if len(lib.Groups) == 0 {
			return invalid(fmt.Sprintf("filters.%s: no groups configured", lib.Library))
		}
		for _, gf := range lib.Groups {
			path := fmt.Sprintf("filters.%s.%s", lib.Library, gf.Group)
			if _, ok := s.Members(gf.Group); !ok {
				return invalid(fmt.Sprintf("%s: group %q is not defined under groups", path, gf.Group))
			}
			if err := validateFilter(path, gf.Filter); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *Set) validateGroups() error {
	seen := make(map[string]struct{}, len(s.Groups))
	for _, g := range s.Groups {
		name := strings.TrimSpace(g.Name)
		if name == "" {
			return invalid("groups: group name must not be empty")
		}
		if _, dup := seen[name]; dup {
			return invalid(fmt.Sprintf("groups.%s: defined more than once", name))
		}
		seen[name] = struct{}{}
		for _, member := range g.Members {
			if strings.TrimSpace(member) == "" {
				return invalid(fmt.Sprintf("groups.%s: member names must not be empty", name))
			}
		}
	}
	return nil
}

func validateFilter(path string, f Filter) error {
	if f.Audio == nil && f.Subtitles == nil {
		return invalid(path + ": at least one of audio or subtitles must be set")
	}
	if f.Audio != nil {
		if f.Audio.Disabled {
			return invalid(path + ".audio: audio cannot be disabled")
		}
		if err := validateChain(path+".audio", f.Audio.Chain, true); err != nil {
			return err
		}
	}
	if f.Subtitles != nil && !f.Subtitles.Disabled {
		if err := validateChain(path+".subtitles", f.Subtitles.Chain, true); err != nil {
			return err
		}
	}
	return nil
}

func validateChain(path string, chain Chain, allowOnMatch bool) error {
	if len(chain) == 0 {
		return invalid(path + ": chain must contain at least one rule")
	}
	for i, rule := range chain {
		rulePath := fmt.Sprintf("%s[%d]", path, i)
		if err := validateConditions(rulePath+".include", rule.Include); err != nil {
			return err
		}
		if err := validateConditions(rulePath+".exclude", rule.Exclude); err != nil {
			return err
		}
		if rule.OnMatch == nil {
			continue
		}
		if !allowOnMatch {
			return invalid(rulePath + ".on_match: overrides cannot be nested inside another on_match")
		}
		if err := validateOnMatch(rulePath+".on_match", rule.OnMatch); err != nil {
			return err
		}
	}
	return nil
}

func validateOnMatch(path string, o *OnMatch) error {
	if o.Audio == nil && o.Subtitles == nil {
		return invalid(path + ": must set audio or subtitles")
	}
	if o.Audio != nil && !o.Audio.Disabled {
		if err := validateChain(path+".audio", o.Audio.Chain, false); err != nil {
			return err
		}
	}
	if o.Subtitles != nil && !o.Subtitles.Disabled {
		if err := validateChain(path+".subtitles", o.Subtitles.Chain, false); err != nil {
			return err
		}
	}
	return nil
}

func validateConditions(path string, conditions Conditions) error {
	for field, values := range conditions {
		if strings.TrimSpace(field) == "" {
			return invalid(path + ": field name must not be empty")
		}
		if len(values) == 0 {
			return invalid(fmt.Sprintf("%s.%s: at least one value is required", path, field))
		}
		for _, v := range values {
			if v == "" {
				return invalid(fmt.Sprintf("%s.%s: values must not be empty", path, field))
			}
		}
	}
	return nil
}

func invalid(msg string) error {
	return services.Wrap(services.ErrConfiguration, "rules", "validate", "", errors.New(msg))
}
