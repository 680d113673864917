package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"defaulter/internal/services"
)

// Load reads and validates a rules document from disk.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "rules", "load", fmt.Sprintf("read %s", path), err)
	}
	set, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// Parse decodes and validates a rules document. Keys other than groups and
// filters are ignored so a combined deployment file can be reused as is.
func Parse(data []byte) (*Set, error) {
	var set Set
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&set); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, services.Wrap(services.ErrConfiguration, "rules", "parse", "document is empty", nil)
		}
		return nil, services.Wrap(services.ErrConfiguration, "rules", "parse", "", err)
	}
	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// UnmarshalYAML walks the document by hand so mapping order survives.
func (s *Set) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: rules document must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		switch key.Value {
		case "groups":
			groups, err := decodeGroups(value)
			if err != nil {
				return err
			}
			s.Groups = groups
		case "filters":
			libraries, err := decodeFilters(value)
			if err != nil {
				return err
			}
			s.Libraries = libraries
		}
	}
	return nil
}

func decodeGroups(node *yaml.Node) ([]Group, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: groups must be a mapping of group name to members", node.Line)
	}
	groups := make([]Group, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		var members Values
		if err := node.Content[i+1].Decode(&members); err != nil {
			return nil, fmt.Errorf("groups.%s: %w", name, err)
		}
		groups = append(groups, Group{Name: name, Members: []string(members)})
	}
	return groups, nil
}

func decodeFilters(node *yaml.Node) ([]LibraryFilters, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: filters must be a mapping of library name to groups", node.Line)
	}
	libraries := make([]LibraryFilters, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		library := node.Content[i].Value
		groupsNode := node.Content[i+1]
		if groupsNode.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("filters.%s: line %d: expected mapping of group name to rules", library, groupsNode.Line)
		}
		lib := LibraryFilters{Library: library}
		for j := 0; j+1 < len(groupsNode.Content); j += 2 {
			group := groupsNode.Content[j].Value
			var filter Filter
			if err := groupsNode.Content[j+1].Decode(&filter); err != nil {
				return nil, fmt.Errorf("filters.%s.%s: %w", library, group, err)
			}
			lib.Groups = append(lib.Groups, GroupFilter{Group: group, Filter: filter})
		}
		libraries = append(libraries, lib)
	}
	return libraries, nil
}

// UnmarshalYAML rejects unknown rule keys so typos do not silently widen a
// match.
func (r *Rule) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, "include", "exclude", "on_match"); err != nil {
		return err
	}
	type plain Rule
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*r = Rule(decoded)
	return nil
}

// UnmarshalYAML rejects unknown on_match keys.
func (o *OnMatch) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, "audio", "subtitles"); err != nil {
		return err
	}
	type plain OnMatch
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*o = OnMatch(decoded)
	return nil
}

// UnmarshalYAML rejects unknown filter keys.
func (f *Filter) UnmarshalYAML(node *yaml.Node) error {
	if err := checkKeys(node, "audio", "subtitles"); err != nil {
		return err
	}
	type plain Filter
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	*f = Filter(decoded)
	return nil
}

func checkKeys(node *yaml.Node, allowed ...string) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i]
		ok := false
		for _, name := range allowed {
			if key.Value == name {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("line %d: unknown key %q", key.Line, key.Value)
		}
	}
	return nil
}
