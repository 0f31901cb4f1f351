package sim

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSettingsFile reads a YAML settings file and applies it to s. Either every
// entry is applied or, on any error, none is.
//
// Nested mappings are flattened to dotted keys, so
//
//	env:
//	  grid:
//	    width: 12
//
// and "env.grid.width: 12" are equivalent.
func LoadSettingsFile(path string, s *Settings) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading settings file: %w", err)
	}
	entries, err := ParseSettingsYAML(data)
	if err != nil {
		return fmt.Errorf("parsing settings file %s: %w", path, err)
	}
	if err := s.Apply(entries); err != nil {
		return fmt.Errorf("applying settings file %s: %w", path, err)
	}
	return nil
}

// ParseSettingsYAML flattens a YAML document into dotted key → raw value text.
// Scalars keep their source text so the setting's own parser decides validity.
func ParseSettingsYAML(data []byte) (map[string]string, error) {
	entries := make(map[string]string)
	if len(bytes.TrimSpace(data)) == 0 {
		return entries, nil
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return entries, nil
	}
	if err := flattenNode(doc.Content[0], "", entries); err != nil {
		return nil, err
	}
	return entries, nil
}

func flattenNode(n *yaml.Node, prefix string, out map[string]string) error {
	switch n.Kind {
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i].Value
			if prefix != "" {
				key = prefix + "." + key
			}
			if err := flattenNode(n.Content[i+1], key, out); err != nil {
				return err
			}
		}
		return nil
	case yaml.ScalarNode:
		if prefix == "" {
			return fmt.Errorf("line %d: top-level scalar, want a mapping: %w", n.Line, ErrInvalidSetting)
		}
		if _, dup := out[prefix]; dup {
			return fmt.Errorf("line %d: %q set twice: %w", n.Line, prefix, ErrInvalidSetting)
		}
		out[prefix] = n.Value
		return nil
	case yaml.AliasNode:
		return flattenNode(n.Alias, prefix, out)
	default:
		return fmt.Errorf("line %d: %q must be a scalar or mapping: %w", n.Line, prefix, ErrInvalidSetting)
	}
}

// MarshalSettingsYAML renders every setting as a nested YAML document that
// LoadSettingsFile reads back.
func MarshalSettingsYAML(s *Settings) ([]byte, error) {
	root := make(map[string]any)
	for _, key := range s.Keys() {
		parts := strings.Split(key, ".")
		node := root
		for _, p := range parts[:len(parts)-1] {
			child, ok := node[p].(map[string]any)
			if !ok {
				child = make(map[string]any)
				node[p] = child
			}
			node = child
		}
		node[parts[len(parts)-1]] = s.values[key]
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(root); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FormatSettings renders "key = value" lines for every setting, sorted by key.
func FormatSettings(s *Settings) string {
	var sb strings.Builder
	for _, key := range s.Keys() {
		v, _ := s.Format(key)
		if settingDefs[key].kind == KindString {
			v = strconv.Quote(v)
		}
		fmt.Fprintf(&sb, "%s = %s\n", key, v)
	}
	return sb.String()
}
