package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/tally/internal/value"
)

// LoadFile reads one value from a YAML or JSON file, chosen by extension.
func LoadFile(path string) (value.Value, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading input: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		v, err := DecodeYAML(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	case ".json":
		v, err := value.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%s: unsupported input format %q (want .yaml, .yml or .json)", path, filepath.Ext(path))
	}
}

// LoadBindings reads a file whose top level maps global names to values.
func LoadBindings(path string) (map[string]value.Value, error) {
	v, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	rec, ok := v.(value.Record)
	if !ok {
		return nil, fmt.Errorf("%s: bindings must be a mapping of name to value, got %s", path, value.Kind(v))
	}
	return map[string]value.Value(rec), nil
}

// DecodeYAML converts a YAML document to a value. An empty document is Null.
func DecodeYAML(data []byte) (value.Value, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return value.Null{}, nil
	}
	return FromYAMLNode(doc.Content[0])
}

// FromYAMLNode converts a decoded YAML node. Rejects floats, non-string
// mapping keys and duplicate keys.
func FromYAMLNode(n *yaml.Node) (value.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return value.Null{}, nil
		}
		return FromYAMLNode(n.Content[0])

	case yaml.AliasNode:
		return FromYAMLNode(n.Alias)

	case yaml.SequenceNode:
		bag := make(value.Bag, 0, len(n.Content))
		for _, c := range n.Content {
			v, err := FromYAMLNode(c)
			if err != nil {
				return nil, err
			}
			bag = append(bag, v)
		}
		return bag, nil

	case yaml.MappingNode:
		rec := make(value.Record, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, vn := n.Content[i], n.Content[i+1]
			if k.Kind != yaml.ScalarNode || k.ShortTag() != "!!str" {
				return nil, fmt.Errorf("line %d: mapping keys must be strings", k.Line)
			}
			if _, dup := rec[k.Value]; dup {
				return nil, fmt.Errorf("line %d: duplicate key %q", k.Line, k.Value)
			}
			v, err := FromYAMLNode(vn)
			if err != nil {
				return nil, err
			}
			rec[k.Value] = v
		}
		return rec, nil

	case yaml.ScalarNode:
		return fromYAMLScalar(n)

	default:
		return nil, fmt.Errorf("line %d: unsupported YAML node kind %d", n.Line, n.Kind)
	}
}

func fromYAMLScalar(n *yaml.Node) (value.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return value.Null{}, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return value.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, fmt.Errorf("line %d: integer %s: %w", n.Line, n.Value, err)
		}
		return value.Int(i), nil
	case "!!float":
		return nil, fmt.Errorf("line %d: float %s is not allowed, use an integer", n.Line, n.Value)
	case "!!str":
		return value.String(n.Value), nil
	default:
		return nil, fmt.Errorf("line %d: unsupported YAML tag %s", n.Line, n.ShortTag())
	}
}

// ParseScalar interprets a command-line string: integers, true/false and
// null map to their values, anything else is a string.
func ParseScalar(s string) value.Value {
	switch s {
	case "null":
		return value.Null{}
	case "true":
		return value.Bool(true)
	case "false":
		return value.Bool(false)
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Int(n)
	}
	return value.String(s)
}
