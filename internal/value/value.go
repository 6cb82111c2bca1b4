package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf16"
)

// Value is a sealed interface over runtime values.
// Only Null, String, Int, Bool, Bag and Record implement it.
type Value interface {
	value() // Sealed - only these types implement it
}

// Null is an absent value. Records may carry null fields.
type Null struct{}

func (Null) value() {}

// MarshalJSON implements json.Marshaler for Null.
func (Null) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// String is a text value.
type String string

func (String) value() {}

// Int is an integer value. Always int64, never float64.
type Int int64

func (Int) value() {}

// Bool is a boolean value.
type Bool bool

func (Bool) value() {}

// Bag is a multiset of values. The slice order carries no meaning.
type Bag []Value

func (Bag) value() {}

// Record maps field names to values.
// Use SortedKeys() for deterministic iteration.
type Record map[string]Value

func (Record) value() {}

// Pair is a key-value pair for Record construction.
type Pair struct {
	Key   string
	Value Value
}

// F is a shorthand for Pair.
// Example: NewRecord(F("name", String("ada")), F("age", Int(36)))
func F(key string, v Value) Pair {
	return Pair{Key: key, Value: v}
}

// NewRecord creates a Record from pairs. Later pairs win on duplicate keys.
func NewRecord(pairs ...Pair) Record {
	rec := make(Record, len(pairs))
	for _, p := range pairs {
		rec[p.Key] = p.Value
	}
	return rec
}

// NewBag creates a Bag from values.
func NewBag(vals ...Value) Bag {
	return Bag(slices.Clone(vals))
}

// Kind names the dynamic type of v for diagnostics.
func Kind(v Value) string {
	switch v.(type) {
	case nil:
		return "nil"
	case Null:
		return "null"
	case String:
		return "string"
	case Int:
		return "int"
	case Bool:
		return "bool"
	case Bag:
		return "bag"
	case Record:
		return "record"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Get returns the field value and whether it exists.
func (rec Record) Get(key string) (Value, bool) {
	v, ok := rec[key]
	return v, ok
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// Go's sort.Strings uses UTF-8 byte order, which differs outside the BMP.
func (rec Record) SortedKeys() []string {
	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// MarshalJSON implements json.Marshaler for Record using canonical encoding.
func (rec Record) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(rec)
}

// MarshalJSON implements json.Marshaler for Bag using canonical encoding,
// so equal multisets always serialize identically.
func (b Bag) MarshalJSON() ([]byte, error) {
	return MarshalCanonical(b)
}

// UnmarshalJSON implements json.Unmarshaler for Record.
func (rec *Record) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	r, ok := v.(Record)
	if !ok {
		return fmt.Errorf("expected JSON object, got %s", Kind(v))
	}
	*rec = r
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for Bag.
func (b *Bag) UnmarshalJSON(data []byte) error {
	v, err := Parse(data)
	if err != nil {
		return err
	}
	bag, ok := v.(Bag)
	if !ok {
		return fmt.Errorf("expected JSON array, got %s", Kind(v))
	}
	*b = bag
	return nil
}

// Parse decodes JSON text into a Value. Arrays become bags and objects
// become records. Floats are rejected.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromAny(raw)
}

// FromAny converts a decoded Go value (from encoding/json, yaml.v3 or a
// database row) to a Value. Floats are accepted only when integral.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case []byte:
		return String(val), nil
	case int:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint64:
		if val > 1<<63-1 {
			return nil, fmt.Errorf("number out of int64 range: %d", val)
		}
		return Int(val), nil
	case float64:
		if val != float64(int64(val)) {
			return nil, fmt.Errorf("floats are not supported: %v", val)
		}
		return Int(int64(val)), nil
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are not supported: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("number out of int64 range: %s", s)
		}
		return Int(n), nil
	case []any:
		bag := make(Bag, len(val))
		for i, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			bag[i] = ev
		}
		return bag, nil
	case map[string]any:
		rec := make(Record, len(val))
		for k, elem := range val {
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			rec[k] = ev
		}
		return rec, nil
	case map[any]any:
		rec := make(Record, len(val))
		for k, elem := range val {
			ks, ok := k.(string)
			if !ok {
				return nil, fmt.Errorf("record keys must be strings, got %T", k)
			}
			ev, err := FromAny(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", ks, err)
			}
			rec[ks] = ev
		}
		return rec, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// MustFromAny is like FromAny but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustFromAny(v any) Value {
	val, err := FromAny(v)
	if err != nil {
		panic(err)
	}
	return val
}
