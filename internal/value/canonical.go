package value

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces canonical JSON for a value. Two values encode
// identically exactly when they are equal.
//
// Differences from json.Marshal:
//  1. Record keys sorted by UTF-16 code units (RFC 8785)
//  2. Bag elements sorted by their own canonical encoding
//  3. No HTML escaping (< > & are NOT escaped)
//  4. Strings are NFC normalized
func MarshalCanonical(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		return fmt.Errorf("nil is not a value")
	case Null:
		buf.WriteString("null")
	case String:
		s, err := marshalCanonicalString(string(val))
		if err != nil {
			return err
		}
		buf.Write(s)
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		buf.WriteString(strconv.FormatBool(bool(val)))
	case Bag:
		return writeCanonicalBag(buf, val)
	case Record:
		return writeCanonicalRecord(buf, val)
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

// writeCanonicalBag sorts element encodings so permutations of a multiset
// share one encoding.
func writeCanonicalBag(buf *bytes.Buffer, bag Bag) error {
	elems := make([][]byte, len(bag))
	for i, elem := range bag {
		b, err := MarshalCanonical(elem)
		if err != nil {
			return fmt.Errorf("bag[%d]: %w", i, err)
		}
		elems[i] = b
	}
	slices.SortFunc(elems, bytes.Compare)

	buf.WriteByte('[')
	for i, b := range elems {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(b)
	}
	buf.WriteByte(']')
	return nil
}

func writeCanonicalRecord(buf *bytes.Buffer, rec Record) error {
	buf.WriteByte('{')
	for i, k := range rec.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		if err := writeCanonical(buf, rec[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// marshalCanonicalString produces a JSON string with NFC normalization and
// without HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds a trailing newline
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}

// Equal reports whether a and b are the same value. Bags compare as
// multisets; records compare by key set and field values.
func Equal(a, b Value) bool {
	ab, errA := MarshalCanonical(a)
	bb, errB := MarshalCanonical(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}

// Key returns a string usable as a map key for grouping and deduplication.
// Equal values always share a key.
func Key(v Value) string {
	b, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("!%T", v)
	}
	return string(b)
}

// Render returns the canonical text of v, for diagnostics and CLI output.
func Render(v Value) string {
	b, err := MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("<invalid %s>", Kind(v))
	}
	return string(b)
}

func (Null) String() string     { return "null" }
func (s String) String() string { return Render(s) }
func (n Int) String() string    { return strconv.FormatInt(int64(n), 10) }
func (b Bool) String() string   { return strconv.FormatBool(bool(b)) }
func (b Bag) String() string    { return Render(b) }
func (r Record) String() string { return Render(r) }
