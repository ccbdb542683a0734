// Package wcrypto provides the domain-separated hashing, canonical
// encoding, Merkle tree, and signing primitives shared by every other
// package in the core: object IDs, worldline IDs, and receipt hashes are
// all produced here so the rest of the module never reaches for a
// different hash function or JSON encoder.
package wcrypto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"
)

// CanonicalBytes returns a deterministic, RFC-8785-flavored JSON encoding
// of v: map keys sorted by raw byte order, no HTML escaping, numbers
// preserved exactly as they were marshaled, string values and object
// keys normalized to Unicode NFC. Two values that are "equal" but
// differ in field order, map iteration order, or Unicode normalization
// form always produce identical bytes, which is what makes receipt
// hashing portable across producers.
func CanonicalBytes(v interface{}) ([]byte, error) {
	intermediate, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("wcrypto: pre-marshal failed: %w", err)
	}

	var generic interface{}
	dec := json.NewDecoder(bytes.NewReader(intermediate))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("wcrypto: intermediate decode failed: %w", err)
	}

	return marshalCanonical(generic)
}

// CanonicalString is CanonicalBytes rendered as a string.
func CanonicalString(v interface{}) (string, error) {
	b, err := CanonicalBytes(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func marshalCanonical(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case nil:
		return []byte("null"), nil
	case bool:
		if t {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case json.Number:
		return []byte(t.String()), nil
	case string:
		return encodeJSONString(norm.NFC.String(t))
	case []interface{}:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalCanonical(elem)
			if err != nil {
				return nil, err
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]interface{}:
		// Keys are NFC-normalized before sorting so that Unicode-equivalent
		// but byte-distinct keys collapse onto one canonical form; a
		// collision after normalization lets the later key in iteration
		// order win, same as an ordinary map assignment would.
		normalized := make(map[string]interface{}, len(t))
		for k, v := range t {
			normalized[norm.NFC.String(k)] = v
		}
		t = normalized

		var buf bytes.Buffer
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := encodeJSONString(k)
			if err != nil {
				return nil, err
			}
			buf.Write(kb)
			buf.WriteByte(':')

			vb, err := marshalCanonical(t[k])
			if err != nil {
				return nil, err
			}
			buf.Write(vb)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return b, nil
	}
}

func encodeJSONString(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte{'\n'}), nil
}
