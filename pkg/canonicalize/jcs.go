// Package canonicalize produces the one canonical byte representation a
// StepRecord must reduce to before it can be hashed into the audit chain.
// Two callers serializing the same logical record — regardless of struct
// field order or how a map was built — must get back identical bytes, or
// the hash-chain contract in pkg/audit breaks.
//
// The encoding follows RFC 8785 (JSON Canonicalization Scheme): object keys
// sorted by UTF-8 byte order, no insignificant whitespace, no HTML escaping.
package canonicalize

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// JCS returns the canonical JSON encoding of v.
//
// v is first passed through the standard json.Marshal (so struct tags,
// omitempty, and custom MarshalJSON methods are honored) and then decoded
// back into a generic tree with json.Number preserved, which is where the
// actual canonicalization happens.
func JCS(v interface{}) ([]byte, error) {
	asJSON, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonicalize: marshal: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(asJSON))
	dec.UseNumber()

	var tree interface{}
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("canonicalize: decode intermediate form: %w", err)
	}

	var buf bytes.Buffer
	if err := writeCanonical(&buf, tree); err != nil {
		return nil, fmt.Errorf("canonicalize: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// JCSString is JCS with its result converted to a string.
func JCSString(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CanonicalHash is the SHA-256 hex digest of v's canonical encoding. Used
// anywhere a stable content fingerprint of a value is needed outside the
// audit chain's own hash construction (see pkg/audit.hashEvent, which binds
// additional fields JCS alone does not cover).
func CanonicalHash(v interface{}) (string, error) {
	b, err := JCS(v)
	if err != nil {
		return "", err
	}
	return HashBytes(b), nil
}

// HashBytes is the SHA-256 hex digest of raw bytes.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// writeCanonical appends v's canonical encoding to buf. v must be one of
// the types json.Decoder.UseNumber produces: nil, bool, json.Number,
// string, []interface{}, or map[string]interface{}.
func writeCanonical(buf *bytes.Buffer, v interface{}) error {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil

	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
		return nil

	case json.Number:
		buf.WriteString(t.String())
		return nil

	case string:
		return writeCanonicalString(buf, t)

	case []interface{}:
		buf.WriteByte('[')
		for i, elem := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case map[string]interface{}:
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
			if err := writeCanonicalString(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	default:
		// Reached only if a caller hands JCS a value whose JSON round-trip
		// produces something other than the UseNumber decoder's six types —
		// not possible for encoding/json today, kept as a fail-loud guard.
		return fmt.Errorf("canonicalize: unexpected decoded type %T", v)
	}
}

// writeCanonicalString encodes s as a JSON string literal without HTML
// escaping, matching RFC 8785 (encoding/json's default escapes <, >, and &),
// and appends it to buf. Encoded via a scratch buffer since json.Encoder
// only ever appends, and buf may already hold prior sibling output.
func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var scratch bytes.Buffer
	enc := json.NewEncoder(&scratch)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(scratch.Bytes(), []byte{'\n'}))
	return nil
}
