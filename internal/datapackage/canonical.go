package datapackage

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// CanonicalJSON encodes v with sorted object keys and no insignificant
// whitespace. HTML characters are not escaped. Decimal and exponent numbers
// are normalised, so 1.50 and 1.5 (or 1e3 and 1000.0) encode the same;
// integers keep their text.
func CanonicalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalizeNumbers(v)); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case Descriptor:
		return normalizeNumbers(map[string]any(t))
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, val := range t {
			m[k] = normalizeNumbers(val)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, val := range t {
			s[i] = normalizeNumbers(val)
		}
		return s
	case json.Number:
		return normalizeNumber(t)
	default:
		return v
	}
}

// normalizeNumber rewrites a non-integer literal as the shortest decimal
// that round-trips, always keeping a fraction or exponent so that 1000.0
// stays distinct from the integer 1000.
func normalizeNumber(n json.Number) json.Number {
	if !strings.ContainsAny(string(n), ".eE") {
		return n
	}
	f, err := strconv.ParseFloat(string(n), 64)
	if err != nil || math.IsInf(f, 0) {
		return n
	}

	if abs := math.Abs(f); abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return json.Number(strconv.FormatFloat(f, 'e', -1, 64))
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return json.Number(s)
}

// Hash returns the hex sha256 of the canonical encoding of v. It depends
// only on content, not on the formatting of the file v was read from.
func Hash(v any) (string, error) {
	data, err := CanonicalJSON(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalPretty encodes v with four-space indentation and sorted keys, the
// layout used for files written into a workspace folder.
func MarshalPretty(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
