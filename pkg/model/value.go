// pkg/model/value.go
package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Kind identifies which scalar variant a Value holds.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
)

// Value is the scalar cell type for imported rows: a string, a number,
// or null. Rows arrive loosely typed from CSV and log parsers, so the
// normalization rules live here and every comparison site sees the same
// canonical form.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// Null returns the null value. The zero Value is also null, so reading
// a missing column from a Row yields null.
func Null() Value { return Value{} }

// String returns a string-valued cell.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Number returns a numeric cell.
func Number(n float64) Value { return Value{kind: KindNumber, num: n} }

// Kind reports the variant held by the value.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether the value is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Normalized returns the canonical string form used for hashing and
// equivalence checks: null becomes the empty string, strings are
// trimmed of surrounding whitespace, and numbers use their shortest
// round-trip decimal form. Null, undefined-as-missing, and "" are
// therefore indistinguishable, as are "30" and 30.0.
func (v Value) Normalized() string {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// MarshalJSON encodes the value as a bare JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON decodes a JSON scalar into the value. Booleans, arrays
// and objects are rejected: row cells are string, number, or null.
func (v *Value) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*v = Null()
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = String(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unsupported cell value %s: %w", trimmed, err)
	}
	*v = Number(n)
	return nil
}
