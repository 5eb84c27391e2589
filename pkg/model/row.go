// pkg/model/row.go
package model

// Row maps column names to scalar cell values. Reading a column the row
// does not carry yields the null Value, which normalizes to the
// canonical empty string.
type Row map[string]Value

// Equivalent reports whether two rows carry the same content over the
// given columns after normalization. Keys outside columns are ignored.
func (r Row) Equivalent(other Row, columns []string) bool {
	for _, col := range columns {
		if r[col].Normalized() != other[col].Normalized() {
			return false
		}
	}
	return true
}

// IsBlank reports whether every declared column normalizes to empty.
func (r Row) IsBlank(columns []string) bool {
	for _, col := range columns {
		if r[col].Normalized() != "" {
			return false
		}
	}
	return true
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
