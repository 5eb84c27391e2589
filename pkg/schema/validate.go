// pkg/schema/validate.go
package schema

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/multierr"
)

// Default batch limits, matching the upload pipeline's caps.
const (
	DefaultMaxColumns = 100
	DefaultMaxRows    = 5000
)

// Limits caps the shape of an incoming batch. Violations are rejected
// before any hashing or corpus I/O happens.
type Limits struct {
	MaxColumns int
	MaxRows    int
}

// DefaultLimits returns the standard batch limits.
func DefaultLimits() Limits {
	return Limits{MaxColumns: DefaultMaxColumns, MaxRows: DefaultMaxRows}
}

// Rules a batch can violate. Each ValidationError names exactly one.
const (
	RuleEmptyColumns    = "empty_columns"
	RuleBlankColumnName = "blank_column_name"
	RuleDuplicateColumn = "duplicate_column"
	RuleTooManyColumns  = "too_many_columns"
	RuleEmptyRows       = "empty_rows"
	RuleTooManyRows     = "too_many_rows"
	RuleEmptyName       = "empty_name"
)

// ValidationError reports a single violated batch rule. Several
// violations from one batch are combined with multierr, so callers can
// surface every broken rule at once.
type ValidationError struct {
	Rule   string
	Detail string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Rule, e.Detail)
}

func violation(rule, format string, args ...interface{}) error {
	return &ValidationError{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// ValidateColumns checks a column list against the shared rules: the
// set must be non-empty, free of blank and duplicate names, and within
// the configured maximum.
func ValidateColumns(columns []string, limits Limits) error {
	var err error

	if len(columns) == 0 {
		return violation(RuleEmptyColumns, "no valid columns found")
	}
	if limits.MaxColumns > 0 && len(columns) > limits.MaxColumns {
		err = multierr.Append(err, violation(RuleTooManyColumns,
			"column count %d exceeds the maximum of %d", len(columns), limits.MaxColumns))
	}

	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if strings.TrimSpace(col) == "" {
			err = multierr.Append(err, violation(RuleBlankColumnName, "blank column name"))
			continue
		}
		if _, dup := seen[col]; dup {
			err = multierr.Append(err, violation(RuleDuplicateColumn, "duplicate column name %q", col))
			continue
		}
		seen[col] = struct{}{}
	}

	return err
}

// ValidateBatch runs the cheap shape checks for a full batch: columns
// first, then the row count. Nothing is hashed until these pass.
func ValidateBatch(columns []string, rowCount int, limits Limits) error {
	err := ValidateColumns(columns, limits)

	if rowCount == 0 {
		err = multierr.Append(err, violation(RuleEmptyRows, "no valid rows found"))
	}
	if limits.MaxRows > 0 && rowCount > limits.MaxRows {
		err = multierr.Append(err, violation(RuleTooManyRows,
			"row count %d exceeds the maximum of %d", rowCount, limits.MaxRows))
	}

	return err
}

// ColumnsMatch reports whether two column lists describe the same
// column set, order-independent.
func ColumnsMatch(a, b []string) bool {
	sa := sortedSet(a)
	sb := sortedSet(b)
	if len(sa) != len(sb) {
		return false
	}
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

func sortedSet(columns []string) []string {
	seen := make(map[string]struct{}, len(columns))
	out := make([]string, 0, len(columns))
	for _, col := range columns {
		if _, dup := seen[col]; dup {
			continue
		}
		seen[col] = struct{}{}
		out = append(out, col)
	}
	sort.Strings(out)
	return out
}
