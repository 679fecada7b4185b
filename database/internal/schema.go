package internal

import (
	"fmt"
	"sort"
	"strings"
)

// Column is the part of a column definition the backends check at startup.
type Column struct {
	Type     string
	Nullable bool
}

// Schema maps column names to their definitions.
type Schema map[string]Column

// SchemaError reports how a live table differs from the expected schema.
type SchemaError struct {
	Table      string
	Absent     bool
	Missing    []string
	Mismatched []string
}

func (e *SchemaError) Error() string {
	if e.Absent {
		return fmt.Sprintf("table %s does not exist", e.Table)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "table %s schema validation failed", e.Table)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&b, "; missing columns: %s", strings.Join(e.Missing, ", "))
	}
	if len(e.Mismatched) > 0 {
		fmt.Fprintf(&b, "; mismatched columns: %s", strings.Join(e.Mismatched, "; "))
	}
	return b.String()
}

// CompareSchema checks actual against expected. An empty actual schema means
// the table is absent. Extra columns in actual are allowed.
func CompareSchema(table string, expected, actual Schema) error {
	if len(actual) == 0 {
		return &SchemaError{Table: table, Absent: true}
	}

	drift := &SchemaError{Table: table}
	for name, want := range expected {
		got, ok := actual[name]
		if !ok {
			drift.Missing = append(drift.Missing, name)
			continue
		}
		if !strings.EqualFold(got.Type, want.Type) {
			drift.Mismatched = append(drift.Mismatched, fmt.Sprintf("%s: expected %s, got %s", name, want.Type, strings.ToLower(got.Type)))
		}
		if got.Nullable != want.Nullable {
			drift.Mismatched = append(drift.Mismatched, fmt.Sprintf("%s: expected nullable=%v, got nullable=%v", name, want.Nullable, got.Nullable))
		}
	}

	if len(drift.Missing) == 0 && len(drift.Mismatched) == 0 {
		return nil
	}

	sort.Strings(drift.Missing)
	sort.Strings(drift.Mismatched)
	return drift
}
