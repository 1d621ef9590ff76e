// Package dataset implements the annotation partitioning and merging
// engine: a "latest task wins" total ordering over conflicting annotation
// sources, with deletions as first-class competing events.
//
// Both Partition and Merge are pure functions over in-memory tables. They
// never mutate their inputs and hold no shared state, so callers may run
// them concurrently on independent inputs.
package dataset

import "github.com/BuckanovNikita/cveta2/pkg/types"

// Table is a flat annotation table together with the column set of its
// source. Column presence matters: by-time merging requires the
// task_updated_date column, and split propagation only considers tables
// that actually carry a split column.
type Table struct {
	Columns []string
	Rows    []types.Record
}

// NewTable builds a Table over rows with the canonical column set.
func NewTable(rows []types.Record) Table {
	cols := make([]string, len(types.Columns))
	copy(cols, types.Columns)
	return Table{Columns: cols, Rows: rows}
}

// HasColumn reports whether the table's source contained the named column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ImageSet returns the set of non-empty image names in the table.
func (t Table) ImageSet() map[string]struct{} {
	set := make(map[string]struct{})
	for i := range t.Rows {
		if name := t.Rows[i].ImageName; name != "" {
			set[name] = struct{}{}
		}
	}
	return set
}

// mergeColumns returns the union of two column lists, preserving the order
// of a and appending columns only present in b.
func mergeColumns(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, c := range a {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	for _, c := range b {
		if _, ok := seen[c]; !ok {
			seen[c] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}
