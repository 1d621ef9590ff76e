package dataset

import (
	"fmt"
	"sort"
	"time"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// MergeOptions selects the conflict policy for images present in both
// tables. With ByTime false the new table always wins; with ByTime true
// the side with the later maximum task_updated_date per image wins, new
// on ties or unparseable dates.
type MergeOptions struct {
	ByTime bool
}

// MergeStats summarizes a merge for reporting.
type MergeStats struct {
	OnlyOld       int
	OnlyNew       int
	ConflictToNew int
	ConflictToOld int
	DeletedHit    int
	Rows          int
}

// MergeResult is the combined table plus the informational outcomes the
// caller may want to surface. The engine itself does not log.
type MergeResult struct {
	Table    Table
	Warnings []string
	Stats    MergeStats
}

// Merge combines old and new annotation tables into one. Images listed in
// deleted are removed from the result regardless of which side they came
// from. Each remaining image contributes rows from exactly one side:
// whichever uniquely contains it, or whichever won under opts.
//
// Split values from old are propagated into output rows that lack one;
// propagation only fills, it never overwrites a winner's split.
//
// The only error is the by-time configuration error: opts.ByTime with a
// table missing the task_updated_date column fails with
// types.ErrTimeColumnMissing before any row processing.
func Merge(old, new Table, deleted map[string]struct{}, opts MergeOptions) (MergeResult, error) {
	if opts.ByTime {
		if !old.HasColumn(types.ColTaskUpdated) {
			return MergeResult{}, fmt.Errorf("old dataset: %w", types.ErrTimeColumnMissing)
		}
		if !new.HasColumn(types.ColTaskUpdated) {
			return MergeResult{}, fmt.Errorf("new dataset: %w", types.ErrTimeColumnMissing)
		}
	}

	oldImages := old.ImageSet()
	newImages := new.ImageSet()
	common := make(map[string]struct{})
	for name := range oldImages {
		if _, ok := newImages[name]; ok {
			common[name] = struct{}{}
		}
	}

	var keepFromOld, keepFromNew map[string]struct{}
	if opts.ByTime && len(common) > 0 {
		keepFromNew = resolveByTime(old, new, common)
		keepFromOld = make(map[string]struct{})
		for name := range common {
			if _, ok := keepFromNew[name]; !ok {
				keepFromOld[name] = struct{}{}
			}
		}
	} else {
		keepFromNew = common
		keepFromOld = map[string]struct{}{}
	}

	res := MergeResult{
		Table: Table{Columns: mergeColumns(old.Columns, new.Columns)},
	}

	for i := range old.Rows {
		name := old.Rows[i].ImageName
		if _, gone := deleted[name]; gone {
			continue
		}
		_, isCommon := common[name]
		_, oldWon := keepFromOld[name]
		if !isCommon || oldWon {
			res.Table.Rows = append(res.Table.Rows, old.Rows[i])
		}
	}
	for i := range new.Rows {
		name := new.Rows[i].ImageName
		if _, gone := deleted[name]; gone {
			continue
		}
		if _, oldWon := keepFromOld[name]; oldWon {
			continue
		}
		res.Table.Rows = append(res.Table.Rows, new.Rows[i])
	}

	res.Warnings = propagateSplits(&res.Table, old, new, common)

	for name := range oldImages {
		if _, gone := deleted[name]; gone {
			continue
		}
		if _, ok := newImages[name]; !ok {
			res.Stats.OnlyOld++
		}
	}
	for name := range newImages {
		if _, gone := deleted[name]; gone {
			continue
		}
		if _, ok := oldImages[name]; !ok {
			res.Stats.OnlyNew++
		}
	}
	for name := range oldImages {
		if _, gone := deleted[name]; gone {
			res.Stats.DeletedHit++
		}
	}
	for name := range newImages {
		if _, gone := deleted[name]; !gone {
			continue
		}
		if _, ok := oldImages[name]; !ok {
			res.Stats.DeletedHit++
		}
	}
	for name := range keepFromNew {
		if _, gone := deleted[name]; !gone {
			res.Stats.ConflictToNew++
		}
	}
	for name := range keepFromOld {
		if _, gone := deleted[name]; !gone {
			res.Stats.ConflictToOld++
		}
	}
	res.Stats.Rows = len(res.Table.Rows)

	return res, nil
}

// resolveByTime returns the subset of common images where new wins: per
// image the maximum parseable task_updated_date of each side is compared,
// and new wins when its maximum is later or equal, or when either side
// has no parseable date at all.
func resolveByTime(old, new Table, common map[string]struct{}) map[string]struct{} {
	oldMax := maxUpdatedPerImage(old, common)
	newMax := maxUpdatedPerImage(new, common)

	keepFromNew := make(map[string]struct{})
	for _, name := range sortedNames(common) {
		o, oOK := oldMax[name]
		n, nOK := newMax[name]
		if !oOK || !nOK || !n.Before(o) {
			keepFromNew[name] = struct{}{}
		}
	}
	return keepFromNew
}

// maxUpdatedPerImage computes each image's latest parseable update
// instant within one table. Images whose dates are all unparseable are
// absent from the result; map presence is the "has a date" signal.
func maxUpdatedPerImage(t Table, names map[string]struct{}) map[string]time.Time {
	out := make(map[string]time.Time)
	for i := range t.Rows {
		name := t.Rows[i].ImageName
		if _, ok := names[name]; !ok {
			continue
		}
		ts, ok := parseUpdated(t.Rows[i].TaskUpdated)
		if !ok {
			continue
		}
		if cur, ok := out[name]; !ok || ts.After(cur) {
			out[name] = ts
		}
	}
	return out
}

// propagateSplits copies old's per-image split values into merged rows
// that have none. Returns the warnings the merge surfaced: old carrying
// no split data at all (propagation skipped), or both sides defining a
// split for the same common images (winner's value kept).
func propagateSplits(merged *Table, old, new Table, common map[string]struct{}) []string {
	var warnings []string

	oldSplits := make(map[string]string)
	if old.HasColumn(types.ColSplit) {
		for i := range old.Rows {
			name := old.Rows[i].ImageName
			if old.Rows[i].Split == "" {
				continue
			}
			if _, ok := oldSplits[name]; !ok {
				oldSplits[name] = old.Rows[i].Split
			}
		}
	}
	if len(oldSplits) == 0 {
		return append(warnings, "old dataset has no split data; split propagation skipped")
	}

	if new.HasColumn(types.ColSplit) {
		conflicts := 0
		seen := make(map[string]struct{})
		for i := range new.Rows {
			name := new.Rows[i].ImageName
			if new.Rows[i].Split == "" {
				continue
			}
			if _, ok := common[name]; !ok {
				continue
			}
			if _, ok := oldSplits[name]; !ok {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			conflicts++
		}
		if conflicts > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"split set in both datasets for %d image(s); keeping the winning side's value", conflicts))
		}
	}

	for i := range merged.Rows {
		if merged.Rows[i].Split != "" {
			continue
		}
		if split, ok := oldSplits[merged.Rows[i].ImageName]; ok {
			merged.Rows[i].Split = split
		}
	}
	if !merged.HasColumn(types.ColSplit) {
		merged.Columns = append(merged.Columns, types.ColSplit)
	}
	return warnings
}

func sortedNames(set map[string]struct{}) []string {
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
