package dataset

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

func boxRow(image, label, split, updated string) types.Record {
	return types.Record{
		ImageName:   image,
		Shape:       types.ShapeBox,
		Label:       label,
		XBR:         1,
		YBR:         1,
		TaskUpdated: updated,
		Split:       split,
	}
}

func table(rows ...types.Record) Table {
	return NewTable(append([]types.Record{}, rows...))
}

func tableWithSplit(rows ...types.Record) Table {
	t := table(rows...)
	t.Columns = append(t.Columns, types.ColSplit)
	return t
}

func splitsByImage(t Table) map[string]string {
	out := make(map[string]string)
	for i := range t.Rows {
		out[t.Rows[i].ImageName] = t.Rows[i].Split
	}
	return out
}

func labelsByImage(t Table) map[string]string {
	out := make(map[string]string)
	for i := range t.Rows {
		out[t.Rows[i].ImageName] = t.Rows[i].Label
	}
	return out
}

func noDeleted() map[string]struct{} { return map[string]struct{}{} }

func TestMergeDefaultNewWins(t *testing.T) {
	old := tableWithSplit(boxRow("a.jpg", "cat", "train", ""))
	upd := tableWithSplit(
		boxRow("a.jpg", "dog", "", ""),
		boxRow("b.jpg", "cat", "", ""),
	)

	res, err := Merge(old, upd, noDeleted(), MergeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	labels := labelsByImage(res.Table)
	if labels["a.jpg"] != "dog" {
		t.Fatalf("new side should win content for a.jpg, got label %q", labels["a.jpg"])
	}
	splits := splitsByImage(res.Table)
	if splits["a.jpg"] != "train" {
		t.Fatalf("old split should survive for a.jpg, got %q", splits["a.jpg"])
	}
	if splits["b.jpg"] != "" {
		t.Fatalf("b.jpg has no split source, got %q", splits["b.jpg"])
	}
}

func TestMergeByTime(t *testing.T) {
	t.Run("old strictly newer keeps old", func(t *testing.T) {
		old := table(boxRow("a.jpg", "old_a", "", "2026-02-01"))
		upd := table(boxRow("a.jpg", "new_a", "", "2026-01-01"))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{ByTime: true})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Table.Rows) != 1 || res.Table.Rows[0].Label != "old_a" {
			t.Fatalf("expected old_a to win, got %+v", res.Table.Rows)
		}
		if res.Stats.ConflictToOld != 1 || res.Stats.ConflictToNew != 0 {
			t.Fatalf("stats = %+v", res.Stats)
		}
	})

	t.Run("tie goes to new", func(t *testing.T) {
		old := table(boxRow("a.jpg", "old_a", "", "2026-01-01T00:00:00"))
		upd := table(boxRow("a.jpg", "new_a", "", "2026-01-01T00:00:00"))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{ByTime: true})
		if err != nil {
			t.Fatal(err)
		}
		if res.Table.Rows[0].Label != "new_a" {
			t.Fatalf("tie should go to new, got %+v", res.Table.Rows)
		}
	})

	t.Run("unparseable date goes to new", func(t *testing.T) {
		old := table(boxRow("a.jpg", "old_a", "", "garbage"))
		upd := table(boxRow("a.jpg", "new_a", "", "2001-01-01"))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{ByTime: true})
		if err != nil {
			t.Fatal(err)
		}
		if res.Table.Rows[0].Label != "new_a" {
			t.Fatalf("missing old date should fall back to new, got %+v", res.Table.Rows)
		}
	})

	t.Run("identical inputs merge to themselves", func(t *testing.T) {
		x := table(
			boxRow("a.jpg", "cat", "", "2026-01-01T00:00:00"),
			boxRow("b.jpg", "dog", "", "2026-01-02T00:00:00"),
		)
		res, err := Merge(x, x, noDeleted(), MergeOptions{ByTime: true})
		if err != nil {
			t.Fatal(err)
		}
		if !reflect.DeepEqual(res.Table.Rows, x.Rows) {
			t.Fatalf("merge(X, X) != X:\ngot  %+v\nwant %+v", res.Table.Rows, x.Rows)
		}
	})

	t.Run("missing time column is a configuration error", func(t *testing.T) {
		old := table(boxRow("a.jpg", "cat", "", "2026-01-01"))
		old.Columns = []string{types.ColImageName, types.ColShape, types.ColLabel}
		upd := table(boxRow("a.jpg", "dog", "", "2026-01-02"))

		_, err := Merge(old, upd, noDeleted(), MergeOptions{ByTime: true})
		if !errors.Is(err, types.ErrTimeColumnMissing) {
			t.Fatalf("expected ErrTimeColumnMissing, got %v", err)
		}
	})
}

func TestMergeDeletedNames(t *testing.T) {
	old := tableWithSplit(
		boxRow("a.jpg", "cat", "train", "2026-02-01"),
		boxRow("b.jpg", "dog", "val", "2026-02-01"),
	)
	upd := tableWithSplit(
		boxRow("a.jpg", "cat", "", "2026-01-01"),
		boxRow("b.jpg", "dog", "", "2026-01-01"),
	)
	deleted := map[string]struct{}{"a.jpg": {}}

	res, err := Merge(old, upd, deleted, MergeOptions{ByTime: true})
	if err != nil {
		t.Fatal(err)
	}
	for _, row := range res.Table.Rows {
		if row.ImageName == "a.jpg" {
			t.Fatal("deleted image present in merge output")
		}
	}
	splits := splitsByImage(res.Table)
	if splits["b.jpg"] != "val" {
		t.Fatalf("b.jpg split = %q, want val", splits["b.jpg"])
	}
	if res.Stats.DeletedHit != 1 {
		t.Fatalf("stats = %+v", res.Stats)
	}
}

func TestMergeSplitPropagation(t *testing.T) {
	t.Run("fills empty splits from old", func(t *testing.T) {
		old := tableWithSplit(
			boxRow("a.jpg", "cat", "train", ""),
			boxRow("b.jpg", "cat", "val", ""),
		)
		upd := tableWithSplit(boxRow("a.jpg", "cat", "", ""), boxRow("b.jpg", "cat", "", ""))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		splits := splitsByImage(res.Table)
		if splits["a.jpg"] != "train" || splits["b.jpg"] != "val" {
			t.Fatalf("splits = %v", splits)
		}
	})

	t.Run("never overwrites the winning side", func(t *testing.T) {
		old := tableWithSplit(boxRow("a.jpg", "cat", "train", ""))
		upd := tableWithSplit(boxRow("a.jpg", "cat", "test", ""))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if res.Table.Rows[0].Split != "test" {
			t.Fatalf("winner's split overwritten: %q", res.Table.Rows[0].Split)
		}
		if !hasWarning(res.Warnings, "both datasets") {
			t.Fatalf("expected a both-sides warning, got %v", res.Warnings)
		}
	})

	t.Run("warns and skips when old has no split data", func(t *testing.T) {
		old := table(boxRow("a.jpg", "cat", "", ""))
		upd := table(boxRow("a.jpg", "cat", "", ""))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if !hasWarning(res.Warnings, "no split data") {
			t.Fatalf("expected a no-split-data warning, got %v", res.Warnings)
		}
		if res.Table.Rows[0].Split != "" {
			t.Fatalf("split should stay empty, got %q", res.Table.Rows[0].Split)
		}
	})

	t.Run("all rows of a multi-row image get the split", func(t *testing.T) {
		old := tableWithSplit(boxRow("a.jpg", "cat", "train", ""))
		upd := tableWithSplit(boxRow("a.jpg", "cat", "", ""), boxRow("a.jpg", "dog", "", ""))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Table.Rows) != 2 {
			t.Fatalf("expected 2 rows, got %d", len(res.Table.Rows))
		}
		for _, row := range res.Table.Rows {
			if row.Split != "train" {
				t.Fatalf("row %+v missing propagated split", row)
			}
		}
	})

	t.Run("old-only images keep their split", func(t *testing.T) {
		old := tableWithSplit(boxRow("a.jpg", "cat", "train", ""))
		upd := table(boxRow("b.jpg", "dog", "", ""))

		res, err := Merge(old, upd, noDeleted(), MergeOptions{})
		if err != nil {
			t.Fatal(err)
		}
		splits := splitsByImage(res.Table)
		if splits["a.jpg"] != "train" {
			t.Fatalf("a.jpg split = %q", splits["a.jpg"])
		}
	})
}

func TestMergeStats(t *testing.T) {
	old := table(
		boxRow("only_old.jpg", "cat", "", "2026-01-01"),
		boxRow("common.jpg", "cat", "", "2026-01-01"),
		boxRow("gone.jpg", "cat", "", "2026-01-01"),
	)
	upd := table(
		boxRow("only_new.jpg", "dog", "", "2026-01-02"),
		boxRow("common.jpg", "dog", "", "2026-01-02"),
	)
	deleted := map[string]struct{}{"gone.jpg": {}}

	res, err := Merge(old, upd, deleted, MergeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	want := MergeStats{OnlyOld: 1, OnlyNew: 1, ConflictToNew: 1, DeletedHit: 1, Rows: 3}
	if res.Stats != want {
		t.Fatalf("stats = %+v, want %+v", res.Stats, want)
	}
}

func TestMergeRowOrder(t *testing.T) {
	old := table(
		boxRow("o1.jpg", "cat", "", ""),
		boxRow("o2.jpg", "cat", "", ""),
	)
	upd := table(
		boxRow("n1.jpg", "dog", "", ""),
		boxRow("n2.jpg", "dog", "", ""),
	)
	res, err := Merge(old, upd, noDeleted(), MergeOptions{})
	if err != nil {
		t.Fatal(err)
	}
	got := make([]string, 0, len(res.Table.Rows))
	for _, row := range res.Table.Rows {
		got = append(got, row.ImageName)
	}
	want := []string{"o1.jpg", "o2.jpg", "n1.jpg", "n2.jpg"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("row order = %v, want %v", got, want)
	}
}

func hasWarning(warnings []string, substr string) bool {
	for _, w := range warnings {
		if strings.Contains(w, substr) {
			return true
		}
	}
	return false
}
