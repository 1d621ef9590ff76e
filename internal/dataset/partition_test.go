package dataset

import (
	"reflect"
	"testing"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

func annRow(image string, taskID int, updated, status string) types.Record {
	return types.Record{
		ImageName:   image,
		Shape:       types.ShapeBox,
		Label:       "cat",
		TaskID:      taskID,
		TaskStatus:  status,
		TaskUpdated: updated,
	}
}

func delRow(image string, taskID int, updated string) types.Record {
	return types.Record{
		ImageName:   image,
		Shape:       types.ShapeDeleted,
		TaskID:      taskID,
		TaskUpdated: updated,
	}
}

func imageNames(rows []types.Record) []string {
	names := make([]string, len(rows))
	for i := range rows {
		names[i] = rows[i].ImageName
	}
	return names
}

func TestPartitionEmpty(t *testing.T) {
	res := Partition(nil)
	if len(res.Dataset) != 0 || len(res.Obsolete) != 0 || len(res.InProgress) != 0 {
		t.Fatalf("expected empty partition, got %d/%d/%d",
			len(res.Dataset), len(res.Obsolete), len(res.InProgress))
	}
	if len(res.DeletedNames) != 0 {
		t.Fatalf("expected no deleted names, got %v", res.DeletedNames)
	}
}

func TestPartitionSingleCompletedTask(t *testing.T) {
	res := Partition([]types.Record{
		annRow("a.jpg", 1, "2026-01-02T00:00:00", "completed"),
		annRow("b.jpg", 1, "2026-01-02T00:00:00", "completed"),
		annRow("c.jpg", 1, "2026-01-02T00:00:00", "completed"),
	})
	if len(res.Dataset) != 3 {
		t.Fatalf("expected 3 dataset rows, got %d", len(res.Dataset))
	}
	if len(res.Obsolete) != 0 || len(res.InProgress) != 0 || len(res.DeletedNames) != 0 {
		t.Fatalf("unexpected non-dataset output: %+v", res)
	}
}

func TestPartitionInProgressOnly(t *testing.T) {
	res := Partition([]types.Record{
		annRow("a.jpg", 1, "2026-01-02T00:00:00", "annotation"),
		annRow("b.jpg", 1, "2026-01-02T00:00:00", "annotation"),
	})
	if len(res.InProgress) != 2 {
		t.Fatalf("expected 2 in-progress rows, got %d", len(res.InProgress))
	}
	if len(res.Dataset) != 0 || len(res.Obsolete) != 0 {
		t.Fatalf("unexpected dataset/obsolete rows: %+v", res)
	}
}

func TestPartitionDeletion(t *testing.T) {
	t.Run("deletion in newer task wins", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
			delRow("a.jpg", 2, "2026-01-02T00:00:00"),
		})
		if len(res.Dataset) != 0 {
			t.Fatalf("deleted image must not land in dataset: %+v", res.Dataset)
		}
		if len(res.Obsolete) != 1 || res.Obsolete[0].ImageName != "a.jpg" {
			t.Fatalf("expected a.jpg in obsolete, got %+v", res.Obsolete)
		}
		if !reflect.DeepEqual(res.DeletedNames, []string{"a.jpg"}) {
			t.Fatalf("expected deleted names [a.jpg], got %v", res.DeletedNames)
		}
	})

	t.Run("deletion in older task loses", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 2, "2026-01-02T00:00:00", "completed"),
			delRow("a.jpg", 1, "2026-01-01T00:00:00"),
		})
		if len(res.Dataset) != 1 {
			t.Fatalf("expected annotation row in dataset, got %+v", res)
		}
		if len(res.DeletedNames) != 0 {
			t.Fatalf("expected no deleted names, got %v", res.DeletedNames)
		}
	})

	t.Run("deleted then restored by a newer task", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
			annRow("a.jpg", 2, "2026-01-03T00:00:00", "completed"),
			delRow("a.jpg", 1, "2026-01-02T00:00:00"),
		})
		if len(res.DeletedNames) != 0 {
			t.Fatalf("restored image must not be deleted, got %v", res.DeletedNames)
		}
		if len(res.Dataset) != 1 || res.Dataset[0].TaskID != 2 {
			t.Fatalf("expected task 2 row in dataset, got %+v", res.Dataset)
		}
		if len(res.Obsolete) != 1 || res.Obsolete[0].TaskID != 1 {
			t.Fatalf("expected task 1 row in obsolete, got %+v", res.Obsolete)
		}
	})

	t.Run("deletion-only image yields name but no rows", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
			delRow("phantom.jpg", 2, "2026-01-02T00:00:00"),
		})
		if len(res.Dataset) != 1 || res.Dataset[0].ImageName != "a.jpg" {
			t.Fatalf("a.jpg should be unaffected: %+v", res.Dataset)
		}
		if !reflect.DeepEqual(res.DeletedNames, []string{"phantom.jpg"}) {
			t.Fatalf("expected [phantom.jpg], got %v", res.DeletedNames)
		}
		total := len(res.Dataset) + len(res.Obsolete) + len(res.InProgress)
		if total != 1 {
			t.Fatalf("phantom.jpg must produce no rows, got %d total", total)
		}
	})

	t.Run("all images deleted", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
			annRow("b.jpg", 1, "2026-01-01T00:00:00", "completed"),
			delRow("a.jpg", 2, "2026-01-02T00:00:00"),
			delRow("b.jpg", 2, "2026-01-02T00:00:00"),
		})
		if len(res.Dataset) != 0 || len(res.InProgress) != 0 {
			t.Fatalf("expected everything obsolete, got %+v", res)
		}
		if len(res.Obsolete) != 2 {
			t.Fatalf("expected 2 obsolete rows, got %d", len(res.Obsolete))
		}
		if !reflect.DeepEqual(res.DeletedNames, []string{"a.jpg", "b.jpg"}) {
			t.Fatalf("expected sorted names, got %v", res.DeletedNames)
		}
	})
}

// Same image annotated and deleted by the same task with the same update
// date: the deletion must be authoritative, not whichever record happened
// to come first.
func TestPartitionSameTaskTieDeletionWins(t *testing.T) {
	res := Partition([]types.Record{
		annRow("img.jpg", 2, "2026-01-02T00:00:00", "completed"),
		annRow("img.jpg", 1, "2026-01-01T00:00:00", "completed"),
		delRow("img.jpg", 2, "2026-01-02T00:00:00"),
	})
	if len(res.Dataset) != 0 {
		t.Fatalf("deleted image must not be in dataset: %+v", res.Dataset)
	}
	if len(res.Obsolete) != 2 {
		t.Fatalf("both annotation rows should be obsolete, got %d", len(res.Obsolete))
	}
	if !reflect.DeepEqual(res.DeletedNames, []string{"img.jpg"}) {
		t.Fatalf("expected [img.jpg], got %v", res.DeletedNames)
	}
}

func TestPartitionLatestCompletedWins(t *testing.T) {
	res := Partition([]types.Record{
		annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
		annRow("a.jpg", 2, "2026-01-02T00:00:00", "completed"),
	})
	if len(res.Dataset) != 1 || res.Dataset[0].TaskID != 2 {
		t.Fatalf("expected task 2 in dataset, got %+v", res.Dataset)
	}
	if len(res.Obsolete) != 1 || res.Obsolete[0].TaskID != 1 {
		t.Fatalf("expected task 1 in obsolete, got %+v", res.Obsolete)
	}
}

func TestPartitionCompletedAndInProgressSplit(t *testing.T) {
	res := Partition([]types.Record{
		annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
		annRow("a.jpg", 2, "2026-01-02T00:00:00", "annotation"),
	})
	if len(res.Dataset) != 1 || res.Dataset[0].TaskID != 1 {
		t.Fatalf("completed row should stay in dataset, got %+v", res.Dataset)
	}
	if len(res.InProgress) != 1 || res.InProgress[0].TaskID != 2 {
		t.Fatalf("annotation-status row should be in progress, got %+v", res.InProgress)
	}
	if len(res.Obsolete) != 0 {
		t.Fatalf("nothing should be obsolete, got %+v", res.Obsolete)
	}
}

func TestPartitionMixed(t *testing.T) {
	res := Partition([]types.Record{
		annRow("img_ds1.jpg", 2, "2026-01-02T00:00:00", "completed"),
		annRow("img_ds2.jpg", 2, "2026-01-02T00:00:00", "completed"),
		annRow("img_stale.jpg", 1, "2026-01-01T00:00:00", "completed"),
		annRow("img_stale.jpg", 2, "2026-01-02T00:00:00", "completed"),
		annRow("img_ip.jpg", 3, "2026-01-03T00:00:00", "annotation"),
		annRow("img_del.jpg", 1, "2026-01-01T00:00:00", "completed"),
		delRow("img_del.jpg", 4, "2026-01-04T00:00:00"),
	})

	got := make(map[string]bool)
	for _, name := range imageNames(res.Dataset) {
		got[name] = true
	}
	want := map[string]bool{"img_ds1.jpg": true, "img_ds2.jpg": true, "img_stale.jpg": true}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("dataset images = %v, want %v", got, want)
	}

	staleInObsolete := false
	delInObsolete := false
	for _, row := range res.Obsolete {
		if row.ImageName == "img_stale.jpg" && row.TaskID == 1 {
			staleInObsolete = true
		}
		if row.ImageName == "img_del.jpg" {
			delInObsolete = true
		}
	}
	if !staleInObsolete || !delInObsolete {
		t.Fatalf("obsolete missing expected rows: %+v", res.Obsolete)
	}

	if len(res.InProgress) != 1 || res.InProgress[0].ImageName != "img_ip.jpg" {
		t.Fatalf("in progress = %+v", res.InProgress)
	}
	if !reflect.DeepEqual(res.DeletedNames, []string{"img_del.jpg"}) {
		t.Fatalf("deleted names = %v", res.DeletedNames)
	}
}

// Every input row for a non-deleted image appears in exactly one output;
// rows of deleted images appear only in obsolete.
func TestPartitionTotality(t *testing.T) {
	records := []types.Record{
		annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
		annRow("a.jpg", 2, "2026-01-02T00:00:00", "completed"),
		annRow("b.jpg", 3, "2026-01-01T00:00:00", "annotation"),
		annRow("c.jpg", 1, "2026-01-01T00:00:00", "completed"),
		delRow("c.jpg", 4, "2026-02-01T00:00:00"),
	}
	res := Partition(records)

	annCount := 0
	for _, rec := range records {
		if !rec.IsDeleted() {
			annCount++
		}
	}
	total := len(res.Dataset) + len(res.Obsolete) + len(res.InProgress)
	if total != annCount {
		t.Fatalf("outputs hold %d rows, input had %d annotation rows", total, annCount)
	}
	for _, row := range res.Dataset {
		if row.ImageName == "c.jpg" {
			t.Fatal("deleted image leaked into dataset")
		}
	}
	for _, row := range res.InProgress {
		if row.ImageName == "c.jpg" {
			t.Fatal("deleted image leaked into in-progress")
		}
	}
}

// Re-partitioning a dataset output is a no-op.
func TestPartitionIdempotent(t *testing.T) {
	first := Partition([]types.Record{
		annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
		annRow("a.jpg", 2, "2026-01-02T00:00:00", "completed"),
		annRow("b.jpg", 2, "2026-01-02T00:00:00", "completed"),
	})
	second := Partition(first.Dataset)

	if !reflect.DeepEqual(second.Dataset, first.Dataset) {
		t.Fatalf("re-partition changed the dataset:\nfirst  %+v\nsecond %+v",
			first.Dataset, second.Dataset)
	}
	if len(second.Obsolete) != 0 || len(second.InProgress) != 0 || len(second.DeletedNames) != 0 {
		t.Fatalf("re-partition produced non-dataset output: %+v", second)
	}
}

func TestPartitionDoesNotMutateInput(t *testing.T) {
	records := []types.Record{
		annRow("a.jpg", 1, "2026-01-01T00:00:00", "completed"),
		delRow("a.jpg", 2, "2026-01-02T00:00:00"),
	}
	snapshot := make([]types.Record, len(records))
	copy(snapshot, records)

	Partition(records)

	if !reflect.DeepEqual(records, snapshot) {
		t.Fatal("Partition mutated its input")
	}
}

func TestPartitionUnparseableDates(t *testing.T) {
	// Neither date parses; the later-encountered task (ascending id) wins.
	res := Partition([]types.Record{
		annRow("a.jpg", 1, "not-a-date", "completed"),
		annRow("a.jpg", 2, "also-bad", "completed"),
	})
	if len(res.Dataset) != 1 || res.Dataset[0].TaskID != 2 {
		t.Fatalf("expected task 2 to win the fallback, got %+v", res.Dataset)
	}
	if len(res.Obsolete) != 1 {
		t.Fatalf("expected one obsolete row, got %+v", res.Obsolete)
	}
}

// A task with a parseable update date must beat one without, whatever
// their ids. An undated event is unknown-age, not infinitely recent.
func TestPartitionDatedBeatsUndated(t *testing.T) {
	t.Run("undated deletion loses to dated annotation", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 1, "2026-05-01T00:00:00", "completed"),
			delRow("a.jpg", 5, "garbage"),
		})
		if len(res.DeletedNames) != 0 {
			t.Fatalf("undated deletion must not tombstone a dated image, got %v", res.DeletedNames)
		}
		if len(res.Dataset) != 1 || res.Dataset[0].TaskID != 1 {
			t.Fatalf("expected task 1 row in dataset, got %+v", res.Dataset)
		}
	})

	t.Run("undated completed task loses the dataset slot", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 1, "2026-05-01T00:00:00", "completed"),
			annRow("a.jpg", 2, "garbage", "completed"),
		})
		if len(res.Dataset) != 1 || res.Dataset[0].TaskID != 1 {
			t.Fatalf("expected dated task 1 in dataset, got %+v", res.Dataset)
		}
		if len(res.Obsolete) != 1 || res.Obsolete[0].TaskID != 2 {
			t.Fatalf("expected undated task 2 in obsolete, got %+v", res.Obsolete)
		}
	})

	t.Run("dated deletion still beats undated annotation", func(t *testing.T) {
		res := Partition([]types.Record{
			annRow("a.jpg", 3, "garbage", "completed"),
			delRow("a.jpg", 1, "2026-05-01T00:00:00"),
		})
		if !reflect.DeepEqual(res.DeletedNames, []string{"a.jpg"}) {
			t.Fatalf("expected [a.jpg] deleted, got %v", res.DeletedNames)
		}
		if len(res.Dataset) != 0 {
			t.Fatalf("undated annotation must not enter the dataset, got %+v", res.Dataset)
		}
	})
}
