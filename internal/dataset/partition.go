package dataset

import (
	"sort"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// PartitionResult is the three-way split of an annotation table. The
// three slices are row-disjoint; their union is the input minus
// deleted-kind marker rows and minus rows of images whose latest event
// was a deletion only insofar as those land in Obsolete. DeletedNames is
// the sorted, deduplicated list of images whose latest task event was a
// deletion, including images that never produced annotation rows.
type PartitionResult struct {
	Dataset      []types.Record
	Obsolete     []types.Record
	InProgress   []types.Record
	DeletedNames []string
}

// Partition classifies every image of the input into exactly one of
// dataset, obsolete or in-progress.
//
// Deletions are modeled as records with Shape "deleted" carrying the
// originating task id and task update date; they compete with annotation
// rows for "latest event" per image but are never emitted into the output
// tables.
//
//  1. The latest task event per image is computed across annotation and
//     deletion records, one folded event per task. When a task carries
//     both annotation rows and a deletion marker for the image with the
//     same update date, the deletion is authoritative.
//  2. If the latest event is a deletion, all annotation rows of the image
//     go to Obsolete and the name is collected into DeletedNames.
//  3. Otherwise rows from non-completed tasks go to InProgress; among
//     completed rows, those of the latest completed task go to Dataset
//     and the rest to Obsolete.
//
// The input is not mutated. Malformed timestamps never fail the call;
// they compare as missing.
func Partition(records []types.Record) PartitionResult {
	res := PartitionResult{DeletedNames: []string{}}
	if len(records) == 0 {
		return res
	}

	// Per-image, per-task event accumulators over all record kinds.
	events := make(map[string]map[int]*eventAccumulator)
	for i := range records {
		rec := &records[i]
		byTask, ok := events[rec.ImageName]
		if !ok {
			byTask = make(map[int]*eventAccumulator)
			events[rec.ImageName] = byTask
		}
		acc, ok := byTask[rec.TaskID]
		if !ok {
			acc = &eventAccumulator{}
			byTask[rec.TaskID] = acc
		}
		acc.add(rec)
	}

	deleted := make(map[string]struct{})
	for name, byTask := range events {
		if ev, ok := latestEvent(byTask); ok && ev.deleted {
			deleted[name] = struct{}{}
		}
	}

	// Latest completed task per non-deleted image, chosen with the same
	// supersedes rule as the deletion check.
	latestCompleted := make(map[string]int)
	completedEvents := make(map[string]map[int]*eventAccumulator)
	for i := range records {
		rec := &records[i]
		if rec.IsDeleted() || rec.TaskStatus != types.TaskStatusCompleted {
			continue
		}
		if _, gone := deleted[rec.ImageName]; gone {
			continue
		}
		byTask, ok := completedEvents[rec.ImageName]
		if !ok {
			byTask = make(map[int]*eventAccumulator)
			completedEvents[rec.ImageName] = byTask
		}
		acc, ok := byTask[rec.TaskID]
		if !ok {
			acc = &eventAccumulator{}
			byTask[rec.TaskID] = acc
		}
		acc.add(rec)
	}
	for name, byTask := range completedEvents {
		if ev, ok := latestEvent(byTask); ok {
			latestCompleted[name] = ev.taskID
		}
	}

	for i := range records {
		rec := records[i]
		if rec.IsDeleted() {
			continue
		}
		if _, gone := deleted[rec.ImageName]; gone {
			res.Obsolete = append(res.Obsolete, rec)
			continue
		}
		if rec.TaskStatus != types.TaskStatusCompleted {
			res.InProgress = append(res.InProgress, rec)
			continue
		}
		if latestCompleted[rec.ImageName] == rec.TaskID {
			res.Dataset = append(res.Dataset, rec)
		} else {
			res.Obsolete = append(res.Obsolete, rec)
		}
	}

	res.DeletedNames = make([]string, 0, len(deleted))
	for name := range deleted {
		res.DeletedNames = append(res.DeletedNames, name)
	}
	sort.Strings(res.DeletedNames)
	return res
}

// DeletedRecord builds the deletion marker record for a frame removed
// from a task. Callers translating an external deletion feed into the
// record stream use this so deletions carry the task identity and update
// date the tie-break needs.
func DeletedRecord(imageName string, frameID int, task types.TaskInfo) types.Record {
	return types.Record{
		ImageName:   imageName,
		Shape:       types.ShapeDeleted,
		TaskID:      task.ID,
		TaskName:    task.Name,
		TaskStatus:  task.Status,
		TaskUpdated: task.UpdatedDate,
		FrameID:     frameID,
	}
}
