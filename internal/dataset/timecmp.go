package dataset

import (
	"sort"
	"time"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// updatedLayouts are the timestamp formats accepted for
// task_updated_date, tried in order. CVAT emits RFC3339 with fractional
// seconds; older exports carry naive or date-only values.
var updatedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseUpdated parses a task_updated_date value. A value that matches no
// known layout is missing, not an error: the second return is false and
// the caller falls back to its default-winner rule. Naive timestamps are
// taken as UTC.
func parseUpdated(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range updatedLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// taskEvent is the folded per-(image, task) view used for latest-event
// selection: the task's effective timestamp and whether the task's final
// word on the image was a deletion.
type taskEvent struct {
	taskID  int
	when    time.Time
	hasWhen bool
	deleted bool
}

// eventAccumulator collects the raw annotation and deletion timestamps of
// one (image, task) pair before folding.
type eventAccumulator struct {
	annDate string
	hasAnn  bool
	delDate string
	hasDel  bool
}

func (a *eventAccumulator) add(rec *types.Record) {
	if rec.IsDeleted() {
		if !a.hasDel || laterString(rec.TaskUpdated, a.delDate) {
			a.delDate = rec.TaskUpdated
		}
		a.hasDel = true
		return
	}
	if !a.hasAnn || laterString(rec.TaskUpdated, a.annDate) {
		a.annDate = rec.TaskUpdated
	}
	a.hasAnn = true
}

// laterString reports whether a is strictly later than b, comparing
// parsed instants. A parseable value beats an unparseable one; two
// unparseable values compare as not-later.
func laterString(a, b string) bool {
	at, aok := parseUpdated(a)
	bt, bok := parseUpdated(b)
	switch {
	case aok && bok:
		return at.After(bt)
	case aok:
		return true
	default:
		return false
	}
}

// fold resolves the accumulated annotation and deletion timestamps of one
// (image, task) pair into a single event. When both kinds coexist the
// deletion is authoritative on an exact date tie or when its date is
// later; an annotation with a strictly later date restores the image.
func (a *eventAccumulator) fold(taskID int) taskEvent {
	ev := taskEvent{taskID: taskID}

	switch {
	case a.hasDel && !a.hasAnn:
		ev.deleted = true
		ev.when, ev.hasWhen = parseUpdated(a.delDate)
	case !a.hasDel:
		ev.when, ev.hasWhen = parseUpdated(a.annDate)
	default:
		dt, dok := parseUpdated(a.delDate)
		at, aok := parseUpdated(a.annDate)
		switch {
		case dok && aok:
			ev.deleted = !dt.Before(at)
		case dok:
			ev.deleted = true
		case aok:
			ev.deleted = false
		default:
			// Same task produced both kinds and neither date parses; the
			// deletion marker is the task's explicit statement about the
			// image, so it stands.
			ev.deleted = true
		}
		// The event timestamp is the later of the two sides.
		switch {
		case dok && aok:
			ev.when, ev.hasWhen = maxTime(dt, at), true
		case dok:
			ev.when, ev.hasWhen = dt, true
		case aok:
			ev.when, ev.hasWhen = at, true
		}
	}
	return ev
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

// supersedes reports whether candidate should replace best as the latest
// event. A strictly later timestamp always wins, and a parseable
// timestamp always beats a missing one. On an exact tie, or when both
// timestamps are missing, the candidate wins, so with ascending task-id
// iteration the later-encountered source prevails. That fallback is a
// documented best effort, not a guarantee.
func supersedes(candidate, best taskEvent) bool {
	switch {
	case candidate.hasWhen && best.hasWhen:
		return !candidate.when.Before(best.when)
	case candidate.hasWhen:
		return true
	case best.hasWhen:
		return false
	default:
		return true
	}
}

// latestEvent folds per-task accumulators for one image and picks the
// latest event. Iteration is in ascending task id for determinism.
func latestEvent(byTask map[int]*eventAccumulator) (taskEvent, bool) {
	if len(byTask) == 0 {
		return taskEvent{}, false
	}
	ids := make([]int, 0, len(byTask))
	for id := range byTask {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var best taskEvent
	first := true
	for _, id := range ids {
		ev := byTask[id].fold(id)
		if first || supersedes(ev, best) {
			best = ev
			first = false
		}
	}
	return best, true
}
