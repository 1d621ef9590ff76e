package cvat

import (
	"context"
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/BuckanovNikita/cveta2/internal/dataset"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// FetchOptions narrows what FetchProject downloads.
type FetchOptions struct {
	// CompletedOnly skips tasks whose status is not "completed".
	CompletedOnly bool
	// IgnoreTaskIDs are tasks excluded outright, typically the tasks on
	// the configured ignore list.
	IgnoreTaskIDs map[int]struct{}
	// TaskIDs, when non-empty, restricts the fetch to exactly these tasks.
	TaskIDs []int
	// Strict turns per-task download failures into a fetch failure instead
	// of a warning.
	Strict bool
}

// FetchResult is everything downloaded from one project.
type FetchResult struct {
	Project types.ProjectInfo
	Tasks   []types.TaskInfo
	Labels  []types.LabelInfo
	Records []types.Record
	// SkippedTasks are tasks whose download failed in non-strict mode.
	SkippedTasks []int
}

// Fetcher downloads a project's annotations and flattens them into
// records.
type Fetcher struct {
	api API
	log *logrus.Entry
}

func NewFetcher(api API, log *logrus.Entry) *Fetcher {
	return &Fetcher{api: api, log: log}
}

// ResolveProjectID turns a project reference into an id. A reference
// that parses as an integer is taken literally; anything else is matched
// case-insensitively against project names, consulting cached projects
// first and the server second.
func (f *Fetcher) ResolveProjectID(ctx context.Context, ref string, cached []types.ProjectInfo) (int, error) {
	if id, err := strconv.Atoi(ref); err == nil {
		return id, nil
	}
	if id, ok := matchProjectName(cached, ref); ok {
		return id, nil
	}
	projects, err := f.api.ListProjects(ctx)
	if err != nil {
		return 0, err
	}
	if id, ok := matchProjectName(projects, ref); ok {
		return id, nil
	}
	return 0, errors.Wrapf(types.ErrProjectNotFound, "%q", ref)
}

func matchProjectName(projects []types.ProjectInfo, ref string) (int, bool) {
	for _, p := range projects {
		if strings.EqualFold(p.Name, ref) {
			return p.ID, true
		}
	}
	return 0, false
}

// FetchProject downloads every selected task of a project and flattens
// the annotations into records: one box row per rectangle shape, one
// none row per reviewed image without annotations, one deleted row per
// image removed from the task's frame list.
func (f *Fetcher) FetchProject(ctx context.Context, projectID int, opts FetchOptions) (FetchResult, error) {
	result := FetchResult{Project: types.ProjectInfo{ID: projectID}}

	tasks, err := f.api.ProjectTasks(ctx, projectID)
	if err != nil {
		if IsNotFound(err) {
			return result, errors.Wrapf(types.ErrProjectNotFound, "id %d", projectID)
		}
		return result, err
	}
	labels, err := f.api.ProjectLabels(ctx, projectID)
	if err != nil {
		return result, err
	}
	result.Labels = labels

	labelNames, attrNames := labelMaps(labels)

	selected := selectTasks(tasks, opts)
	result.Tasks = selected
	for _, task := range selected {
		records, err := f.fetchTask(ctx, task, labelNames, attrNames)
		if err != nil {
			if opts.Strict {
				return result, errors.Wrapf(err, "task %d (%s)", task.ID, task.Name)
			}
			f.log.WithError(err).WithFields(logrus.Fields{
				"task_id": task.ID, "task_name": task.Name,
			}).Warn("skipping task after download failure")
			result.SkippedTasks = append(result.SkippedTasks, task.ID)
			continue
		}
		result.Records = append(result.Records, records...)
	}
	return result, nil
}

func selectTasks(tasks []types.TaskInfo, opts FetchOptions) []types.TaskInfo {
	wanted := make(map[int]struct{}, len(opts.TaskIDs))
	for _, id := range opts.TaskIDs {
		wanted[id] = struct{}{}
	}
	var selected []types.TaskInfo
	for _, t := range tasks {
		if _, ignored := opts.IgnoreTaskIDs[t.ID]; ignored {
			continue
		}
		if len(wanted) > 0 {
			if _, ok := wanted[t.ID]; !ok {
				continue
			}
		}
		if opts.CompletedOnly && t.Status != types.TaskStatusCompleted {
			continue
		}
		selected = append(selected, t)
	}
	return selected
}

// labelMaps indexes label names by label id and attribute names by
// attribute spec id.
func labelMaps(labels []types.LabelInfo) (map[int]string, map[int]string) {
	labelNames := make(map[int]string, len(labels))
	attrNames := make(map[int]string)
	for _, l := range labels {
		labelNames[l.ID] = l.Name
		for _, a := range l.Attributes {
			attrNames[a.ID] = a.Name
		}
	}
	return labelNames, attrNames
}

func (f *Fetcher) fetchTask(ctx context.Context, task types.TaskInfo, labelNames, attrNames map[int]string) ([]types.Record, error) {
	meta, err := f.api.TaskDataMeta(ctx, task.ID)
	if err != nil {
		return nil, errors.Wrap(err, "data meta")
	}
	ann, err := f.api.TaskAnnotations(ctx, task.ID)
	if err != nil {
		return nil, errors.Wrap(err, "annotations")
	}

	deleted := make(map[int]struct{}, len(meta.DeletedFrames))
	for _, frame := range meta.DeletedFrames {
		deleted[frame] = struct{}{}
	}

	var records []types.Record
	annotated := make(map[int]struct{})

	addShape := func(shape types.Shape) {
		if shape.Outside {
			return
		}
		if shape.Frame < 0 || shape.Frame >= len(meta.Frames) {
			f.log.WithFields(logrus.Fields{
				"task_id": task.ID, "frame": shape.Frame,
			}).Warn("shape references frame outside task range")
			return
		}
		// A skipped shape still marks its frame as reviewed.
		annotated[shape.Frame] = struct{}{}
		if shape.Type != "rectangle" {
			f.log.WithFields(logrus.Fields{
				"task_id": task.ID, "frame": shape.Frame, "type": shape.Type,
			}).Warn("skipping non-rectangle shape")
			return
		}
		if _, gone := deleted[shape.Frame]; gone {
			return
		}
		records = append(records, boxRecord(task, meta.Frames[shape.Frame], shape, labelNames, attrNames))
	}

	for _, shape := range ann.Shapes {
		addShape(shape)
	}
	for _, track := range ann.Tracks {
		for _, shape := range track.Shapes {
			shape.LabelID = track.LabelID
			if shape.Source == "" {
				shape.Source = track.Source
			}
			addShape(shape)
		}
	}

	for frameID, frame := range meta.Frames {
		name := path.Base(frame.Name)
		if _, gone := deleted[frameID]; gone {
			records = append(records, dataset.DeletedRecord(name, frameID, task))
			continue
		}
		if _, ok := annotated[frameID]; ok {
			continue
		}
		records = append(records, types.Record{
			ImageName:   name,
			ImageWidth:  frame.Width,
			ImageHeight: frame.Height,
			Shape:       types.ShapeNone,
			TaskID:      task.ID,
			TaskName:    task.Name,
			TaskStatus:  task.Status,
			TaskUpdated: task.UpdatedDate,
			FrameID:     frameID,
			Subset:      task.Subset,
		})
	}
	return records, nil
}

func boxRecord(task types.TaskInfo, frame types.Frame, shape types.Shape, labelNames, attrNames map[int]string) types.Record {
	attrs := make(map[string]string, len(shape.Attributes))
	for _, a := range shape.Attributes {
		name, ok := attrNames[a.SpecID]
		if !ok {
			name = strconv.Itoa(a.SpecID)
		}
		attrs[name] = a.Value
	}
	id := shape.ID
	rec := types.Record{
		ImageName:    path.Base(frame.Name),
		ImageWidth:   frame.Width,
		ImageHeight:  frame.Height,
		Shape:        types.ShapeBox,
		Label:        labelNames[shape.LabelID],
		TaskID:       task.ID,
		TaskName:     task.Name,
		TaskStatus:   task.Status,
		TaskUpdated:  task.UpdatedDate,
		CreatedBy:    shape.CreatedBy,
		FrameID:      shape.Frame,
		Subset:       task.Subset,
		Occluded:     shape.Occluded,
		ZOrder:       shape.ZOrder,
		Rotation:     shape.Rotation,
		Source:       shape.Source,
		AnnotationID: &id,
		Attributes:   attrs,
	}
	if len(shape.Points) >= 4 {
		rec.XTL, rec.YTL, rec.XBR, rec.YBR = shape.Points[0], shape.Points[1], shape.Points[2], shape.Points[3]
	}
	return rec
}

// ProjectCloudStorage resolves the cloud storage attached to a
// project's tasks. Every task with a source storage must point at the
// same one; a project with no attached storage yields ErrNoCloudStorage.
func (f *Fetcher) ProjectCloudStorage(ctx context.Context, tasks []types.TaskInfo) (types.CloudStorageInfo, error) {
	storageID := 0
	for _, t := range tasks {
		if t.SourceStorageID == 0 {
			continue
		}
		if storageID == 0 {
			storageID = t.SourceStorageID
			continue
		}
		if storageID != t.SourceStorageID {
			f.log.WithFields(logrus.Fields{
				"storage_a": storageID, "storage_b": t.SourceStorageID,
			}).Warn("tasks reference different cloud storages; using the first")
		}
	}
	if storageID == 0 {
		return types.CloudStorageInfo{}, types.ErrNoCloudStorage
	}
	return f.api.CloudStorage(ctx, storageID)
}
