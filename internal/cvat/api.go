// Package cvat talks to a CVAT server and turns its task data into flat
// annotation records. The API interface is the seam between the REST
// client and everything above it; tests substitute a fake.
package cvat

import (
	"context"

	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// LabelPatch is a partial label update; nil fields are left unchanged.
type LabelPatch struct {
	Name  *string
	Color *string
}

// API is the subset of the CVAT server surface cveta2 uses.
type API interface {
	ListProjects(ctx context.Context) ([]types.ProjectInfo, error)
	ProjectTasks(ctx context.Context, projectID int) ([]types.TaskInfo, error)
	ProjectLabels(ctx context.Context, projectID int) ([]types.LabelInfo, error)
	TaskDataMeta(ctx context.Context, taskID int) (types.DataMeta, error)
	TaskAnnotations(ctx context.Context, taskID int) (types.TaskAnnotations, error)
	CloudStorage(ctx context.Context, storageID int) (types.CloudStorageInfo, error)

	CreateLabel(ctx context.Context, projectID int, name, color string) error
	UpdateLabel(ctx context.Context, labelID int, patch LabelPatch) error
	DeleteLabel(ctx context.Context, labelID int) error
}
