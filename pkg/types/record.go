package types

// Shape kinds. Every Record carries exactly one of these.
const (
	// ShapeBox is a single axis-aligned bounding box with a label.
	ShapeBox = "box"
	// ShapeNone marks an image that exists in a task but has no
	// annotations. Tracked so downstream consumers know the image was
	// reviewed.
	ShapeNone = "none"
	// ShapeDeleted marks an image explicitly removed from a task's frame
	// list. Deleted records compete with annotation records during
	// partitioning and never appear in output tables themselves.
	ShapeDeleted = "deleted"
)

// Record is one row of the flat annotation table: a bounding box, an
// image-without-annotations marker, or a deleted-image marker. The bbox
// and label fields are meaningful only when Shape is ShapeBox; width and
// height are zero for ShapeDeleted rows.
//
// Bounding-box coordinates are passed through from the source as-is.
// XTL <= XBR and YTL <= YBR are not enforced.
type Record struct {
	ImageName   string
	ImageWidth  int
	ImageHeight int

	Shape string
	Label string
	XTL   float64
	YTL   float64
	XBR   float64
	YBR   float64

	TaskID      int
	TaskName    string
	TaskStatus  string
	TaskUpdated string // loosely ISO8601; parsed tolerantly, never validated here

	CreatedBy    string
	FrameID      int
	Subset       string
	Occluded     bool
	ZOrder       int
	Rotation     float64
	Source       string
	AnnotationID *int
	Attributes   map[string]string

	// Split is the train/val/test assignment used by the dataset-splitting
	// workflow. Empty means unassigned.
	Split string
	// Confidence is set only on prediction-derived rows imported from YOLO
	// label files.
	Confidence *float64
}

// TaskStatusCompleted is the task status with special meaning during
// partitioning: only rows from completed tasks are eligible for the
// dataset output.
const TaskStatusCompleted = "completed"

// IsBox reports whether the record carries bounding-box data.
func (r *Record) IsBox() bool { return r.Shape == ShapeBox }

// IsDeleted reports whether the record is a deleted-image marker.
func (r *Record) IsDeleted() bool { return r.Shape == ShapeDeleted }
