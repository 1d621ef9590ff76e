package types

// ProjectInfo identifies a CVAT project.
type ProjectInfo struct {
	ID   int    `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// TaskInfo is the task metadata relevant to fetching and conflict
// resolution. UpdatedDate is kept as the raw server string; parsing
// happens at comparison time.
type TaskInfo struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Status      string `json:"status"`
	Subset      string `json:"subset"`
	UpdatedDate string `json:"updated_date"`
	// SourceStorageID references the cloud storage the task reads images
	// from, zero when none.
	SourceStorageID int `json:"-"`
}

// LabelAttribute is an attribute spec attached to a label.
type LabelAttribute struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// LabelInfo is a project label with its attribute specs.
type LabelInfo struct {
	ID         int              `json:"id"`
	Name       string           `json:"name"`
	Color      string           `json:"color"`
	Attributes []LabelAttribute `json:"attributes"`
}

// Frame is one image in a task's ordered frame list.
type Frame struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// DataMeta is the frame list and deleted frame ids of a task.
type DataMeta struct {
	Frames        []Frame `json:"frames"`
	DeletedFrames []int   `json:"deleted_frames"`
}

// ShapeAttribute is an attribute value on a shape, keyed by spec id.
type ShapeAttribute struct {
	SpecID int    `json:"spec_id"`
	Value  string `json:"value"`
}

// Shape is a raw annotation shape from the CVAT labeled-data endpoint.
type Shape struct {
	ID         int              `json:"id"`
	Type       string           `json:"type"`
	Frame      int              `json:"frame"`
	LabelID    int              `json:"label_id"`
	Points     []float64        `json:"points"`
	Occluded   bool             `json:"occluded"`
	Outside    bool             `json:"outside"`
	ZOrder     int              `json:"z_order"`
	Rotation   float64          `json:"rotation"`
	Source     string           `json:"source"`
	Attributes []ShapeAttribute `json:"attributes"`
	CreatedBy  string           `json:"-"`
}

// Track is a linked sequence of shapes for one object across frames.
type Track struct {
	ID      int     `json:"id"`
	LabelID int     `json:"label_id"`
	Source  string  `json:"source"`
	Shapes  []Shape `json:"shapes"`
}

// TaskAnnotations is the labeled data of one task.
type TaskAnnotations struct {
	Shapes []Shape `json:"shapes"`
	Tracks []Track `json:"tracks"`
}

// CloudStorageInfo is the parsed S3 cloud-storage attachment of a project.
type CloudStorageInfo struct {
	ID       int
	Bucket   string
	Prefix   string
	Endpoint string
}

// DownloadStats counts the outcome of an image cache sync run.
type DownloadStats struct {
	Downloaded int
	Cached     int
	Failed     int
	Total      int
}
