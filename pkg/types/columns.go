package types

// Canonical CSV column names. The order of Columns is the serialization
// order; readers accept any column order but writers always emit this one
// so round-trips are byte-stable.
const (
	ColImageName    = "image_name"
	ColImageWidth   = "image_width"
	ColImageHeight  = "image_height"
	ColShape        = "instance_shape"
	ColLabel        = "instance_label"
	ColXTL          = "bbox_x_tl"
	ColYTL          = "bbox_y_tl"
	ColXBR          = "bbox_x_br"
	ColYBR          = "bbox_y_br"
	ColTaskID       = "task_id"
	ColTaskName     = "task_name"
	ColTaskStatus   = "task_status"
	ColTaskUpdated  = "task_updated_date"
	ColCreatedBy    = "created_by_username"
	ColFrameID      = "frame_id"
	ColSubset       = "subset"
	ColOccluded     = "occluded"
	ColZOrder       = "z_order"
	ColRotation     = "rotation"
	ColSource       = "source"
	ColAnnotationID = "annotation_id"
	ColAttributes   = "attributes"

	// Optional columns, absent in canonical fetch output.
	ColSplit      = "split"
	ColConfidence = "confidence"
)

// Columns is the canonical column order for dataset CSVs.
var Columns = []string{
	ColImageName,
	ColImageWidth,
	ColImageHeight,
	ColShape,
	ColLabel,
	ColXTL,
	ColYTL,
	ColXBR,
	ColYBR,
	ColTaskID,
	ColTaskName,
	ColTaskStatus,
	ColTaskUpdated,
	ColCreatedBy,
	ColFrameID,
	ColSubset,
	ColOccluded,
	ColZOrder,
	ColRotation,
	ColSource,
	ColAnnotationID,
	ColAttributes,
}

// RequiredColumns is the minimal column set every dataset CSV must contain
// to be usable by merge and convert.
var RequiredColumns = []string{
	ColImageName,
	ColShape,
	ColLabel,
	ColXTL,
	ColYTL,
	ColXBR,
	ColYBR,
}
