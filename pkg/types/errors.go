package types

import "errors"

// Standard errors. Callers match with errors.Is.
var (
	// ErrTimeColumnMissing is the merge configuration error: by-time
	// conflict resolution was requested but an input table has no
	// task_updated_date column. Reported before any row processing.
	ErrTimeColumnMissing = errors.New("task_updated_date column required for by-time merge")

	// ErrMissingColumns means a dataset CSV lacks one or more of the
	// required columns.
	ErrMissingColumns = errors.New("dataset is missing required columns")

	ErrProjectNotFound = errors.New("project not found")
	ErrTaskNotFound    = errors.New("task not found")

	// ErrHostNotConfigured means no CVAT host is set via flag, env or
	// config file.
	ErrHostNotConfigured = errors.New("CVAT host is not configured")

	// ErrNoCloudStorage means the project has no S3 cloud storage attached.
	ErrNoCloudStorage = errors.New("project has no cloud storage")
)
