package cli

import (
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/config"
	"github.com/BuckanovNikita/cveta2/internal/csvio"
	"github.com/BuckanovNikita/cveta2/internal/cvat"
	"github.com/BuckanovNikita/cveta2/internal/dataset"
	"github.com/BuckanovNikita/cveta2/internal/images"
	"github.com/BuckanovNikita/cveta2/internal/s3"
)

type fetchFlags struct {
	outputDir      string
	completedOnly  bool
	strict         bool
	downloadImages bool
	taskIDs        []int
}

func newFetchCmd() *cobra.Command {
	var ff fetchFlags
	cmd := &cobra.Command{
		Use:   "fetch PROJECT",
		Short: "Download and partition a project's annotations",
		Long: "Fetch downloads every task of a CVAT project, partitions the\n" +
			"annotations into dataset, obsolete and in-progress tables, and writes\n" +
			"dataset.csv, obsolete.csv, in_progress.csv and deleted.txt.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFetch(cmd, args[0], ff)
		},
	}
	cmd.Flags().StringVarP(&ff.outputDir, "output-dir", "o", ".", "directory for the output files")
	cmd.Flags().BoolVar(&ff.completedOnly, "completed-only", false, "fetch only completed tasks")
	cmd.Flags().BoolVar(&ff.strict, "strict", false, "fail on any task download error")
	cmd.Flags().BoolVar(&ff.downloadImages, "download-images", false, "sync dataset images into the image cache")
	cmd.Flags().IntSliceVar(&ff.taskIDs, "task", nil, "fetch only these task ids (repeatable)")
	return cmd
}

func runFetch(cmd *cobra.Command, projectRef string, ff fetchFlags) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	api, err := rt.apiClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	fetcher := cvat.NewFetcher(api, rt.log)

	projectID, err := fetcher.ResolveProjectID(ctx, projectRef, rt.cachedProjects())
	if err != nil {
		return err
	}

	ignore, err := config.LoadIgnore(rt.configDir)
	if err != nil {
		return err
	}

	result, err := fetcher.FetchProject(ctx, projectID, cvat.FetchOptions{
		CompletedOnly: ff.completedOnly,
		IgnoreTaskIDs: ignore.IgnoredIDs(projectRef),
		TaskIDs:       ff.taskIDs,
		Strict:        ff.strict,
	})
	if err != nil {
		return err
	}
	rt.log.WithFields(logrus.Fields{
		"project": projectID,
		"tasks":   len(result.Tasks),
		"records": len(result.Records),
		"skipped": len(result.SkippedTasks),
	}).Info("project fetched")

	parts := dataset.Partition(result.Records)
	rt.log.WithFields(logrus.Fields{
		"dataset":     len(parts.Dataset),
		"obsolete":    len(parts.Obsolete),
		"in_progress": len(parts.InProgress),
		"deleted":     len(parts.DeletedNames),
	}).Info("annotations partitioned")

	out := ff.outputDir
	if err := csvio.WriteDataset(filepath.Join(out, "dataset.csv"), parts.Dataset); err != nil {
		return err
	}
	if err := csvio.WriteDataset(filepath.Join(out, "obsolete.csv"), parts.Obsolete); err != nil {
		return err
	}
	if err := csvio.WriteDataset(filepath.Join(out, "in_progress.csv"), parts.InProgress); err != nil {
		return err
	}
	if err := csvio.WriteDeletedNames(filepath.Join(out, "deleted.txt"), parts.DeletedNames); err != nil {
		return err
	}

	if !ff.downloadImages {
		return nil
	}
	return syncDatasetImages(cmd, rt, fetcher, projectRef, ff, result, parts)
}

// syncDatasetImages downloads the dataset's images from the project's
// cloud storage into the configured cache dir, defaulting to an images/
// subdir of the output dir.
func syncDatasetImages(cmd *cobra.Command, rt *runtime, fetcher *cvat.Fetcher, projectRef string, ff fetchFlags, result cvat.FetchResult, parts dataset.PartitionResult) error {
	storage, err := fetcher.ProjectCloudStorage(cmd.Context(), result.Tasks)
	if err != nil {
		return err
	}
	client, err := s3.NewClient(storage, rt.log)
	if err != nil {
		return err
	}

	cacheDir, ok := rt.cfg.CacheDir(projectRef)
	if !ok {
		cacheDir = filepath.Join(ff.outputDir, "images")
	}

	names := dataset.NewTable(parts.Dataset).ImageSet()
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	stats, err := images.SyncCache(cmd.Context(), client, cacheDir, ordered, rt.log)
	if err != nil {
		return err
	}
	rt.log.WithFields(logrus.Fields{
		"downloaded": stats.Downloaded,
		"cached":     stats.Cached,
		"failed":     stats.Failed,
		"total":      stats.Total,
	}).Info("image cache synced")
	return nil
}
