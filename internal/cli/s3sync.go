package cli

import (
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/cvat"
	"github.com/BuckanovNikita/cveta2/internal/images"
	"github.com/BuckanovNikita/cveta2/internal/s3"
)

func newS3SyncCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "s3-sync",
		Short: "Sync configured image caches from cloud storage",
		Long: "Downloads every object of each configured project's cloud storage\n" +
			"into its local image cache, skipping files already present.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runS3Sync(cmd, project)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "sync only this configured project")
	return cmd
}

func runS3Sync(cmd *cobra.Command, only string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	api, err := rt.apiClient()
	if err != nil {
		return err
	}
	fetcher := cvat.NewFetcher(api, rt.log)

	projects := rt.cfg.CacheProjects()
	if only != "" {
		if _, ok := rt.cfg.CacheDir(only); !ok {
			return &usageError{errors.Errorf("no image cache configured for project %q", only)}
		}
		projects = []string{only}
	}
	if len(projects) == 0 {
		return &usageError{errors.New("no image caches configured; add an image_cache section to config.yaml")}
	}

	for _, name := range projects {
		if err := syncProjectCache(cmd, rt, api, fetcher, name); err != nil {
			return errors.Wrapf(err, "project %s", name)
		}
	}
	return nil
}

func syncProjectCache(cmd *cobra.Command, rt *runtime, api cvat.API, fetcher *cvat.Fetcher, name string) error {
	ctx := cmd.Context()
	log := rt.log.WithField("project", name)

	projectID, err := fetcher.ResolveProjectID(ctx, name, rt.cachedProjects())
	if err != nil {
		return err
	}
	tasks, err := api.ProjectTasks(ctx, projectID)
	if err != nil {
		return err
	}
	storage, err := fetcher.ProjectCloudStorage(ctx, tasks)
	if err != nil {
		return err
	}
	client, err := s3.NewClient(storage, log)
	if err != nil {
		return err
	}

	names, err := client.ListNames(ctx)
	if err != nil {
		return err
	}
	cacheDir, _ := rt.cfg.CacheDir(name)
	stats, err := images.SyncCache(ctx, client, cacheDir, names, log)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{
		"downloaded": stats.Downloaded,
		"cached":     stats.Cached,
		"failed":     stats.Failed,
		"total":      stats.Total,
	}).Info("cache synced")
	return nil
}
