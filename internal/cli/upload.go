package cli

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/cvat"
	"github.com/BuckanovNikita/cveta2/internal/s3"
)

func newUploadImagesCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "upload-images DIR",
		Short: "Upload local images to a project's cloud storage",
		Long: "Uploads every image file in DIR to the project's S3 bucket under\n" +
			"its configured prefix, skipping objects that already exist.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUploadImages(cmd, args[0], project)
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "project id or name")
	_ = cmd.MarkFlagRequired("project")
	return cmd
}

func runUploadImages(cmd *cobra.Command, dir, projectRef string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	api, err := rt.apiClient()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	log := rt.log.WithField("run_id", uuid.NewString())
	fetcher := cvat.NewFetcher(api, log)

	projectID, err := fetcher.ResolveProjectID(ctx, projectRef, rt.cachedProjects())
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

	names, err := localImages(dir)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return &usageError{errors.Errorf("no image files found in %s", dir)}
	}
	log.WithFields(logrus.Fields{
		"bucket": client.Bucket(), "images": len(names),
	}).Info("starting upload")

	uploaded, skipped := 0, 0
	for _, name := range names {
		exists, err := client.Exists(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			log.WithField("image", name).Debug("already in bucket")
			skipped++
			continue
		}
		if err := client.UploadFile(ctx, filepath.Join(dir, name), name); err != nil {
			return err
		}
		uploaded++
	}
	log.WithFields(logrus.Fields{
		"uploaded": uploaded, "skipped": skipped,
	}).Info("upload finished")
	return nil
}

// localImages lists image files directly inside dir, sorted by name.
func localImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
