package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/images"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the local configuration and image caches",
		Long: "Doctor verifies the CVAT connection settings, checks that the\n" +
			"server answers, and validates every configured image cache directory\n" +
			"including a sample decode of one cached image.",
		Args: cobra.NoArgs,
		RunE: runDoctor,
	}
}

func runDoctor(cmd *cobra.Command, args []string) error {
	rt, err := newRuntime(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	failed := false

	report := func(ok bool, format string, a ...any) {
		mark := "ok"
		if !ok {
			mark = "FAIL"
			failed = true
		}
		fmt.Fprintf(out, "[%s] %s\n", mark, fmt.Sprintf(format, a...))
	}

	// Connection settings.
	if err := rt.cfg.RequireHost(); err != nil {
		report(false, "CVAT host: not configured (run cveta2 setup)")
	} else {
		report(true, "CVAT host: %s", rt.cfg.Cvat.Host)
		hasAuth := rt.cfg.Cvat.Token != "" || rt.cfg.Cvat.Username != ""
		report(hasAuth, "credentials: token or username/password present")

		if api, err := rt.apiClient(); err == nil {
			projects, err := api.ListProjects(cmd.Context())
			if err != nil {
				report(false, "server: %s", err)
			} else {
				report(true, "server: %d project(s) visible", len(projects))
				rt.refreshProjects(projects)
			}
		}
	}

	// Image caches.
	if len(rt.cfg.ImageCache) == 0 {
		fmt.Fprintln(out, "[ok] image caches: none configured")
	} else {
		// Bucket credentials come from the environment, the same place
		// the S3 client reads them.
		hasS3 := os.Getenv("AWS_ACCESS_KEY_ID") != "" && os.Getenv("AWS_SECRET_ACCESS_KEY") != ""
		report(hasS3, "S3 credentials: AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY set")
	}
	for _, project := range rt.cfg.CacheProjects() {
		dir, _ := rt.cfg.CacheDir(project)
		info, err := os.Stat(dir)
		switch {
		case err != nil:
			report(false, "cache %s: %s", project, err)
			continue
		case !info.IsDir():
			report(false, "cache %s: %s is not a directory", project, dir)
			continue
		}
		report(true, "cache %s: %s", project, dir)

		if sample := sampleImage(dir); sample != "" {
			if err := images.CheckDecodable(sample); err != nil {
				report(false, "cache %s: sample decode: %s", project, err)
			} else {
				report(true, "cache %s: sample image decodes", project)
			}
		}
	}

	if failed {
		return fmt.Errorf("doctor found problems")
	}
	fmt.Fprintln(out, "All checks passed")
	return nil
}

// sampleImage picks the first image file in dir, or empty when the
// cache holds none.
func sampleImage(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		switch filepath.Ext(name) {
		case ".jpg", ".jpeg", ".png", ".bmp", ".tiff", ".webp":
			return filepath.Join(dir, name)
		}
	}
	return ""
}
