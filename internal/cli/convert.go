package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/csvio"
	"github.com/BuckanovNikita/cveta2/internal/yolo"
)

func newConvertCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert between dataset CSV and YOLO format",
	}
	cmd.AddCommand(newConvertToYoloCmd())
	cmd.AddCommand(newConvertFromYoloCmd())
	return cmd
}

func newConvertToYoloCmd() *cobra.Command {
	var (
		outputDir string
		imageDirs []string
		linkMode  string
	)
	cmd := &cobra.Command{
		Use:   "to-yolo CSV",
		Short: "Export a dataset CSV as a YOLO directory tree",
		Long: "Exports box and none rows as YOLO label files under\n" +
			"labels/<split>/, places images under images/<split>/ and writes\n" +
			"dataset.yaml. Every exported image must carry a split assignment.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}
			mode, err := yolo.ParseLinkMode(linkMode)
			if err != nil {
				return &usageError{err}
			}

			table, err := csvio.ReadDataset(args[0], csvio.ReadOptions{})
			if err != nil {
				return err
			}

			searchDirs := imageDirs
			for _, project := range rt.cfg.CacheProjects() {
				if dir, ok := rt.cfg.CacheDir(project); ok {
					searchDirs = append(searchDirs, dir)
				}
			}

			stats, err := yolo.Export(table.Rows, yolo.ExportOptions{
				OutputDir:  outputDir,
				SearchDirs: searchDirs,
				LinkMode:   mode,
			}, rt.log)
			if err != nil {
				return err
			}
			rt.log.WithFields(logrus.Fields{
				"images":  stats.Images,
				"classes": stats.Classes,
				"missing": len(stats.MissingImages),
			}).Info("dataset exported")
			return nil
		},
	}
	cmd.Flags().StringVarP(&outputDir, "output-dir", "o", "yolo", "output directory")
	cmd.Flags().StringArrayVar(&imageDirs, "image-dir", nil, "extra directory to search for images (repeatable)")
	cmd.Flags().StringVar(&linkMode, "link-mode", "copy", "how to place images: copy, hardlink or symlink")
	return cmd
}

func newConvertFromYoloCmd() *cobra.Command {
	var (
		output       string
		namesFile    string
		imageDirs    []string
		readAllSizes bool
	)
	cmd := &cobra.Command{
		Use:   "from-yolo DIR",
		Short: "Import a YOLO directory tree as a dataset CSV",
		Long: "Imports a YOLO tree back into the CSV format. A directory with a\n" +
			"dataset.yaml imports as a dataset with split assignments; bare label\n" +
			"files import as predictions with optional per-box confidence.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd)
			if err != nil {
				return err
			}

			searchDirs := imageDirs
			for _, project := range rt.cfg.CacheProjects() {
				if dir, ok := rt.cfg.CacheDir(project); ok {
					searchDirs = append(searchDirs, dir)
				}
			}

			records, err := yolo.Import(args[0], yolo.ImportOptions{
				NamesFile:    namesFile,
				SearchDirs:   searchDirs,
				ReadAllSizes: readAllSizes,
			}, rt.log)
			if err != nil {
				return err
			}
			rt.log.WithField("rows", len(records)).Info("annotations imported")
			return csvio.WriteDataset(output, records)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "dataset.csv", "output CSV path")
	cmd.Flags().StringVar(&namesFile, "names-file", "", "YAML file mapping class ids to label names (prediction mode)")
	cmd.Flags().StringArrayVar(&imageDirs, "image-dir", nil, "extra directory to search for images (repeatable)")
	cmd.Flags().BoolVar(&readAllSizes, "read-all-sizes", false, "probe every image for dimensions instead of assuming the first image's size")
	return cmd
}
