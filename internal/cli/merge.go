package cli

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/csvio"
	"github.com/BuckanovNikita/cveta2/internal/dataset"
)

type mergeFlags struct {
	output      string
	deletedFile string
	byTime      bool
}

func newMergeCmd() *cobra.Command {
	var mf mergeFlags
	cmd := &cobra.Command{
		Use:   "merge OLD NEW",
		Short: "Merge two dataset CSVs into one",
		Long: "Merge combines an old and a new dataset CSV. Images present in both\n" +
			"default to the new side; with --by-time the side whose tasks were\n" +
			"updated later wins, new on ties. Images listed in the deleted-names\n" +
			"file are dropped from the result. Split assignments from the old\n" +
			"dataset are propagated onto rows that lack one.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, args[0], args[1], mf)
		},
	}
	cmd.Flags().StringVarP(&mf.output, "output", "o", "merged.csv", "output CSV path")
	cmd.Flags().StringVar(&mf.deletedFile, "deleted", "", "deleted.txt listing images to exclude")
	cmd.Flags().BoolVar(&mf.byTime, "by-time", false, "resolve conflicts by task update dates instead of always preferring NEW")
	return cmd
}

func runMerge(cmd *cobra.Command, oldPath, newPath string, mf mergeFlags) error {
	log := logrus.WithField("cmd", cmd.Name())

	readOpts := csvio.ReadOptions{RequireTimeColumn: mf.byTime}
	oldTable, err := csvio.ReadDataset(oldPath, readOpts)
	if err != nil {
		return err
	}
	newTable, err := csvio.ReadDataset(newPath, readOpts)
	if err != nil {
		return err
	}

	deleted := map[string]struct{}{}
	if mf.deletedFile != "" {
		deleted, err = csvio.ReadDeletedNames(mf.deletedFile)
		if err != nil {
			return err
		}
	}

	result, err := dataset.Merge(oldTable, newTable, deleted, dataset.MergeOptions{ByTime: mf.byTime})
	if err != nil {
		return err
	}
	for _, warning := range result.Warnings {
		log.Warn(warning)
	}
	log.WithFields(logrus.Fields{
		"only_old":        result.Stats.OnlyOld,
		"only_new":        result.Stats.OnlyNew,
		"conflict_to_new": result.Stats.ConflictToNew,
		"conflict_to_old": result.Stats.ConflictToOld,
		"deleted":         result.Stats.DeletedHit,
		"rows":            result.Stats.Rows,
	}).Info("datasets merged")

	return csvio.WriteTable(mf.output, result.Table)
}
