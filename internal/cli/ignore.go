package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/config"
	"github.com/BuckanovNikita/cveta2/internal/paths"
)

func newIgnoreCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "ignore",
		Short: "Manage per-project ignored task lists",
		Long: "Ignored tasks are skipped during fetch. The lists live in\n" +
			"ignore.yaml in the configuration directory, keyed by project name.",
	}
	cmd.PersistentFlags().StringVarP(&project, "project", "p", "", "project name")

	cmd.AddCommand(newIgnoreListCmd(&project))
	cmd.AddCommand(newIgnoreAddCmd(&project))
	cmd.AddCommand(newIgnoreRemoveCmd(&project))
	return cmd
}

func loadIgnoreConfig() (string, config.IgnoreConfig, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return "", config.IgnoreConfig{}, err
	}
	cfg, err := config.LoadIgnore(configDir)
	return configDir, cfg, err
}

func newIgnoreListCmd(project *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ignored tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, cfg, err := loadIgnoreConfig()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PROJECT\tTASK\tNAME")
			for name, tasks := range cfg.Projects {
				if *project != "" && name != *project {
					continue
				}
				for _, t := range tasks {
					fmt.Fprintf(w, "%s\t%d\t%s\n", name, t.ID, t.Name)
				}
			}
			return w.Flush()
		},
	}
}

func newIgnoreAddCmd(project *string) *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "add TASK_ID",
		Short: "Add a task to the project's ignore list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *project == "" {
				return &usageError{errors.New("--project is required")}
			}
			taskID, err := strconv.Atoi(args[0])
			if err != nil {
				return &usageError{errors.Errorf("invalid task id %q", args[0])}
			}
			configDir, cfg, err := loadIgnoreConfig()
			if err != nil {
				return err
			}
			added := cfg.Add(*project, config.IgnoredTask{ID: taskID, Name: name})
			if err := config.SaveIgnore(configDir, cfg); err != nil {
				return err
			}
			if added {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d added to %s's ignore list\n", taskID, *project)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Task %d already ignored for %s\n", taskID, *project)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "task name to record alongside the id")
	return cmd
}

func newIgnoreRemoveCmd(project *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove TASK_ID",
		Short: "Remove a task from the project's ignore list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if *project == "" {
				return &usageError{errors.New("--project is required")}
			}
			taskID, err := strconv.Atoi(args[0])
			if err != nil {
				return &usageError{errors.Errorf("invalid task id %q", args[0])}
			}
			configDir, cfg, err := loadIgnoreConfig()
			if err != nil {
				return err
			}
			if !cfg.Remove(*project, taskID) {
				return &usageError{errors.Errorf("task %d is not on %s's ignore list", taskID, *project)}
			}
			if err := config.SaveIgnore(configDir, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task %d removed from %s's ignore list\n", taskID, *project)
			return nil
		},
	}
}
