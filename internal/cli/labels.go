package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/cvat"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

func newLabelsCmd() *cobra.Command {
	var project string
	cmd := &cobra.Command{
		Use:   "labels",
		Short: "Manage project labels",
	}
	cmd.PersistentFlags().StringVarP(&project, "project", "p", "", "project id or name")
	_ = cmd.MarkPersistentFlagRequired("project")

	cmd.AddCommand(newLabelsListCmd(&project))
	cmd.AddCommand(newLabelsAddCmd(&project))
	cmd.AddCommand(newLabelsRenameCmd(&project))
	cmd.AddCommand(newLabelsRecolorCmd(&project))
	cmd.AddCommand(newLabelsDeleteCmd(&project))
	return cmd
}

// labelContext resolves the runtime, client and project id every labels
// subcommand needs.
func labelContext(cmd *cobra.Command, projectRef string) (*runtime, *cvat.Client, int, error) {
	rt, err := newRuntime(cmd)
	if err != nil {
		return nil, nil, 0, err
	}
	api, err := rt.apiClient()
	if err != nil {
		return nil, nil, 0, err
	}
	fetcher := cvat.NewFetcher(api, rt.log)
	projectID, err := fetcher.ResolveProjectID(cmd.Context(), projectRef, rt.cachedProjects())
	if err != nil {
		return nil, nil, 0, err
	}
	return rt, api, projectID, nil
}

// findLabel matches a label by exact name, case-insensitively on a
// unique fallback.
func findLabel(labels []types.LabelInfo, name string) (types.LabelInfo, error) {
	for _, l := range labels {
		if l.Name == name {
			return l, nil
		}
	}
	var loose []types.LabelInfo
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			loose = append(loose, l)
		}
	}
	if len(loose) == 1 {
		return loose[0], nil
	}
	return types.LabelInfo{}, errors.Errorf("label %q not found", name)
}

func newLabelsListCmd(project *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the project's labels",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, api, projectID, err := labelContext(cmd, *project)
			if err != nil {
				return err
			}
			labels, err := api.ProjectLabels(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOLOR\tATTRIBUTES")
			for _, l := range labels {
				attrs := make([]string, len(l.Attributes))
				for i, a := range l.Attributes {
					attrs[i] = a.Name
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", l.ID, l.Name, l.Color, strings.Join(attrs, ","))
			}
			return w.Flush()
		},
	}
}

func newLabelsAddCmd(project *string) *cobra.Command {
	var color string
	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Add a label to the project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, projectID, err := labelContext(cmd, *project)
			if err != nil {
				return err
			}
			labels, err := api.ProjectLabels(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			if _, err := findLabel(labels, args[0]); err == nil {
				return &usageError{errors.Errorf("label %q already exists", args[0])}
			}
			if err := api.CreateLabel(cmd.Context(), projectID, args[0], color); err != nil {
				return err
			}
			rt.log.WithField("label", args[0]).Info("label created")
			return nil
		},
	}
	cmd.Flags().StringVar(&color, "color", "#ff0000", "label color as #rrggbb")
	return cmd
}

func newLabelsRenameCmd(project *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename OLD NEW",
		Short: "Rename a label",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, projectID, err := labelContext(cmd, *project)
			if err != nil {
				return err
			}
			labels, err := api.ProjectLabels(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			label, err := findLabel(labels, args[0])
			if err != nil {
				return &usageError{err}
			}
			name := args[1]
			if err := api.UpdateLabel(cmd.Context(), label.ID, cvat.LabelPatch{Name: &name}); err != nil {
				return err
			}
			rt.log.WithField("label", name).Info("label renamed")
			return nil
		},
	}
}

func newLabelsRecolorCmd(project *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recolor NAME COLOR",
		Short: "Change a label's color",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, projectID, err := labelContext(cmd, *project)
			if err != nil {
				return err
			}
			labels, err := api.ProjectLabels(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			label, err := findLabel(labels, args[0])
			if err != nil {
				return &usageError{err}
			}
			color := args[1]
			if err := api.UpdateLabel(cmd.Context(), label.ID, cvat.LabelPatch{Color: &color}); err != nil {
				return err
			}
			rt.log.WithField("label", label.Name).Info("label recolored")
			return nil
		},
	}
}

func newLabelsDeleteCmd(project *string) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete NAME",
		Short: "Delete a label and all annotations using it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, api, projectID, err := labelContext(cmd, *project)
			if err != nil {
				return err
			}
			if !force {
				return &usageError{errors.New("deleting a label removes its annotations; re-run with --force")}
			}
			labels, err := api.ProjectLabels(cmd.Context(), projectID)
			if err != nil {
				return err
			}
			label, err := findLabel(labels, args[0])
			if err != nil {
				return &usageError{err}
			}
			if err := api.DeleteLabel(cmd.Context(), label.ID); err != nil {
				return err
			}
			rt.log.WithField("label", label.Name).Info("label deleted")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "confirm the deletion")
	return cmd
}
