package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the release version, overridable at build time with
// -ldflags "-X ...internal/cli.Version=v1.2.3".
var Version = "v0.3.0"

const modulePath = "github.com/BuckanovNikita/cveta2"

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the cveta2 version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "cveta2 %s\nmodule: %s\n", Version, modulePath)
			return nil
		},
	}
}
