package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/config"
	"github.com/BuckanovNikita/cveta2/internal/paths"
)

func newSetupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Interactively configure the CVAT connection",
		Long: "Setup prompts for the CVAT server URL and credentials and writes\n" +
			"them to config.yaml in the configuration directory. Existing values\n" +
			"are offered as defaults.",
		Args: cobra.NoArgs,
		RunE: runSetup,
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(configDir, config.Overrides{})
	if err != nil {
		return err
	}

	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.OutOrStdout()

	cfg.Cvat.Host, err = prompt(in, out, "CVAT server URL", cfg.Cvat.Host)
	if err != nil {
		return err
	}
	cfg.Cvat.Token, err = prompt(in, out, "API token (empty for username/password)", cfg.Cvat.Token)
	if err != nil {
		return err
	}
	if cfg.Cvat.Token == "" {
		cfg.Cvat.Username, err = prompt(in, out, "Username", cfg.Cvat.Username)
		if err != nil {
			return err
		}
		cfg.Cvat.Password, err = prompt(in, out, "Password", cfg.Cvat.Password)
		if err != nil {
			return err
		}
	} else {
		cfg.Cvat.Username = ""
		cfg.Cvat.Password = ""
	}
	cfg.Cvat.Organization, err = prompt(in, out, "Organization (optional)", cfg.Cvat.Organization)
	if err != nil {
		return err
	}

	if err := config.Save(configDir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Configuration saved to %s\n", paths.ConfigFile(configDir))
	return nil
}

// prompt asks one question, offering def as the answer kept on empty
// input.
func prompt(in *bufio.Reader, out io.Writer, question, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, def)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}
	line, err := in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}
