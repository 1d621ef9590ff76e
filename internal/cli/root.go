// Package cli implements the cveta2 command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/BuckanovNikita/cveta2/internal/config"
	"github.com/BuckanovNikita/cveta2/internal/cvat"
	"github.com/BuckanovNikita/cveta2/internal/paths"
	"github.com/BuckanovNikita/cveta2/internal/projcache"
	"github.com/BuckanovNikita/cveta2/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// envLogLevel sets the default log level by name (logrus levels).
// --verbose takes precedence.
const envLogLevel = "CVETA2_LOG_LEVEL"

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	host      string
	token     string
	username  string
	password  string
	verbose   bool
}

var flags rootFlags

// NewRootCmd creates the top-level "cveta2" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cveta2",
		Short: "Export, merge and convert CVAT annotation datasets",
		Long: "cveta2 downloads annotations from a CVAT server, partitions them into\n" +
			"dataset, obsolete and in-progress tables, merges dataset versions with\n" +
			"temporal conflict resolution, and converts to and from the YOLO format.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logrus.SetOutput(os.Stderr)
			if lvl := os.Getenv(envLogLevel); lvl != "" {
				if parsed, err := logrus.ParseLevel(lvl); err == nil {
					logrus.SetLevel(parsed)
				} else {
					logrus.Warnf("ignoring invalid %s value %q", envLogLevel, lvl)
				}
			}
			if flags.verbose {
				logrus.SetLevel(logrus.DebugLevel)
			}
		},
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&flags.host, "host", "", "CVAT server URL")
	root.PersistentFlags().StringVar(&flags.token, "token", "", "CVAT API token")
	root.PersistentFlags().StringVar(&flags.username, "username", "", "CVAT username")
	root.PersistentFlags().StringVar(&flags.password, "password", "", "CVAT password")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "enable debug logging")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &usageError{err}
	})

	root.AddCommand(newFetchCmd())
	root.AddCommand(newMergeCmd())
	root.AddCommand(newConvertCmd())
	root.AddCommand(newSetupCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newLabelsCmd())
	root.AddCommand(newIgnoreCmd())
	root.AddCommand(newS3SyncCmd())
	root.AddCommand(newUploadImagesCmd())
	root.AddCommand(newVersionCmd())

	return root
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return exitCode(err)
	}
	return exitSuccess
}

// usageError marks bad invocations so they map to the user-error exit
// code.
type usageError struct{ err error }

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

// exitCode classifies an error: configuration and lookup problems the
// user can fix exit 1, everything else exits 2.
func exitCode(err error) int {
	var ue *usageError
	if errors.As(err, &ue) {
		return exitUserError
	}
	for _, sentinel := range []error{
		types.ErrTimeColumnMissing,
		types.ErrMissingColumns,
		types.ErrProjectNotFound,
		types.ErrTaskNotFound,
		types.ErrHostNotConfigured,
		types.ErrNoCloudStorage,
	} {
		if errors.Is(err, sentinel) {
			return exitUserError
		}
	}
	return exitSysError
}

// runtime bundles the resolved configuration and logger every command
// needs.
type runtime struct {
	configDir string
	cfg       config.Config
	log       *logrus.Entry
}

func newRuntime(cmd *cobra.Command) (*runtime, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(configDir, config.Overrides{
		Host:     flags.host,
		Token:    flags.token,
		Username: flags.username,
		Password: flags.password,
	})
	if err != nil {
		return nil, err
	}
	return &runtime{
		configDir: configDir,
		cfg:       cfg,
		log:       logrus.WithField("cmd", cmd.Name()),
	}, nil
}

// apiClient builds the CVAT REST client, failing early when no host is
// configured.
func (rt *runtime) apiClient() (*cvat.Client, error) {
	if err := rt.cfg.RequireHost(); err != nil {
		return nil, err
	}
	return cvat.NewClient(rt.cfg.Cvat, rt.log)
}

// openProjects opens the projects cache database in the config dir.
func (rt *runtime) openProjects() (*projcache.Store, error) {
	return projcache.Open(paths.ProjectsCacheFile(rt.configDir))
}

// cachedProjects loads the cached project list, tolerating a cold or
// broken cache.
func (rt *runtime) cachedProjects() []types.ProjectInfo {
	store, err := rt.openProjects()
	if err != nil {
		rt.log.WithError(err).Debug("projects cache unavailable")
		return nil
	}
	defer store.Close()
	projects, err := store.Projects()
	if err != nil {
		rt.log.WithError(err).Debug("projects cache unreadable")
		return nil
	}
	return projects
}

// refreshProjects stores a freshly listed project set in the cache.
// Failures are logged, never fatal.
func (rt *runtime) refreshProjects(projects []types.ProjectInfo) {
	store, err := rt.openProjects()
	if err != nil {
		rt.log.WithError(err).Debug("projects cache unavailable")
		return
	}
	defer store.Close()
	if err := store.Replace(projects); err != nil {
		rt.log.WithError(err).Warn("failed to refresh projects cache")
	}
}
