package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/cloister/internal/config"
	"github.com/roach88/cloister/internal/store"
)

// loadConfig layers the config file and environment. Validation is left to
// the caller: data commands only need the database path.
func loadConfig(opts *RootOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	return cfg, nil
}

// openStore opens the database named by dbFlag, falling back to the
// configured path. Failures are reported through f.
func openStore(f *OutputFormatter, opts *RootOptions, dbFlag string) (*store.Store, error) {
	path := dbFlag
	if path == "" {
		cfg, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, f.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
		}
		path = cfg.Database
	}
	f.VerboseLog("opening database %s", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	return st, nil
}

// ConfigCheckResult is the payload of `config check`.
type ConfigCheckResult struct {
	Valid  bool          `json:"valid"`
	Config config.Config `json:"config"`
}

// NewConfigCommand creates the config command group.
func NewConfigCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Long: `Load configuration from defaults, the YAML file and CLOISTER_* environment
variables, validate it and print the result with the token redacted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigCheck(rootOpts, cmd)
		},
	})

	return cmd
}

func runConfigCheck(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConfig, "failed to load configuration", err)
	}

	if err := cfg.Validate(); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeConfig, "invalid configuration", err)
	}

	if opts.Format == "json" {
		return formatter.Success(ConfigCheckResult{Valid: true, Config: cfg.Redacted()})
	}

	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to render configuration", err)
	}
	fmt.Fprintln(formatter.Writer, "Configuration valid.")
	fmt.Fprint(formatter.Writer, string(out))
	return nil
}
