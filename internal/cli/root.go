package cli

import (
	"fmt"

	"github.com/fortressi/chainable/config"
	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Store      string // overrides store.driver when set
	StorePath  string // overrides store.path when set
}

// NewRootCommand creates the root command for chainrun.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chainrun",
		Short: "chainrun - run compensating action chains",
		Long: `Run a chain of actions that undoes completed work when a later action fails.

A compensation may ask for the chain to be retried from its own step;
reports of finished runs can be kept in a file or SQLite store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "report store driver (memory|file|sqlite)")
	cmd.PersistentFlags().StringVar(&opts.StorePath, "store-path", "", "report store directory or database file")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewGraphCommand(opts))
	cmd.AddCommand(NewReportsCommand(opts))

	return cmd
}

// loadConfig reads the config file and applies the global flag overrides.
func (o *RootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if o.Store != "" {
		cfg.Store.Driver = o.Store
	}
	if o.StorePath != "" {
		cfg.Store.Path = o.StorePath
	}
	if err := cfg.Validate(); err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid config", err)
	}
	return cfg, nil
}

func unknownFormat(format string, valid []string) error {
	return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", format, valid))
}
