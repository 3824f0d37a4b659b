package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGraphCommand creates the graph command.
func NewGraphCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the demo chain as Graphviz DOT",
		Long: `Print the demo chain as Graphviz DOT.

Example:
  chainrun graph | dot -Tsvg > chain.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			engine, err := DemoChain(cfg.Chain, cmd.ErrOrStderr()).Build()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to build chain", err)
			}
			dot, err := engine.DOT()
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to render graph", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), dot)
			return nil
		},
	}
}
