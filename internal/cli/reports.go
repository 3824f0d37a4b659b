package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fortressi/chainable"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ValidReportFormats defines the allowed formats for reports show.
var ValidReportFormats = []string{"yaml", "json"}

// NewReportsCommand creates the reports command group.
func NewReportsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "Inspect stored run reports",
	}
	cmd.AddCommand(newReportsListCommand(rootOpts))
	cmd.AddCommand(newReportsShowCommand(rootOpts))
	return cmd
}

func newReportsListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored runs, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, closeStore, err := rootOpts.openReportStore()
			if err != nil {
				return err
			}
			defer closeStore()

			reports, err := store.List(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list reports", err)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RUN ID\tCHAIN\tMODE\tSTATE\tATTEMPTS\tSTARTED")
			for _, r := range reports {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
					r.RunID, r.Chain, r.Mode, r.State, r.Attempts, r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
}

func newReportsShowCommand(rootOpts *RootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one stored run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "yaml" && format != "json" {
				return unknownFormat(format, ValidReportFormats)
			}
			store, closeStore, err := rootOpts.openReportStore()
			if err != nil {
				return err
			}
			defer closeStore()

			report, err := store.Load(cmd.Context(), args[0])
			if errors.Is(err, chainable.ErrReportNotFound) {
				return WrapExitError(ExitFailure, "no such run", err)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load report", err)
			}

			var data []byte
			if format == "json" {
				data, err = json.MarshalIndent(report, "", "  ")
				data = append(data, '\n')
			} else {
				data, err = yaml.Marshal(report)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode report", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format (yaml|json)")
	return cmd
}

// openReportStore opens the configured store; reports need one that
// outlives the process.
func (o *RootOptions) openReportStore() (chainable.Store, func() error, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Store.Driver == "memory" {
		return nil, nil, NewExitError(ExitCommandError, "reports need a file or sqlite store (--store, --store-path)")
	}
	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open report store", err)
	}
	return store, closeStore, nil
}
