package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fortressi/chainable"
	"github.com/fortressi/chainable/logger"
	"github.com/fortressi/chainable/metrics"
	"github.com/fortressi/chainable/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Mode       string
	FailAt     int
	RetryBelow int
	Metrics    bool
	Journal    bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the demo order chain",
		Long: `Run the reserve -> charge -> ship demo chain.

The action at --fail-at fails on every attempt. The reserve compensation
asks for a retry while the attempt count is below --retry-below, so with the
defaults the chain runs three times before rolling all the way back.

Example:
  chainrun run
  chainrun run --mode simple --fail-at 1
  chainrun run --store sqlite --store-path ./runs.db --metrics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChain(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Mode, "mode", "", "engine mode (resumable|simple)")
	cmd.Flags().IntVar(&opts.FailAt, "fail-at", 0, "index of the failing action, -1 for none")
	cmd.Flags().IntVar(&opts.RetryBelow, "retry-below", 0, "retry while attempts are below this")
	cmd.Flags().BoolVar(&opts.Metrics, "metrics", false, "print Prometheus metrics after the run")
	cmd.Flags().BoolVar(&opts.Journal, "journal", true, "print the run journal")

	return cmd
}

func runChain(cmd *cobra.Command, opts *RunOptions) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Chain.Mode = opts.Mode
	}
	if flags.Changed("fail-at") {
		cfg.Chain.FailAt = opts.FailAt
	}
	if flags.Changed("retry-below") {
		cfg.Chain.RetryBelow = opts.RetryBelow
	}
	if flags.Changed("metrics") {
		cfg.Metrics.Enable = opts.Metrics
	}

	out := cmd.OutOrStdout()
	log, closeLog, err := logger.New(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure logging", err)
	}
	defer closeLog.Close()

	engineOpts, err := engineOptions(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid chain config", err)
	}
	engineOpts = append(engineOpts, chainable.WithLogger(log))

	store, closeStore, err := openStore(cfg.Store)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open report store", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Error("error closing report store", "error", err)
		}
	}()
	engineOpts = append(engineOpts, chainable.WithStore(store))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var reg *prometheus.Registry
	if cfg.Metrics.Enable {
		reg = prometheus.NewRegistry()
		obs, err := metrics.NewObserver(reg)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to register metrics", err)
		}
		engineOpts = append(engineOpts, chainable.WithObserver(obs))
	}

	if cfg.Tracing.Enable {
		tp, err := tracing.InitProvider(ctx, tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to initialise tracing", err)
		}
		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				log.Error("error flushing traces", "error", err)
			}
		}()
		engineOpts = append(engineOpts, chainable.WithObserver(tracing.NewObserver(tp)))
	}

	engine, err := DemoChain(cfg.Chain, out).Build(engineOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build chain", err)
	}

	res := engine.Run(ctx)
	fmt.Fprintf(out, "\nchain %s (%s): %s after %d attempt(s)\n", res.Chain, res.Mode, res, res.Attempts)
	fmt.Fprintf(out, "run id: %s\n", res.RunID)
	if opts.Journal {
		fmt.Fprintf(out, "\n%s", res.Journal)
	}
	if reg != nil {
		fmt.Fprintln(out)
		if err := metrics.WriteText(out, reg); err != nil {
			return WrapExitError(ExitCommandError, "failed to write metrics", err)
		}
	}

	switch res.State {
	case chainable.StateFailed:
		return WrapExitError(ExitFailure, "chain failed", res.Err())
	case chainable.StatePaused:
		return WrapExitError(ExitPaused, "chain paused", chainable.ErrPaused)
	}
	return nil
}
