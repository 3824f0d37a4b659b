package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fortressi/chainable"
	"github.com/fortressi/chainable/config"
)

// demoActions are the steps of the order chain, in run order.
var demoActions = []string{"reserve", "charge", "ship"}

// DemoChain builds the order chain: reserve stock, charge the card, ship.
// The action at cfg.FailAt fails on every attempt. While the attempt count
// is below cfg.RetryBelow the reserve compensation asks for a retry; after
// that, or when retries are refused, it releases the stock.
func DemoChain(cfg config.ChainConfig, out io.Writer) *chainable.Builder {
	b := chainable.NewBuilder(cfg.Name)

	forward := func(step int) chainable.ForwardFunc {
		name := demoActions[step]
		return func(context.Context, chainable.Controls) error {
			if step == cfg.FailAt {
				fmt.Fprintf(out, "%s: failed\n", name)
				return fmt.Errorf("%s: service unavailable", name)
			}
			fmt.Fprintf(out, "%s: done\n", name)
			return nil
		}
	}

	b.Action(demoActions[0], forward(0), func(_ context.Context, cc chainable.CompensationContext) error {
		if cc.Attempts() < cfg.RetryBelow {
			err := cc.Retry()
			if errors.Is(err, chainable.ErrRetryRequested) {
				fmt.Fprintf(out, "reserve: retrying after attempt %d\n", cc.Attempts())
				return err
			}
			fmt.Fprintf(out, "reserve: retry refused: %v\n", err)
		}
		fmt.Fprintln(out, "reserve: released")
		return nil
	})
	b.SimpleAction(demoActions[1], forward(1), func(context.Context) error {
		fmt.Fprintln(out, "charge: refunded")
		return nil
	})
	b.Action(demoActions[2], forward(2))

	return b
}

func engineOptions(cfg *config.Config) ([]chainable.Option, error) {
	mode, err := chainable.ParseMode(cfg.Chain.Mode)
	if err != nil {
		return nil, err
	}
	return []chainable.Option{
		chainable.WithMode(mode),
		chainable.WithMaxAttempts(cfg.Chain.MaxAttempts),
	}, nil
}
