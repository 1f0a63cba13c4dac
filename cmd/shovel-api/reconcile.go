package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shovel-house/shovel-api/internal/reconciler"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

type ReconcileOptions struct {
	Loop     bool
	Interval time.Duration
}

func DefaultReconcileOptions() *ReconcileOptions {
	return &ReconcileOptions{}
}

func (o *ReconcileOptions) Bind(fs *pflag.FlagSet) {
	fs.BoolVar(&o.Loop, "loop", o.Loop, "Keep sweeping until interrupted instead of running a single sweep")
	fs.DurationVar(&o.Interval, "interval", o.Interval, "Sweep interval when looping (defaults to the configured sweep interval)")
}

var reconcileOpts = DefaultReconcileOptions()

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Run the settlement sweep: resume captures, retry payouts and pay due referral bonuses",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return err
		}
		defer teardown()

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		c, err := newComponents(ctx, cfg)
		if err != nil {
			zap.S().Fatalw("initializing components", "error", err)
		}
		defer func() {
			if err := c.Close(); err != nil {
				zap.S().Errorw("closing components", "error", err)
			}
		}()

		interval := cfg.Settlement.SweepInterval
		if reconcileOpts.Interval > 0 {
			interval = reconcileOpts.Interval
		}
		r := reconciler.New(c.settlement, c.locker, interval)

		if reconcileOpts.Loop {
			return r.Run(ctx)
		}

		ran, err := r.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !ran {
			zap.S().Info("another replica holds the sweep lease, nothing to do")
		}
		return nil
	},
}

func init() {
	reconcileOpts.Bind(reconcileCmd.Flags())
}
