package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	apiserver "github.com/shovel-house/shovel-api/internal/api_server"
	handlers "github.com/shovel-house/shovel-api/internal/handlers/v1alpha1"
	"github.com/shovel-house/shovel-api/internal/reconciler"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the shovel api, its metrics server and the settlement sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, teardown, err := setup()
		if err != nil {
			return err
		}
		defer teardown()

		zap.S().Info("Starting API service")
		defer zap.S().Info("API service stopped")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
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

		apiListener, err := newListener(cfg.Service.Address)
		if err != nil {
			zap.S().Fatalw("creating listener", "error", err)
		}
		metricsListener, err := newListener(cfg.Service.MetricsAddress)
		if err != nil {
			zap.S().Fatalw("creating metrics listener", "error", err)
		}

		handler := handlers.NewServiceHandler(c.jobs, c.users, c.referral, c.webhooks)
		sweeper := reconciler.New(c.settlement, c.locker, cfg.Settlement.SweepInterval)

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			defer cancel()
			return apiserver.New(cfg, handler, c.tokens, apiListener).Run(gctx)
		})
		g.Go(func() error {
			defer cancel()
			return apiserver.NewMetricServer(cfg.Service.MetricsAddress, metricsListener, c.store).Run(gctx)
		})
		g.Go(func() error {
			return sweeper.Run(gctx)
		})

		if err := g.Wait(); err != nil && ctx.Err() == nil {
			zap.S().Errorw("service stopped with error", "error", err)
			return err
		}
		return nil
	},
}

func newListener(address string) (net.Listener, error) {
	if address == "" {
		address = "localhost:0"
	}
	return net.Listen("tcp", address)
}
