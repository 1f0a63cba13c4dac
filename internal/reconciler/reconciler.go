// Package reconciler periodically re-drives settlements that did not
// finish: stale captures, failed or unconfirmed payouts and due referral
// bonuses. Only one replica sweeps at a time.
package reconciler

import (
	"context"
	"time"

	"github.com/lthibault/jitterbug/v2"
	"github.com/shovel-house/shovel-api/internal/lock"
	"github.com/shovel-house/shovel-api/internal/service"
	"go.uber.org/zap"
)

const lockKey = "settlement-sweep"

type Sweeper interface {
	Sweep(ctx context.Context) (service.SweepReport, error)
}

type Reconciler struct {
	sweeper  Sweeper
	locker   lock.Locker
	interval time.Duration
	lease    time.Duration
	log      *zap.SugaredLogger
}

func New(sweeper Sweeper, locker lock.Locker, interval time.Duration) *Reconciler {
	return &Reconciler{
		sweeper:  sweeper,
		locker:   locker,
		interval: interval,
		lease:    interval,
		log:      zap.S().Named("reconciler"),
	}
}

// RunOnce sweeps if no other replica holds the lease. It reports whether
// a sweep ran.
func (r *Reconciler) RunOnce(ctx context.Context) (bool, error) {
	token, acquired, err := r.locker.Acquire(ctx, lockKey, r.lease)
	if err != nil {
		return false, err
	}
	if !acquired {
		r.log.Debug("sweep lease held elsewhere, skipping")
		return false, nil
	}
	defer func() {
		if err := r.locker.Release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			r.log.Warnw("failed to release sweep lease", "error", err)
		}
	}()

	sweepCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go r.keepAlive(sweepCtx, cancel, token)

	report, err := r.sweeper.Sweep(sweepCtx)
	r.log.Infow("sweep finished",
		"captures", report.Captures,
		"payouts", report.Payouts,
		"bonuses", report.Bonuses,
		"error", err)
	return true, err
}

// keepAlive refreshes the lease while a sweep runs and stops the sweep if
// the lease is lost.
func (r *Reconciler) keepAlive(ctx context.Context, cancel context.CancelFunc, token string) {
	ticker := time.NewTicker(r.lease / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := r.locker.Refresh(ctx, lockKey, token, r.lease); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log.Errorw("lost sweep lease", "error", err)
			cancel()
			return
		}
	}
}

// Run sweeps on a jittered interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := jitterbug.New(r.interval, &jitterbug.Norm{Stdev: r.interval / 20, Mean: 0})
	defer ticker.Stop()

	r.log.Infow("reconciler started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler stopped")
			return nil
		case <-ticker.C:
		}

		if _, err := r.RunOnce(ctx); err != nil {
			r.log.Errorw("sweep failed", "error", err)
		}
	}
}
