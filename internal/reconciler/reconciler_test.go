package reconciler_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shovel-house/shovel-api/internal/lock"
	"github.com/shovel-house/shovel-api/internal/reconciler"
	"github.com/shovel-house/shovel-api/internal/service"
)

type countingSweeper struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (c *countingSweeper) Sweep(ctx context.Context) (service.SweepReport, error) {
	c.calls.Add(1)
	select {
	case <-time.After(c.delay):
	case <-ctx.Done():
		return service.SweepReport{}, ctx.Err()
	}
	return service.SweepReport{Payouts: 1}, c.err
}

var _ = Describe("reconciler", func() {
	It("lets a single replica sweep at a time", func() {
		sweeper := &countingSweeper{delay: 50 * time.Millisecond}
		locker := lock.NewMemoryLocker()
		first := reconciler.New(sweeper, locker, time.Second)
		second := reconciler.New(sweeper, locker, time.Second)

		var (
			wg  sync.WaitGroup
			ran atomic.Int32
		)
		for _, r := range []*reconciler.Reconciler{first, second} {
			wg.Add(1)
			go func(r *reconciler.Reconciler) {
				defer GinkgoRecover()
				defer wg.Done()
				ok, err := r.RunOnce(context.TODO())
				Expect(err).To(BeNil())
				if ok {
					ran.Add(1)
				}
			}(r)
		}
		wg.Wait()

		Expect(ran.Load()).To(Equal(int32(1)))
		Expect(sweeper.calls.Load()).To(Equal(int32(1)))
	})

	It("releases the lease after a sweep", func() {
		sweeper := &countingSweeper{err: errors.New("payout failed")}
		locker := lock.NewMemoryLocker()
		r := reconciler.New(sweeper, locker, time.Second)

		ok, err := r.RunOnce(context.TODO())
		Expect(ok).To(BeTrue())
		Expect(err).To(MatchError("payout failed"))

		ok, err = r.RunOnce(context.TODO())
		Expect(ok).To(BeTrue())
		Expect(err).NotTo(BeNil())
		Expect(sweeper.calls.Load()).To(Equal(int32(2)))
	})

	It("sweeps periodically until stopped", func() {
		sweeper := &countingSweeper{}
		r := reconciler.New(sweeper, lock.NewMemoryLocker(), 20*time.Millisecond)

		ctx, cancel := context.WithCancel(context.TODO())
		done := make(chan error, 1)
		go func() {
			done <- r.Run(ctx)
		}()

		Eventually(sweeper.calls.Load).WithTimeout(2 * time.Second).Should(BeNumerically(">=", 2))
		cancel()
		Eventually(done).WithTimeout(time.Second).Should(Receive(BeNil()))
	})
})
