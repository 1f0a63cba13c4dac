package service_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shovel-house/shovel-api/internal/events"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

var _ = Describe("referral service", Ordered, func() {
	var h *harness

	BeforeAll(func() {
		h = newHarness()
	})

	AfterAll(func() {
		h.close()
	})

	AfterEach(func() {
		h.clean()
	})

	setJobCount := func(userID uuid.UUID, count int64) {
		Expect(h.store.User().UpdateProfileWhere(context.TODO(), userID, nil, map[string]any{"job_count": count})).To(BeNil())
	}

	Context("probation", func() {
		It("is due once the threshold is reached and until the bonus is paid", func() {
			referrer, _ := h.shoveller(nil)
			worker, _ := h.shoveller(&referrer.ID)

			due, err := h.referral.CheckProbation(context.TODO(), worker.ID)
			Expect(err).To(BeNil())
			Expect(due).To(BeFalse())

			setJobCount(worker.ID, 10)
			due, err = h.referral.CheckProbation(context.TODO(), worker.ID)
			Expect(err).To(BeNil())
			Expect(due).To(BeTrue())

			Expect(h.referral.PayReferralBonus(context.TODO(), worker.ID)).To(Succeed())
			due, err = h.referral.CheckProbation(context.TODO(), worker.ID)
			Expect(err).To(BeNil())
			Expect(due).To(BeFalse())
		})

		It("rejects users that are not shovellers", func() {
			owner, _ := h.owner()
			_, err := h.referral.CheckProbation(context.TODO(), owner.ID)
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
		})
	})

	Context("bonus", func() {
		It("pays the referrer once and notifies them", func() {
			referrer, _ := h.shoveller(nil)
			worker, _ := h.shoveller(&referrer.ID)
			setJobCount(worker.ID, 10)

			Expect(h.referral.PayReferralBonus(context.TODO(), worker.ID)).To(Succeed())
			Expect(h.referral.PayReferralBonus(context.TODO(), worker.ID)).To(Succeed())

			transfers := h.ledger.Transfers()
			Expect(transfers).To(HaveLen(1))
			Expect(transfers[0].Amount).To(Equal(int64(1000)))
			Expect(transfers[0].DestinationAccount).To(Equal(*referrer.Shoveller.PayoutAccountID))
			Expect(transfers[0].IdempotencyKey).To(Equal(ledger.ReferralBonusKey(worker.ID)))

			profile := h.user(worker.ID).Shoveller
			Expect(profile.ReferralBonusPaid()).To(BeTrue())
			Expect(profile.ReferralBonusReference).NotTo(BeNil())

			messages := h.notifier.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].To).To(Equal(referrer.Email))
			Expect(h.events.Kinds()).To(ContainElement(events.ReferralBonusPaid))
		})

		It("transfers exactly once under concurrent calls", func() {
			referrer, _ := h.shoveller(nil)
			worker, _ := h.shoveller(&referrer.ID)
			setJobCount(worker.ID, 12)
			h.ledger.Delay = 20 * time.Millisecond

			var wg sync.WaitGroup
			for i := 0; i < 6; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					_ = h.referral.PayReferralBonus(context.TODO(), worker.ID)
				}()
			}
			wg.Wait()

			Expect(h.ledger.Transfers()).To(HaveLen(1))
			Expect(h.user(worker.ID).Shoveller.ReferralBonusStatus).To(Equal(model.ReferralBonusPaid))
		})

		It("leaves the bonus unpaid when the transfer fails", func() {
			referrer, _ := h.shoveller(nil)
			worker, _ := h.shoveller(&referrer.ID)
			setJobCount(worker.ID, 10)
			h.ledger.SetTransferErr(errors.New("destination restricted"))

			err := h.referral.PayReferralBonus(context.TODO(), worker.ID)
			Expect(errorAs[*service.ErrGateway](err)).To(BeTrue())
			Expect(h.user(worker.ID).Shoveller.ReferralBonusStatus).To(Equal(model.ReferralBonusUnpaid))
			Expect(h.notifier.Messages()).To(BeEmpty())

			h.ledger.SetTransferErr(nil)
			Expect(h.referral.PayReferralBonus(context.TODO(), worker.ID)).To(Succeed())
			Expect(h.user(worker.ID).Shoveller.ReferralBonusPaid()).To(BeTrue())
		})

		It("checks its preconditions before calling the gateway", func() {
			referrer, _ := h.shoveller(nil)
			unreferred, _ := h.shoveller(nil)
			worker, _ := h.shoveller(&referrer.ID)
			setJobCount(unreferred.ID, 10)

			err := h.referral.PayReferralBonus(context.TODO(), unreferred.ID)
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())

			setJobCount(worker.ID, 9)
			err = h.referral.PayReferralBonus(context.TODO(), worker.ID)
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())

			setJobCount(worker.ID, 10)
			Expect(h.store.User().UpdateProfileWhere(context.TODO(), referrer.ID, nil, map[string]any{"charges_enabled": false})).To(BeNil())
			err = h.referral.PayReferralBonus(context.TODO(), worker.ID)
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())

			Expect(h.ledger.Transfers()).To(BeEmpty())
		})

		It("is paid automatically by the payout that crosses the threshold", func() {
			referrer, _ := h.shoveller(nil)
			worker, _ := h.shoveller(&referrer.ID)
			setJobCount(worker.ID, 9)
			owner, ownerActor := h.owner()
			job := h.acceptedJob(owner, ownerActor, worker, 3000)

			_, err := h.jobs.MarkCompleted(context.TODO(), job.ID, worker.ID, ownerActor)
			Expect(err).To(BeNil())

			transfers := h.ledger.Transfers()
			Expect(transfers).To(HaveLen(2))
			Expect(transfers[1].IdempotencyKey).To(Equal(ledger.ReferralBonusKey(worker.ID)))
			Expect(h.user(worker.ID).Shoveller.JobCount).To(Equal(int64(10)))
			Expect(h.user(worker.ID).Shoveller.ReferralBonusPaid()).To(BeTrue())
		})
	})

	Context("admin surface", func() {
		It("lists eligible workers and returns referral codes", func() {
			referrer, _ := h.shoveller(nil)
			due, _ := h.shoveller(&referrer.ID)
			notYet, _ := h.shoveller(&referrer.ID)
			setJobCount(due.ID, 10)
			setJobCount(notYet.ID, 3)

			eligible, err := h.referral.ListEligible(context.TODO())
			Expect(err).To(BeNil())
			Expect(eligible).To(HaveLen(1))
			Expect(eligible[0].ID).To(Equal(due.ID))

			code, err := h.referral.GetReferralCode(context.TODO(), referrer.ID)
			Expect(err).To(BeNil())
			Expect(code).To(Equal(referrer.Shoveller.ReferralCode))

			count, err := h.referral.Sweep(context.TODO())
			Expect(err).To(BeNil())
			Expect(count).To(Equal(1))
			Expect(h.user(due.ID).Shoveller.ReferralBonusPaid()).To(BeTrue())
		})

		It("lists who a shoveller referred and who referred them", func() {
			referrer, _ := h.shoveller(nil)
			first, _ := h.shoveller(&referrer.ID)
			second, _ := h.shoveller(&referrer.ID)
			_, _ = h.shoveller(nil)

			referred, err := h.referral.ListReferredBy(context.TODO(), referrer.ID)
			Expect(err).To(BeNil())
			ids := []uuid.UUID{}
			for _, u := range referred {
				ids = append(ids, u.ID)
			}
			Expect(ids).To(ConsistOf(first.ID, second.ID))

			none, err := h.referral.ListReferredBy(context.TODO(), first.ID)
			Expect(err).To(BeNil())
			Expect(none).To(BeEmpty())

			by, err := h.referral.GetReferrer(context.TODO(), first.ID)
			Expect(err).To(BeNil())
			Expect(by.ID).To(Equal(referrer.ID))

			by, err = h.referral.GetReferrer(context.TODO(), referrer.ID)
			Expect(err).To(BeNil())
			Expect(by).To(BeNil())

			owner, _ := h.owner()
			_, err = h.referral.ListReferredBy(context.TODO(), owner.ID)
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
			_, err = h.referral.ListReferredBy(context.TODO(), uuid.New())
			Expect(errorAs[*service.ErrResourceNotFound](err)).To(BeTrue())
		})
	})
})
