package v1alpha1_test

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shovel-house/shovel-api/internal/handlers/v1alpha1/mappers"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

var _ = Describe("service handler", Ordered, func() {
	var a *api

	BeforeAll(func() {
		a = newAPI()
	})

	AfterAll(func() {
		a.close()
	})

	AfterEach(func() {
		a.reset()
	})

	Context("users", func() {
		It("registers and logs in a house owner", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name":     "Olive",
				"email":    "Olive@Example.com",
				"password": "snowfall123",
				"role":     "houseOwner",
				"services": []string{"driveway"},
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			user := decodeBody[mappers.User](rec)
			Expect(user.Email).To(Equal("olive@example.com"))
			Expect(rec.Body.String()).ToNot(ContainSubstring("password"))

			rec = a.do(http.MethodPost, "/api/v1/users/login", "", map[string]any{"email": "olive@example.com", "password": "snowfall123"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			session := decodeBody[mappers.Session](rec)
			Expect(session.Token).ToNot(BeEmpty())

			rec = a.do(http.MethodGet, "/api/v1/users/me", session.Token, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.User](rec).ID).To(Equal(user.ID))
		})

		It("registers a shoveller with a referral code", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name":     "Sam",
				"email":    "sam@example.com",
				"password": "snowfall123",
				"role":     "shoveller",
				"shoveller": map[string]any{
					"latitude":        45.5,
					"longitude":       -73.6,
					"payoutAccountId": "acct_sam",
				},
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			user := decodeBody[mappers.User](rec)
			Expect(user.Shoveller).ToNot(BeNil())
			Expect(user.Shoveller.ReferralCode).To(MatchRegexp(`^[0-9]{6}$`))
		})

		It("rejects a shoveller without a profile", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name": "Sam", "email": "sam@example.com", "password": "snowfall123", "role": "shoveller",
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeBody[mappers.Error](rec).Error).To(ContainSubstring("shoveller is required"))
		})

		It("rejects a house owner carrying a shoveller profile", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name": "Olive", "email": "olive@example.com", "password": "snowfall123", "role": "houseOwner",
				"services":  []string{"driveway"},
				"shoveller": map[string]any{"latitude": 1, "longitude": 1},
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("rejects an unknown role", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name": "Olive", "email": "olive@example.com", "password": "snowfall123", "role": "plowman",
			})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(decodeBody[mappers.Error](rec).Error).To(ContainSubstring("role"))
		})

		It("rejects bad credentials with 401", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/login", "", map[string]any{"email": "nobody@example.com", "password": "x"})
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a malformed body", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/login", "", "{not json")
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})
	})

	Context("account management", func() {
		register := func(email string) mappers.User {
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name":     "Olive",
				"email":    email,
				"password": "snowfall123",
				"role":     "houseOwner",
				"services": []string{"driveway"},
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			return decodeBody[mappers.User](rec)
		}

		It("resets a password through the mailed link once", func() {
			register("olive@example.com")

			rec := a.do(http.MethodPost, "/api/v1/users/forgot-password", "", map[string]any{"email": "olive@example.com"})
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			messages := a.notifier.Messages()
			Expect(messages).To(HaveLen(1))
			_, rest, found := strings.Cut(messages[0].Text, a.cfg.Service.Auth.ResetURL)
			Expect(found).To(BeTrue())
			token, _, _ := strings.Cut(rest, "\n")

			reset := map[string]any{"token": token, "password": "icestorm456"}
			Expect(a.do(http.MethodPost, "/api/v1/users/reset-password", "", reset).Code).To(Equal(http.StatusOK))
			Expect(a.do(http.MethodPost, "/api/v1/users/reset-password", "", reset).Code).To(Equal(http.StatusBadRequest))

			rec = a.do(http.MethodPost, "/api/v1/users/login", "", map[string]any{"email": "olive@example.com", "password": "icestorm456"})
			Expect(rec.Code).To(Equal(http.StatusOK))
		})

		It("answers the same for an unknown address", func() {
			rec := a.do(http.MethodPost, "/api/v1/users/forgot-password", "", map[string]any{"email": "nobody@example.com"})
			Expect(rec.Code).To(Equal(http.StatusAccepted))
			Expect(a.notifier.Messages()).To(BeEmpty())

			rec = a.do(http.MethodPost, "/api/v1/users/reset-password", "", map[string]any{"token": "abc", "password": "short"})
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("lets an admin suspend an account", func() {
			user := register("olive@example.com")
			admin := a.user(model.RoleAdmin)
			owner := a.user(model.RoleHouseOwner)
			path := "/api/v1/users/" + user.ID.String() + "/status"

			Expect(a.do(http.MethodPatch, path, a.token(owner), map[string]any{"status": "suspend"}).Code).To(Equal(http.StatusForbidden))
			Expect(a.do(http.MethodPatch, path, a.token(admin), map[string]any{"status": "banned"}).Code).To(Equal(http.StatusBadRequest))

			rec := a.do(http.MethodPatch, path, a.token(admin), map[string]any{"status": "suspend"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.User](rec).Status).To(Equal("suspend"))

			rec = a.do(http.MethodPost, "/api/v1/users/login", "", map[string]any{"email": "olive@example.com", "password": "snowfall123"})
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})
	})

	Context("auth", func() {
		It("requires a bearer token", func() {
			rec := a.do(http.MethodGet, "/api/v1/jobs/mine", "", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("rejects a forged token", func() {
			rec := a.do(http.MethodGet, "/api/v1/jobs/mine", "not-a-token", nil)
			Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		})

		It("keeps shovellers away from job creation", func() {
			worker := a.user(model.RoleShoveller)
			rec := a.do(http.MethodPost, "/api/v1/jobs", a.token(worker), jobRequest(3000))
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("keeps house owners away from the admin listing", func() {
			owner := a.user(model.RoleHouseOwner)
			rec := a.do(http.MethodGet, "/api/v1/jobs", a.token(owner), nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("serves health without a token", func() {
			rec := a.do(http.MethodGet, "/health", "", nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
		})
	})

	Context("job lifecycle", func() {
		It("runs a job from checkout to payout", func() {
			owner := a.user(model.RoleHouseOwner)
			worker := a.user(model.RoleShoveller)
			ownerToken, workerToken := a.token(owner), a.token(worker)

			rec := a.do(http.MethodPost, "/api/v1/jobs", ownerToken, jobRequest(3000))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			checkout := decodeBody[mappers.Checkout](rec)
			Expect(checkout.SessionID).ToNot(BeEmpty())
			Expect(checkout.Job.Status).To(Equal("open"))
			Expect(checkout.Job.Schedule.Period).To(Equal("AM"))
			jobPath := "/api/v1/jobs/" + checkout.Job.ID.String()

			rec = a.webhook("/webhooks/payments", paymentsSecret, checkoutEvent("evt_1", checkout.SessionID, "pi_1"))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.WebhookAck](rec).Result).To(Equal("applied"))
			Expect(a.job(checkout.Job.ID).PaymentStatus).To(Equal(model.PaymentStatusAuthorized))

			rec = a.webhook("/webhooks/payments", paymentsSecret, checkoutEvent("evt_1", checkout.SessionID, "pi_1"))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.WebhookAck](rec).Result).To(Equal("duplicate"))

			rec = a.do(http.MethodGet, "/api/v1/jobs/near?lat=45.5&lon=-73.6", workerToken, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[[]mappers.Job](rec)).To(HaveLen(1))

			rec = a.do(http.MethodPost, jobPath+"/apply", workerToken, map[string]any{"accept": true})
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = a.do(http.MethodPost, jobPath+"/apply", workerToken, map[string]any{"accept": true})
			Expect(rec.Code).To(Equal(http.StatusConflict))

			rec = a.do(http.MethodGet, jobPath+"/applicants", ownerToken, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[[]mappers.Applicant](rec)).To(HaveLen(1))

			rec = a.do(http.MethodPost, jobPath+"/decision", ownerToken, map[string]any{"workerId": worker.ID, "accept": true})
			Expect(rec.Code).To(Equal(http.StatusOK))
			decision := decodeBody[mappers.Decision](rec)
			Expect(decision.Job.Status).To(Equal("in-progress"))
			Expect(decision.Token).ToNot(BeEmpty())

			rec = a.do(http.MethodPost, jobPath+"/complete", workerToken, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))

			rec = a.do(http.MethodPost, jobPath+"/complete", ownerToken, map[string]any{"workerId": worker.ID})
			Expect(rec.Code).To(Equal(http.StatusOK))
			done := decodeBody[mappers.Job](rec)
			Expect(done.Status).To(Equal("completed"))
			Expect(done.Payment.Status).To(Equal("captured"))
			Expect(done.Assignments[0].PayoutStatus).To(Equal("paid"))
			Expect(done.Assignments[0].PayoutAmount).To(Equal(int64(2400)))

			Expect(a.ledger.Captures()).To(Equal([]string{"pi_1"}))
			Expect(a.ledger.Transfers()).To(HaveLen(1))

			rating := 5
			rec = a.do(http.MethodPost, jobPath+"/feedback", ownerToken, map[string]any{"rating": rating, "text": "spotless"})
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(*decodeBody[mappers.Job](rec).Rating).To(Equal(rating))

			rec = a.do(http.MethodPost, jobPath+"/feedback", ownerToken, map[string]any{"rating": 1})
			Expect(rec.Code).To(Equal(http.StatusConflict))
		})

		It("requires a worker id for owner-side actions", func() {
			owner := a.user(model.RoleHouseOwner)
			rec := a.do(http.MethodPost, "/api/v1/jobs", a.token(owner), jobRequest(3000))
			Expect(rec.Code).To(Equal(http.StatusCreated))
			id := decodeBody[mappers.Checkout](rec).Job.ID

			rec = a.do(http.MethodPost, "/api/v1/jobs/"+id.String()+"/complete", a.token(owner), nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("maps a failed capture to 502 and leaves the job in progress", func() {
			owner := a.user(model.RoleHouseOwner)
			worker := a.user(model.RoleShoveller)
			ownerToken, workerToken := a.token(owner), a.token(worker)

			checkout := decodeBody[mappers.Checkout](a.do(http.MethodPost, "/api/v1/jobs", ownerToken, jobRequest(3000)))
			Expect(a.webhook("/webhooks/payments", paymentsSecret, checkoutEvent("evt_2", checkout.SessionID, "pi_2")).Code).To(Equal(http.StatusOK))
			jobPath := "/api/v1/jobs/" + checkout.Job.ID.String()
			Expect(a.do(http.MethodPost, jobPath+"/apply", workerToken, map[string]any{"accept": true}).Code).To(Equal(http.StatusOK))
			Expect(a.do(http.MethodPost, jobPath+"/decision", ownerToken, map[string]any{"workerId": worker.ID, "accept": true}).Code).To(Equal(http.StatusOK))

			a.ledger.SetCaptureErr(errors.New("card declined"))
			rec := a.do(http.MethodPost, jobPath+"/complete", ownerToken, map[string]any{"workerId": worker.ID})
			Expect(rec.Code).To(Equal(http.StatusBadGateway))

			job := a.job(checkout.Job.ID)
			Expect(job.Status).To(Equal(model.JobStatusInProgress))
			Expect(job.SettlementState).To(Equal(model.SettlementNone))
		})

		It("validates job creation", func() {
			owner := a.user(model.RoleHouseOwner)
			body := jobRequest(0)
			body["paymentMethod"] = "cash"
			rec := a.do(http.MethodPost, "/api/v1/jobs", a.token(owner), body)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			msg := decodeBody[mappers.Error](rec).Error
			Expect(msg).To(ContainSubstring("amount"))
			Expect(msg).To(ContainSubstring("paymentMethod"))
		})

		It("returns 404 for an unknown job and 400 for a malformed id", func() {
			owner := a.user(model.RoleHouseOwner)
			Expect(a.do(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), a.token(owner), nil).Code).To(Equal(http.StatusNotFound))
			Expect(a.do(http.MethodGet, "/api/v1/jobs/nope", a.token(owner), nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("requires coordinates for the near search", func() {
			worker := a.user(model.RoleShoveller)
			Expect(a.do(http.MethodGet, "/api/v1/jobs/near?lat=45.5", a.token(worker), nil).Code).To(Equal(http.StatusBadRequest))
			Expect(a.do(http.MethodGet, "/api/v1/jobs/near?lat=95&lon=0", a.token(worker), nil).Code).To(Equal(http.StatusBadRequest))
		})

		It("lets an owner edit an open job", func() {
			owner := a.user(model.RoleHouseOwner)
			worker := a.user(model.RoleShoveller)
			checkout := decodeBody[mappers.Checkout](a.do(http.MethodPost, "/api/v1/jobs", a.token(owner), jobRequest(1500)))
			path := "/api/v1/jobs/" + checkout.Job.ID.String()

			rec := a.do(http.MethodPatch, path, a.token(owner), map[string]any{
				"services": []string{"roof"},
				"schedule": map[string]any{"hour": 9, "minute": 0, "period": "pm"},
			})
			Expect(rec.Code).To(Equal(http.StatusOK))
			job := decodeBody[mappers.Job](rec)
			Expect(job.Services).To(Equal([]string{"roof"}))
			Expect(job.Schedule.Period).To(Equal("PM"))
			Expect(job.Payment.Amount).To(Equal(int64(1500)))

			Expect(a.do(http.MethodPatch, path, a.token(worker), map[string]any{"services": []string{"roof"}}).Code).To(Equal(http.StatusForbidden))
			Expect(a.do(http.MethodPatch, path, a.token(owner), map[string]any{"latitude": 95.0}).Code).To(Equal(http.StatusBadRequest))
		})

		It("lets an owner withdraw an unclaimed job", func() {
			owner := a.user(model.RoleHouseOwner)
			ownerToken := a.token(owner)
			checkout := decodeBody[mappers.Checkout](a.do(http.MethodPost, "/api/v1/jobs", ownerToken, jobRequest(1500)))

			rec := a.do(http.MethodPost, "/api/v1/jobs/"+checkout.Job.ID.String()+"/withdraw", ownerToken, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.Job](rec).Status).To(Equal("canceled"))

			rec = a.do(http.MethodGet, "/api/v1/jobs/mine", ownerToken, nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[[]mappers.Job](rec)).To(HaveLen(1))
		})
	})

	Context("webhooks", func() {
		It("rejects a payload signed for the other endpoint", func() {
			rec := a.webhook("/webhooks/connect", paymentsSecret, checkoutEvent("evt_3", "cs_x", "pi_x"))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("acknowledges unknown event types", func() {
			rec := a.webhook("/webhooks/payments", paymentsSecret,
				`{"id":"evt_4","object":"event","type":"customer.created","api_version":"2023-10-16","data":{"object":{"id":"cus_1","object":"customer"}}}`)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.WebhookAck](rec).Result).To(Equal("ignored"))
		})
	})

	Context("referrals", func() {
		It("reports probation and serves a shoveller their own code only", func() {
			admin := a.user(model.RoleAdmin)
			worker := a.user(model.RoleShoveller)
			other := a.user(model.RoleShoveller)

			rec := a.do(http.MethodGet, "/api/v1/referrals/"+worker.ID.String()+"/probation", a.token(admin), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.Probation](rec).Eligible).To(BeFalse())

			rec = a.do(http.MethodGet, "/api/v1/referrals/"+worker.ID.String()+"/code", a.token(worker), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.ReferralCode](rec).Code).To(Equal(worker.Shoveller.ReferralCode))

			rec = a.do(http.MethodGet, "/api/v1/referrals/"+worker.ID.String()+"/code", a.token(other), nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("refuses to pay a bonus for a worker nobody referred", func() {
			admin := a.user(model.RoleAdmin)
			worker := a.user(model.RoleShoveller)

			rec := a.do(http.MethodPost, "/api/v1/referrals/"+worker.ID.String()+"/pay", a.token(admin), nil)
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(a.ledger.Transfers()).To(BeEmpty())
		})

		It("shows a shoveller who they referred and who referred them", func() {
			referrer := a.user(model.RoleShoveller)
			Expect(a.store.User().UpdateProfileWhere(context.TODO(), referrer.ID, nil, map[string]any{"referral_code": "424242"})).To(Succeed())
			rec := a.do(http.MethodPost, "/api/v1/users/register", "", map[string]any{
				"name":     "Sam",
				"email":    "sam@example.com",
				"password": "snowfall123",
				"role":     "shoveller",
				"shoveller": map[string]any{
					"latitude":     45.5,
					"longitude":    -73.6,
					"referralCode": "424242",
				},
			})
			Expect(rec.Code).To(Equal(http.StatusCreated))
			recruit := decodeBody[mappers.User](rec)

			rec = a.do(http.MethodGet, "/api/v1/referrals/"+referrer.ID.String()+"/referred", a.token(referrer), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			referred := decodeBody[[]mappers.User](rec)
			Expect(referred).To(HaveLen(1))
			Expect(referred[0].ID).To(Equal(recruit.ID))

			admin := a.user(model.RoleAdmin)
			rec = a.do(http.MethodGet, "/api/v1/referrals/"+recruit.ID.String()+"/referrer", a.token(admin), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[mappers.Referrer](rec).Referrer.ID).To(Equal(referrer.ID))

			rec = a.do(http.MethodGet, "/api/v1/referrals/"+recruit.ID.String()+"/referrer", a.token(referrer), nil)
			Expect(rec.Code).To(Equal(http.StatusForbidden))
		})

		It("lists nobody eligible on an empty platform", func() {
			admin := a.user(model.RoleAdmin)
			rec := a.do(http.MethodGet, "/api/v1/referrals/eligible", a.token(admin), nil)
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(decodeBody[[]mappers.User](rec)).To(BeEmpty())
		})
	})
})
