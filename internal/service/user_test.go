package service_test

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/service/mappers"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

var _ = Describe("user service", Ordered, func() {
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

	shovellerForm := func(email, referralCode string) mappers.RegisterForm {
		return mappers.RegisterForm{
			Name:     "Sam",
			Email:    email,
			Password: "s3cret-pass",
			Role:     model.RoleShoveller,
			Services: []string{"driveway"},
			Shoveller: &mappers.ShovellerForm{
				Latitude:        45.5,
				Longitude:       -73.6,
				PayoutAccountID: "acct_" + email,
				ReferralCode:    referralCode,
			},
		}
	}

	Context("register", func() {
		It("gives shovellers a numeric referral code and links their recruiter", func() {
			recruiter, err := h.users.Register(context.TODO(), shovellerForm("Recruiter@Example.com", ""))
			Expect(err).To(BeNil())
			Expect(recruiter.Email).To(Equal("recruiter@example.com"))
			Expect(recruiter.PasswordHash).NotTo(Equal("s3cret-pass"))
			Expect(recruiter.Shoveller).NotTo(BeNil())
			Expect(regexp.MustCompile(`^[0-9]{6}$`).MatchString(recruiter.Shoveller.ReferralCode)).To(BeTrue())
			Expect(recruiter.Shoveller.ReferredBy).To(BeNil())

			recruit, err := h.users.Register(context.TODO(), shovellerForm("recruit@example.com", recruiter.Shoveller.ReferralCode))
			Expect(err).To(BeNil())
			Expect(*recruit.Shoveller.ReferredBy).To(Equal(recruiter.ID))
			Expect(recruit.Shoveller.ReferralBonusStatus).To(Equal(model.ReferralBonusUnpaid))
		})

		It("rejects an unknown referral code", func() {
			_, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", "000000"))
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
		})

		It("rejects a second account with the same email", func() {
			_, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())
			_, err = h.users.Register(context.TODO(), shovellerForm("SAM@example.com", ""))
			Expect(errorAs[*service.ErrConflict](err)).To(BeTrue())
		})

		It("validates role specific fields", func() {
			_, err := h.users.Register(context.TODO(), mappers.RegisterForm{
				Name: "Olive", Email: "olive@example.com", Password: "pw", Role: model.RoleHouseOwner,
			})
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())

			_, err = h.users.Register(context.TODO(), mappers.RegisterForm{
				Name: "Sam", Email: "sam@example.com", Password: "pw", Role: model.RoleShoveller,
			})
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())

			owner, err := h.users.Register(context.TODO(), mappers.RegisterForm{
				Name: "Olive", Email: "olive@example.com", Password: "pw", Role: model.RoleHouseOwner, Services: []string{"roof"},
			})
			Expect(err).To(BeNil())
			Expect(owner.Shoveller).To(BeNil())
		})
	})

	Context("login", func() {
		It("returns a token carrying the user's claims", func() {
			registered, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())

			user, token, err := h.users.Login(context.TODO(), "Sam@example.com", "s3cret-pass")
			Expect(err).To(BeNil())
			Expect(user.ID).To(Equal(registered.ID))

			claims, err := h.tokens.Authenticate(token)
			Expect(err).To(BeNil())
			Expect(claims.ID).To(Equal(registered.ID))
			Expect(claims.Role).To(Equal(model.RoleShoveller))
		})

		It("rejects bad credentials and suspended accounts", func() {
			registered, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())

			_, _, err = h.users.Login(context.TODO(), "sam@example.com", "wrong")
			Expect(errorAs[*service.ErrUnauthorized](err)).To(BeTrue())
			_, _, err = h.users.Login(context.TODO(), "nobody@example.com", "wrong")
			Expect(errorAs[*service.ErrUnauthorized](err)).To(BeTrue())

			Expect(h.db.Exec("UPDATE users SET status = ? WHERE id = ?", model.UserStatusSuspend, registered.ID).Error).To(BeNil())
			_, _, err = h.users.Login(context.TODO(), "sam@example.com", "s3cret-pass")
			Expect(errorAs[*service.ErrForbidden](err)).To(BeTrue())
		})
	})

	Context("password reset", func() {
		lastResetToken := func() string {
			messages := h.notifier.Messages()
			Expect(messages).NotTo(BeEmpty())
			_, rest, found := strings.Cut(messages[len(messages)-1].Text, h.cfg.Service.Auth.ResetURL)
			Expect(found).To(BeTrue())
			token, _, _ := strings.Cut(rest, "\n")
			Expect(token).NotTo(BeEmpty())
			return token
		}

		It("mails a link that works once", func() {
			registered, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())

			Expect(h.users.ForgotPassword(context.TODO(), "SAM@example.com")).To(Succeed())
			messages := h.notifier.Messages()
			Expect(messages).To(HaveLen(1))
			Expect(messages[0].To).To(Equal("sam@example.com"))
			token := lastResetToken()

			stored := h.user(registered.ID)
			Expect(stored.ResetTokenHash).NotTo(BeNil())
			Expect(*stored.ResetTokenHash).NotTo(Equal(token))
			Expect(stored.ResetTokenExpiresAt).NotTo(BeNil())

			Expect(h.users.ResetPassword(context.TODO(), token, "brand-new-pass")).To(Succeed())
			_, _, err = h.users.Login(context.TODO(), "sam@example.com", "brand-new-pass")
			Expect(err).To(BeNil())
			_, _, err = h.users.Login(context.TODO(), "sam@example.com", "s3cret-pass")
			Expect(errorAs[*service.ErrUnauthorized](err)).To(BeTrue())

			stored = h.user(registered.ID)
			Expect(stored.ResetTokenHash).To(BeNil())
			Expect(stored.ResetTokenExpiresAt).To(BeNil())

			err = h.users.ResetPassword(context.TODO(), token, "another-pass")
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
		})

		It("refuses an expired token", func() {
			_, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())
			h.cfg.Service.Auth.ResetTokenLifetime = -time.Minute
			users := service.NewUserService(h.store, h.tokens, h.notifier, h.cfg)

			Expect(users.ForgotPassword(context.TODO(), "sam@example.com")).To(Succeed())
			err = users.ResetPassword(context.TODO(), lastResetToken(), "brand-new-pass")
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())

			_, _, err = users.Login(context.TODO(), "sam@example.com", "s3cret-pass")
			Expect(err).To(BeNil())
		})

		It("invalidates an earlier link when a new one is requested", func() {
			_, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())

			Expect(h.users.ForgotPassword(context.TODO(), "sam@example.com")).To(Succeed())
			first := lastResetToken()
			Expect(h.users.ForgotPassword(context.TODO(), "sam@example.com")).To(Succeed())
			second := lastResetToken()
			Expect(second).NotTo(Equal(first))

			err = h.users.ResetPassword(context.TODO(), first, "brand-new-pass")
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
			Expect(h.users.ResetPassword(context.TODO(), second, "brand-new-pass")).To(Succeed())
		})

		It("stays silent about unknown addresses and rejects short passwords", func() {
			Expect(h.users.ForgotPassword(context.TODO(), "nobody@example.com")).To(Succeed())
			Expect(h.notifier.Messages()).To(BeEmpty())

			err := h.users.ResetPassword(context.TODO(), "whatever", "short")
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
			err = h.users.ResetPassword(context.TODO(), "", "long-enough-pass")
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
		})
	})

	Context("status", func() {
		admin := service.Actor{ID: uuid.New(), Name: "admin", Role: model.RoleAdmin}

		It("blocks and restores login", func() {
			registered, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())

			updated, err := h.users.UpdateUserStatus(context.TODO(), registered.ID, model.UserStatusInactive, admin)
			Expect(err).To(BeNil())
			Expect(updated.Status).To(Equal(model.UserStatusInactive))
			_, _, err = h.users.Login(context.TODO(), "sam@example.com", "s3cret-pass")
			Expect(errorAs[*service.ErrForbidden](err)).To(BeTrue())

			_, err = h.users.UpdateUserStatus(context.TODO(), registered.ID, model.UserStatusActive, admin)
			Expect(err).To(BeNil())
			_, _, err = h.users.Login(context.TODO(), "sam@example.com", "s3cret-pass")
			Expect(err).To(BeNil())
		})

		It("is reserved to admins acting on someone else", func() {
			registered, err := h.users.Register(context.TODO(), shovellerForm("sam@example.com", ""))
			Expect(err).To(BeNil())
			self := service.Actor{ID: registered.ID, Role: model.RoleShoveller}

			_, err = h.users.UpdateUserStatus(context.TODO(), registered.ID, model.UserStatusSuspend, self)
			Expect(errorAs[*service.ErrForbidden](err)).To(BeTrue())
			_, err = h.users.UpdateUserStatus(context.TODO(), admin.ID, model.UserStatusSuspend, admin)
			Expect(errorAs[*service.ErrForbidden](err)).To(BeTrue())
			_, err = h.users.UpdateUserStatus(context.TODO(), registered.ID, "banned", admin)
			Expect(errorAs[*service.ErrValidation](err)).To(BeTrue())
			_, err = h.users.UpdateUserStatus(context.TODO(), uuid.New(), model.UserStatusSuspend, admin)
			Expect(errorAs[*service.ErrResourceNotFound](err)).To(BeTrue())

			Expect(h.user(registered.ID).Status).To(Equal(model.UserStatusActive))
		})
	})
})
