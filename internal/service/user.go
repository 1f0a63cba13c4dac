package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/shovel-house/shovel-api/internal/config"
	"github.com/shovel-house/shovel-api/internal/notification"
	"github.com/shovel-house/shovel-api/internal/service/mappers"
	"github.com/shovel-house/shovel-api/internal/store"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
	"golang.org/x/crypto/bcrypt"
)

const (
	referralCodeAlphabet = "0123456789"
	referralCodeSize     = 6
	referralCodeAttempts = 5
	resetTokenSize       = 32
	minPasswordLength    = 8
)

type UserService struct {
	store    store.Store
	tokens   TokenIssuer
	notifier notification.Notifier
	auth     config.Auth
	logger   *log.StructuredLogger
	now      func() time.Time
}

func NewUserService(s store.Store, tokens TokenIssuer, n notification.Notifier, cfg *config.Config) *UserService {
	return &UserService{
		store:    s,
		tokens:   tokens,
		notifier: n,
		auth:     cfg.Service.Auth,
		logger:   log.NewDebugLogger("user_service"),
		now:      time.Now,
	}
}

// Register creates a user. Shovellers get a fresh numeric referral code and,
// when they signed up with someone else's code, a permanent referredBy.
func (u *UserService) Register(ctx context.Context, form mappers.RegisterForm) (*model.User, error) {
	tracer := u.logger.WithContext(ctx).
		Operation("register_user").
		WithString("role", string(form.Role)).
		Build()

	if err := validateRegistration(form); err != nil {
		return nil, err
	}

	email := mappers.NormalizeEmail(form.Email)
	if _, err := u.store.User().GetByEmail(ctx, email); err == nil {
		return nil, NewErrConflict("email %s is already registered", email)
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(form.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	var referredBy *uuid.UUID
	if form.Shoveller != nil && form.Shoveller.ReferralCode != "" {
		referrer, err := u.store.User().GetByReferralCode(ctx, strings.TrimSpace(form.Shoveller.ReferralCode))
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrValidation("unknown referral code %q", form.Shoveller.ReferralCode)
		}
		if err != nil {
			return nil, err
		}
		referredBy = &referrer.ID
	}

	for attempt := 1; attempt <= referralCodeAttempts; attempt++ {
		user := form.ToUser(uuid.New(), string(hash))
		if form.Role == model.RoleShoveller {
			code, err := gonanoid.Generate(referralCodeAlphabet, referralCodeSize)
			if err != nil {
				return nil, err
			}
			user.Shoveller = form.Shoveller.ToProfile(code, referredBy)
		}

		created, err := u.create(ctx, user)
		if errors.Is(err, store.ErrDuplicateKey) {
			// either the email raced another registration or the code collided
			if _, gerr := u.store.User().GetByEmail(ctx, email); gerr == nil {
				return nil, NewErrConflict("email %s is already registered", email)
			}
			tracer.Step("referral_code_collision").WithInt("attempt", attempt).Log()
			continue
		}
		if err != nil {
			tracer.Error(err).Log()
			return nil, err
		}

		tracer.Success().WithUUID("user_id", created.ID).Log()
		return created, nil
	}

	return nil, NewErrConflict("could not allocate a unique referral code")
}

func (u *UserService) create(ctx context.Context, user model.User) (*model.User, error) {
	txCtx, err := u.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	created, err := u.store.User().Create(txCtx, user)
	if err != nil {
		return nil, err
	}
	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}
	return created, nil
}

func validateRegistration(form mappers.RegisterForm) error {
	if strings.TrimSpace(form.Name) == "" || strings.TrimSpace(form.Email) == "" || form.Password == "" {
		return NewErrValidation("name, email and password are required")
	}
	switch form.Role {
	case model.RoleShoveller:
		if form.Shoveller == nil {
			return NewErrValidation("shoveller registration requires a location")
		}
	case model.RoleHouseOwner:
		if len(form.Services) == 0 {
			return NewErrValidation("house owner registration requires at least one service")
		}
		if form.Shoveller != nil {
			return NewErrValidation("house owners cannot register a shoveller profile")
		}
	case model.RoleAdmin:
	default:
		return NewErrValidation("unknown role %q", form.Role)
	}
	return nil
}

// Login checks the credentials and returns a signed token for the user.
func (u *UserService) Login(ctx context.Context, email, password string) (*model.User, string, error) {
	tracer := u.logger.WithContext(ctx).Operation("login").Build()

	user, err := u.store.User().GetByEmail(ctx, mappers.NormalizeEmail(email))
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil, "", NewErrInvalidCredentials()
	}
	if err != nil {
		return nil, "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		tracer.Error(err).WithUUID("user_id", user.ID).Log()
		return nil, "", NewErrInvalidCredentials()
	}
	if user.Status != model.UserStatusActive {
		return nil, "", NewErrForbidden("account is %s", user.Status)
	}

	token, err := u.tokens.Issue(user.ID, user.Name, user.Role)
	if err != nil {
		return nil, "", err
	}

	tracer.Success().WithUUID("user_id", user.ID).Log()
	return user, token, nil
}

func (u *UserService) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return getUser(ctx, u.store, id)
}

// ForgotPassword mails a single-use reset link. Only the token's hash is
// stored. An unknown email is not reported to the caller.
func (u *UserService) ForgotPassword(ctx context.Context, email string) error {
	tracer := u.logger.WithContext(ctx).Operation("forgot_password").Build()

	user, err := u.store.User().GetByEmail(ctx, mappers.NormalizeEmail(email))
	if errors.Is(err, store.ErrRecordNotFound) {
		tracer.Step("unknown_email").Log()
		return nil
	}
	if err != nil {
		return err
	}

	token, err := gonanoid.New(resetTokenSize)
	if err != nil {
		return err
	}
	err = u.store.User().UpdateWhere(ctx, user.ID, nil, map[string]any{
		"reset_token_hash":       hashResetToken(token),
		"reset_token_expires_at": u.now().Add(u.auth.ResetTokenLifetime),
	})
	if err != nil {
		tracer.Error(err).WithUUID("user_id", user.ID).Log()
		return err
	}

	u.notifier.Notify(ctx, notification.PasswordReset(user.Email, user.Name, u.auth.ResetURL+token, u.auth.ResetTokenLifetime))
	tracer.Success().WithUUID("user_id", user.ID).Log()
	return nil
}

// ResetPassword sets a new password with a reset token. The token is
// cleared in the same conditional update, so it works once.
func (u *UserService) ResetPassword(ctx context.Context, token, password string) error {
	tracer := u.logger.WithContext(ctx).Operation("reset_password").Build()

	if len(password) < minPasswordLength {
		return NewErrValidation("password must be at least %d characters", minPasswordLength)
	}
	invalid := NewErrValidation("reset token is invalid or expired")
	if token == "" {
		return invalid
	}

	hash := hashResetToken(token)
	user, err := u.store.User().GetByResetToken(ctx, hash)
	if errors.Is(err, store.ErrRecordNotFound) {
		return invalid
	}
	if err != nil {
		return err
	}

	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	err = u.store.User().UpdateWhere(ctx, user.ID,
		store.NewUserPredicate().WithResetToken(hash, u.now()),
		map[string]any{
			"password_hash":          string(passwordHash),
			"reset_token_hash":       nil,
			"reset_token_expires_at": nil,
		})
	if errors.Is(err, store.ErrConditionFailed) {
		tracer.Step("token_rejected").WithUUID("user_id", user.ID).Log()
		return invalid
	}
	if err != nil {
		tracer.Error(err).WithUUID("user_id", user.ID).Log()
		return err
	}

	tracer.Success().WithUUID("user_id", user.ID).Log()
	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// UpdateUserStatus lets an admin change an account status.
// Login is refused for anything but active.
func (u *UserService) UpdateUserStatus(ctx context.Context, userID uuid.UUID, status model.UserStatus, actor Actor) (*model.User, error) {
	tracer := u.logger.WithContext(ctx).
		Operation("update_user_status").
		WithUUID("user_id", userID).
		WithString("status", string(status)).
		Build()

	if !actor.IsAdmin() {
		return nil, NewErrForbidden("only admins can change a user's status")
	}
	if !status.Valid() {
		return nil, NewErrValidation("unknown user status %q", status)
	}
	if actor.ID == userID {
		return nil, NewErrForbidden("admins cannot change their own status")
	}

	err := u.store.User().UpdateWhere(ctx, userID, nil, map[string]any{"status": status})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, NewErrUserNotFound(userID)
	}
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	tracer.Success().Log()
	return getUser(ctx, u.store, userID)
}
