package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type User interface {
	Create(ctx context.Context, user model.User) (*model.User, error)
	Get(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByReferralCode(ctx context.Context, code string) (*model.User, error)
	GetByPayoutAccount(ctx context.Context, accountID string) (*model.User, error)
	GetByResetToken(ctx context.Context, tokenHash string) (*model.User, error)
	List(ctx context.Context, filter *UserQueryFilter) (model.UserList, error)
	UpdateWhere(ctx context.Context, userID uuid.UUID, where *UserPredicate, updates map[string]any) error
	UpdateProfileWhere(ctx context.Context, userID uuid.UUID, where *ProfilePredicate, updates map[string]any) error
	IncrementJobCount(ctx context.Context, userID uuid.UUID) error
}

type UserStore struct {
	db *gorm.DB
}

// Make sure we conform to User interface
var _ User = (*UserStore)(nil)

func NewUserStore(db *gorm.DB) User {
	return &UserStore{db: db}
}

// Create inserts the user and, for shovellers, its profile. Both inserts
// share the caller's transaction when ctx carries one.
func (u *UserStore) Create(ctx context.Context, user model.User) (*model.User, error) {
	profile := user.Shoveller
	user.Shoveller = nil

	db := u.getDB(ctx)
	if err := db.Omit(clause.Associations).Create(&user).Error; err != nil {
		if isDuplicateKey(err) {
			return nil, ErrDuplicateKey
		}
		return nil, err
	}

	if profile != nil {
		profile.UserID = user.ID
		if err := db.Create(profile).Error; err != nil {
			if isDuplicateKey(err) {
				return nil, ErrDuplicateKey
			}
			return nil, err
		}
	}

	return u.Get(ctx, user.ID)
}

func (u *UserStore) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return u.first(ctx, u.getDB(ctx).Where("users.id = ?", id))
}

func (u *UserStore) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return u.first(ctx, u.getDB(ctx).Where("users.email = ?", email))
}

func (u *UserStore) GetByReferralCode(ctx context.Context, code string) (*model.User, error) {
	return u.first(ctx, u.getDB(ctx).
		Where("users.id IN (SELECT user_id FROM shoveller_profiles WHERE referral_code = ?)", code))
}

func (u *UserStore) GetByPayoutAccount(ctx context.Context, accountID string) (*model.User, error) {
	return u.first(ctx, u.getDB(ctx).
		Where("users.id IN (SELECT user_id FROM shoveller_profiles WHERE payout_account_id = ?)", accountID))
}

func (u *UserStore) GetByResetToken(ctx context.Context, tokenHash string) (*model.User, error) {
	return u.first(ctx, u.getDB(ctx).Where("users.reset_token_hash = ?", tokenHash))
}

func (u *UserStore) first(_ context.Context, tx *gorm.DB) (*model.User, error) {
	var user model.User
	result := tx.Preload("Shoveller").First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

func (u *UserStore) List(ctx context.Context, filter *UserQueryFilter) (model.UserList, error) {
	var users model.UserList
	tx := u.getDB(ctx).Model(&users).Preload("Shoveller").Order("users.created_at ASC")

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateWhere updates the user row only when where still holds.
func (u *UserStore) UpdateWhere(ctx context.Context, userID uuid.UUID, where *UserPredicate, updates map[string]any) error {
	tx := u.getDB(ctx).Model(&model.User{}).Where("id = ?", userID)
	if where != nil {
		for _, fn := range where.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (u *UserStore) UpdateProfileWhere(ctx context.Context, userID uuid.UUID, where *ProfilePredicate, updates map[string]any) error {
	tx := u.getDB(ctx).Model(&model.ShovellerProfile{}).Where("user_id = ?", userID)
	if where != nil {
		for _, fn := range where.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (u *UserStore) IncrementJobCount(ctx context.Context, userID uuid.UUID) error {
	return u.UpdateProfileWhere(ctx, userID, nil, map[string]any{
		"job_count": gorm.Expr("job_count + 1"),
	})
}

func (u *UserStore) getDB(ctx context.Context) *gorm.DB {
	return getDB(ctx, u.db)
}
