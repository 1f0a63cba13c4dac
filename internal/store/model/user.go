package model

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleShoveller  Role = "shoveller"
	RoleHouseOwner Role = "houseOwner"
)

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusInactive UserStatus = "inactive"
	UserStatusSuspend  UserStatus = "suspend"
)

type PayoutAccountStatus string

const (
	PayoutAccountEnabled    PayoutAccountStatus = "enabled"
	PayoutAccountRestricted PayoutAccountStatus = "restricted"
	PayoutAccountPending    PayoutAccountStatus = "pending"
)

// ReferralBonusStatus replaces the legacy "probation" flag. It moves
// unpaid -> in_flight -> paid, and back to unpaid only when a transfer fails.
type ReferralBonusStatus string

const (
	ReferralBonusUnpaid   ReferralBonusStatus = "unpaid"
	ReferralBonusInFlight ReferralBonusStatus = "in_flight"
	ReferralBonusPaid     ReferralBonusStatus = "paid"
)

type User struct {
	ID                  uuid.UUID  `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	CreatedAt           time.Time  `gorm:"not null;autoCreateTime"`
	UpdatedAt           time.Time  `gorm:"autoUpdateTime"`
	Name                string     `gorm:"not null;type:VARCHAR(255)"`
	Email               string     `gorm:"not null;type:VARCHAR(255);uniqueIndex:users_email_idx"`
	PasswordHash        string     `gorm:"not null"`
	Role                Role       `gorm:"not null;type:VARCHAR(32)"`
	Status              UserStatus `gorm:"not null;type:VARCHAR(32)"`
	Services            *JSONField[[]string]
	// ResetTokenHash is the sha256 of the outstanding password reset token.
	ResetTokenHash      *string `gorm:"type:VARCHAR(64);index:users_reset_token_hash_idx"`
	ResetTokenExpiresAt *time.Time
	Shoveller           *ShovellerProfile `gorm:"foreignKey:UserID;references:ID;constraint:OnDelete:CASCADE;"`
}

type UserList []User

// ShovellerProfile carries the fields that only exist for the shoveller role.
type ShovellerProfile struct {
	UserID                 uuid.UUID           `gorm:"primaryKey;type:VARCHAR(255);"`
	CreatedAt              time.Time           `gorm:"not null;autoCreateTime"`
	UpdatedAt              time.Time           `gorm:"autoUpdateTime"`
	Latitude               float64             `gorm:"not null"`
	Longitude              float64             `gorm:"not null"`
	PayoutAccountID        *string             `gorm:"type:VARCHAR(255);uniqueIndex:shoveller_profiles_payout_account_id_idx"`
	PayoutAccountStatus    PayoutAccountStatus `gorm:"not null;type:VARCHAR(32);default:pending"`
	ChargesEnabled         bool                `gorm:"not null;default:false"`
	PayoutAccountReason    string
	ReferralCode           string              `gorm:"not null;type:VARCHAR(16);uniqueIndex:shoveller_profiles_referral_code_idx"`
	ReferredBy             *uuid.UUID          `gorm:"type:VARCHAR(255);index:shoveller_profiles_referred_by_idx"`
	ReferralBonusStatus    ReferralBonusStatus `gorm:"not null;type:VARCHAR(32);default:unpaid"`
	ReferralBonusClaimedAt *time.Time
	ReferralBonusReference *string `gorm:"type:VARCHAR(255)"`
	JobCount               int64   `gorm:"not null;default:0"`
}

// ReferralBonusPaid reports whether the one-time referral bonus went out.
func (p ShovellerProfile) ReferralBonusPaid() bool {
	return p.ReferralBonusStatus == ReferralBonusPaid
}

func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusSuspend:
		return true
	}
	return false
}

func (u User) IsShoveller() bool {
	return u.Role == RoleShoveller && u.Shoveller != nil
}
