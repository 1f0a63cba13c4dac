package store

import (
	"github.com/shovel-house/shovel-api/internal/store/model"
	"gorm.io/gorm"
)

type groupCount struct {
	Name  string
	Total int
}

func statistics(db *gorm.DB) (model.Stats, error) {
	stats := model.Stats{
		JobsByStatus:    map[string]int{},
		PayoutsByStatus: map[string]int{},
	}

	var jobs []groupCount
	if err := db.Raw("SELECT status AS name, COUNT(*) AS total FROM jobs GROUP BY status").Scan(&jobs).Error; err != nil {
		return stats, err
	}
	for _, g := range jobs {
		stats.JobsByStatus[g.Name] = g.Total
	}

	// only winning assignments carry a payout
	var payouts []groupCount
	if err := db.Raw("SELECT payout_status AS name, COUNT(*) AS total FROM assignments WHERE owner_action = ? GROUP BY payout_status",
		model.OwnerActionCompleted).Scan(&payouts).Error; err != nil {
		return stats, err
	}
	for _, g := range payouts {
		stats.PayoutsByStatus[g.Name] = g.Total
	}

	if err := db.Raw("SELECT COUNT(*) FROM shoveller_profiles WHERE referral_bonus_status = ?",
		model.ReferralBonusPaid).Scan(&stats.ReferralBonusesPaid).Error; err != nil {
		return stats, err
	}

	return stats, nil
}
