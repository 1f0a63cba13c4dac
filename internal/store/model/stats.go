package model

type Stats struct {
	JobsByStatus        map[string]int
	PayoutsByStatus     map[string]int
	ReferralBonusesPaid int
}
