package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shovel-house/shovel-api/internal/store"
	"go.uber.org/zap"
)

type settlementStatsCollector struct {
	store           store.Store
	jobsByStatus    *prometheus.Desc
	payoutsByStatus *prometheus.Desc
	referralsPaid   *prometheus.Desc
}

// NewSettlementStatsCollector reads job and payout totals from the store on
// every scrape.
func NewSettlementStatsCollector(s store.Store) prometheus.Collector {
	fqName := func(name string) string {
		return fmt.Sprintf("%s_%s", shovel, name)
	}

	return &settlementStatsCollector{
		store: s,
		jobsByStatus: prometheus.NewDesc(
			fqName("jobs_by_status_total"),
			"Total jobs by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		payoutsByStatus: prometheus.NewDesc(
			fqName("payouts_by_status_total"),
			"Total worker payouts by status.",
			[]string{"status"},
			prometheus.Labels{},
		),
		referralsPaid: prometheus.NewDesc(
			fqName("referral_bonuses_paid_total"),
			"Total referral bonuses paid.",
			nil,
			prometheus.Labels{},
		),
	}
}

func (c *settlementStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsByStatus
	ch <- c.payoutsByStatus
	ch <- c.referralsPaid
}

// Collect implements Collector.
func (c *settlementStatsCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := c.store.Statistics(context.Background())
	if err != nil {
		zap.S().Named("settlement_collector").Errorf("failed to collect settlement statistics: %s", err)
		return
	}

	for status, total := range stats.JobsByStatus {
		ch <- prometheus.MustNewConstMetric(c.jobsByStatus, prometheus.GaugeValue, float64(total), status)
	}
	for status, total := range stats.PayoutsByStatus {
		ch <- prometheus.MustNewConstMetric(c.payoutsByStatus, prometheus.GaugeValue, float64(total), status)
	}
	ch <- prometheus.MustNewConstMetric(c.referralsPaid, prometheus.GaugeValue, float64(stats.ReferralBonusesPaid))
}
