package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	shovel = "shovel"

	// Settlement metrics
	settlementCapturesTotal = "settlement_captures_total"
	settlementPayoutsTotal  = "settlement_payouts_total"

	// Webhook metrics
	webhookEventsTotal = "webhook_events_total"

	// Referral metrics
	referralBonusesTotal = "referral_bonuses_total"

	// Ledger metrics
	ledgerCallsTotal = "ledger_calls_total"

	// Labels
	resultLabel    = "result"
	eventTypeLabel = "type"
	operationLabel = "operation"
)

/**
* Metrics definition
**/
var settlementCapturesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shovel,
		Name:      settlementCapturesTotal,
		Help:      "number of payment captures partitioned by result",
	},
	[]string{resultLabel},
)

var settlementPayoutsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shovel,
		Name:      settlementPayoutsTotal,
		Help:      "number of worker payouts partitioned by result",
	},
	[]string{resultLabel},
)

var webhookEventsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shovel,
		Name:      webhookEventsTotal,
		Help:      "number of gateway webhook events partitioned by type and result",
	},
	[]string{eventTypeLabel, resultLabel},
)

var referralBonusesTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shovel,
		Name:      referralBonusesTotal,
		Help:      "number of referral bonus transfers partitioned by result",
	},
	[]string{resultLabel},
)

var ledgerCallsTotalMetric = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Subsystem: shovel,
		Name:      ledgerCallsTotal,
		Help:      "number of payment gateway calls partitioned by operation and result",
	},
	[]string{operationLabel, resultLabel},
)

func IncreaseCapturesMetric(result string) {
	settlementCapturesTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreasePayoutsMetric(result string) {
	settlementPayoutsTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseWebhookEventsMetric(eventType, result string) {
	labels := prometheus.Labels{
		eventTypeLabel: eventType,
		resultLabel:    result,
	}
	webhookEventsTotalMetric.With(labels).Inc()
}

func IncreaseReferralBonusesMetric(result string) {
	referralBonusesTotalMetric.With(prometheus.Labels{resultLabel: result}).Inc()
}

func IncreaseLedgerCallsMetric(operation, result string) {
	labels := prometheus.Labels{
		operationLabel: operation,
		resultLabel:    result,
	}
	ledgerCallsTotalMetric.With(labels).Inc()
}

func init() {
	registerMetrics()
}

func registerMetrics() {
	prometheus.MustRegister(settlementCapturesTotalMetric)
	prometheus.MustRegister(settlementPayoutsTotalMetric)
	prometheus.MustRegister(webhookEventsTotalMetric)
	prometheus.MustRegister(referralBonusesTotalMetric)
	prometheus.MustRegister(ledgerCallsTotalMetric)
	prometheus.MustRegister(UniqueUsersPerWeek.counter)
}
