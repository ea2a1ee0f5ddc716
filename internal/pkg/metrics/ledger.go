package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		ledgerEventsTotal,
		creditsMovedTotal,
		sweepRunsTotal,
		sweepDuration,
	)
}

var (
	ledgerEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_events_total",
			Help: "Committed ledger events by type.",
		},
		[]string{"type"},
	)

	creditsMovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_credits_total",
			Help: "Credits issued, consumed or expired.",
		},
		[]string{"direction"}, // issued, consumed, expired
	)

	sweepRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_sweep_runs_total",
			Help: "Expiry sweeps by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_sweep_duration_seconds",
			Help:    "Duration of scheduled sweeps over all due users.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func IncLedgerEvent(eventType string) {
	ledgerEventsTotal.WithLabelValues(eventType).Inc()
}

func AddCreditsIssued(n int64)   { addCredits("issued", n) }
func AddCreditsConsumed(n int64) { addCredits("consumed", n) }
func AddCreditsExpired(n int64)  { addCredits("expired", n) }

func addCredits(direction string, n int64) {
	if n > 0 {
		creditsMovedTotal.WithLabelValues(direction).Add(float64(n))
	}
}

func IncSweep(trigger string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	sweepRunsTotal.WithLabelValues(trigger, outcome).Inc()
}

func ObserveSweepDuration(seconds float64) {
	sweepDuration.Observe(seconds)
}
