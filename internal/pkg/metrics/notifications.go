package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		notificationsTotal,
		relayDeliveriesTotal,
		wsConnections,
		wsEventsTotal,
	)
}

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "In-app notifications by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	relayDeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Phone relay deliveries by outcome.",
		},
		[]string{"outcome"}, // sent, failed, skipped
	)

	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Open websocket connections on this instance.",
		},
	)

	wsEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "websocket_events_total",
			Help: "Websocket frames queued or dropped on a full buffer.",
		},
		[]string{"outcome"},
	)
)

func IncNotification(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	notificationsTotal.WithLabelValues(kind, outcome).Inc()
}

func IncRelayDelivery(outcome string) {
	relayDeliveriesTotal.WithLabelValues(outcome).Inc()
}

func AddWSConnections(delta float64) {
	wsConnections.Add(delta)
}

func IncWSEvent(sent bool) {
	if sent {
		wsEventsTotal.WithLabelValues("sent").Inc()
		return
	}
	wsEventsTotal.WithLabelValues("dropped").Inc()
}
