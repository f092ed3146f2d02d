package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every collector the service exports.
type Metrics struct {
	RequestsTotal   prometheus.CounterVec
	RequestDuration prometheus.HistogramVec

	// Offer state machine transitions by event and outcome
	OfferTransitionsTotal prometheus.CounterVec

	// Escrow funding and fee-sweep outcomes
	AdsFundedTotal prometheus.CounterVec
	FeeSweepsTotal prometheus.CounterVec
	FeeSweptAmount prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		RequestsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Requests handled, by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: *promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		OfferTransitionsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "offer_transitions_total",
				Help: "Offer state machine transitions, by event and outcome",
			},
			[]string{"event", "outcome"},
		),
		AdsFundedTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ads_funded_total",
				Help: "Escrow funding attempts, by outcome",
			},
			[]string{"outcome"},
		),
		FeeSweepsTotal: *promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fee_sweeps_total",
				Help: "Fee sweep loops finished, by outcome (swept/expired)",
			},
			[]string{"outcome"},
		),
		FeeSweptAmount: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "fee_swept_amount_total",
				Help: "Total platform fees collected, in TON",
			},
		),
	}
}
