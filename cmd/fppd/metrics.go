// metrics.go - Prometheus metrics for the floating-point protocol daemon
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the daemon's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	Deposits             prometheus.Counter
	Payments             prometheus.Counter
	WithdrawalRequests   prometheus.Counter
	WithdrawalsCompleted prometheus.Counter
	WithdrawalsCancelled prometheus.Counter
	Errors               *prometheus.CounterVec
	RequestDuration      *prometheus.HistogramVec
	TotalPoints          prometheus.Gauge
	TotalDeposited       prometheus.Gauge
}

// NewMetrics registers all collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Deposits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpp_deposits_total",
			Help: "Accepted deposits.",
		}),
		Payments: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpp_payments_total",
			Help: "Applied privacy payments.",
		}),
		WithdrawalRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpp_withdrawal_requests_total",
			Help: "Opened withdrawal requests.",
		}),
		WithdrawalsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpp_withdrawals_completed_total",
			Help: "Completed withdrawals.",
		}),
		WithdrawalsCancelled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fpp_withdrawals_cancelled_total",
			Help: "Cancelled withdrawals.",
		}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fpp_errors_total",
			Help: "Rejected operations by kind.",
		}, []string{"op"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fpp_request_duration_seconds",
			Help:    "HTTP handler latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		TotalPoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fpp_total_points",
			Help: "Points minted over the ledger's lifetime.",
		}),
		TotalDeposited: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fpp_total_deposited",
			Help: "Base-asset units deposited over the ledger's lifetime.",
		}),
	}
	reg.MustRegister(
		m.Deposits, m.Payments,
		m.WithdrawalRequests, m.WithdrawalsCompleted, m.WithdrawalsCancelled,
		m.Errors, m.RequestDuration,
		m.TotalPoints, m.TotalDeposited,
	)
	return m
}

// Handler serves the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
