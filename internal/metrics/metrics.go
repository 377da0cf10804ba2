// Package metrics exposes Prometheus counters for the credential store and
// the token manager. Recording is advisory and never affects a result.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reasons a token leaves the map.
const (
	ReasonInvalidated = "invalidated"
	ReasonOwner       = "owner"
	ReasonExpired     = "expired"
)

// Recorder is what the facade reports to.
type Recorder interface {
	UserOp(op string, err error)
	Verification(match bool, err error)
	TokenIssued()
	TokensRemoved(reason string, n int)
	TokensActive(n int)
}

// Metrics holds the Prometheus collectors.
type Metrics struct {
	UserOpsTotal       *prometheus.CounterVec
	VerificationsTotal *prometheus.CounterVec
	TokensIssuedTotal  prometheus.Counter
	TokensRemovedTotal *prometheus.CounterVec
	TokensActiveGauge  prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		UserOpsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safebox_user_operations_total",
				Help: "Credential store operations by kind and result",
			},
			[]string{"op", "result"},
		),
		VerificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safebox_verifications_total",
				Help: "Password verifications by outcome",
			},
			[]string{"result"},
		),
		TokensIssuedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "safebox_tokens_issued_total",
				Help: "Session tokens issued",
			},
		),
		TokensRemovedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "safebox_tokens_removed_total",
				Help: "Session tokens removed by reason",
			},
			[]string{"reason"},
		),
		TokensActiveGauge: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "safebox_tokens_active",
				Help: "Session tokens currently held in memory",
			},
		),
	}

	reg.MustRegister(
		m.UserOpsTotal,
		m.VerificationsTotal,
		m.TokensIssuedTotal,
		m.TokensRemovedTotal,
		m.TokensActiveGauge,
	)
	return m
}

func (m *Metrics) UserOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.UserOpsTotal.WithLabelValues(op, result).Inc()
}

func (m *Metrics) Verification(match bool, err error) {
	switch {
	case err != nil:
		m.VerificationsTotal.WithLabelValues("error").Inc()
	case match:
		m.VerificationsTotal.WithLabelValues("match").Inc()
	default:
		m.VerificationsTotal.WithLabelValues("mismatch").Inc()
	}
}

func (m *Metrics) TokenIssued() {
	m.TokensIssuedTotal.Inc()
}

func (m *Metrics) TokensRemoved(reason string, n int) {
	if n <= 0 {
		return
	}
	m.TokensRemovedTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) TokensActive(n int) {
	m.TokensActiveGauge.Set(float64(n))
}

// Nop drops every observation.
type Nop struct{}

func (Nop) UserOp(string, error)      {}
func (Nop) Verification(bool, error)  {}
func (Nop) TokenIssued()              {}
func (Nop) TokensRemoved(string, int) {}
func (Nop) TokensActive(int)          {}
