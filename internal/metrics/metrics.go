package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OK     = "ok"
	Failed = "failed"
)

type Metrics struct {
	Logins        *prometheus.CounterVec
	Refreshes     *prometheus.CounterVec
	Logouts       *prometheus.CounterVec
	GateDecisions *prometheus.CounterVec
	TokensMinted  *prometheus.CounterVec
}

// New registers the auth collectors on reg. Tests pass a fresh registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Logins: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by outcome and error code.",
		}, []string{"outcome", "code"}),
		Refreshes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "refreshes_total",
			Help:      "Access token refresh attempts by outcome and error code.",
		}, []string{"outcome", "code"}),
		Logouts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "logouts_total",
			Help:      "Logout attempts by outcome and error code.",
		}, []string{"outcome", "code"}),
		GateDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "gate_decisions_total",
			Help:      "Per-request authentication decisions.",
		}, []string{"decision"}),
		TokensMinted: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auth",
			Name:      "tokens_minted_total",
			Help:      "Tokens minted by kind.",
		}, []string{"kind"}),
	}
}

// NewNop returns collectors bound to a private registry.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
