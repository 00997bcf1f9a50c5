// Package metrics exposes Prometheus collectors for the rewards services.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Rewards groups the collectors recorded by the redemption, earning and
// registration services. A nil *Rewards records nothing.
type Rewards struct {
	decisions     *prometheus.CounterVec
	commits       *prometheus.CounterVec
	lockWait      prometheus.Histogram
	registrations *prometheus.CounterVec
	earnings      *prometheus.CounterVec
	expired       prometheus.Counter
}

var (
	defaultOnce sync.Once
	defaultReg  *Rewards
)

// Default returns the collectors registered with the global registry.
func Default() *Rewards {
	defaultOnce.Do(func() {
		defaultReg = New(prometheus.DefaultRegisterer)
	})
	return defaultReg
}

// New builds and registers a fresh set of collectors on reg.
func New(reg prometheus.Registerer) *Rewards {
	r := &Rewards{
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repaircoin",
			Subsystem: "redemption",
			Name:      "decisions_total",
			Help:      "Redemption eligibility decisions segmented by outcome and denial reason.",
		}, []string{"outcome", "reason"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repaircoin",
			Subsystem: "redemption",
			Name:      "commits_total",
			Help:      "Redemption commit and settle outcomes.",
		}, []string{"outcome"}),
		lockWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "repaircoin",
			Subsystem: "redemption",
			Name:      "lock_wait_seconds",
			Help:      "Time spent acquiring the per-customer lock.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5},
		}),
		registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repaircoin",
			Subsystem: "registration",
			Name:      "attempts_total",
			Help:      "Registration attempts segmented by role and outcome.",
		}, []string{"role", "outcome"}),
		earnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "repaircoin",
			Subsystem: "earning",
			Name:      "entries_total",
			Help:      "Ledger credits recorded segmented by source.",
		}, []string{"source"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "repaircoin",
			Subsystem: "redemption",
			Name:      "reservations_expired_total",
			Help:      "Pending redemptions failed by the expiry job.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.decisions, r.commits, r.lockWait, r.registrations, r.earnings, r.expired)
	}
	return r
}

func (r *Rewards) Decision(approved bool, reason string) {
	if r == nil {
		return
	}
	outcome := "denied"
	if approved {
		outcome = "approved"
	}
	r.decisions.WithLabelValues(outcome, reason).Inc()
}

func (r *Rewards) Commit(outcome string) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(outcome).Inc()
}

func (r *Rewards) LockWait(d time.Duration) {
	if r == nil {
		return
	}
	r.lockWait.Observe(d.Seconds())
}

func (r *Rewards) Registration(role, outcome string) {
	if r == nil {
		return
	}
	r.registrations.WithLabelValues(role, outcome).Inc()
}

func (r *Rewards) Earning(source string) {
	if r == nil {
		return
	}
	r.earnings.WithLabelValues(source).Inc()
}

func (r *Rewards) ReservationExpired() {
	if r == nil {
		return
	}
	r.expired.Inc()
}
