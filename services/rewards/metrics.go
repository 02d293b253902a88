package rewards

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	starts        prometheus.Counter
	decisions     *prometheus.CounterVec
	coinsAwarded  prometheus.Counter
	engagements   *prometheus.CounterVec
	storageErrors prometheus.Counter
}

// NewMetrics builds the rewards collectors and registers them with reg when
// reg is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		starts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_task_starts_total",
			Help: "Total number of task attempts started",
		}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_verifications_total",
			Help: "Verification decisions by outcome and reason",
		}, []string{"outcome", "reason"}),
		coinsAwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_coins_awarded_total",
			Help: "Total coins awarded by verified tasks",
		}),
		engagements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rewards_engagements_total",
			Help: "Engagement attempts by how they resolved",
		}, []string{"path"}),
		storageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rewards_storage_errors_total",
			Help: "Failed writes of the rewards state",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.starts, m.decisions, m.coinsAwarded, m.engagements, m.storageErrors)
	}
	return m
}
