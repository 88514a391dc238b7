package pledge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts the service's externally visible outcomes.
type Metrics struct {
	commitmentsCreated *prometheus.CounterVec // label: backend
	nullifierConflicts prometheus.Counter
	proofsVerified     prometheus.Counter
	proofsRejected     prometheus.Counter
	reveals            prometheus.Counter
}

// NewMetrics registers the service counters with the given registry. A nil
// registry yields working but unexported counters, so callers that don't
// scrape metrics need no special casing.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	factory := promauto.With(registry)
	return &Metrics{
		commitmentsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "zkpledge_commitments_created_total",
			Help: "Total number of donation commitments accepted",
		}, []string{"backend"}),
		nullifierConflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkpledge_nullifier_conflicts_total",
			Help: "Total number of submissions rejected for nullifier reuse",
		}),
		proofsVerified: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkpledge_proofs_verified_total",
			Help: "Total number of proofs that verified successfully",
		}),
		proofsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkpledge_proofs_rejected_total",
			Help: "Total number of proofs that failed verification",
		}),
		reveals: factory.NewCounter(prometheus.CounterOpts{
			Name: "zkpledge_reveals_total",
			Help: "Total number of accepted amount reveals",
		}),
	}
}
