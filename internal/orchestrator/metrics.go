package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	readinessPollAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipguard",
		Subsystem: "orchestrator",
		Name:      "readiness_poll_attempts_total",
		Help:      "Job readiness status polls issued, including failed queries.",
	})
	analysisRetries = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipguard",
		Subsystem: "orchestrator",
		Name:      "analysis_conflict_retries_total",
		Help:      "Analysis requests retried after a still-processing conflict.",
	})
	remediationsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "clipguard",
		Subsystem: "orchestrator",
		Name:      "remediations_applied_total",
		Help:      "Remediation actions applied and recorded as edit versions.",
	})
)
