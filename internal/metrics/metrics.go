// Package metrics exposes Prometheus counters for weighbot's hot paths.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed counts inbound chat events applied by the router.
	EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_events_processed_total",
		Help: "Inbound chat events processed by the workflow router.",
	})

	// InputsRejected counts events rejected by validation or matching.
	InputsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_inputs_rejected_total",
		Help: "Inbound events rejected by validation or transition matching.",
	})

	// RecordsPersisted counts records acknowledged by the relational store.
	RecordsPersisted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_records_persisted_total",
		Help: "Completed records acknowledged by the relational store.",
	})

	// RecordsDegraded counts completions whose persistence failed.
	RecordsDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_records_degraded_total",
		Help: "Flow completions that finished without store acknowledgement.",
	})

	// SessionsReaped counts sessions evicted by the inactivity reaper.
	SessionsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_sessions_reaped_total",
		Help: "Sessions evicted by the inactivity reaper.",
	})

	// AnomaliesFlagged counts identity-reuse alerts raised.
	AnomaliesFlagged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weighbot_anomalies_flagged_total",
		Help: "Identity-reuse anomaly alerts raised.",
	})
)
