package research

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assertionsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_assertions_created_total",
		Help: "Assertions created, by origin (authored or promoted)",
	}, []string{"origin"})

	assertionStatusChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_assertion_status_changes_total",
		Help: "Assertion status changes by target status",
	}, []string{"status"})

	validationDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_validation_decisions_total",
		Help: "Validation queue decisions by outcome",
	}, []string{"decision"})

	snapshotsFrozen = promauto.NewCounter(prometheus.CounterOpts{
		Name: "research_snapshots_frozen_total",
		Help: "Snapshots frozen",
	})

	snapshotVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "research_snapshot_verifications_total",
		Help: "Snapshot hash verifications by result",
	}, []string{"result"})
)
