package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	transitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_transitions_total",
			Help: "Count of approval request state transitions",
		},
		[]string{"from", "to"},
	)

	decisionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Count of recorded approver decisions",
		},
		[]string{"decision"},
	)

	casConflictsCounter = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "approval_cas_conflicts_total",
			Help: "Count of optimistic concurrency conflicts observed by the engine",
		},
	)
)
