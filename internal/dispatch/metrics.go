package dispatch

import "github.com/prometheus/client_golang/prometheus"

func init() {
	prometheus.MustRegister(executionsCounter)
}

var executionsCounter = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "approval_executions_total",
		Help: "Total number of dispatched executions by outcome",
	},
	[]string{"operation", "outcome"},
)
