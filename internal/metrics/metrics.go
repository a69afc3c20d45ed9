// Package metrics exposes Blufio's Prometheus counters and gauges for the
// gateway's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
)

var (
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blufio_turns_total",
		Help: "Turns processed, labeled by channel and outcome.",
	}, []string{"channel", "outcome"})

	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blufio_tool_calls_total",
		Help: "Tool invocations, labeled by tool name and outcome.",
	}, []string{"tool", "outcome"})

	CostUSDTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blufio_cost_usd_total",
		Help: "Cumulative provider spend in USD, labeled by provider and model.",
	}, []string{"provider", "model"})

	MemoryWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "blufio_memory_writes_total",
		Help: "Memories written to long-term storage.",
	})

	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blufio_queue_depth",
		Help: "Pending entries in the crash-safe work queue.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "blufio_active_sessions",
		Help: "Sessions with a live actor goroutine.",
	})
)

// Handler returns the standard Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
