// Package observability exposes process-level counters and the tracer used
// across recall. Metrics are registered on the default prometheus registry;
// spans go to whatever tracer provider the host process installs.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/haasonsaas/recall"

var (
	// RunsTotal counts completed runs by memory mode and outcome
	// (answered, ood, error).
	RunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "runs_total",
		Help:      "Completed runs by memory mode and outcome.",
	}, []string{"mode", "outcome"})

	// ToolCallsTotal counts executed plan steps by tool and cache status.
	ToolCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "tool_calls_total",
		Help:      "Plan steps executed, by tool and whether the cache served them.",
	}, []string{"tool", "cached"})

	// MemoryWritesTotal counts evaluator proposals persisted.
	MemoryWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "memory_writes_total",
		Help:      "Memory items written by the evaluator.",
	})

	// MemoryExpiredTotal counts items removed by maintenance sweeps.
	MemoryExpiredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "recall",
		Name:      "memory_expired_total",
		Help:      "Memory items removed by TTL maintenance.",
	})
)

// Tracer returns the shared tracer.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}
