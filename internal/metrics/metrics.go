// Package metrics exposes Prometheus instrumentation for the agentic loop:
// turn counts, tool execution latency, streamed token usage, and the
// doom-loop/compaction events the loop's observability hooks surface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/corestack/agentcore/internal/loop"
	"github.com/corestack/agentcore/internal/transport"
	"github.com/corestack/agentcore/pkg/models"
)

// Metrics collects the counters and histograms the loop emits through its
// callback hooks. Construct once per process with NewMetrics.
type Metrics struct {
	TurnsTotal           *prometheus.CounterVec
	ToolExecutionCounter *prometheus.CounterVec
	ToolExecutionSeconds *prometheus.HistogramVec
	TokensTotal          *prometheus.CounterVec
	DoomLoopsTotal       prometheus.Counter
	CompactionsTotal     prometheus.Counter
	ErrorsTotal          *prometheus.CounterVec
}

// NewMetrics creates and registers the loop's metrics against reg. Pass nil
// to register with Prometheus's default registry; pass a fresh
// prometheus.NewRegistry() for isolated tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_loop_turns_total",
				Help: "Total number of agentic loop turns by kind (text|tool_use)",
			},
			[]string{"kind"},
		),
		ToolExecutionCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tool_executions_total",
				Help: "Total number of tool executions by tool name and outcome",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentcore_tool_execution_duration_seconds",
				Help:    "Tool execution latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"tool_name"},
		),
		TokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_tokens_total",
				Help: "Total tokens consumed by direction (input|output)",
			},
			[]string{"direction"},
		),
		DoomLoopsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentcore_doom_loops_total",
				Help: "Total number of doom-loop detections (repeated identical tool calls)",
			},
		),
		CompactionsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "agentcore_compactions_total",
				Help: "Total number of conversation compactions performed",
			},
		),
		ErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentcore_loop_errors_total",
				Help: "Total number of errors surfaced by the agentic loop",
			},
			[]string{"stage"},
		),
	}
}

// Callbacks returns a loop.Callbacks wired to record every hook it
// instruments, merged on top of next (next's hooks still run; metrics are
// recorded in addition, not instead).
func (m *Metrics) Callbacks(next loop.Callbacks) loop.Callbacks {
	toolStart := map[string]time.Time{}

	return loop.Callbacks{
		OnStreamStart:         next.OnStreamStart,
		OnStreamDelta:         next.OnStreamDelta,
		OnAgentToolCall:       next.OnAgentToolCall,
		OnAgentToolCallUpdate: next.OnAgentToolCallUpdate,
		OnPermissionCheck:     next.OnPermissionCheck,

		OnToolCallStart: func(call models.ToolCallRequest) {
			toolStart[call.ID] = time.Now()
			if next.OnToolCallStart != nil {
				next.OnToolCallStart(call)
			}
		},
		OnToolCallEnd: func(result models.ToolCallResult) {
			status := "success"
			if result.IsError {
				status = "error"
			}
			m.ToolExecutionCounter.WithLabelValues(result.Name, status).Inc()
			if started, ok := toolStart[result.ID]; ok {
				m.ToolExecutionSeconds.WithLabelValues(result.Name).Observe(time.Since(started).Seconds())
				delete(toolStart, result.ID)
			}
			if next.OnToolCallEnd != nil {
				next.OnToolCallEnd(result)
			}
		},
		OnTurnComplete: func(turn models.LoopTurn) {
			m.TurnsTotal.WithLabelValues(string(turn.Kind)).Inc()
			if next.OnTurnComplete != nil {
				next.OnTurnComplete(turn)
			}
		},
		OnError: func(err error) {
			m.ErrorsTotal.WithLabelValues("generation").Inc()
			if next.OnError != nil {
				next.OnError(err)
			}
		},
		OnDoomLoop: func() {
			m.DoomLoopsTotal.Inc()
			if next.OnDoomLoop != nil {
				next.OnDoomLoop()
			}
		},
		OnCompaction: func(summary string) {
			m.CompactionsTotal.Inc()
			if next.OnCompaction != nil {
				next.OnCompaction(summary)
			}
		},
		OnTokenUsage: func(usage transport.Usage) {
			m.TokensTotal.WithLabelValues("input").Add(float64(usage.InputTokens))
			m.TokensTotal.WithLabelValues("output").Add(float64(usage.OutputTokens))
			if next.OnTokenUsage != nil {
				next.OnTokenUsage(usage)
			}
		},
	}
}
