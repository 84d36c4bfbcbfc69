// Package observability provides the Prometheus metrics this runtime
// exposes for operators: per-channel message counts, tool execution
// latency, continuation depth, agent-switch activity, and background
// worker state.
//
// Grounded on the teacher's internal/observability/metrics.go: a single
// Metrics struct of promauto-registered CounterVec/HistogramVec/GaugeVec
// fields built once at startup, plus small recording methods so call
// sites never touch a prometheus type directly. Labels and metric names
// are this runtime's own (sessions/agents/channels/tools, not
// Discord/Telegram/Slack), per SPEC_FULL.md's DOMAIN STACK wiring of
// github.com/prometheus/client_golang.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every metric this process exports at /metrics.
type Metrics struct {
	// ChannelMessages counts ChannelMessages emitted by the Channel
	// Router. Labels: channel (analysis|commentary|final).
	ChannelMessages *prometheus.CounterVec

	// ToolExecutions counts tool invocations. Labels: tool_name,
	// status (success|error).
	ToolExecutions *prometheus.CounterVec

	// ToolExecutionDuration measures tool execution latency in seconds.
	// Labels: tool_name.
	ToolExecutionDuration *prometheus.HistogramVec

	// ModelRequestDuration measures model provider call latency in
	// seconds. Labels: provider, model.
	ModelRequestDuration *prometheus.HistogramVec

	// ModelRequests counts model provider calls. Labels: provider,
	// model, status (success|error).
	ModelRequests *prometheus.CounterVec

	// ContinuationDepth observes the continuation depth reached at the
	// end of a turn.
	ContinuationDepth prometheus.Histogram

	// AgentSwitches counts agent-to-agent switches. Labels: from_agent,
	// to_agent.
	AgentSwitches *prometheus.CounterVec

	// ActiveSessions gauges the number of live sessions in process.
	ActiveSessions prometheus.Gauge

	// MailboxDepth gauges unread mail count per agent at the moment of
	// the last check. Labels: agent_id.
	MailboxDepth *prometheus.GaugeVec

	// AsyncWorkerState gauges one background worker's current lifecycle
	// state as a 0/1 indicator. Labels: agent_id, state.
	AsyncWorkerState *prometheus.GaugeVec

	// RPCRequestDuration measures JSON-RPC method latency in seconds.
	// Labels: method, status (ok|error).
	RPCRequestDuration *prometheus.HistogramVec
}

// NewMetrics constructs and registers every metric with the default
// Prometheus registry. Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		ChannelMessages: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_channel_messages_total",
				Help: "Total ChannelMessages emitted by the Channel Router, by channel",
			},
			[]string{"channel"},
		),
		ToolExecutions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_tool_executions_total",
				Help: "Total tool invocations by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentmesh_tool_execution_duration_seconds",
				Help:    "Tool execution latency in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		ModelRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentmesh_model_request_duration_seconds",
				Help:    "Model provider call latency in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ModelRequests: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_model_requests_total",
				Help: "Total model provider calls by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ContinuationDepth: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentmesh_continuation_depth",
				Help:    "Continuation depth reached at the end of a turn",
				Buckets: []float64{0, 1, 2, 3, 4, 5},
			},
		),
		AgentSwitches: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentmesh_agent_switches_total",
				Help: "Total agent-to-agent switches by source and destination agent",
			},
			[]string{"from_agent", "to_agent"},
		),
		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentmesh_active_sessions",
				Help: "Current number of live sessions",
			},
		),
		MailboxDepth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentmesh_mailbox_unread",
				Help: "Unread mail count per agent as of the last check",
			},
			[]string{"agent_id"},
		),
		AsyncWorkerState: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agentmesh_async_worker_state",
				Help: "1 if the named background worker is currently in the given state, else 0",
			},
			[]string{"agent_id", "state"},
		),
		RPCRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentmesh_rpc_request_duration_seconds",
				Help:    "JSON-RPC method handling latency in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "status"},
		),
	}
}

// RecordChannelMessage increments the per-channel message counter.
func (m *Metrics) RecordChannelMessage(channel string) {
	m.ChannelMessages.WithLabelValues(channel).Inc()
}

// RecordToolExecution records a tool invocation's outcome and latency.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	m.ToolExecutions.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordModelRequest records one provider call's outcome and latency.
func (m *Metrics) RecordModelRequest(provider, model, status string, durationSeconds float64) {
	m.ModelRequests.WithLabelValues(provider, model, status).Inc()
	m.ModelRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
}

// RecordContinuationDepth observes the depth a turn's continuation loop
// reached before stopping.
func (m *Metrics) RecordContinuationDepth(depth int) {
	m.ContinuationDepth.Observe(float64(depth))
}

// RecordAgentSwitch increments the switch counter for a from/to pair.
func (m *Metrics) RecordAgentSwitch(fromAgent, toAgent string) {
	m.AgentSwitches.WithLabelValues(fromAgent, toAgent).Inc()
}

// SetActiveSessions sets the active-sessions gauge to n.
func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

// SetMailboxDepth sets the unread-mail gauge for agentID.
func (m *Metrics) SetMailboxDepth(agentID string, unread int) {
	m.MailboxDepth.WithLabelValues(agentID).Set(float64(unread))
}

// SetAsyncWorkerState records agentID's current state, zeroing every
// other known state label for that agent so exactly one reads 1.
func (m *Metrics) SetAsyncWorkerState(agentID string, states []string, current string) {
	for _, s := range states {
		v := 0.0
		if s == current {
			v = 1.0
		}
		m.AsyncWorkerState.WithLabelValues(agentID, s).Set(v)
	}
}

// RecordRPCRequest records one JSON-RPC method call's latency and
// outcome.
func (m *Metrics) RecordRPCRequest(method, status string, durationSeconds float64) {
	m.RPCRequestDuration.WithLabelValues(method, status).Observe(durationSeconds)
}
