package observability

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/aretw0/parley/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "parley"

// Metrics holds the collectors fed by the lifecycle hooks.
type Metrics struct {
	registry    *prometheus.Registry
	turns       *prometheus.CounterVec
	turnSteps   prometheus.Histogram
	nodeVisits  *prometheus.CounterVec
	apiCalls    *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on a dedicated registry,
// together with the Go and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of executed turns by outcome.",
		}, []string{"outcome"}),
		turnSteps: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_steps",
			Help:      "Nodes dispatched per turn.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		nodeVisits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_visits_total",
			Help:      "Total number of node dispatches by node type and handler.",
		}, []string{"node_type", "handler"}),
		apiCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_calls_total",
			Help:      "Total number of outbound api node calls by result.",
		}, []string{"result"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_call_duration_seconds",
			Help:      "Duration of outbound api node calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	m.registry.MustRegister(
		m.turns, m.turnSteps, m.nodeVisits, m.apiCalls, m.apiDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Hooks returns lifecycle hooks recording into m.
func (m *Metrics) Hooks() domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(_ context.Context, e *domain.NodeEvent) {
			m.nodeVisits.WithLabelValues(string(e.NodeType), e.Handler).Inc()
		},
		OnAPICall: func(_ context.Context, e *domain.APICallEvent) {
			result := apiResult(e)
			m.apiCalls.WithLabelValues(result).Inc()
			if e.Duration > 0 {
				m.apiDuration.WithLabelValues(result).Observe(e.Duration.Seconds())
			}
		},
		OnTurnEnd: func(_ context.Context, e *domain.TurnEvent) {
			m.turns.WithLabelValues(turnOutcome(e)).Inc()
			m.turnSteps.Observe(float64(e.Steps))
		},
	}
}

func apiResult(e *domain.APICallEvent) string {
	switch {
	case e.Throttled:
		return "throttled"
	case e.Err != nil:
		return "error"
	case e.Status >= 200 && e.Status < 300:
		return "success"
	default:
		return "non_2xx"
	}
}

func turnOutcome(e *domain.TurnEvent) string {
	switch {
	case e.Err != nil:
		return "error"
	case e.Ended:
		return "ended"
	default:
		return "suspended"
	}
}

// LogHooks logs every lifecycle event at debug level, failures at warn.
func LogHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnNodeEnter: func(ctx context.Context, e *domain.NodeEvent) {
			logger.DebugContext(ctx, "node_enter",
				"program_id", e.ProgramID,
				"node_id", e.NodeID,
				"type", e.NodeType,
				"handler", e.Handler,
			)
		},
		OnAPICall: func(ctx context.Context, e *domain.APICallEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "api_call", "hostname", e.Hostname, "duration", e.Duration, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "api_call",
				"hostname", e.Hostname,
				"status", e.Status,
				"duration", e.Duration,
				"throttled", e.Throttled,
			)
		},
		OnTurnEnd: func(ctx context.Context, e *domain.TurnEvent) {
			if e.Err != nil {
				logger.WarnContext(ctx, "turn_end", "version_id", e.VersionID, "steps", e.Steps, "err", e.Err)
				return
			}
			logger.DebugContext(ctx, "turn_end", "version_id", e.VersionID, "steps", e.Steps, "ended", e.Ended)
		},
	}
}

// Chain merges hooks so that every non-nil callback runs, in argument order.
func Chain(hooks ...domain.LifecycleHooks) domain.LifecycleHooks {
	var out domain.LifecycleHooks
	for _, h := range hooks {
		h := h
		if h.OnNodeEnter != nil {
			prev := out.OnNodeEnter
			out.OnNodeEnter = func(ctx context.Context, e *domain.NodeEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnNodeEnter(ctx, e)
			}
		}
		if h.OnAPICall != nil {
			prev := out.OnAPICall
			out.OnAPICall = func(ctx context.Context, e *domain.APICallEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnAPICall(ctx, e)
			}
		}
		if h.OnTurnEnd != nil {
			prev := out.OnTurnEnd
			out.OnTurnEnd = func(ctx context.Context, e *domain.TurnEvent) {
				if prev != nil {
					prev(ctx, e)
				}
				h.OnTurnEnd(ctx, e)
			}
		}
	}
	return out
}
