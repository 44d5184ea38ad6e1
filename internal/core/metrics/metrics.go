// Package metrics exports rule engine activity to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/solatis/rulekeeper/internal/rules"
	"github.com/solatis/rulekeeper/internal/types"
)

const namespace = "rulekeeper"

// Collector implements rules.Observer.
//
// Metrics:
//   - rulekeeper_rules_evaluated_total{triggered}: rules whose conditions were evaluated
//   - rulekeeper_actions_dispatched_total{action,status}: dispatched actions by outcome
//   - rulekeeper_rule_evaluation_seconds: condition evaluation latency
//   - rulekeeper_evaluations_total{mode,code}: service requests by result code
//
// Action names come from the registered providers, so the action label's
// cardinality is bounded by the catalog.
type Collector struct {
	registry *prometheus.Registry

	rulesEvaluated     *prometheus.CounterVec
	actionsDispatched  *prometheus.CounterVec
	evaluationDuration prometheus.Histogram
	evaluations        *prometheus.CounterVec
}

var _ rules.Observer = (*Collector)(nil)

// NewCollector registers the metrics with registry, or with a fresh
// registry when nil.
func NewCollector(registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	c := &Collector{
		registry: registry,
		rulesEvaluated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "rules_evaluated_total",
				Help:      "Total number of rules whose conditions were evaluated",
			},
			[]string{"triggered"},
		),
		actionsDispatched: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_dispatched_total",
				Help:      "Total number of dispatched actions by status",
			},
			[]string{"action", "status"},
		),
		evaluationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "rule_evaluation_seconds",
				Help:      "Duration of condition evaluation for one rule in seconds",
				// Accessors may block on I/O, so cover 1µs up to ~4s
				Buckets: prometheus.ExponentialBuckets(0.000001, 4, 12),
			},
		),
		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of evaluation requests by mode and result code",
			},
			[]string{"mode", "code"},
		),
	}

	registry.MustRegister(c.rulesEvaluated, c.actionsDispatched, c.evaluationDuration, c.evaluations)
	return c
}

// RuleEvaluated implements rules.Observer.
func (c *Collector) RuleEvaluated(_ *types.Rule, triggered bool, elapsed time.Duration) {
	label := "false"
	if triggered {
		label = "true"
	}
	c.rulesEvaluated.WithLabelValues(label).Inc()
	c.evaluationDuration.Observe(elapsed.Seconds())
}

// ActionDispatched implements rules.Observer.
func (c *Collector) ActionDispatched(_ *types.Rule, result *rules.ActionResult) {
	c.actionsDispatched.WithLabelValues(result.ActionName, string(result.Status)).Inc()
}

// EvaluationCompleted counts one service request.
func (c *Collector) EvaluationCompleted(mode, code string) {
	c.evaluations.WithLabelValues(mode, code).Inc()
}

// Registry returns the registry the metrics are registered with.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler returns an HTTP handler for the Prometheus metrics endpoint.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	})
}
