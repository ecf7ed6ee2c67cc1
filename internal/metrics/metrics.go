// Package metrics holds the Prometheus collectors for basket.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "basket"

// Metrics groups the collectors updated by the store adapter and the list.
type Metrics struct {
	Loads         *prometheus.CounterVec // result: ok, degraded
	Writes        *prometheus.CounterVec // op: replace, append, update, delete; result: ok, error
	Actions       *prometheus.CounterVec // kind; result: applied, ignored
	PendingWrites prometheus.Gauge
	Items         prometheus.Gauge
	Dirty         prometheus.Gauge
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to avoid global state.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Loads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loads_total",
			Help:      "Full loads from the tabular store.",
		}, []string{"result"}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Write operations sent to the tabular store.",
		}, []string{"op", "result"}),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Toggle and delete actions received.",
		}, []string{"kind", "result"}),
		PendingWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_writes",
			Help:      "Writes queued but not yet flushed.",
		}),
		Items: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "items",
			Help:      "Items in the cached collection.",
		}),
		Dirty: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dirty",
			Help:      "1 when the cached collection has unflushed edits.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Loads, m.Writes, m.Actions, m.PendingWrites, m.Items, m.Dirty)
	}
	return m
}

// Nop returns unregistered collectors.
func Nop() *Metrics {
	return New(nil)
}

// Result labels.
const (
	ResultOK       = "ok"
	ResultError    = "error"
	ResultDegraded = "degraded"
	ResultApplied  = "applied"
	ResultIgnored  = "ignored"
)

// Result maps an error to the ok/error label.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Bool returns 1 for true and 0 for false.
func Bool(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
