// Package metrics exposes the widget driver's Prometheus instrumentation:
// actions dispatched by the orchestrator, capability denials issued by the
// state machine, and pending-registry saturation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "widgetdriver"

// ActionsDispatched counts actions the orchestrator has executed, labelled
// by action kind and outcome ("ok" or "error").
var ActionsDispatched = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "orchestrator",
		Name:      "actions_dispatched_total",
		Help:      "Number of widget actions executed by the orchestrator.",
	},
	[]string{"kind", "outcome"},
)

// CapabilityDenials counts requests the state machine refused for lack of
// an approved capability, labelled by the widget action that was denied.
var CapabilityDenials = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "statemachine",
		Name:      "capability_denials_total",
		Help:      "Number of fromWidget requests refused for lack of an approved capability.",
	},
	[]string{"action"},
)

// PendingRegistrySize reports the current number of tracked pending
// requests, sampled by the orchestrator after each inbound widget frame.
var PendingRegistrySize = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pending",
		Name:      "registry_size",
		Help:      "Number of requests currently tracked in the pending registry.",
	},
)

// PendingRegistryRejections counts inserts refused because the registry was
// already at its configured capacity.
var PendingRegistryRejections = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pending",
		Name:      "registry_rejections_total",
		Help:      "Number of pending-request inserts rejected as too_many_pending.",
	},
)
