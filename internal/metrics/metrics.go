// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Delivery paths for NotificationsDelivered.
const (
	PathProactive = "proactive" // sent at injection time
	PathGreeting  = "greeting"  // drained on the user's next greeting
)

// Placeholder replacement tiers for PlaceholderFallbacks.
const (
	TierUpdate     = "update"
	TierSendDelete = "send_delete"
	TierSendOnly   = "send_only"
)

var (
	// DocumentsInjected counts documents added through injection.
	DocumentsInjected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "signoff_documents_injected_total",
			Help: "Documents added through the injection flow",
		},
	)

	// NotificationsQueued counts notification queue admissions.
	NotificationsQueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_notifications_queued_total",
			Help: "Notifications admitted to the queue",
		},
		[]string{"kind"}, // "broadcast" or "targeted"
	)

	// NotificationsDelivered counts "new document" cards sent to users.
	NotificationsDelivered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_notifications_delivered_total",
			Help: "New-document cards delivered",
		},
		[]string{"path"},
	)

	// PlaceholderFallbacks counts how a loading placeholder was replaced.
	PlaceholderFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_placeholder_fallbacks_total",
			Help: "Loading placeholder replacements by tier",
		},
		[]string{"tier"},
	)

	// DocumentTransitions counts approve/reject state changes.
	DocumentTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_document_transitions_total",
			Help: "Document workflow transitions",
		},
		[]string{"state"},
	)

	// LLMCalls counts LLM requests by operation and outcome.
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_llm_calls_total",
			Help: "LLM calls by operation and status",
		},
		[]string{"op", "status"},
	)

	// LLMDuration tracks LLM call latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signoff_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"op"},
	)

	// RequestsTotal tracks injection API requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signoff_api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// RequestDuration tracks injection API latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "signoff_api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"method", "path"},
	)
)
