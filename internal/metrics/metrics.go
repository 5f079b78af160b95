// Package metrics declares the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evervoice_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "evervoice_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	SynthesisCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evervoice_synthesis_total",
			Help: "Speech synthesis attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	VoiceOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evervoice_voice_operations_total",
			Help: "Provider voice operations (clone, train, delete) by outcome",
		},
		[]string{"op", "outcome"},
	)

	ActiveGuestSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "evervoice_active_guest_sessions",
			Help: "Number of open guest sessions",
		},
	)

	GuestSessionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evervoice_guest_sessions_closed_total",
			Help: "Guest sessions closed, by reason",
		},
		[]string{"reason"},
	)

	WizardSteps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evervoice_wizard_steps_total",
			Help: "Wizard step submissions by step and outcome",
		},
		[]string{"step", "outcome"},
	)
)

// Outcome label values.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)
