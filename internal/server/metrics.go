package server

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RoyPeng126/ai-companion-sub000/internal/intent"
	"github.com/RoyPeng126/ai-companion-sub000/internal/wizard"
)

// Metrics counts voice commands, wizard transitions and chat turns. It is
// both the assistant and the wizard observer.
type Metrics struct {
	intents      *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	chatTurns    *prometheus.CounterVec
	chatDuration *prometheus.HistogramVec
	gatherer     prometheus.Gatherer
}

// MustNewMetrics registers the collectors with reg and panics on a duplicate
// registration. A nil reg uses a fresh registry.
func MustNewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	intents := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "voice",
			Name:      "commands_total",
			Help:      "Voice commands executed, by intent and result.",
		},
		[]string{"intent", "result"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "wizard",
			Name:      "transitions_total",
			Help:      "Activity wizard stage changes.",
		},
		[]string{"from", "to"},
	)
	chatTurns := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "companion",
			Subsystem: "chat",
			Name:      "turns_total",
			Help:      "Chat requests by how they were answered.",
		},
		[]string{"source"},
	)
	chatDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "companion",
			Subsystem: "chat",
			Name:      "turn_duration_seconds",
			Help:      "Time to answer one chat request.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	reg.MustRegister(intents, transitions, chatTurns, chatDuration)

	return &Metrics{
		intents:      intents,
		transitions:  transitions,
		chatTurns:    chatTurns,
		chatDuration: chatDuration,
		gatherer:     reg,
	}
}

func (m *Metrics) IntentHandled(kind intent.Kind, result string) {
	if m == nil {
		return
	}
	m.intents.WithLabelValues(string(kind), result).Inc()
}

func (m *Metrics) WizardTransition(from, to wizard.Stage) {
	if m == nil {
		return
	}
	if from == "" {
		from = "none"
	}
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

func (m *Metrics) observeChat(source string, started time.Time) {
	if m == nil {
		return
	}
	m.chatTurns.WithLabelValues(source).Inc()
	m.chatDuration.WithLabelValues(source).Observe(time.Since(started).Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
