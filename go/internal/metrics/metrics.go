package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "laxclock"

// Recorder implements the gameclock and gateway metrics collectors on a
// private Prometheus registry. A nil *Recorder is safe to use and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	intents        *prometheus.CounterVec
	ticks          *prometheus.CounterVec
	effects        *prometheus.CounterVec
	connections    prometheus.Gauge
	clientMessages *prometheus.CounterVec
	published      *prometheus.CounterVec
}

// NewRecorder creates a recorder with all collectors registered
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()

	r := &Recorder{
		registry: reg,
		intents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intents_total",
			Help:      "Intents received by the clock coordinator, by type and result.",
		}, []string{"intent", "result"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Tick driver firings, split into applied and discarded.",
		}, []string{"result"}),
		effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clock_effects_total",
			Help:      "Automatic clock transitions such as expiries.",
		}, []string{"effect"}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Currently connected scoreboard clients.",
		}),
		clientMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "client_messages_total",
			Help:      "Intent messages received over WebSocket, by result.",
		}, []string{"result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Game events handed to the event publisher, by type and result.",
		}, []string{"event_type", "result"}),
	}

	reg.MustRegister(r.intents, r.ticks, r.effects, r.connections, r.clientMessages, r.published)
	return r
}

// Handler exposes the registry for scraping
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// RecordIntent counts an intent as applied or rejected
func (r *Recorder) RecordIntent(intent string, applied bool) {
	if r == nil {
		return
	}
	r.intents.WithLabelValues(intent, result(applied)).Inc()
}

// RecordTick counts a tick firing as applied or discarded
func (r *Recorder) RecordTick(applied bool) {
	if r == nil {
		return
	}
	if applied {
		r.ticks.WithLabelValues("applied").Inc()
		return
	}
	r.ticks.WithLabelValues("discarded").Inc()
}

// RecordEffect counts an automatic clock transition
func (r *Recorder) RecordEffect(effect string) {
	if r == nil {
		return
	}
	r.effects.WithLabelValues(effect).Inc()
}

// RecordConnections sets the number of live WebSocket clients
func (r *Recorder) RecordConnections(n int) {
	if r == nil {
		return
	}
	r.connections.Set(float64(n))
}

// RecordClientMessage counts an intent message from a WebSocket client
func (r *Recorder) RecordClientMessage(ok bool) {
	if r == nil {
		return
	}
	r.clientMessages.WithLabelValues(result(ok)).Inc()
}

// RecordPublish counts an event handed to the publisher
func (r *Recorder) RecordPublish(eventType string, ok bool) {
	if r == nil {
		return
	}
	r.published.WithLabelValues(eventType, result(ok)).Inc()
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
