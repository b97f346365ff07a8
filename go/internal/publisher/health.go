package publisher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy         bool      `json:"healthy"`
	ForwarderActive bool      `json:"forwarder_active"`
	NATSEnabled     bool      `json:"nats_enabled"`
	NATSConnected   bool      `json:"nats_connected"`
	EventsPublished uint64    `json:"events_published"`
	EventsFailed    uint64    `json:"events_failed"`
	LastEventTime   time.Time `json:"last_event_time"`
	Errors          []string  `json:"errors"`
}

// connectionChecker is implemented by publishers backed by a broker connection
type connectionChecker interface {
	IsConnected() bool
}

type HealthChecker struct {
	forwarder *Forwarder
	publisher EventPublisher
}

func NewHealthChecker(forwarder *Forwarder, publisher EventPublisher) *HealthChecker {
	return &HealthChecker{
		forwarder: forwarder,
		publisher: publisher,
	}
}

func (h *HealthChecker) Check() HealthStatus {
	stats := h.forwarder.Stats()
	status := HealthStatus{
		Healthy:         true,
		ForwarderActive: stats.Running,
		EventsPublished: stats.Published,
		EventsFailed:    stats.Failed,
		LastEventTime:   stats.LastPublished,
		Errors:          []string{},
	}

	if !status.ForwarderActive {
		status.Healthy = false
		status.Errors = append(status.Errors, "forwarder not active")
	}

	if cc, ok := h.publisher.(connectionChecker); ok {
		status.NATSEnabled = true
		status.NATSConnected = cc.IsConnected()
		if !status.NATSConnected {
			status.Healthy = false
			status.Errors = append(status.Errors, "NATS disconnected")
		}
	}

	// the feed is degraded, not down, while the last publish is failing
	if stats.LastErr != nil {
		status.Errors = append(status.Errors, fmt.Sprintf("last publish failed: %v", stats.LastErr))
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
