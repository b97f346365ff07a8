package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
	"github.com/Xolot-32/lax-clock/go/internal/gameclock/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const publishTimeout = 5 * time.Second

// MetricsCollector defines what the forwarder reports
type MetricsCollector interface {
	RecordPublish(eventType string, ok bool)
}

type noOpMetrics struct{}

func (noOpMetrics) RecordPublish(eventType string, ok bool) {}

// Forwarder turns committed snapshots into game events and hands them to a publisher
type Forwarder struct {
	publisher EventPublisher
	metrics   MetricsCollector
	newID     func() string

	mu            sync.Mutex
	running       bool
	published     uint64
	failed        uint64
	lastPublished time.Time
	lastErr       error
}

func NewForwarder(publisher EventPublisher, metrics MetricsCollector) *Forwarder {
	if metrics == nil {
		metrics = noOpMetrics{}
	}
	return &Forwarder{
		publisher: publisher,
		metrics:   metrics,
		newID:     func() string { return uuid.New().String() },
	}
}

// Run consumes snapshots until ctx is done or the channel is closed.
// Publish failures are logged and counted; they never stop the forwarder.
func (f *Forwarder) Run(ctx context.Context, snapshots <-chan gameclock.Snapshot) error {
	f.setRunning(true)
	defer f.setRunning(false)
	log.Info().Msg("event forwarder started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event forwarder shutting down")
			return nil
		case snap, ok := <-snapshots:
			if !ok {
				log.Info().Msg("snapshot stream closed, event forwarder stopping")
				return nil
			}
			f.forward(ctx, snap)
		}
	}
}

func (f *Forwarder) forward(ctx context.Context, snap gameclock.Snapshot) {
	envs, err := Envelopes(snap, f.newID)
	if err != nil {
		log.Error().Err(err).Uint64("seq", snap.Seq).Msg("failed to build game events")
		return
	}

	for _, env := range envs {
		pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
		err := f.publisher.Publish(pubCtx, env)
		cancel()

		f.metrics.RecordPublish(env.EventType, err == nil)
		f.record(err)
		if err != nil {
			log.Error().
				Err(err).
				Str("event_type", env.EventType).
				Str("event_id", env.EventID).
				Msg("failed to publish game event")
		}
	}
}

// Envelopes builds the events a snapshot carries: one IntentApplied for an
// intent snapshot and one event per tick effect. Other snapshots carry none.
func Envelopes(snap gameclock.Snapshot, newID func() string) ([]events.Envelope, error) {
	var out []events.Envelope

	add := func(eventType string, payload any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		out = append(out, events.Envelope{
			EventID:   newID(),
			EventType: eventType,
			GameID:    snap.GameID,
			Seq:       snap.Seq,
			Timestamp: snap.At.UTC(),
			Payload:   data,
		})
		return nil
	}

	if snap.Cause == gameclock.CauseIntent && snap.Intent != nil {
		err := add(events.EventTypeIntentApplied, events.IntentAppliedPayload{
			Intent:    string(snap.Intent.Type),
			Team:      string(snap.Intent.Team),
			Delta:     snap.Intent.Delta,
			Seconds:   snap.Intent.Seconds,
			GameTime:  snap.GameTime,
			ShotClock: snap.ShotClock,
			AppliedAt: snap.At.UTC(),
		})
		if err != nil {
			return nil, err
		}
	}

	for _, effect := range snap.Effects {
		var payload any
		switch effect.Type {
		case events.EffectPenaltyExpired:
			payload = events.PenaltyExpiredPayload{
				PenaltyID:   effect.PenaltyID,
				Team:        effect.Team,
				DurationSec: effect.Duration,
				GameTime:    snap.GameTime,
				ExpiredAt:   snap.At.UTC(),
			}
		default:
			payload = events.ClockExpiredPayload{
				GameTime:  snap.GameTime,
				ExpiredAt: snap.At.UTC(),
			}
		}
		if err := add(string(effect.Type), payload); err != nil {
			return nil, err
		}
	}

	return out, nil
}

func (f *Forwarder) setRunning(running bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = running
}

func (f *Forwarder) record(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastErr = err
	if err != nil {
		f.failed++
		return
	}
	f.published++
	f.lastPublished = time.Now()
}

// ForwarderStats is a point-in-time view of the forwarder's progress
type ForwarderStats struct {
	Running       bool
	Published     uint64
	Failed        uint64
	LastPublished time.Time
	LastErr       error
}

// Stats returns the forwarder's counters
func (f *Forwarder) Stats() ForwarderStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return ForwarderStats{
		Running:       f.running,
		Published:     f.published,
		Failed:        f.failed,
		LastPublished: f.lastPublished,
		LastErr:       f.lastErr,
	}
}
