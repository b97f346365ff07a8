package events

import (
	"encoding/json"
	"time"
)

// Event payload types that are shared between the gameclock, gateway and publisher packages

// EffectType names a side effect produced by the tick driver
type EffectType string

const (
	EffectGameClockExpired EffectType = "GameClockExpired"
	EffectShotClockExpired EffectType = "ShotClockExpired"
	EffectTimeoutEnded     EffectType = "TimeoutEnded"
	EffectPenaltyExpired   EffectType = "PenaltyExpired"
)

// Effect is an automatic transition taken by the tick driver, never by an intent
type Effect struct {
	Type      EffectType `json:"type"`
	Team      string     `json:"team,omitempty"`
	PenaltyID string     `json:"penalty_id,omitempty"`
	Duration  int        `json:"duration_sec,omitempty"`
}

// Event types published on the game event feed
const (
	EventTypeIntentApplied    = "IntentApplied"
	EventTypeGameClockExpired = string(EffectGameClockExpired)
	EventTypeShotClockExpired = string(EffectShotClockExpired)
	EventTypeTimeoutEnded     = string(EffectTimeoutEnded)
	EventTypePenaltyExpired   = string(EffectPenaltyExpired)
)

// Envelope wraps every event published on the game feed
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	GameID    string          `json:"gameId"`
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// IntentAppliedPayload is the payload for an IntentApplied event
type IntentAppliedPayload struct {
	Intent    string    `json:"intent"`
	Team      string    `json:"team,omitempty"`
	Delta     int       `json:"delta,omitempty"`
	Seconds   int       `json:"seconds,omitempty"`
	GameTime  int       `json:"game_time"`
	ShotClock int       `json:"shot_clock"`
	AppliedAt time.Time `json:"applied_at"`
}

// ClockExpiredPayload is the payload for GameClockExpired, ShotClockExpired and TimeoutEnded events
type ClockExpiredPayload struct {
	GameTime  int       `json:"game_time"`
	ExpiredAt time.Time `json:"expired_at"`
}

// PenaltyExpiredPayload is the payload for a PenaltyExpired event
type PenaltyExpiredPayload struct {
	PenaltyID   string    `json:"penalty_id"`
	Team        string    `json:"team"`
	DurationSec int       `json:"duration_sec"`
	GameTime    int       `json:"game_time"`
	ExpiredAt   time.Time `json:"expired_at"`
}
