package gateway

import (
	"errors"
	"net/http"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock"
)

var errMalformedIntent = errors.New("malformed intent")

// MessageType identifies a frame pushed to scoreboard clients
type MessageType string

const (
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeError    MessageType = "error"
)

// Message is the structure of every frame the gateway writes to a WebSocket
type Message struct {
	Type     MessageType         `json:"type"`
	Snapshot *gameclock.Snapshot `json:"snapshot,omitempty"`
	Error    string              `json:"error,omitempty"`
	Code     int                 `json:"code,omitempty"`
}

func snapshotMessage(snap gameclock.Snapshot) Message {
	return Message{Type: MessageTypeSnapshot, Snapshot: &snap}
}

func errorMessage(err error) Message {
	return Message{Type: MessageTypeError, Error: err.Error(), Code: statusFor(err)}
}

// statusFor maps an intent error to the HTTP status reported to clients.
// Malformed intents are the caller's fault; a well-formed intent the game
// state refuses is a conflict.
func statusFor(err error) int {
	switch {
	case errors.Is(err, gameclock.ErrTimeoutUnavailable):
		return http.StatusConflict
	case errors.Is(err, errMalformedIntent),
		errors.Is(err, gameclock.ErrUnknownIntent),
		errors.Is(err, gameclock.ErrUnknownTeam),
		errors.Is(err, gameclock.ErrInvalidDuration):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
