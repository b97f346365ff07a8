package gameclock

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownTeam        = errors.New("unknown team")
	ErrUnknownIntent      = errors.New("unknown intent")
	ErrInvalidDuration    = errors.New("penalty duration must not be negative")
	ErrTimeoutUnavailable = errors.New("timeout unavailable")
)

// Team identifies one side of the game
type Team string

const (
	TeamHome Team = "home"
	TeamAway Team = "away"
)

// ParseTeam validates a team name received at the boundary
func ParseTeam(s string) (Team, error) {
	switch Team(strings.ToLower(strings.TrimSpace(s))) {
	case TeamHome:
		return TeamHome, nil
	case TeamAway:
		return TeamAway, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTeam, s)
	}
}

func (t Team) valid() bool {
	return t == TeamHome || t == TeamAway
}

// Rules holds the durations and allowances a game is played with
type Rules struct {
	GameSeconds      int   `json:"game_seconds" yaml:"game_seconds"`
	ShotClockSeconds int   `json:"shot_clock_seconds" yaml:"shot_clock_seconds"`
	TimeoutSeconds   int   `json:"timeout_seconds" yaml:"timeout_seconds"`
	TimeoutsPerTeam  int   `json:"timeouts_per_team" yaml:"timeouts_per_team"`
	PenaltyPresets   []int `json:"penalty_presets_sec" yaml:"penalty_presets_sec"`
	GameTimeNudge    int   `json:"game_time_nudge_sec" yaml:"game_time_nudge_sec"`
}

// DefaultRules returns the standard eight minute lacrosse period setup
func DefaultRules() Rules {
	return Rules{
		GameSeconds:      480,
		ShotClockSeconds: 30,
		TimeoutSeconds:   90,
		TimeoutsPerTeam:  4,
		PenaltyPresets:   []int{30, 60},
		GameTimeNudge:    10,
	}
}

// Validate checks that every duration is usable
func (r Rules) Validate() error {
	if r.GameSeconds < 0 {
		return fmt.Errorf("game_seconds must not be negative, got %d", r.GameSeconds)
	}
	if r.ShotClockSeconds <= 0 {
		return fmt.Errorf("shot_clock_seconds must be positive, got %d", r.ShotClockSeconds)
	}
	if r.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", r.TimeoutSeconds)
	}
	if r.TimeoutsPerTeam < 0 {
		return fmt.Errorf("timeouts_per_team must not be negative, got %d", r.TimeoutsPerTeam)
	}
	for _, p := range r.PenaltyPresets {
		if p <= 0 {
			return fmt.Errorf("penalty preset must be positive, got %d", p)
		}
	}
	return nil
}

// Tally is a per-team integer (score, remaining timeouts)
type Tally struct {
	Home int `json:"home"`
	Away int `json:"away"`
}

// Get returns the value for a team
func (t Tally) Get(team Team) int {
	if team == TeamAway {
		return t.Away
	}
	return t.Home
}

// Set stores the value for a team
func (t *Tally) Set(team Team, v int) {
	if team == TeamAway {
		t.Away = v
		return
	}
	t.Home = v
}

// Penalty is a time-based sanction counting down against a team
type Penalty struct {
	ID       string `json:"id"`
	Team     Team   `json:"team"`
	Duration int    `json:"duration_sec"`
	TimeLeft int    `json:"time_left_sec"`
}

// State is the complete time-valued state owned by the coordinator.
// Transitions never mutate a State in place; they return a new one.
type State struct {
	GameTime      int       `json:"game_time"`
	GameRunning   bool      `json:"game_running"`
	ShotClock     int       `json:"shot_clock"`
	ShotRunning   bool      `json:"shot_running"`
	Score         Tally     `json:"score"`
	Timeouts      Tally     `json:"timeouts"`
	TimeoutActive bool      `json:"timeout_active"`
	TimeoutTime   int       `json:"timeout_time"`
	Penalties     []Penalty `json:"penalties"`
}

// NewState returns the pre-game state for a set of rules
func NewState(rules Rules) State {
	return State{
		GameTime:  rules.GameSeconds,
		ShotClock: rules.ShotClockSeconds,
		Timeouts:  Tally{Home: rules.TimeoutsPerTeam, Away: rules.TimeoutsPerTeam},
		Penalties: []Penalty{},
	}
}

func (s State) clone() State {
	out := s
	out.Penalties = make([]Penalty, len(s.Penalties))
	copy(out.Penalties, s.Penalties)
	return out
}

// gateOpen reports whether the tick driver should be armed
func (s State) gateOpen() bool {
	return s.GameRunning || s.TimeoutActive
}

// runFlags is the tuple whose change re-arms the tick driver
type runFlags struct {
	game, shot, timeout bool
}

func (s State) flags() runFlags {
	return runFlags{game: s.GameRunning, shot: s.ShotRunning, timeout: s.TimeoutActive}
}

func clampZero(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
