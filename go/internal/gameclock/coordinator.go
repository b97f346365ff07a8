package gameclock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock/events"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

const (
	tickInterval         = time.Second
	subscriberBufferSize = 64
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) clockwork.Ticker
}

// MetricsCollector defines what the coordinator reports about its own activity
type MetricsCollector interface {
	RecordIntent(intent string, applied bool)
	RecordTick(applied bool)
	RecordEffect(effect string)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordIntent(intent string, applied bool) {}
func (NoOpMetricsCollector) RecordTick(applied bool)                  {}
func (NoOpMetricsCollector) RecordEffect(effect string)               {}

// Cause says which transition produced a snapshot
type Cause string

const (
	CauseInit   Cause = "init"
	CauseIntent Cause = "intent"
	CauseTick   Cause = "tick"
)

// Display carries preformatted clock values for scoreboard rendering
type Display struct {
	GameTime    string `json:"game_time"`
	TimeoutTime string `json:"timeout_time"`
}

// Snapshot is a committed, read-only view of the game state
type Snapshot struct {
	State
	GameID  string          `json:"game_id"`
	Seq     uint64          `json:"seq"`
	Cause   Cause           `json:"cause"`
	Intent  *Intent         `json:"intent,omitempty"`
	Effects []events.Effect `json:"effects,omitempty"`
	Display Display         `json:"display"`
	At      time.Time       `json:"at"`
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.State = s.State.clone()
	if s.Effects != nil {
		out.Effects = append([]events.Effect(nil), s.Effects...)
	}
	if s.Intent != nil {
		in := *s.Intent
		out.Intent = &in
	}
	return out
}

// Option configures a Coordinator
type Option func(*Coordinator)

// WithClock replaces the real clock, typically with a clockwork.FakeClock
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithIDGenerator replaces the penalty ID generator
func WithIDGenerator(newID func() string) Option {
	return func(c *Coordinator) { c.newID = newID }
}

// WithMetrics attaches a metrics collector
func WithMetrics(m MetricsCollector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithGameID sets the identifier stamped on every snapshot
func WithGameID(id string) Option {
	return func(c *Coordinator) { c.id = id }
}

// Coordinator owns all clock state for one game. Intents and ticks are each
// applied as a single critical section, so readers only ever see committed
// snapshots.
type Coordinator struct {
	id      string
	rules   Rules
	clock   Clock
	newID   func() string
	metrics MetricsCollector

	mu     sync.Mutex
	state  State
	seq    uint64
	last   Snapshot
	closed bool

	// tick driver; armGen changes every time the ticker is re-armed
	ticker clockwork.Ticker
	armGen uint64
	wakeCh chan struct{}

	subs    map[uint64]chan Snapshot
	nextSub uint64
}

// NewCoordinator creates a coordinator holding the pre-game state for rules
func NewCoordinator(rules Rules, opts ...Option) *Coordinator {
	c := &Coordinator{
		id:      uuid.New().String(),
		rules:   rules,
		clock:   clockwork.NewRealClock(),
		newID:   func() string { return uuid.New().String() },
		metrics: NoOpMetricsCollector{},
		state:   NewState(rules),
		wakeCh:  make(chan struct{}, 1),
		subs:    make(map[uint64]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.last = c.buildSnapshotLocked(CauseInit, nil, nil)
	return c
}

// ID returns the game identifier
func (c *Coordinator) ID() string {
	return c.id
}

// Rules returns the rules the game was created with
func (c *Coordinator) Rules() Rules {
	return c.rules
}

// Snapshot returns the latest committed state
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last.clone()
}

// Subscribe returns a channel receiving every committed snapshot and a
// function that cancels the subscription. Snapshots are dropped for a
// subscriber whose buffer is full.
func (c *Coordinator) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, subscriberBufferSize)
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[id]; ok {
			delete(c.subs, id)
			close(sub)
		}
	}
}

// ToggleGameClock starts or pauses the game clock
func (c *Coordinator) ToggleGameClock() (Snapshot, error) {
	return c.Apply(Intent{Type: IntentToggleGameClock})
}

// ResetShotClock puts the shot clock back to its full length and runs it
func (c *Coordinator) ResetShotClock() (Snapshot, error) {
	return c.Apply(Intent{Type: IntentResetShotClock})
}

// CallTimeout spends one of team's timeouts and freezes the game
func (c *Coordinator) CallTimeout(team Team) (Snapshot, error) {
	return c.Apply(Intent{Type: IntentCallTimeout, Team: team})
}

// AdjustScore adds delta to team's score, never going below zero
func (c *Coordinator) AdjustScore(team Team, delta int) (Snapshot, error) {
	return c.Apply(Intent{Type: IntentAdjustScore, Team: team, Delta: delta})
}

// AddPenalty starts a new penalty countdown against team
func (c *Coordinator) AddPenalty(team Team, seconds int) (Snapshot, error) {
	return c.Apply(Intent{Type: IntentAddPenalty, Team: team, Seconds: seconds})
}

// AdjustGameTime adds delta seconds to the game clock, never going below zero
func (c *Coordinator) AdjustGameTime(delta int) (Snapshot, error) {
	return c.Apply(Intent{Type: IntentAdjustGameTime, Delta: delta})
}

// Apply validates and applies an intent. A rejected intent leaves the state
// untouched and returns the current snapshot with an error.
func (c *Coordinator) Apply(in Intent) (Snapshot, error) {
	if err := in.Validate(); err != nil {
		c.metrics.RecordIntent("invalid", false)
		log.Warn().Err(err).Str("game_id", c.id).Msg("invalid intent")
		return c.Snapshot(), err
	}
	if team, err := ParseTeam(string(in.Team)); err == nil {
		in.Team = team
	} else {
		in.Team = ""
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	next, applied := ApplyIntent(c.rules, c.state, in, c.newID)
	c.metrics.RecordIntent(string(in.Type), applied)
	if !applied {
		log.Warn().
			Str("game_id", c.id).
			Str("intent", string(in.Type)).
			Str("team", string(in.Team)).
			Msg("intent rejected")
		return c.last.clone(), rejectionError(in)
	}

	snap := c.commitLocked(next, CauseIntent, &in, nil)

	log.Info().
		Str("game_id", c.id).
		Str("intent", string(in.Type)).
		Str("team", string(in.Team)).
		Int("delta", in.Delta).
		Int("seconds", in.Seconds).
		Str("game_time", snap.Display.GameTime).
		Int("shot_clock", snap.ShotClock).
		Msg("intent applied")

	return snap, nil
}

func rejectionError(in Intent) error {
	switch in.Type {
	case IntentCallTimeout:
		return fmt.Errorf("%w for %s", ErrTimeoutUnavailable, in.Team)
	case IntentAddPenalty:
		return fmt.Errorf("%w: %d", ErrInvalidDuration, in.Seconds)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Type)
	}
}

// Run drives the one-second tick until ctx is cancelled. Only one Run loop
// may be active per coordinator.
func (c *Coordinator) Run(ctx context.Context) error {
	log.Info().Str("game_id", c.id).Msg("tick driver started")

	tickCh, gen := c.armed()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			log.Info().Str("game_id", c.id).Msg("tick driver stopped")
			return nil
		case <-c.wakeCh:
			tickCh, gen = c.armed()
		case <-tickCh:
			c.tick(gen)
		}
	}
}

// armed returns the current ticker channel and the generation it belongs to
func (c *Coordinator) armed() (<-chan time.Time, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ticker == nil {
		return nil, c.armGen
	}
	return c.ticker.Chan(), c.armGen
}

// tick applies one second to the state if the firing still belongs to the
// current arm and the outer gate is still open at fire time
func (c *Coordinator) tick(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.armGen || !c.state.gateOpen() {
		c.metrics.RecordTick(false)
		log.Debug().
			Str("game_id", c.id).
			Uint64("tick_gen", gen).
			Uint64("current_gen", c.armGen).
			Msg("discarded stale tick")
		return
	}

	next, effects := ApplyTick(c.state)
	c.metrics.RecordTick(true)
	for _, e := range effects {
		c.metrics.RecordEffect(string(e.Type))
		log.Info().
			Str("game_id", c.id).
			Str("effect", string(e.Type)).
			Str("team", e.Team).
			Str("penalty_id", e.PenaltyID).
			Str("game_time", FormatClock(next.GameTime)).
			Msg("clock effect")
	}

	c.commitLocked(next, CauseTick, nil, effects)
}

// commitLocked installs next as the current state, re-arms the tick driver
// if any run flag changed and fans the snapshot out to subscribers
func (c *Coordinator) commitLocked(next State, cause Cause, in *Intent, effects []events.Effect) Snapshot {
	changed := next.flags() != c.state.flags()
	c.state = next
	c.seq++
	if changed {
		c.rearmLocked()
	}

	c.last = c.buildSnapshotLocked(cause, in, effects)
	for id, sub := range c.subs {
		select {
		case sub <- c.last.clone():
		default:
			log.Warn().
				Str("game_id", c.id).
				Uint64("subscriber", id).
				Uint64("seq", c.last.Seq).
				Msg("subscriber buffer full, dropping snapshot")
		}
	}
	return c.last.clone()
}

// rearmLocked replaces the ticker so the next firing is a full second away,
// and bumps the generation so firings from the old ticker are discarded
func (c *Coordinator) rearmLocked() {
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	c.armGen++
	if c.state.gateOpen() && !c.closed {
		c.ticker = c.clock.NewTicker(tickInterval)
	}

	select {
	case c.wakeCh <- struct{}{}:
	default:
	}

	log.Debug().
		Str("game_id", c.id).
		Uint64("gen", c.armGen).
		Bool("armed", c.ticker != nil).
		Msg("tick driver re-armed")
}

func (c *Coordinator) buildSnapshotLocked(cause Cause, in *Intent, effects []events.Effect) Snapshot {
	return Snapshot{
		State:   c.state.clone(),
		GameID:  c.id,
		Seq:     c.seq,
		Cause:   cause,
		Intent:  in,
		Effects: effects,
		Display: Display{
			GameTime:    FormatClock(c.state.GameTime),
			TimeoutTime: FormatClock(c.state.TimeoutTime),
		},
		At: c.clock.Now(),
	}
}

func (c *Coordinator) shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.ticker != nil {
		c.ticker.Stop()
		c.ticker = nil
	}
	for id, sub := range c.subs {
		delete(c.subs, id)
		close(sub)
	}
}
