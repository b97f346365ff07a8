package gameclock

import (
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock/events"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("penalty-%d", n)
	}
}

func mustApply(t *testing.T, s State, in Intent) State {
	t.Helper()
	next, ok := ApplyIntent(DefaultRules(), s, in, sequentialIDs())
	if !ok {
		t.Fatalf("intent %s unexpectedly rejected", in.Type)
	}
	return next
}

func ticks(s State, n int) State {
	for i := 0; i < n; i++ {
		s, _ = ApplyTick(s)
	}
	return s
}

func TestNewStateUsesRules(t *testing.T) {
	s := NewState(DefaultRules())
	if s.GameTime != 480 || s.ShotClock != 30 {
		t.Fatalf("expected 480/30, got %d/%d", s.GameTime, s.ShotClock)
	}
	if s.Timeouts.Home != 4 || s.Timeouts.Away != 4 {
		t.Fatalf("expected 4 timeouts per team, got %+v", s.Timeouts)
	}
	if s.GameRunning || s.ShotRunning || s.TimeoutActive {
		t.Fatalf("expected all clocks stopped, got %+v", s)
	}
}

func TestStartingGameClockStartsShotClock(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentToggleGameClock})
	if !s.GameRunning || !s.ShotRunning {
		t.Fatalf("expected game and shot running, got %+v", s)
	}

	s = ticks(s, 5)
	if s.GameTime != 475 || s.ShotClock != 25 {
		t.Fatalf("expected 475/25 after 5 ticks, got %d/%d", s.GameTime, s.ShotClock)
	}
}

func TestResetShotClockWhileRunning(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentToggleGameClock})
	s = ticks(s, 5)

	s = mustApply(t, s, Intent{Type: IntentResetShotClock})
	if s.ShotClock != 30 || !s.ShotRunning {
		t.Fatalf("expected shot clock 30 and running, got %d running=%v", s.ShotClock, s.ShotRunning)
	}

	s = ticks(s, 1)
	if s.ShotClock != 29 || s.GameTime != 474 {
		t.Fatalf("expected 29/474, got %d/%d", s.ShotClock, s.GameTime)
	}
}

func TestResetShotClockWhilePaused(t *testing.T) {
	s := NewState(DefaultRules())
	s.ShotClock = 3

	s = mustApply(t, s, Intent{Type: IntentResetShotClock})
	if s.ShotClock != 30 || !s.ShotRunning {
		t.Fatalf("expected 30 and running, got %d running=%v", s.ShotClock, s.ShotRunning)
	}

	// the shot clock only counts while the game clock runs
	s = ticks(s, 3)
	if s.ShotClock != 30 {
		t.Fatalf("expected shot clock frozen at 30, got %d", s.ShotClock)
	}
}

func TestPausingGameClockStopsShotClock(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentToggleGameClock})
	s = mustApply(t, s, Intent{Type: IntentToggleGameClock})
	if s.GameRunning || s.ShotRunning {
		t.Fatalf("expected both stopped, got %+v", s)
	}

	s = mustApply(t, s, Intent{Type: IntentToggleGameClock})
	if !s.GameRunning || !s.ShotRunning {
		t.Fatalf("expected both resumed, got %+v", s)
	}
}

func TestCallTimeout(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentToggleGameClock})
	s = mustApply(t, s, Intent{Type: IntentCallTimeout, Team: TeamHome})

	if s.Timeouts.Home != 3 || s.Timeouts.Away != 4 {
		t.Fatalf("expected home=3 away=4, got %+v", s.Timeouts)
	}
	if s.GameRunning || s.ShotRunning {
		t.Fatalf("expected clocks stopped, got %+v", s)
	}
	if !s.TimeoutActive || s.TimeoutTime != 90 {
		t.Fatalf("expected active timeout at 90, got active=%v time=%d", s.TimeoutActive, s.TimeoutTime)
	}

	gameTime := s.GameTime
	s = ticks(s, 89)
	if !s.TimeoutActive || s.TimeoutTime != 1 {
		t.Fatalf("expected 1 second left, got active=%v time=%d", s.TimeoutActive, s.TimeoutTime)
	}

	s, effects := ApplyTick(s)
	if s.TimeoutActive || s.TimeoutTime != 0 {
		t.Fatalf("expected timeout ended, got active=%v time=%d", s.TimeoutActive, s.TimeoutTime)
	}
	if len(effects) != 1 || effects[0].Type != events.EffectTimeoutEnded {
		t.Fatalf("expected TimeoutEnded effect, got %+v", effects)
	}
	if s.GameTime != gameTime {
		t.Fatalf("game clock moved during timeout: %d -> %d", gameTime, s.GameTime)
	}
}

func TestCallTimeoutGuards(t *testing.T) {
	tests := []struct {
		name  string
		setup func(State) State
	}{
		{
			name: "no allowance left",
			setup: func(s State) State {
				s.Timeouts.Away = 0
				return s
			},
		},
		{
			name: "timeout already active",
			setup: func(s State) State {
				s.TimeoutActive = true
				s.TimeoutTime = 42
				return s
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prev := tt.setup(NewState(DefaultRules()))
			next, ok := ApplyIntent(DefaultRules(), prev, Intent{Type: IntentCallTimeout, Team: TeamAway}, sequentialIDs())
			if ok {
				t.Fatal("expected timeout to be rejected")
			}
			if next.Timeouts != prev.Timeouts || next.TimeoutTime != prev.TimeoutTime {
				t.Fatalf("rejected timeout changed state: %+v -> %+v", prev, next)
			}
		})
	}
}

func TestToggleCancelsTimeout(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentCallTimeout, Team: TeamAway})
	s = ticks(s, 10)

	s = mustApply(t, s, Intent{Type: IntentToggleGameClock})
	if s.TimeoutActive || s.TimeoutTime != 0 {
		t.Fatalf("expected timeout cancelled, got active=%v time=%d", s.TimeoutActive, s.TimeoutTime)
	}
	if !s.GameRunning || !s.ShotRunning {
		t.Fatalf("expected clocks running after toggle, got %+v", s)
	}
	if s.Timeouts.Away != 3 {
		t.Fatalf("cancelling must not refund the timeout, got %d", s.Timeouts.Away)
	}
}

func TestResetShotClockDuringTimeoutKeepsClocksFrozen(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentCallTimeout, Team: TeamHome})
	s = mustApply(t, s, Intent{Type: IntentResetShotClock})

	if s.ShotClock != 30 {
		t.Fatalf("expected shot clock reset to 30, got %d", s.ShotClock)
	}
	if s.ShotRunning {
		t.Fatal("shot clock must not run during a timeout")
	}
}

func TestShotClockExpiry(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentToggleGameClock})
	s = ticks(s, 29)
	if s.ShotClock != 1 || !s.ShotRunning {
		t.Fatalf("expected 1 second on the shot clock, got %d", s.ShotClock)
	}

	s, effects := ApplyTick(s)
	if s.ShotClock != 0 || s.ShotRunning {
		t.Fatalf("expected expired shot clock, got %d running=%v", s.ShotClock, s.ShotRunning)
	}
	if !s.GameRunning {
		t.Fatal("shot clock expiry must not stop the game clock")
	}
	if len(effects) != 1 || effects[0].Type != events.EffectShotClockExpired {
		t.Fatalf("expected ShotClockExpired, got %+v", effects)
	}

	s = ticks(s, 3)
	if s.ShotClock != 0 || s.GameTime != 480-33 {
		t.Fatalf("expected shot 0 and game %d, got %d/%d", 480-33, s.ShotClock, s.GameTime)
	}
}

func TestStartingWithEmptyShotClockClampsOnNextTick(t *testing.T) {
	s := NewState(DefaultRules())
	s.ShotClock = 0

	s = mustApply(t, s, Intent{Type: IntentToggleGameClock})
	s, effects := ApplyTick(s)
	if s.ShotClock != 0 || s.ShotRunning {
		t.Fatalf("expected shot clock stopped at 0, got %d running=%v", s.ShotClock, s.ShotRunning)
	}
	if len(effects) != 0 {
		t.Fatalf("expected no expiry for a clock that was already empty, got %+v", effects)
	}
}

func TestGameClockStaysRunningAtZero(t *testing.T) {
	s := NewState(DefaultRules())
	s.GameTime = 2
	s = mustApply(t, s, Intent{Type: IntentToggleGameClock})

	s = ticks(s, 1)
	s, effects := ApplyTick(s)
	if s.GameTime != 0 || !s.GameRunning {
		t.Fatalf("expected game clock at 0 and still running, got %d running=%v", s.GameTime, s.GameRunning)
	}
	if len(effects) != 1 || effects[0].Type != events.EffectGameClockExpired {
		t.Fatalf("expected GameClockExpired, got %+v", effects)
	}

	s, effects = ApplyTick(s)
	if s.GameTime != 0 {
		t.Fatalf("expected game clock clamped at 0, got %d", s.GameTime)
	}
	for _, e := range effects {
		if e.Type == events.EffectGameClockExpired {
			t.Fatal("GameClockExpired must only fire once")
		}
	}
}

func TestPenaltyLifecycle(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentAddPenalty, Team: TeamAway, Seconds: 30})
	if len(s.Penalties) != 1 {
		t.Fatalf("expected 1 penalty, got %d", len(s.Penalties))
	}
	p := s.Penalties[0]
	if p.Team != TeamAway || p.Duration != 30 || p.TimeLeft != 30 || p.ID == "" {
		t.Fatalf("unexpected penalty %+v", p)
	}

	t.Run("gate inactive", func(t *testing.T) {
		frozen := ticks(s, 30)
		if len(frozen.Penalties) != 1 || frozen.Penalties[0].TimeLeft != 30 {
			t.Fatalf("expected penalty untouched, got %+v", frozen.Penalties)
		}
	})

	t.Run("gate inactive during timeout", func(t *testing.T) {
		during := mustApply(t, s, Intent{Type: IntentCallTimeout, Team: TeamHome})
		during = ticks(during, 30)
		if len(during.Penalties) != 1 || during.Penalties[0].TimeLeft != 30 {
			t.Fatalf("expected penalty untouched during timeout, got %+v", during.Penalties)
		}
	})

	t.Run("gate active", func(t *testing.T) {
		running := mustApply(t, s, Intent{Type: IntentToggleGameClock})
		running = ticks(running, 29)
		if len(running.Penalties) != 1 || running.Penalties[0].TimeLeft != 1 {
			t.Fatalf("expected 1 second left, got %+v", running.Penalties)
		}

		running, effects := ApplyTick(running)
		if len(running.Penalties) != 0 {
			t.Fatalf("expected penalty removed, got %+v", running.Penalties)
		}
		var found bool
		for _, e := range effects {
			if e.Type == events.EffectPenaltyExpired && e.PenaltyID == p.ID && e.Team == "away" {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected PenaltyExpired for %s, got %+v", p.ID, effects)
		}
	})
}

func TestZeroLengthPenalty(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentAddPenalty, Team: TeamHome, Seconds: 0})
	if len(s.Penalties) != 1 || s.Penalties[0].TimeLeft != 0 || s.Penalties[0].Duration != 0 {
		t.Fatalf("expected a visible zero-length penalty, got %+v", s.Penalties)
	}

	// stays on the board while the game clock is stopped
	if paused := ticks(s, 5); len(paused.Penalties) != 1 {
		t.Fatalf("expected penalty kept while paused, got %+v", paused.Penalties)
	}

	running := mustApply(t, s, Intent{Type: IntentToggleGameClock})
	running, effects := ApplyTick(running)
	if len(running.Penalties) != 0 {
		t.Fatalf("expected penalty dropped on the first running tick, got %+v", running.Penalties)
	}
	if len(effects) != 1 || effects[0].Type != events.EffectPenaltyExpired || effects[0].Team != "home" {
		t.Fatalf("expected one PenaltyExpired effect, got %+v", effects)
	}
}

func TestApplyIntentRejectsUnknownTeam(t *testing.T) {
	prev := NewState(DefaultRules())

	for _, in := range []Intent{
		{Type: IntentAdjustScore, Team: "visitors", Delta: 1},
		{Type: IntentCallTimeout, Team: ""},
		{Type: IntentAddPenalty, Team: "HOME", Seconds: 30},
	} {
		next, ok := ApplyIntent(DefaultRules(), prev, in, sequentialIDs())
		if ok {
			t.Fatalf("%s with team %q was applied", in.Type, in.Team)
		}
		if next.Score != prev.Score || next.Timeouts != prev.Timeouts || len(next.Penalties) != 0 {
			t.Fatalf("%s with team %q changed state: %+v", in.Type, in.Team, next)
		}
	}
}

func TestPenaltiesKeepInsertionOrder(t *testing.T) {
	ids := sequentialIDs()
	s := NewState(DefaultRules())
	for _, in := range []Intent{
		{Type: IntentAddPenalty, Team: TeamHome, Seconds: 60},
		{Type: IntentAddPenalty, Team: TeamAway, Seconds: 30},
		{Type: IntentAddPenalty, Team: TeamHome, Seconds: 90},
	} {
		s, _ = ApplyIntent(DefaultRules(), s, in, ids)
	}
	s, _ = ApplyIntent(DefaultRules(), s, Intent{Type: IntentToggleGameClock}, ids)
	s = ticks(s, 30)

	if len(s.Penalties) != 2 {
		t.Fatalf("expected 2 penalties left, got %+v", s.Penalties)
	}
	if s.Penalties[0].ID != "penalty-1" || s.Penalties[1].ID != "penalty-3" {
		t.Fatalf("unexpected order %+v", s.Penalties)
	}
	if s.Penalties[0].TimeLeft != 30 || s.Penalties[1].TimeLeft != 60 {
		t.Fatalf("unexpected remaining times %+v", s.Penalties)
	}
}

func TestAdjustGameTimeClamps(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentAdjustGameTime, Delta: -500})
	if s.GameTime != 0 {
		t.Fatalf("expected 0, got %d", s.GameTime)
	}

	s = mustApply(t, s, Intent{Type: IntentAdjustGameTime, Delta: 10})
	if s.GameTime != 10 {
		t.Fatalf("expected 10, got %d", s.GameTime)
	}
}

func TestAdjustScoreClamps(t *testing.T) {
	s := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentAdjustScore, Team: TeamHome, Delta: 1})
	s = mustApply(t, s, Intent{Type: IntentAdjustScore, Team: TeamHome, Delta: -3})
	s = mustApply(t, s, Intent{Type: IntentAdjustScore, Team: TeamAway, Delta: 2})

	if s.Score.Home != 0 || s.Score.Away != 2 {
		t.Fatalf("expected 0-2, got %+v", s.Score)
	}
}

func TestApplyIntentDoesNotMutatePrev(t *testing.T) {
	prev := mustApply(t, NewState(DefaultRules()), Intent{Type: IntentAddPenalty, Team: TeamHome, Seconds: 30})
	prev = mustApply(t, prev, Intent{Type: IntentToggleGameClock})

	_, _ = ApplyTick(prev)
	_ = mustApply(t, prev, Intent{Type: IntentAddPenalty, Team: TeamAway, Seconds: 60})

	if len(prev.Penalties) != 1 || prev.Penalties[0].TimeLeft != 30 {
		t.Fatalf("prev was mutated: %+v", prev.Penalties)
	}
}

func TestIntentValidate(t *testing.T) {
	tests := []struct {
		name string
		in   Intent
		want error
	}{
		{"toggle", Intent{Type: IntentToggleGameClock}, nil},
		{"reset", Intent{Type: IntentResetShotClock}, nil},
		{"adjust time", Intent{Type: IntentAdjustGameTime, Delta: -10}, nil},
		{"timeout", Intent{Type: IntentCallTimeout, Team: TeamHome}, nil},
		{"timeout without team", Intent{Type: IntentCallTimeout}, ErrUnknownTeam},
		{"score bad team", Intent{Type: IntentAdjustScore, Team: "visitors", Delta: 1}, ErrUnknownTeam},
		{"penalty", Intent{Type: IntentAddPenalty, Team: TeamAway, Seconds: 30}, nil},
		{"penalty zero", Intent{Type: IntentAddPenalty, Team: TeamAway}, nil},
		{"penalty negative", Intent{Type: IntentAddPenalty, Team: TeamAway, Seconds: -5}, ErrInvalidDuration},
		{"unknown", Intent{Type: "Faceoff"}, ErrUnknownIntent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if tt.want == nil && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestParseTeam(t *testing.T) {
	for in, want := range map[string]Team{"home": TeamHome, "AWAY": TeamAway, " home ": TeamHome} {
		got, err := ParseTeam(in)
		if err != nil || got != want {
			t.Fatalf("ParseTeam(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseTeam("neutral"); !errors.Is(err, ErrUnknownTeam) {
		t.Fatalf("expected ErrUnknownTeam, got %v", err)
	}
}

func TestFormatClock(t *testing.T) {
	tests := map[int]string{0: "0:00", 9: "0:09", 60: "1:00", 90: "1:30", 480: "8:00", -4: "0:00"}
	for in, want := range tests {
		if got := FormatClock(in); got != want {
			t.Fatalf("FormatClock(%d) = %q, want %q", in, got, want)
		}
	}
}

// randomIntent draws from the whole intent surface, including ones the
// boundary would normally disable.
func randomIntent(r *rand.Rand) Intent {
	teams := []Team{TeamHome, TeamAway}
	switch r.Intn(6) {
	case 0:
		return Intent{Type: IntentToggleGameClock}
	case 1:
		return Intent{Type: IntentResetShotClock}
	case 2:
		return Intent{Type: IntentCallTimeout, Team: teams[r.Intn(2)]}
	case 3:
		return Intent{Type: IntentAdjustScore, Team: teams[r.Intn(2)], Delta: r.Intn(7) - 4}
	case 4:
		return Intent{Type: IntentAddPenalty, Team: teams[r.Intn(2)], Seconds: 1 + r.Intn(60)}
	default:
		return Intent{Type: IntentAdjustGameTime, Delta: r.Intn(400) - 300}
	}
}

func TestInvariantsHoldUnderRandomSequences(t *testing.T) {
	rules := DefaultRules()
	r := rand.New(rand.NewSource(7))
	ids := sequentialIDs()

	for run := 0; run < 50; run++ {
		s := NewState(rules)
		for step := 0; step < 400; step++ {
			if r.Intn(3) == 0 {
				s, _ = ApplyIntent(rules, s, randomIntent(r), ids)
			} else {
				s, _ = ApplyTick(s)
			}

			if s.GameTime < 0 || s.TimeoutTime < 0 || s.Score.Home < 0 || s.Score.Away < 0 {
				t.Fatalf("negative value at run %d step %d: %+v", run, step, s)
			}
			if s.Timeouts.Home < 0 || s.Timeouts.Away < 0 {
				t.Fatalf("negative timeout allowance at run %d step %d: %+v", run, step, s.Timeouts)
			}
			if s.ShotClock < 0 || s.ShotClock > rules.ShotClockSeconds {
				t.Fatalf("shot clock out of bounds at run %d step %d: %d", run, step, s.ShotClock)
			}
			if s.TimeoutActive && (s.GameRunning || s.ShotRunning) {
				t.Fatalf("clock running during timeout at run %d step %d: %+v", run, step, s)
			}
			for _, p := range s.Penalties {
				if p.TimeLeft <= 0 || p.TimeLeft > p.Duration {
					t.Fatalf("penalty out of range at run %d step %d: %+v", run, step, p)
				}
			}
		}
	}
}
