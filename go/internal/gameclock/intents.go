package gameclock

import "fmt"

// IntentType names one of the operations the presentation layer may request
type IntentType string

const (
	IntentToggleGameClock IntentType = "ToggleGameClock"
	IntentResetShotClock  IntentType = "ResetShotClock"
	IntentCallTimeout     IntentType = "CallTimeout"
	IntentAdjustScore     IntentType = "AdjustScore"
	IntentAddPenalty      IntentType = "AddPenalty"
	IntentAdjustGameTime  IntentType = "AdjustGameTime"
)

// Intent is a user request to change the game state
type Intent struct {
	Type    IntentType `json:"type"`
	Team    Team       `json:"team,omitempty"`
	Delta   int        `json:"delta,omitempty"`
	Seconds int        `json:"seconds,omitempty"`
}

// Validate rejects intents that are malformed at the boundary.
// It does not consult state; see ApplyIntent for state preconditions.
func (in Intent) Validate() error {
	switch in.Type {
	case IntentToggleGameClock, IntentResetShotClock, IntentAdjustGameTime:
		return nil
	case IntentCallTimeout, IntentAdjustScore:
		_, err := ParseTeam(string(in.Team))
		return err
	case IntentAddPenalty:
		if _, err := ParseTeam(string(in.Team)); err != nil {
			return err
		}
		if in.Seconds < 0 {
			return fmt.Errorf("%w: %d", ErrInvalidDuration, in.Seconds)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownIntent, in.Type)
	}
}

// ApplyIntent is the total transition for an intent. The returned bool is
// false when the intent was rejected, in which case prev is returned as is.
func ApplyIntent(rules Rules, prev State, in Intent, newID func() string) (State, bool) {
	switch in.Type {
	case IntentCallTimeout, IntentAdjustScore, IntentAddPenalty:
		if !in.Team.valid() {
			return prev, false
		}
	}

	next := prev.clone()

	switch in.Type {
	case IntentToggleGameClock:
		next.GameRunning = !prev.GameRunning
		// starting resumes the shot clock; pausing stops it with the game clock
		next.ShotRunning = next.GameRunning
		if prev.TimeoutActive {
			next.TimeoutActive = false
			next.TimeoutTime = 0
		}

	case IntentResetShotClock:
		next.ShotClock = rules.ShotClockSeconds
		// A reset normally runs the shot clock, but a timeout freezes every
		// other clock and that exclusion wins: the value is restored and the
		// clock waits for the game clock to be toggled back on.
		next.ShotRunning = !prev.TimeoutActive

	case IntentCallTimeout:
		if prev.TimeoutActive || prev.Timeouts.Get(in.Team) <= 0 {
			return prev, false
		}
		next.Timeouts.Set(in.Team, prev.Timeouts.Get(in.Team)-1)
		next.GameRunning = false
		next.ShotRunning = false
		next.TimeoutTime = rules.TimeoutSeconds
		next.TimeoutActive = true

	case IntentAdjustScore:
		next.Score.Set(in.Team, clampZero(prev.Score.Get(in.Team)+in.Delta))

	case IntentAddPenalty:
		// a zero-length penalty is shown until the next gated tick drops it
		if in.Seconds < 0 {
			return prev, false
		}
		next.Penalties = append(next.Penalties, Penalty{
			ID:       newID(),
			Team:     in.Team,
			Duration: in.Seconds,
			TimeLeft: in.Seconds,
		})

	case IntentAdjustGameTime:
		next.GameTime = clampZero(prev.GameTime + in.Delta)

	default:
		return prev, false
	}

	return next, true
}
