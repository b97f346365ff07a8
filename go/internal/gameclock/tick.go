package gameclock

import (
	"fmt"

	"github.com/Xolot-32/lax-clock/go/internal/gameclock/events"
)

// ApplyTick advances every active countdown by one second. Each sub-clock is
// evaluated against prev only, never against another sub-clock's new value.
func ApplyTick(prev State) (State, []events.Effect) {
	next := prev.clone()
	var effects []events.Effect

	if prev.GameRunning {
		// the game clock stays flagged running at zero
		next.GameTime = clampZero(prev.GameTime - 1)
		if prev.GameTime > 0 && next.GameTime == 0 {
			effects = append(effects, events.Effect{Type: events.EffectGameClockExpired})
		}

		if prev.ShotRunning {
			if prev.ShotClock <= 1 {
				next.ShotClock = 0
				next.ShotRunning = false
				if prev.ShotClock == 1 {
					effects = append(effects, events.Effect{Type: events.EffectShotClockExpired})
				}
			} else {
				next.ShotClock = prev.ShotClock - 1
			}
		}

		next.Penalties = make([]Penalty, 0, len(prev.Penalties))
		for _, p := range prev.Penalties {
			if p.TimeLeft > 0 {
				p.TimeLeft--
			}
			if p.TimeLeft > 0 {
				next.Penalties = append(next.Penalties, p)
				continue
			}
			effects = append(effects, events.Effect{
				Type:      events.EffectPenaltyExpired,
				Team:      string(p.Team),
				PenaltyID: p.ID,
				Duration:  p.Duration,
			})
		}
	}

	if prev.TimeoutActive {
		if prev.TimeoutTime <= 1 {
			next.TimeoutTime = 0
			next.TimeoutActive = false
			effects = append(effects, events.Effect{Type: events.EffectTimeoutEnded})
		} else {
			next.TimeoutTime = prev.TimeoutTime - 1
		}
	}

	return next, effects
}

// FormatClock renders seconds as m:ss
func FormatClock(seconds int) string {
	seconds = clampZero(seconds)
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
