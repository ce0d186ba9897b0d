package game

import (
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type roomTimers struct {
	countdown clockwork.Timer
	grace     clockwork.Timer
	tick      clockwork.Timer
}

// schedule arms fn to run under the room lock after d. The callback is
// dropped if the room was destroyed, reset (epoch moved on), or left the
// expected phase in the meantime.
func (r *Room) schedule(d time.Duration, expect Phase, name string, fn func()) clockwork.Timer {
	epoch := r.epoch
	return r.reg.clock.AfterFunc(d, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed || r.epoch != epoch || r.phase != expect {
			log.Debug().Str("code", r.Code).Str("timer", name).Msg("stale timer ignored")
			return
		}
		fn()
	})
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}

// invalidateTimersLocked stops every pending timer and bumps the epoch so a
// callback that already fired but is waiting on the lock becomes a no-op.
func (r *Room) invalidateTimersLocked() {
	stopTimer(r.timers.countdown)
	stopTimer(r.timers.grace)
	stopTimer(r.timers.tick)
	r.timers = roomTimers{}
	r.epoch++
}

func (r *Room) startCountdownLocked() {
	if !r.transition(PhaseCountdown) {
		return
	}
	log.Info().Str("code", r.Code).Int("round", r.currentRound).Msg("countdown started")
	r.out().ToRoom(r.Code, EventStartCountdown)
	r.timers.countdown = r.schedule(r.reg.settings.Countdown, PhaseCountdown, "countdown", r.countdownExpiredLocked)
}

// countdownExpiredLocked opens the grace window in which a late bid-start can
// still arrive before the round is declared a no-participant draw.
func (r *Room) countdownExpiredLocked() {
	r.timers.countdown = nil
	r.timers.grace = r.schedule(r.reg.settings.DrawGrace, PhaseCountdown, "grace", r.graceExpiredLocked)
}

func (r *Room) graceExpiredLocked() {
	r.timers.grace = nil
	if len(r.participation) > 0 {
		return
	}
	log.Info().Str("code", r.Code).Int("round", r.currentRound).Msg("no participants, draw")
	r.resolveLocked()
}

func (r *Room) armTickLocked() {
	if r.timers.tick != nil {
		return
	}
	r.timers.tick = r.schedule(r.reg.settings.TickInterval, PhaseBidding, "tick", r.tickLocked)
}

// tickLocked advances the auction clock by one tenth, force-ends any bid
// whose owner just ran out of budget, and re-arms itself while bidding lasts.
func (r *Room) tickLocked() {
	r.timers.tick = nil
	r.elapsed++
	r.out().ToRoom(r.Code, EventUpdateAuctionTime, r.elapsed)

	exhausted := false
	for id, rec := range r.participation {
		if rec.Finalized {
			continue
		}
		p := r.players[id]
		if p == nil {
			continue
		}
		if r.elapsed-rec.StartTime >= p.RemainingTime {
			r.finalizeLocked(p, rec, p.RemainingTime)
			exhausted = true
			log.Info().Str("code", r.Code).Str("nickname", p.Nickname).Msg("budget exhausted, bid force-ended")
		}
	}
	if exhausted {
		r.broadcastPlayerListLocked()
	}
	r.maybeResolveLocked()
	if r.phase == PhaseBidding {
		r.armTickLocked()
	}
}
