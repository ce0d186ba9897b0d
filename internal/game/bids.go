package game

import (
	"github.com/rs/zerolog/log"
)

// StartBid opens the caller's bid for this round. Spurious calls (wrong
// phase, already bid, empty budget, not a player) are ignored.
func (r *Room) StartBid(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	p := r.players[connID]
	if p == nil || (r.phase != PhaseCountdown && r.phase != PhaseBidding) {
		log.Debug().Str("code", r.Code).Str("sid", connID).Str("phase", string(r.phase)).Msg("bid start ignored")
		return
	}
	if _, ok := r.participation[connID]; ok {
		return
	}
	if p.RemainingTime <= 0 {
		log.Info().Str("code", r.Code).Str("nickname", p.Nickname).Msg("bid start refused, budget empty")
		return
	}

	if r.phase == PhaseCountdown {
		stopTimer(r.timers.countdown)
		stopTimer(r.timers.grace)
		r.timers.countdown, r.timers.grace = nil, nil
		r.transition(PhaseBidding)
	}
	r.participation[connID] = &ParticipationRecord{StartTime: r.elapsed}
	r.armTickLocked()

	log.Info().Str("code", r.Code).Str("nickname", p.Nickname).Str("at", r.elapsed.String()).Msg("bid started")
	r.broadcastPlayerListLocked()
}

// EndBid closes the caller's open bid and resolves the round once nobody is
// still holding.
func (r *Room) EndBid(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	rec := r.participation[connID]
	p := r.players[connID]
	if rec == nil || rec.Finalized || p == nil {
		log.Debug().Str("code", r.Code).Str("sid", connID).Msg("bid end ignored")
		return
	}
	r.finalizeLocked(p, rec, r.elapsed-rec.StartTime)
	log.Info().Str("code", r.Code).Str("nickname", p.Nickname).Str("used", rec.UsedTime.String()).Msg("bid ended")

	r.broadcastPlayerListLocked()
	r.maybeResolveLocked()
}

// finalizeLocked fixes the bid's used time, capped at what the player has
// left, and charges it to the player's budget.
func (r *Room) finalizeLocked(p *Player, rec *ParticipationRecord, used Tenths) {
	if used > p.RemainingTime {
		used = p.RemainingTime
	}
	if used < 0 {
		used = 0
	}
	rec.UsedTime = used
	rec.Finalized = true
	p.RemainingTime -= used
	if p.RemainingTime < 0 {
		p.RemainingTime = 0
	}
}

func (r *Room) maybeResolveLocked() {
	if r.phase != PhaseBidding {
		return
	}
	for _, rec := range r.participation {
		if !rec.Finalized {
			return
		}
	}
	r.resolveLocked()
}

// resolveLocked settles the current round exactly once: the phase moves to
// Resolving first, so a second caller fails the transition and returns.
func (r *Room) resolveLocked() {
	if !r.transition(PhaseResolving) {
		return
	}
	stopTimer(r.timers.tick)
	r.timers.tick = nil

	round := r.currentRound
	record := RoundRecord{Round: round, Data: make(map[string]RoundEntry, len(r.players))}
	for id, p := range r.players {
		entry := RoundEntry{RemainingTime: p.RemainingTime}
		if rec := r.participation[id]; rec != nil && rec.Finalized {
			used := rec.UsedTime
			entry.UsedTime = &used
		}
		record.Data[p.Nickname] = entry
	}

	out := r.out()
	if winnerID, used, ok := pickWinner(r.participation); ok && r.players[winnerID] != nil {
		nickname := r.players[winnerID].Nickname
		record.Winner = &nickname
		r.winnerHistory = append(r.winnerHistory, WinRecord{Round: round, WinnerID: winnerID, UsedTime: used})
		log.Info().Str("code", r.Code).Int("round", round).Str("winner", nickname).Str("used", used.String()).Msg("round won")
		out.ToRoom(r.Code, EventAuctionEnded, AuctionEndedEvent{WinnerID: nickname, WinnerSID: winnerID, UsedTime: used, Round: round})
	} else {
		log.Info().Str("code", r.Code).Int("round", round).Int("bids", len(r.participation)).Msg("round drawn")
		out.ToRoom(r.Code, EventAuctionDraw, AuctionDrawEvent{Round: round})
	}

	r.upsertRoundLocked(record)
	out.ToRoom(r.Code, EventRoundHistoryUpdate, append([]RoundRecord(nil), r.roundHistory...))
	r.reg.sink.Publish(Outcome{
		Kind:   OutcomeRound,
		Code:   r.Code,
		GameID: r.gameID,
		Round:  round,
		Record: &record,
		At:     r.reg.clock.Now(),
	})

	r.advanceLocked()
}

// pickWinner returns the sole bidder with the longest used time. A shared
// maximum, or no bids at all, is a draw.
func pickWinner(bids map[string]*ParticipationRecord) (string, Tenths, bool) {
	var (
		best   Tenths = -1
		winner string
		tied   bool
	)
	for id, rec := range bids {
		switch {
		case rec.UsedTime > best:
			best, winner, tied = rec.UsedTime, id, false
		case rec.UsedTime == best:
			tied = true
		}
	}
	if winner == "" || tied {
		return "", 0, false
	}
	return winner, best, true
}

// upsertRoundLocked keeps exactly one record per round number.
func (r *Room) upsertRoundLocked(rec RoundRecord) {
	for i := range r.roundHistory {
		if r.roundHistory[i].Round == rec.Round {
			r.roundHistory[i] = rec
			return
		}
	}
	r.roundHistory = append(r.roundHistory, rec)
}

func (r *Room) advanceLocked() {
	if r.currentRound < r.TotalRounds {
		r.currentRound++
		r.resetRoundLocked()
		return
	}
	r.finishLocked()
}
