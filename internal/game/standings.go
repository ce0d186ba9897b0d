package game

import (
	"sort"

	"github.com/rs/zerolog/log"
)

// ComputeStandings ranks players by wins, then remaining time, both
// descending. Equal (wins, remainingTime) pairs share a rank and the next
// distinct pair takes its 1-based position, so ranks skip after a tie.
func ComputeStandings(players []Player, history []WinRecord) []Standing {
	wins := make(map[string]int, len(players))
	for _, w := range history {
		wins[w.WinnerID]++
	}
	out := make([]Standing, 0, len(players))
	for _, p := range players {
		out = append(out, Standing{
			PlayerID:      p.ID,
			Nickname:      p.Nickname,
			Wins:          wins[p.ID],
			RemainingTime: p.RemainingTime,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Wins != out[j].Wins {
			return out[i].Wins > out[j].Wins
		}
		if out[i].RemainingTime != out[j].RemainingTime {
			return out[i].RemainingTime > out[j].RemainingTime
		}
		return out[i].Nickname < out[j].Nickname
	})
	for i := range out {
		if i > 0 && out[i].Wins == out[i-1].Wins && out[i].RemainingTime == out[i-1].RemainingTime {
			out[i].Rank = out[i-1].Rank
			continue
		}
		out[i].Rank = i + 1
	}
	return out
}

func (r *Room) finishLocked() {
	r.invalidateTimersLocked()
	if !r.transition(PhaseFinished) {
		return
	}
	players := r.sortedPlayersLocked()
	snapshot := make([]Player, 0, len(players))
	for _, p := range players {
		snapshot = append(snapshot, *p)
	}
	standings := ComputeStandings(snapshot, r.winnerHistory)
	history := append([]RoundRecord(nil), r.roundHistory...)

	for _, s := range standings {
		log.Info().Str("code", r.Code).Int("rank", s.Rank).Str("nickname", s.Nickname).
			Int("wins", s.Wins).Str("remaining", s.RemainingTime.String()).Msg("final standing")
	}
	r.out().ToRoom(r.Code, EventGameFinished, GameFinishedEvent{Standings: standings, RoundHistory: history})
	r.reg.sink.Publish(Outcome{
		Kind:      OutcomeFinished,
		Code:      r.Code,
		GameID:    r.gameID,
		Round:     r.currentRound,
		Standings: standings,
		History:   history,
		At:        r.reg.clock.Now(),
	})
}
