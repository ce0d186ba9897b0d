package game

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// Room is one game session. Every exported method takes mu for its whole
// duration, as does every timer callback, so handlers for a room never
// interleave.
type Room struct {
	Code            string
	RequiredPlayers int
	TotalRounds     int
	CreatedAt       time.Time

	reg *Registry
	mu  deadlock.Mutex

	gameID     string
	phase      Phase
	players    map[string]*Player
	spectators map[string]struct{}
	nextSeq    int

	currentRound  int
	elapsed       Tenths
	participation map[string]*ParticipationRecord
	winnerHistory []WinRecord
	roundHistory  []RoundRecord

	timers roomTimers
	epoch  uint64
	closed bool
}

func newRoom(reg *Registry, code string, requiredPlayers int) *Room {
	return &Room{
		Code:            code,
		RequiredPlayers: requiredPlayers,
		TotalRounds:     reg.settings.TotalRounds,
		CreatedAt:       reg.clock.Now(),
		reg:             reg,
		gameID:          uuid.NewString(),
		phase:           PhaseWaiting,
		players:         make(map[string]*Player),
		spectators:      make(map[string]struct{}),
		currentRound:    1,
		participation:   make(map[string]*ParticipationRecord),
	}
}

var transitions = map[Phase][]Phase{
	PhaseWaiting:   {PhaseCountdown, PhaseWaiting},
	PhaseCountdown: {PhaseBidding, PhaseResolving},
	PhaseBidding:   {PhaseResolving},
	PhaseResolving: {PhaseWaiting, PhaseFinished},
	PhaseFinished:  {PhaseWaiting},
}

// transition is the only place the phase changes.
func (r *Room) transition(to Phase) bool {
	for _, next := range transitions[r.phase] {
		if next == to {
			if r.phase != to {
				log.Info().Str("code", r.Code).Int("round", r.currentRound).
					Str("from", string(r.phase)).Str("to", string(to)).Msg("phase transition")
			}
			r.phase = to
			return true
		}
	}
	log.Error().Str("code", r.Code).Str("from", string(r.phase)).Str("to", string(to)).Msg("illegal phase transition")
	return false
}

func (r *Room) out() Broadcaster { return r.reg.broadcaster() }

func (r *Room) Join(connID, nickname string, spectator bool) error {
	nickname = strings.TrimSpace(nickname)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomNotFound
	}
	if spectator {
		r.spectators[connID] = struct{}{}
	} else {
		if nickname == "" {
			return ErrInvalidNickname
		}
		if _, ok := r.players[connID]; !ok {
			if r.currentRound > 1 || (r.phase != PhaseWaiting && r.phase != PhaseCountdown) {
				return ErrRoomNotJoinable
			}
			if len(r.players) >= r.RequiredPlayers {
				return ErrRoomFull
			}
			r.addPlayerLocked(connID, nickname)
		}
	}

	out := r.out()
	out.Subscribe(connID, r.Code)
	out.ToConn(connID, EventRoomCode, RoomCodeEvent{Code: r.Code, CompletedRoundsCount: r.currentRound - 1})
	out.ToConn(connID, EventRoundConfig, r.TotalRounds)
	r.broadcastPlayerCountLocked()
	r.broadcastPlayerListLocked()

	log.Info().Str("code", r.Code).Str("sid", connID).Str("nickname", nickname).Bool("spectator", spectator).Msg("joined")
	return nil
}

func (r *Room) addPlayerLocked(connID, nickname string) {
	r.nextSeq++
	r.players[connID] = &Player{
		ID:            connID,
		Nickname:      nickname,
		RemainingTime: r.reg.settings.InitialBudget,
		JoinedAt:      r.reg.clock.Now(),
		seq:           r.nextSeq,
	}
}

// Leave removes a player or spectator. The last player out destroys the room.
func (r *Room) Leave(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.removeMemberLocked(connID, "left")
}

func (r *Room) removeMemberLocked(connID, reason string) {
	p, isPlayer := r.players[connID]
	_, isSpectator := r.spectators[connID]
	if !isPlayer && !isSpectator {
		return
	}
	delete(r.players, connID)
	delete(r.participation, connID)
	delete(r.spectators, connID)
	r.out().Unsubscribe(connID, r.Code)

	ev := log.Info().Str("code", r.Code).Str("sid", connID).Str("reason", reason)
	if isPlayer {
		ev = ev.Str("nickname", p.Nickname)
	}
	ev.Msg("member removed")

	if len(r.players) == 0 {
		r.destroyLocked("empty")
		return
	}
	r.broadcastPlayerCountLocked()
	r.broadcastPlayerListLocked()

	switch r.phase {
	case PhaseWaiting:
		r.maybeStartRoundLocked()
	case PhaseBidding:
		r.maybeResolveLocked()
	}
}

// destroyLocked unregisters the room and invalidates all of its timers.
func (r *Room) destroyLocked(reason string) {
	r.invalidateTimersLocked()
	r.closed = true
	out := r.out()
	for id := range r.spectators {
		out.Unsubscribe(id, r.Code)
	}
	r.reg.remove(r)
	log.Info().Str("code", r.Code).Str("reason", reason).Msg("room destroyed")
}

// SetReady marks the player ready and re-checks whether the round can start.
func (r *Room) SetReady(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	p := r.players[connID]
	if p == nil {
		return
	}
	if !p.Ready {
		p.Ready = true
		log.Info().Str("code", r.Code).Str("nickname", p.Nickname).Msg("ready")
	}
	r.broadcastPlayerListLocked()
	r.maybeStartRoundLocked()
}

func (r *Room) maybeStartRoundLocked() {
	if r.phase != PhaseWaiting || len(r.players) < 2 {
		return
	}
	ready := 0
	for _, p := range r.players {
		if p.Ready {
			ready++
		}
	}
	if ready == r.RequiredPlayers || ready == len(r.players) {
		r.startCountdownLocked()
	}
}

// resetRoundLocked prepares the room for the next round of the same game.
func (r *Room) resetRoundLocked() {
	r.invalidateTimersLocked()
	r.participation = make(map[string]*ParticipationRecord)
	r.elapsed = 0
	for _, p := range r.players {
		p.Ready = false
	}
	r.transition(PhaseWaiting)
	r.broadcastPlayerListLocked()
}

// resetGameLocked wipes the game back to round one with full budgets.
func (r *Room) resetGameLocked() {
	r.invalidateTimersLocked()
	r.gameID = uuid.NewString()
	r.currentRound = 1
	r.elapsed = 0
	r.participation = make(map[string]*ParticipationRecord)
	r.winnerHistory = nil
	r.roundHistory = nil
	for _, p := range r.players {
		p.Ready = false
		p.RemainingTime = r.reg.settings.InitialBudget
	}
	r.transition(PhaseWaiting)
}

func (r *Room) broadcastPlayerCountLocked() {
	r.out().ToRoom(r.Code, EventPlayerCount, PlayerCountEvent{Current: len(r.players), Required: r.RequiredPlayers})
}

func (r *Room) broadcastPlayerListLocked() {
	r.out().ToRoom(r.Code, EventPlayerList, r.playerViewsLocked())
}

func (r *Room) sortedPlayersLocked() []*Player {
	out := make([]*Player, 0, len(r.players))
	for _, p := range r.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

func (r *Room) winCountsLocked() map[string]int {
	wins := make(map[string]int)
	for _, w := range r.winnerHistory {
		wins[w.WinnerID]++
	}
	return wins
}

func (r *Room) playerViewsLocked() []PlayerView {
	wins := r.winCountsLocked()
	players := r.sortedPlayersLocked()
	out := make([]PlayerView, 0, len(players))
	for _, p := range players {
		v := PlayerView{
			ID:            p.ID,
			Nickname:      p.Nickname,
			Ready:         p.Ready,
			RemainingTime: p.RemainingTime,
			Wins:          wins[p.ID],
		}
		if rec := r.participation[p.ID]; rec != nil {
			v.Participating = true
			if rec.Finalized {
				used := rec.UsedTime
				v.UsedTime = &used
			}
		}
		out = append(out, v)
	}
	return out
}

func (r *Room) PlayerList() []PlayerView {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playerViewsLocked()
}

func (r *Room) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Room) CurrentRound() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentRound
}

func (r *Room) Elapsed() Tenths {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.elapsed
}

func (r *Room) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Player returns a copy of the player's current state.
func (r *Room) Player(connID string) (Player, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[connID]
	if p == nil {
		return Player{}, false
	}
	return *p, true
}

func (r *Room) WinnerHistory() []WinRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]WinRecord(nil), r.winnerHistory...)
}

func (r *Room) RoundHistory() []RoundRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]RoundRecord(nil), r.roundHistory...)
}

func (r *Room) Summary() (RoomSummary, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return RoomSummary{}, false
	}
	return RoomSummary{
		Code:            r.Code,
		GameID:          r.gameID,
		Phase:           r.phase,
		Players:         len(r.players),
		Spectators:      len(r.spectators),
		RequiredPlayers: r.RequiredPlayers,
		CurrentRound:    r.currentRound,
		TotalRounds:     r.TotalRounds,
		CreatedAt:       r.CreatedAt,
	}, true
}
