package game

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const maxRematchProbe = 64

var rematchCodePattern = regexp.MustCompile(`^([a-z]+)(\d+)$`)

// NextRematchCode derives the follow-up room code: "tree123" -> "tree124".
// Codes that do not look like word+number restart at "room1".
func NextRematchCode(code string) string {
	m := rematchCodePattern.FindStringSubmatch(code)
	if m == nil {
		return "room1"
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return "room1"
	}
	return m[1] + strconv.Itoa(n+1)
}

// RematchAccept moves one player from the room at code into the derived
// rematch room and returns the new code. Derived rooms that are mid-game or
// full are skipped by incrementing the suffix again.
func (reg *Registry) RematchAccept(code, connID, nickname string) (string, error) {
	src, err := reg.Get(code)
	if err != nil {
		return "", err
	}
	nickname, required, err := src.rematchSource(connID, nickname)
	if err != nil {
		return "", err
	}

	next := NextRematchCode(code)
	for i := 0; i < maxRematchProbe; i++ {
		target := reg.getOrCreate(next, required)
		admitted, closed := target.admitRematch(connID, nickname)
		if closed {
			continue
		}
		if admitted {
			src.removeMember(connID, "rematch")
			log.Info().Str("from", code).Str("to", next).Str("nickname", nickname).Msg("rematch accepted")
			return next, nil
		}
		next = NextRematchCode(next)
	}
	return "", fmt.Errorf("no rematch room available after %s: %w", code, ErrRoomNotJoinable)
}

func (reg *Registry) getOrCreate(code string, requiredPlayers int) *Room {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if r := reg.rooms[code]; r != nil {
		return r
	}
	r := newRoom(reg, code, requiredPlayers)
	reg.rooms[code] = r
	log.Info().Str("code", code).Int("required", requiredPlayers).Msg("rematch room created")
	return r
}

func (r *Room) rematchSource(connID, nickname string) (string, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := r.players[connID]
	if r.closed || p == nil {
		return "", 0, ErrNotInRoom
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		nickname = p.Nickname
	}
	return nickname, r.RequiredPlayers, nil
}

// admitRematch adds the player, provided the room is not in the middle of a
// game and has a free seat. A finished room is reset for a new game first.
func (r *Room) admitRematch(connID, nickname string) (admitted, closed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return false, true
	}
	if _, ok := r.players[connID]; ok {
		return true, false
	}
	fresh := r.phase == PhaseFinished || (r.phase == PhaseWaiting && r.currentRound == 1)
	if !fresh || len(r.players) >= r.RequiredPlayers {
		return false, false
	}

	// A room already waiting in round one keeps its players' ready flags.
	if r.phase == PhaseFinished {
		r.resetGameLocked()
	}
	r.addPlayerLocked(connID, nickname)

	out := r.out()
	out.Subscribe(connID, r.Code)
	out.ToConn(connID, EventRematchInitialized, r.Code)
	out.ToConn(connID, EventRoomCode, RoomCodeEvent{Code: r.Code})
	out.ToConn(connID, EventRoundConfig, r.TotalRounds)
	r.broadcastPlayerListLocked()
	r.broadcastPlayerCountLocked()
	return true, false
}

func (r *Room) removeMember(connID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.removeMemberLocked(connID, reason)
}

// RematchRequest restarts a finished game in place for everyone still in the
// room. It reports whether the reset happened.
func (r *Room) RematchRequest(connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.players[connID] == nil {
		return false
	}
	if r.phase != PhaseFinished {
		log.Debug().Str("code", r.Code).Str("phase", string(r.phase)).Msg("rematch request ignored")
		return false
	}
	r.resetGameLocked()
	r.broadcastPlayerListLocked()
	r.broadcastPlayerCountLocked()
	r.out().ToRoom(r.Code, EventRematchReady)
	log.Info().Str("code", r.Code).Msg("rematch reset in place")
	return true
}
