package game

import (
	"strconv"
	"time"
)

type Phase string

const (
	PhaseWaiting   Phase = "Waiting"
	PhaseCountdown Phase = "Countdown"
	PhaseBidding   Phase = "Bidding"
	PhaseResolving Phase = "Resolving"
	PhaseFinished  Phase = "Finished"
)

// Tenths is a duration in tenths of a second. All game clocks run at this
// resolution so equal times compare equal.
type Tenths int

func Seconds(s float64) Tenths {
	if s < 0 {
		return Tenths(s*10 - 0.5)
	}
	return Tenths(s*10 + 0.5)
}

func FromDuration(d time.Duration) Tenths {
	return Tenths((d + 50*time.Millisecond) / (100 * time.Millisecond))
}

func (t Tenths) Seconds() float64 { return float64(t) / 10 }

func (t Tenths) String() string {
	return strconv.FormatFloat(t.Seconds(), 'f', 1, 64)
}

func (t Tenths) MarshalJSON() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Tenths) UnmarshalJSON(b []byte) error {
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	*t = Seconds(f)
	return nil
}

// Settings are the per-process game rules every room is created with.
type Settings struct {
	TotalRounds            int
	DefaultRequiredPlayers int
	InitialBudget          Tenths
	Countdown              time.Duration
	DrawGrace              time.Duration
	TickInterval           time.Duration
}

func DefaultSettings() Settings {
	return Settings{
		TotalRounds:            5,
		DefaultRequiredPlayers: 2,
		InitialBudget:          Seconds(300),
		Countdown:              5 * time.Second,
		DrawGrace:              3 * time.Second,
		TickInterval:           100 * time.Millisecond,
	}
}

const (
	MinRequiredPlayers = 2
	MaxRequiredPlayers = 8
)

type Player struct {
	ID            string    `json:"id"`
	Nickname      string    `json:"nickname"`
	Ready         bool      `json:"ready"`
	RemainingTime Tenths    `json:"remainingTime"`
	JoinedAt      time.Time `json:"joinedAt"`

	seq int
}

// ParticipationRecord is one player's bid in the current round.
type ParticipationRecord struct {
	StartTime Tenths
	UsedTime  Tenths
	Finalized bool
}

type WinRecord struct {
	Round    int    `json:"round"`
	WinnerID string `json:"winnerId"`
	UsedTime Tenths `json:"usedTime"`
}

type RoundEntry struct {
	UsedTime      *Tenths `json:"usedTime"` // nil when the player did not bid
	RemainingTime Tenths  `json:"remainingTime"`
}

type RoundRecord struct {
	Round  int                   `json:"round"`
	Data   map[string]RoundEntry `json:"data"` // keyed by nickname
	Winner *string               `json:"winner"`
}

type Standing struct {
	PlayerID      string `json:"playerId"`
	Nickname      string `json:"nickname"`
	Wins          int    `json:"wins"`
	RemainingTime Tenths `json:"remainingTime"`
	Rank          int    `json:"rank"`
}

// PlayerView is the row sent in playerList events.
type PlayerView struct {
	ID            string  `json:"id"`
	Nickname      string  `json:"nickname"`
	Ready         bool    `json:"ready"`
	Participating bool    `json:"participating"`
	UsedTime      *Tenths `json:"usedTime"`
	RemainingTime Tenths  `json:"remainingTime"`
	Wins          int     `json:"wins"`
}

type RoomSummary struct {
	Code            string    `json:"code"`
	GameID          string    `json:"gameId"`
	Phase           Phase     `json:"phase"`
	Players         int       `json:"players"`
	Spectators      int       `json:"spectators"`
	RequiredPlayers int       `json:"requiredPlayers"`
	CurrentRound    int       `json:"currentRound"`
	TotalRounds     int       `json:"totalRounds"`
	CreatedAt       time.Time `json:"createdAt"`
}
