package game

import "time"

// Outbound event names. Clients key their handlers on these.
const (
	EventRoomCode           = "roomCode"
	EventRoundConfig        = "roundConfig"
	EventRoomNotFound       = "roomNotFound"
	EventRoomNotJoinable    = "roomNotJoinable"
	EventRoomFull           = "roomFull"
	EventPlayerCount        = "playerCount"
	EventPlayerList         = "playerList"
	EventStartCountdown     = "startCountdown"
	EventUpdateAuctionTime  = "updateAuctionTime"
	EventAuctionEnded       = "auctionEnded"
	EventAuctionDraw        = "auctionDraw"
	EventRoundHistoryUpdate = "roundHistoryUpdate"
	EventGameFinished       = "gameFinished"
	EventRematchInitialized = "rematchInitialized"
	EventRematchReady       = "rematchReady"
)

// Broadcaster delivers events to connections. Subscribe/Unsubscribe keep the
// transport's room membership in step with the game's.
type Broadcaster interface {
	Subscribe(connID, code string)
	Unsubscribe(connID, code string)
	ToRoom(code, event string, args ...any)
	ToConn(connID, event string, args ...any)
}

type RoomCodeEvent struct {
	Code                 string `json:"code"`
	CompletedRoundsCount int    `json:"completedRoundsCount"`
}

type PlayerCountEvent struct {
	Current  int `json:"current"`
	Required int `json:"required"`
}

// AuctionEndedEvent names the winner by nickname in winnerId, which is what
// clients display. The connection id travels separately.
type AuctionEndedEvent struct {
	WinnerID  string `json:"winnerId"`
	WinnerSID string `json:"winnerSid"`
	UsedTime  Tenths `json:"usedTime"`
	Round     int    `json:"round"`
}

type AuctionDrawEvent struct {
	Round int `json:"round"`
}

type GameFinishedEvent struct {
	Standings    []Standing    `json:"standings"`
	RoundHistory []RoundRecord `json:"roundHistory"`
}

type OutcomeKind string

const (
	OutcomeRound    OutcomeKind = "round"
	OutcomeFinished OutcomeKind = "finished"
)

// Outcome is a resolved round or a finished game, handed to an OutcomeSink
// after the room state has been updated.
type Outcome struct {
	Kind      OutcomeKind   `json:"kind"`
	Code      string        `json:"code"`
	GameID    string        `json:"gameId"`
	Round     int           `json:"round"`
	Record    *RoundRecord  `json:"record,omitempty"`
	Standings []Standing    `json:"standings,omitempty"`
	History   []RoundRecord `json:"history,omitempty"`
	At        time.Time     `json:"at"`
}

// OutcomeSink must not block; it is called with the room lock held.
type OutcomeSink interface {
	Publish(o Outcome)
}

type nopBroadcaster struct{}

func (nopBroadcaster) Subscribe(string, string)      {}
func (nopBroadcaster) Unsubscribe(string, string)    {}
func (nopBroadcaster) ToRoom(string, string, ...any) {}
func (nopBroadcaster) ToConn(string, string, ...any) {}

type nopSink struct{}

func (nopSink) Publish(Outcome) {}
