package game

import (
	"encoding/json"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// playRound readies ids, has every bidder start at 0 and release after the
// given number of tenths.
func playRound(t *testing.T, r *Room, ids []string, used map[string]int) {
	t.Helper()
	startRound(t, r, ids...)
	order := make([]string, 0, len(used))
	for id := range used {
		order = append(order, id)
		r.StartBid(id)
	}
	sort.Slice(order, func(i, j int) bool { return used[order[i]] < used[order[j]] })
	elapsed := 0
	for _, id := range order {
		tick(r, used[id]-elapsed)
		elapsed = used[id]
		r.EndBid(id)
	}
}

func TestSharedMaximumIsDraw(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B", "C")

	playRound(t, r, []string{"A", "B", "C"}, map[string]int{"A": 32, "B": 32, "C": 10})

	require.Empty(t, r.WinnerHistory())
	require.Equal(t, 2, r.CurrentRound())
	require.Equal(t, PhaseWaiting, r.Phase())

	hist := r.RoundHistory()
	require.Len(t, hist, 1)
	require.Nil(t, hist[0].Winner)
	require.Equal(t, Seconds(3.2), *hist[0].Data["A"].UsedTime)
	require.Equal(t, Seconds(1.0), *hist[0].Data["C"].UsedTime)

	ev, ok := f.out.last(EventAuctionDraw)
	require.True(t, ok)
	require.Equal(t, AuctionDrawEvent{Round: 1}, ev.Args[0])
	require.Zero(t, f.out.count(EventAuctionEnded))
}

func TestSoleMaximumWins(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")

	playRound(t, r, []string{"A", "B"}, map[string]int{"A": 45, "B": 20})

	wins := r.WinnerHistory()
	require.Len(t, wins, 1)
	require.Equal(t, WinRecord{Round: 1, WinnerID: "A", UsedTime: Seconds(4.5)}, wins[0])

	ev, ok := f.out.last(EventAuctionEnded)
	require.True(t, ok)
	require.Equal(t, AuctionEndedEvent{WinnerID: "A", WinnerSID: "A", UsedTime: Seconds(4.5), Round: 1}, ev.Args[0])

	hist := r.RoundHistory()
	require.Len(t, hist, 1)
	require.Equal(t, "A", *hist[0].Winner)

	a, _ := r.Player("A")
	b, _ := r.Player("B")
	require.Equal(t, Seconds(295.5), a.RemainingTime)
	require.Equal(t, Seconds(298.0), b.RemainingTime)
	require.False(t, a.Ready)

	outcomes := f.sink.all()
	require.Len(t, outcomes, 1)
	require.Equal(t, OutcomeRound, outcomes[0].Kind)
	require.Equal(t, "tree100", outcomes[0].Code)
}

func TestAuctionEndedNamesWinnerByNickname(t *testing.T) {
	f := newFixture(t, 3)
	r, err := f.reg.CreateRoom("tree100", 2)
	require.NoError(t, err)
	require.NoError(t, r.Join("sid-1", "Ada", false))
	require.NoError(t, r.Join("sid-2", "Bo", false))

	playRound(t, r, []string{"sid-1", "sid-2"}, map[string]int{"sid-1": 12, "sid-2": 30})

	ev, ok := f.out.last(EventAuctionEnded)
	require.True(t, ok)
	require.Equal(t, "tree100", ev.Target)
	ended := ev.Args[0].(AuctionEndedEvent)
	require.Equal(t, "Bo", ended.WinnerID)
	require.Equal(t, "sid-2", ended.WinnerSID)

	data, err := json.Marshal(ended)
	require.NoError(t, err)
	require.JSONEq(t, `{"winnerId":"Bo","winnerSid":"sid-2","usedTime":3.0,"round":1}`, string(data))

	// standings still count wins per connection
	require.Equal(t, "sid-2", r.WinnerHistory()[0].WinnerID)
}

func TestNoBidsBeforeGraceExpiryIsDraw(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	startRound(t, r, "A", "B")
	require.Equal(t, 1, f.out.count(EventStartCountdown))

	blockUntil(t, f.clock, 1)
	f.clock.Advance(5 * time.Second)
	blockUntil(t, f.clock, 1)
	f.clock.Advance(3 * time.Second)

	require.Eventually(t, func() bool { return r.CurrentRound() == 2 }, time.Second, 5*time.Millisecond)

	hist := r.RoundHistory()
	require.Len(t, hist, 1)
	require.Nil(t, hist[0].Winner)
	require.Len(t, hist[0].Data, 2)
	for name, entry := range hist[0].Data {
		require.Nil(t, entry.UsedTime, name)
		require.Equal(t, Seconds(300), entry.RemainingTime)
	}
	require.Equal(t, 1, f.out.count(EventAuctionDraw))
	require.Equal(t, PhaseWaiting, r.Phase())
}

func TestBidDuringGraceWindowCancelsDraw(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	startRound(t, r, "A", "B")

	blockUntil(t, f.clock, 1)
	f.clock.Advance(5 * time.Second)
	blockUntil(t, f.clock, 1)

	r.StartBid("A")
	require.Equal(t, PhaseBidding, r.Phase())
	require.True(t, r.tickArmed())

	f.clock.Advance(3 * time.Second)
	require.Eventually(t, func() bool { return r.Elapsed() == 1 }, time.Second, 5*time.Millisecond)
	require.Never(t, func() bool { return len(r.RoundHistory()) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	require.Equal(t, 1, r.CurrentRound())
}

func TestTickRunsOnClock(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	startRound(t, r, "A", "B")
	r.StartBid("A")

	for i := 1; i <= 5; i++ {
		blockUntil(t, f.clock, 1)
		f.clock.Advance(100 * time.Millisecond)
		want := Tenths(i)
		require.Eventually(t, func() bool { return r.Elapsed() == want }, time.Second, time.Millisecond)
	}
	ev, ok := f.out.last(EventUpdateAuctionTime)
	require.True(t, ok)
	require.Equal(t, Seconds(0.5), ev.Args[0])

	blockUntil(t, f.clock, 1)
	r.EndBid("A")
	require.Equal(t, 2, r.CurrentRound())
	require.False(t, r.tickArmed())
	blockUntil(t, f.clock, 0)
}

func TestStartBidIgnoredWithEmptyBudget(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	r.mu.Lock()
	r.players["A"].RemainingTime = 0
	r.mu.Unlock()
	startRound(t, r, "A", "B")

	r.StartBid("A")

	_, ok := r.record("A")
	require.False(t, ok)
	require.False(t, r.tickArmed())
	require.Equal(t, PhaseCountdown, r.Phase())
}

func TestStartBidIgnoredOutsideRound(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")

	r.StartBid("A")
	_, ok := r.record("A")
	require.False(t, ok)
	require.Equal(t, PhaseWaiting, r.Phase())

	r.StartBid("nobody")
	r.EndBid("A")
	require.Equal(t, PhaseWaiting, r.Phase())
}

func TestRepeatedStartBidKeepsFirstStart(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	startRound(t, r, "A", "B")

	r.StartBid("A")
	r.StartBid("B")
	tick(r, 3)
	r.StartBid("A")

	rec, ok := r.record("A")
	require.True(t, ok)
	require.Equal(t, Tenths(0), rec.StartTime)
}

func TestLateBidderStartsAtCurrentElapsed(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	startRound(t, r, "A", "B")

	r.StartBid("A")
	tick(r, 7)
	r.StartBid("B")
	rec, _ := r.record("B")
	require.Equal(t, Tenths(7), rec.StartTime)

	tick(r, 10)
	r.EndBid("B")
	rec, _ = r.record("B")
	require.Equal(t, Seconds(1.0), rec.UsedTime)
	require.True(t, rec.Finalized)
}

func TestEndBidDeductsUsedTime(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	startRound(t, r, "A", "B")

	r.StartBid("A")
	r.StartBid("B")
	tick(r, 12)
	r.EndBid("A")

	a, _ := r.Player("A")
	require.Equal(t, Seconds(300)-Seconds(1.2), a.RemainingTime)

	r.EndBid("A")
	a, _ = r.Player("A")
	require.Equal(t, Seconds(298.8), a.RemainingTime)
}

func TestBudgetExhaustionForcesEnd(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	r.mu.Lock()
	r.players["A"].RemainingTime = Seconds(1.0)
	r.mu.Unlock()
	startRound(t, r, "A", "B")

	r.StartBid("A")
	r.StartBid("B")
	tick(r, 9)
	rec, _ := r.record("A")
	require.False(t, rec.Finalized)

	tick(r, 1)
	rec, _ = r.record("A")
	require.True(t, rec.Finalized)
	require.Equal(t, Seconds(1.0), rec.UsedTime)
	a, _ := r.Player("A")
	require.Equal(t, Tenths(0), a.RemainingTime)

	r.EndBid("A")
	a, _ = r.Player("A")
	require.Equal(t, Tenths(0), a.RemainingTime)
	require.Equal(t, PhaseBidding, r.Phase())

	tick(r, 5)
	r.EndBid("B")
	wins := r.WinnerHistory()
	require.Len(t, wins, 1)
	require.Equal(t, "B", wins[0].WinnerID)
	require.Equal(t, Seconds(1.5), wins[0].UsedTime)

	// A cannot bid next round with nothing left.
	startRound(t, r, "A", "B")
	r.StartBid("A")
	_, ok := r.record("A")
	require.False(t, ok)
}

func TestOneRecordPerRound(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B")
	playRound(t, r, []string{"A", "B"}, map[string]int{"A": 5, "B": 3})

	r.EndBid("A")
	r.EndBid("B")
	r.mu.Lock()
	r.resolveLocked()
	r.mu.Unlock()
	require.Len(t, r.RoundHistory(), 1)

	winner := "B"
	r.mu.Lock()
	r.upsertRoundLocked(RoundRecord{Round: 1, Data: map[string]RoundEntry{}, Winner: &winner})
	r.mu.Unlock()
	hist := r.RoundHistory()
	require.Len(t, hist, 1)
	require.Equal(t, "B", *hist[0].Winner)
	require.Len(t, r.WinnerHistory(), 1)
}

func TestLeavingBidderResolvesRound(t *testing.T) {
	f := newFixture(t, 3)
	r := f.room(t, "tree100", "A", "B", "C")
	startRound(t, r, "A", "B", "C")

	r.StartBid("A")
	r.StartBid("B")
	tick(r, 20)
	r.EndBid("A")
	require.Equal(t, PhaseBidding, r.Phase())

	r.Leave("B")

	wins := r.WinnerHistory()
	require.Len(t, wins, 1)
	require.Equal(t, "A", wins[0].WinnerID)
	require.Equal(t, 2, r.CurrentRound())
	hist := r.RoundHistory()
	require.Nil(t, hist[0].Data["C"].UsedTime)
	_, hasB := hist[0].Data["B"]
	require.False(t, hasB)
}

func TestFullGameFinishes(t *testing.T) {
	f := newFixture(t, 2)
	r := f.room(t, "tree100", "A", "B")

	playRound(t, r, []string{"A", "B"}, map[string]int{"A": 20, "B": 10})
	playRound(t, r, []string{"A", "B"}, map[string]int{"A": 30, "B": 5})

	require.Equal(t, PhaseFinished, r.Phase())
	ev, ok := f.out.last(EventGameFinished)
	require.True(t, ok)
	fin := ev.Args[0].(GameFinishedEvent)
	require.Len(t, fin.RoundHistory, 2)
	require.Equal(t, []Standing{
		{PlayerID: "A", Nickname: "A", Wins: 2, RemainingTime: Seconds(295), Rank: 1},
		{PlayerID: "B", Nickname: "B", Wins: 0, RemainingTime: Seconds(298.5), Rank: 2},
	}, fin.Standings)

	outcomes := f.sink.all()
	require.Len(t, outcomes, 3)
	require.Equal(t, OutcomeFinished, outcomes[2].Kind)
	require.Equal(t, fin.Standings, outcomes[2].Standings)

	// nothing moves once the game is over
	r.SetReady("A")
	r.SetReady("B")
	r.StartBid("A")
	require.Equal(t, PhaseFinished, r.Phase())
}
