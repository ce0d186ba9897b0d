package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	Target string // room code or connection id
	Event  string
	Args   []any
}

type recorder struct {
	mu     sync.Mutex
	events []sentEvent
	subs   map[string]map[string]bool // code -> connID set
}

func newRecorder() *recorder {
	return &recorder{subs: make(map[string]map[string]bool)}
}

func (r *recorder) Subscribe(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.subs[code] == nil {
		r.subs[code] = make(map[string]bool)
	}
	r.subs[code][connID] = true
}

func (r *recorder) Unsubscribe(connID, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs[code], connID)
}

func (r *recorder) ToRoom(code, event string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{Target: code, Event: event, Args: args})
}

func (r *recorder) ToConn(connID, event string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{Target: connID, Event: event, Args: args})
}

func (r *recorder) count(event string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Event == event {
			n++
		}
	}
	return n
}

func (r *recorder) last(event string) (sentEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Event == event {
			return r.events[i], true
		}
	}
	return sentEvent{}, false
}

func (r *recorder) subscribed(connID, code string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.subs[code][connID]
}

type sinkRecorder struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *sinkRecorder) Publish(o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, o)
}

func (s *sinkRecorder) all() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

type fixture struct {
	reg   *Registry
	clock *clockwork.FakeClock
	out   *recorder
	sink  *sinkRecorder
}

func newFixture(t *testing.T, rounds int) *fixture {
	t.Helper()
	settings := DefaultSettings()
	settings.TotalRounds = rounds
	f := &fixture{
		clock: clockwork.NewFakeClock(),
		out:   newRecorder(),
		sink:  &sinkRecorder{},
	}
	f.reg = NewRegistry(settings, WithClock(f.clock), WithBroadcaster(f.out), WithOutcomeSink(f.sink))
	return f
}

// room creates a room sized for the given players and joins them, using the
// nickname as connection id.
func (f *fixture) room(t *testing.T, code string, nicknames ...string) *Room {
	t.Helper()
	r, err := f.reg.CreateRoom(code, len(nicknames))
	require.NoError(t, err)
	for _, n := range nicknames {
		require.NoError(t, r.Join(n, n, false))
	}
	return r
}

// startRound readies every player and leaves the room in Countdown.
func startRound(t *testing.T, r *Room, ids ...string) {
	t.Helper()
	for _, id := range ids {
		r.SetReady(id)
	}
	require.Equal(t, PhaseCountdown, r.Phase())
}

// tick runs n auction ticks synchronously instead of waiting on the clock.
func tick(r *Room, n int) {
	for i := 0; i < n; i++ {
		r.mu.Lock()
		if r.phase != PhaseBidding {
			r.mu.Unlock()
			return
		}
		stopTimer(r.timers.tick)
		r.tickLocked()
		r.mu.Unlock()
	}
}

func (r *Room) record(connID string) (ParticipationRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.participation[connID]
	if rec == nil {
		return ParticipationRecord{}, false
	}
	return *rec, true
}

func (r *Room) tickArmed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timers.tick != nil
}

func blockUntil(t *testing.T, clock *clockwork.FakeClock, waiters int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, waiters))
}
