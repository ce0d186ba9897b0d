package game

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/sasha-s/go-deadlock"
)

// Registry owns every live Room. Lock order is room -> registry: code holding
// a room lock may call into the registry, never the other way round.
type Registry struct {
	mu    deadlock.RWMutex
	rooms map[string]*Room

	settings Settings
	clock    clockwork.Clock
	out      Broadcaster
	sink     OutcomeSink
	newCode  func() string
}

type Option func(*Registry)

func WithClock(c clockwork.Clock) Option { return func(r *Registry) { r.clock = c } }

func WithBroadcaster(b Broadcaster) Option { return func(r *Registry) { r.out = b } }

func WithOutcomeSink(s OutcomeSink) Option { return func(r *Registry) { r.sink = s } }

// WithCodeGenerator replaces the default word+number room codes.
func WithCodeGenerator(f func() string) Option { return func(r *Registry) { r.newCode = f } }

func NewRegistry(settings Settings, opts ...Option) *Registry {
	reg := &Registry{
		rooms:    make(map[string]*Room),
		settings: settings,
		clock:    clockwork.NewRealClock(),
		out:      nopBroadcaster{},
		sink:     nopSink{},
		newCode:  randomCode,
	}
	for _, o := range opts {
		o(reg)
	}
	return reg
}

func (reg *Registry) Settings() Settings { return reg.settings }

// SetBroadcaster swaps the outbound gateway. The transport and the registry
// reference each other, so one of them has to be wired after construction.
func (reg *Registry) SetBroadcaster(b Broadcaster) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.out = b
}

func (reg *Registry) broadcaster() Broadcaster {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return reg.out
}

func (reg *Registry) CreateRoom(code string, requiredPlayers int) (*Room, error) {
	if requiredPlayers < MinRequiredPlayers || requiredPlayers > MaxRequiredPlayers {
		return nil, ErrInvalidRequiredPlayers
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[code] != nil {
		return nil, ErrDuplicateCode
	}
	r := newRoom(reg, code, requiredPlayers)
	reg.rooms[code] = r
	log.Info().Str("code", code).Int("required", requiredPlayers).Msg("room created")
	return r, nil
}

const maxCodeAttempts = 64

// NewRoom creates a room under a freshly generated code. A requiredPlayers of
// zero means the configured default.
func (reg *Registry) NewRoom(requiredPlayers int) (*Room, error) {
	if requiredPlayers == 0 {
		requiredPlayers = reg.settings.DefaultRequiredPlayers
	}
	for i := 0; i < maxCodeAttempts; i++ {
		r, err := reg.CreateRoom(reg.newCode(), requiredPlayers)
		if errors.Is(err, ErrDuplicateCode) {
			continue
		}
		return r, err
	}
	return nil, fmt.Errorf("no free room code after %d attempts: %w", maxCodeAttempts, ErrDuplicateCode)
}

func (reg *Registry) Get(code string) (*Room, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	r := reg.rooms[code]
	if r == nil {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.rooms)
}

func (reg *Registry) snapshot() []*Room {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	out := make([]*Room, 0, len(reg.rooms))
	for _, r := range reg.rooms {
		out = append(out, r)
	}
	return out
}

func (reg *Registry) Summaries() []RoomSummary {
	rooms := reg.snapshot()
	out := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		if s, ok := r.Summary(); ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// remove drops r from the map, but only if the code still points at r.
func (reg *Registry) remove(r *Room) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if reg.rooms[r.Code] == r {
		delete(reg.rooms, r.Code)
	}
}

// SweepEmpty destroys rooms nobody has joined (or that only spectators are
// left in) once they are older than maxAge. It returns how many were removed.
func (reg *Registry) SweepEmpty(maxAge time.Duration) int {
	now := reg.clock.Now()
	n := 0
	for _, r := range reg.snapshot() {
		r.mu.Lock()
		if !r.closed && len(r.players) == 0 && now.Sub(r.CreatedAt) >= maxAge {
			r.destroyLocked("idle")
			n++
		}
		r.mu.Unlock()
	}
	return n
}

var codeWords = []string{"tree", "sun", "cloud", "stone", "apple", "fire", "rain", "moon", "wind"}

func randomCode() string {
	return codeWords[rand.Intn(len(codeWords))] + strconv.Itoa(100+rand.Intn(900))
}
