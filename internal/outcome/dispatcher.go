// Package outcome fans resolved rounds and finished games out to external
// sinks. Delivery is best-effort and never blocks the game.
package outcome

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiliankoe/timeauction/internal/game"
	"github.com/rs/zerolog/log"
)

type Event struct {
	ID string `json:"id"`
	game.Outcome
}

type Sink interface {
	Name() string
	Send(ctx context.Context, ev Event) error
	Close() error
}

type Dispatcher struct {
	queue   chan Event
	sinks   []Sink
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(queueSize int, sinks ...Sink) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		queue:   make(chan Event, queueSize),
		sinks:   sinks,
		timeout: 5 * time.Second,
	}
}

func (d *Dispatcher) Sinks() int { return len(d.sinks) }

// Publish queues the outcome. When the queue is full the event is dropped.
func (d *Dispatcher) Publish(o game.Outcome) {
	ev := Event{ID: uuid.NewString(), Outcome: o}
	select {
	case d.queue <- ev:
	default:
		log.Warn().Str("code", o.Code).Str("kind", string(o.Kind)).Msg("outcome queue full, event dropped")
	}
}

// Start runs the delivery loop in the background. Close waits for it.
func (d *Dispatcher) Start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Run(ctx)
	}()
}

// Run delivers queued events until ctx is cancelled, then flushes what is
// left in the queue.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		case <-ctx.Done():
			d.flush()
			return
		}
	}
}

func (d *Dispatcher) flush() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(context.Background(), ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	for _, s := range d.sinks {
		sctx, cancel := context.WithTimeout(ctx, d.timeout)
		if err := s.Send(sctx, ev); err != nil {
			log.Error().Err(err).Str("sink", s.Name()).Str("code", ev.Code).Str("id", ev.ID).Msg("outcome delivery failed")
		} else {
			log.Debug().Str("sink", s.Name()).Str("code", ev.Code).Str("kind", string(ev.Kind)).Msg("outcome delivered")
		}
		cancel()
	}
}

// Close waits for a loop started with Start to finish flushing, then closes
// every sink. Cancel the loop's context first.
func (d *Dispatcher) Close() error {
	d.wg.Wait()
	var errs []error
	for _, s := range d.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
