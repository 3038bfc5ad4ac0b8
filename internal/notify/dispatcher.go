// Package notify delivers outbox events to the configured sinks. Events are
// written by the auction actors in the same store transaction as the state
// change that caused them; the Dispatcher drains them in insertion order and
// marks them delivered once every sink has accepted them.
package notify

import (
	"context"
	"fmt"
	"time"

	"proxy-auction/internal/models"
	"proxy-auction/utils"

	"github.com/jonboulle/clockwork"
)

const (
	DefaultBatchSize    = 100
	DefaultPollInterval = 2 * time.Second
)

// Sink is one delivery channel for auction events.
type Sink interface {
	Emit(ctx context.Context, event models.Event) error
	Name() string
}

// Outbox is the slice of the auction store the dispatcher reads from.
type Outbox interface {
	PendingEvents(ctx context.Context, limit int) ([]models.Event, error)
	MarkEventsDelivered(ctx context.Context, eventIDs []string) error
}

// DispatcherConfig tunes batch size and the fallback poll interval.
type DispatcherConfig struct {
	BatchSize    int
	PollInterval time.Duration
}

// Dispatcher drains the outbox into a Sink. Delivery is at least once: an
// event whose Emit fails stays pending and is retried on the next pass, and
// nothing after it is delivered first.
type Dispatcher struct {
	outbox   Outbox
	sink     Sink
	clock    clockwork.Clock
	batch    int
	interval time.Duration
	wake     chan struct{}
}

// NewDispatcher creates a Dispatcher. A nil clock means the wall clock.
func NewDispatcher(outbox Outbox, sink Sink, cfg DispatcherConfig, clk clockwork.Clock) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Dispatcher{
		outbox:   outbox,
		sink:     sink,
		clock:    clk,
		batch:    cfg.BatchSize,
		interval: cfg.PollInterval,
		wake:     make(chan struct{}, 1),
	}
}

// Nudge asks the dispatcher to drain soon. It never blocks.
func (d *Dispatcher) Nudge() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Run drains the outbox on every nudge and poll tick until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := d.clock.NewTicker(d.interval)
	defer ticker.Stop()

	utils.Info("notification dispatcher started", map[string]any{
		"sink":          d.sink.Name(),
		"batch_size":    d.batch,
		"poll_interval": d.interval.String(),
	})

	for {
		if _, err := d.Drain(ctx); err != nil && ctx.Err() == nil {
			utils.Warn("outbox drain stopped early", map[string]any{"error": err.Error()})
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.wake:
		case <-ticker.Chan():
		}
	}
}

// Drain delivers pending events until the outbox is empty or an Emit fails.
// It returns how many events were marked delivered.
func (d *Dispatcher) Drain(ctx context.Context) (int, error) {
	total := 0
	for {
		events, err := d.outbox.PendingEvents(ctx, d.batch)
		if err != nil {
			return total, fmt.Errorf("notify: load pending events: %w", err)
		}
		if len(events) == 0 {
			return total, nil
		}

		delivered := make([]string, 0, len(events))
		var emitErr error
		for _, e := range events {
			if emitErr = d.sink.Emit(ctx, e); emitErr != nil {
				emitErr = fmt.Errorf("notify: emit %s %s: %w", e.Kind, e.EventID, emitErr)
				break
			}
			delivered = append(delivered, e.EventID)
		}

		if len(delivered) > 0 {
			if err := d.outbox.MarkEventsDelivered(ctx, delivered); err != nil {
				return total, fmt.Errorf("notify: mark delivered: %w", err)
			}
			total += len(delivered)
		}
		if emitErr != nil {
			return total, emitErr
		}
		if len(events) < d.batch {
			return total, nil
		}
	}
}
