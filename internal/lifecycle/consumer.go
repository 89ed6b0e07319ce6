package lifecycle

import (
	"context"
	"log"
	"time"

	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/store"
)

// Consumer polls the change-event outbox and feeds claimed rows to the
// engine. Handler failures are logged and the row is not re-queued: one
// malformed or permanently failing event must never wedge the stream, and
// every handler tolerates the duplicate delivery a crash can cause anyway.
type Consumer struct {
	store    *store.Store
	engine   *Engine
	interval time.Duration
	batch    int
}

// NewConsumer creates an outbox consumer from config.
func NewConsumer(st *store.Store, engine *Engine, cfg config.ConsumerConfig) *Consumer {
	return &Consumer{
		store:    st,
		engine:   engine,
		interval: cfg.PollInterval(),
		batch:    cfg.BatchSize,
	}
}

// Run polls until ctx is cancelled. A full batch triggers an immediate
// re-poll so a backlog drains at processing speed, not at tick speed.
func (c *Consumer) Run(ctx context.Context) {
	log.Printf("[Consumer] starting, poll interval %s, batch %d", c.interval, c.batch)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		n := c.poll(ctx)
		if n >= c.batch {
			continue // backlog, keep draining
		}
		select {
		case <-ctx.Done():
			log.Printf("[Consumer] stopping: %v", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// poll claims one batch and handles each event, returning the claimed count.
func (c *Consumer) poll(ctx context.Context) int {
	events, err := c.store.ClaimChangeEvents(ctx, c.batch)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[Consumer] claim failed: %v", err)
		}
		return 0
	}
	if len(events) == 0 {
		return 0
	}

	failed := 0
	for _, ev := range events {
		if err := c.engine.HandleEvent(ctx, ev); err != nil {
			failed++
			log.Printf("[Consumer] event %d (%s %s) failed: %v", ev.ID, ev.EntityType, ev.EntityID, err)
		}
	}
	log.Printf("[Consumer] processed %d events (%d failed)", len(events), failed)
	return len(events)
}
