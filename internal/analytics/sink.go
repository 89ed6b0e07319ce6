// Package analytics is the fire-and-forget event sink. LogEvent never blocks
// and never returns an error: events go through a bounded buffer to a
// background writer, and a full buffer drops the event (counted) rather than
// slowing a lifecycle handler down.
package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"sync/atomic"
	"time"
)

// Sink is the analytics surface handlers depend on.
type Sink interface {
	LogEvent(name string, params map[string]any)
}

// Event is one analytics record.
type Event struct {
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Timestamp time.Time      `json:"timestamp"`
}

// PGSink persists events into the analytics_events table.
type PGSink struct {
	db     *sql.DB
	buf    chan Event
	cancel context.CancelFunc
	done   chan struct{}

	written int64
	dropped int64
}

// NewPGSink creates a sink with the given buffer size and starts its writer.
func NewPGSink(db *sql.DB, bufferSize int) *PGSink {
	if bufferSize <= 0 {
		bufferSize = 1024
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &PGSink{
		db:     db,
		buf:    make(chan Event, bufferSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

// LogEvent enqueues one event. Non-blocking: a full buffer drops the event.
func (s *PGSink) LogEvent(name string, params map[string]any) {
	ev := Event{Name: name, Params: params, Timestamp: time.Now().UTC()}
	select {
	case s.buf <- ev:
	default:
		atomic.AddInt64(&s.dropped, 1)
	}
}

// Stats returns written/dropped counters.
func (s *PGSink) Stats() (written, dropped int64) {
	return atomic.LoadInt64(&s.written), atomic.LoadInt64(&s.dropped)
}

// Close stops the writer after draining the buffer.
func (s *PGSink) Close() {
	s.cancel()
	<-s.done
}

func (s *PGSink) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.buf:
			s.write(ev)
		case <-ctx.Done():
			// Drain whatever is buffered before exiting
			for {
				select {
				case ev := <-s.buf:
					s.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (s *PGSink) write(ev Event) {
	params, err := json.Marshal(ev.Params)
	if err != nil {
		params = []byte("{}")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analytics_events (name, params, created_at) VALUES ($1, $2, $3)
	`, ev.Name, params, ev.Timestamp)
	if err != nil {
		log.Printf("[Analytics] insert error: %v", err)
		return
	}
	atomic.AddInt64(&s.written, 1)
}

// NopSink discards everything; used in tests and when analytics is disabled.
type NopSink struct{}

// LogEvent does nothing.
func (NopSink) LogEvent(string, map[string]any) {}
