package sweep

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/pkg/distlock"
)

// jobKind controls which schedule fields apply.
type jobKind int

const (
	jobDaily jobKind = iota
	jobWeekly
	jobMonthly
)

type job struct {
	name  string
	kind  jobKind
	sched config.ScheduleConfig
	run   func(context.Context) error
}

// Scheduler fires each sweep at its configured local time. All instances run
// the same schedule; the per-job distributed lock elects the one that
// actually executes.
type Scheduler struct {
	sweeper *Sweeper
	redis   *redis.Client
	db      *sql.DB
	cfg     config.SweepsConfig

	lastRun map[string]string // job name -> local day it last ran
}

// NewScheduler wires the sweep scheduler. redisClient may be nil; the lock
// falls back to Postgres advisory locks.
func NewScheduler(sweeper *Sweeper, redisClient *redis.Client, db *sql.DB, cfg config.SweepsConfig) *Scheduler {
	return &Scheduler{
		sweeper: sweeper,
		redis:   redisClient,
		db:      db,
		cfg:     cfg,
		lastRun: make(map[string]string),
	}
}

func (s *Scheduler) jobs() []job {
	asErr := func(f func(context.Context) (int, error)) func(context.Context) error {
		return func(ctx context.Context) error { _, err := f(ctx); return err }
	}
	asSummaryErr := func(f func(context.Context) (Summary, error)) func(context.Context) error {
		return func(ctx context.Context) error { _, err := f(ctx); return err }
	}
	return []job{
		{"stop_conditions", jobDaily, s.cfg.StopConditions, asSummaryErr(s.sweeper.RunStopConditions)},
		{"inactivity", jobDaily, s.cfg.Inactivity, asSummaryErr(s.sweeper.RunInactivity)},
		{"weekly_stats", jobWeekly, s.cfg.WeeklyStats, asErr(s.sweeper.RunWeeklyStats)},
		{"monthly_stats", jobMonthly, s.cfg.MonthlyStats, asErr(s.sweeper.RunMonthlyStats)},
		{"anniversary", jobDaily, s.cfg.Anniversary, asErr(s.sweeper.RunAnniversary)},
	}
}

// Run ticks every 30 seconds and fires due jobs until ctx is cancelled.
// Retention cleanup piggybacks on the stop-condition slot.
func (s *Scheduler) Run(ctx context.Context) {
	loc := s.cfg.Location()
	log.Printf("[Scheduler] starting in %s", loc)

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[Scheduler] stopping: %v", ctx.Err())
			return
		case <-ticker.C:
			s.tick(ctx, time.Now().In(loc))
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	for _, j := range s.jobs() {
		if !s.due(j, now) {
			continue
		}
		s.lastRun[j.name] = now.Format("2006-01-02")
		s.runLocked(ctx, j)

		if j.name == "stop_conditions" {
			if err := s.sweeper.RunRetentionCleanup(ctx); err != nil {
				log.Printf("[Scheduler] retention cleanup: %v", err)
			}
		}
	}
}

// due reports whether the job's local fire time is inside the current tick's
// minute and it has not already run today.
func (s *Scheduler) due(j job, now time.Time) bool {
	if !j.sched.Enabled {
		return false
	}
	if now.Hour() != j.sched.Hour || now.Minute() != j.sched.Minute {
		return false
	}
	switch j.kind {
	case jobWeekly:
		if int(now.Weekday()) != j.sched.Weekday {
			return false
		}
	case jobMonthly:
		if now.Day() != j.sched.MonthDay {
			return false
		}
	}
	return s.lastRun[j.name] != now.Format("2006-01-02")
}

// runLocked executes the job under its distributed lock. Losing the lock race
// is the normal case on all but one instance and is not an error.
func (s *Scheduler) runLocked(ctx context.Context, j job) {
	lock := distlock.NewLock(s.redis, s.db, "sweep:"+j.name, time.Hour)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		log.Printf("[Scheduler] lock %s: %v", j.name, err)
		return
	}
	if !ok {
		log.Printf("[Scheduler] %s already running elsewhere, skipping", j.name)
		return
	}
	defer lock.Release(ctx)

	start := time.Now()
	if err := j.run(ctx); err != nil {
		log.Printf("[Scheduler] %s failed after %s: %v", j.name, time.Since(start).Round(time.Millisecond), err)
		return
	}
	log.Printf("[Scheduler] %s completed in %s", j.name, time.Since(start).Round(time.Millisecond))
}
