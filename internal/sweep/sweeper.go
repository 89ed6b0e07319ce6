// Package sweep implements the scheduled batch jobs: the onboarding
// stop-condition check, the inactivity re-engagement pass, the periodic
// provider mailers and retention cleanup. Sweeps page with keyset pagination
// and are safe to re-run; a distributed lock keeps each run on one instance.
package sweep

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/expatline/lifecycle-engine/internal/analytics"
	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/lifecycle"
	"github.com/expatline/lifecycle-engine/internal/mailwizz"
	"github.com/expatline/lifecycle-engine/internal/projection"
	"github.com/expatline/lifecycle-engine/internal/store"
	"github.com/expatline/lifecycle-engine/internal/stoprules"
)

// Sweeper runs the batch jobs against the user base.
type Sweeper struct {
	store  *store.Store
	mailer lifecycle.Mailer
	sink   analytics.Sink
	cfg    config.SweepsConfig
	links  config.LinksConfig
}

// NewSweeper wires a sweeper. sink may be nil.
func NewSweeper(st *store.Store, mailer lifecycle.Mailer, sink analytics.Sink, cfg config.SweepsConfig, links config.LinksConfig) *Sweeper {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Sweeper{store: st, mailer: mailer, sink: sink, cfg: cfg, links: links}
}

// Summary aggregates one sweep run: rows inspected, rows acted on, per-record
// failures. Per-record failures never fail the run.
type Summary struct {
	Scanned int
	Acted   int
	Errors  int
}

// RunStopConditions scans users inside the onboarding window and silences the
// drip sequences of everyone matching at least one stop rule. The stop flag
// is monotonic: already-stopped users are skipped, and all matched reasons
// are recorded together in one pass.
func (s *Sweeper) RunStopConditions(ctx context.Context) (Summary, error) {
	cutoff := time.Now().Add(-time.Duration(s.cfg.OnboardingWindowDays) * 24 * time.Hour)
	var sum Summary

	afterID := ""
	for {
		users, err := s.store.ListUsersCreatedSince(ctx, cutoff, afterID, s.cfg.PageSize)
		if err != nil {
			return sum, fmt.Errorf("listing onboarding users: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			afterID = u.ID
			sum.Scanned++
			if u.AutorespondersStopped {
				continue
			}

			reasons := stoprules.Evaluate(projection.Fields(u))
			if len(reasons) == 0 {
				continue
			}

			if err := s.store.MarkAutorespondersStopped(ctx, u.ID, reasons); err != nil {
				log.Printf("[StopSweep] marking user %s: %v", u.ID, err)
				sum.Errors++
				continue
			}
			if err := s.stopOnPlatform(ctx, u, reasons); err != nil {
				// The local flag is already set; the next full sync repairs
				// the platform side.
				log.Printf("[StopSweep] platform stop for user %s: %v", u.ID, err)
				sum.Errors++
			}
			for _, r := range reasons {
				s.sink.LogEvent("autoresponders_stopped", map[string]any{
					"user_id": u.ID, "reason": r,
				})
			}
			sum.Acted++
		}

		if len(users) < s.cfg.PageSize {
			break
		}
	}

	log.Printf("[StopSweep] scanned %d users, stopped %d, errors %d", sum.Scanned, sum.Acted, sum.Errors)
	return sum, nil
}

// stopOnPlatform upserts the full projection with the two stop marker fields.
// Upserting keys on EMAIL, so no subscriber UID is needed.
func (s *Sweeper) stopOnPlatform(ctx context.Context, u *domain.UserProfile, reasons []string) error {
	fields := projection.Fields(u)
	fields[mailwizz.FieldAutorespondersStopped] = "yes"
	fields[mailwizz.FieldAutorespondersReason] = strings.Join(reasons, ", ")
	_, err := s.mailer.UpsertSubscriber(ctx, fields)
	return err
}

// RunInactivity sends one re-engagement email to every mailable user whose
// last sign of life is older than the inactivity threshold. A per-user
// cooldown stamp keeps consecutive daily runs from re-mailing the same user;
// a successful send also refreshes the platform's activity fields.
func (s *Sweeper) RunInactivity(ctx context.Context) (Summary, error) {
	now := time.Now()
	cutoff := now.Add(-time.Duration(s.cfg.InactivityDays) * 24 * time.Hour)
	cooldown := time.Duration(s.cfg.ReengagementCooldown) * 24 * time.Hour
	var sum Summary

	afterID := ""
	for {
		users, err := s.store.ListActiveUsers(ctx, afterID, s.cfg.PageSize)
		if err != nil {
			return sum, fmt.Errorf("listing active users: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			afterID = u.ID
			sum.Scanned++
			if !mailable(u) {
				continue
			}

			lastSeen := u.LastSeen()
			if lastSeen.IsZero() {
				lastSeen = u.CreatedAt // never logged in counts from signup
			}
			if lastSeen.After(cutoff) {
				continue
			}
			if u.LastReengagementSentAt != nil && now.Sub(*u.LastReengagementSentAt) < cooldown {
				continue
			}

			key := lifecycle.TemplateKey(u.Role, lifecycle.EventReengagement, u.LanguageCode())
			fields := projection.NewSendFields().
				Set(projection.KeyFName, u.FirstName).
				Set(projection.KeyDashboardURL, s.links.DashboardURL).
				MustBuild()
			if err := s.mailer.SendTransactional(ctx, u.Email, key, fields); err != nil {
				log.Printf("[InactivitySweep] send to user %s: %v", u.ID, err)
				sum.Errors++
				continue
			}
			if _, err := s.mailer.UpsertSubscriber(ctx, projection.Fields(u)); err != nil {
				log.Printf("[InactivitySweep] activity sync for user %s: %v", u.ID, err)
				sum.Errors++
			}
			if err := s.store.SetReengagementSent(ctx, u.ID, now); err != nil {
				log.Printf("[InactivitySweep] stamping user %s: %v", u.ID, err)
				sum.Errors++
			}
			s.sink.LogEvent("reengagement_sent", map[string]any{"user_id": u.ID})
			sum.Acted++
		}

		if len(users) < s.cfg.PageSize {
			break
		}
	}

	log.Printf("[InactivitySweep] sent %d re-engagement emails, errors %d", sum.Acted, sum.Errors)
	return sum, nil
}

func mailable(u *domain.UserProfile) bool {
	return u.Email != "" && u.EmailStatus != domain.EmailInvalid && !u.Unsubscribed
}
