package sweep

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/lifecycle"
	"github.com/expatline/lifecycle-engine/internal/projection"
)

// RunWeeklyStats mails every active provider their activity summary. The
// numbers themselves live in the subscriber's synced fields; the send only
// carries the fresh totals so the template never shows stale figures.
func (s *Sweeper) RunWeeklyStats(ctx context.Context) (int, error) {
	return s.runProviderStats(ctx, lifecycle.EventWeeklyStats, "weekly_stats_sent")
}

// RunMonthlyStats is the monthly variant of the provider summary.
func (s *Sweeper) RunMonthlyStats(ctx context.Context) (int, error) {
	return s.runProviderStats(ctx, lifecycle.EventMonthlyStats, "monthly_stats_sent")
}

func (s *Sweeper) runProviderStats(ctx context.Context, event, analyticsName string) (int, error) {
	sent := 0
	afterID := ""
	for {
		users, err := s.store.ListActiveUsers(ctx, afterID, s.cfg.PageSize)
		if err != nil {
			return sent, fmt.Errorf("listing active users: %w", err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			afterID = u.ID
			if !u.Role.IsProvider() || !mailable(u) {
				continue
			}

			key := lifecycle.TemplateKey(u.Role, event, u.LanguageCode())
			fields := projection.NewSendFields().
				Set(projection.KeyFName, u.FirstName).
				Set(projection.KeyTotalEarnings, projection.FormatAmount(u.TotalEarnings)).
				Set(projection.KeyDashboardURL, s.links.DashboardURL).
				Extra(projection.KeyTotalCalls, strconv.Itoa(u.TotalCalls)).
				MustBuild()
			if err := s.mailer.SendTransactional(ctx, u.Email, key, fields); err != nil {
				log.Printf("[StatsSweep] %s to provider %s: %v", event, u.ID, err)
				continue
			}
			s.sink.LogEvent(analyticsName, map[string]any{"user_id": u.ID})
			sent++
		}

		if len(users) < s.cfg.PageSize {
			break
		}
	}

	log.Printf("[StatsSweep] sent %d %s emails", sent, event)
	return sent, nil
}

// anniversaryMaxYears bounds the signup-date windows the daily run checks.
const anniversaryMaxYears = 10

// RunAnniversary mails users whose signup date falls N whole years ago,
// within a symmetric ±12h window around each anniversary so a run landing
// slightly early or late still catches everyone exactly once per year.
func (s *Sweeper) RunAnniversary(ctx context.Context) (int, error) {
	now := time.Now()
	sent := 0

	for years := 1; years <= anniversaryMaxYears; years++ {
		target := now.AddDate(-years, 0, 0)
		from := target.Add(-12 * time.Hour)
		to := target.Add(12 * time.Hour)

		n, err := s.mailAnniversaryWindow(ctx, from, to, years)
		sent += n
		if err != nil {
			return sent, err
		}
	}

	log.Printf("[AnniversarySweep] sent %d anniversary emails", sent)
	return sent, nil
}

func (s *Sweeper) mailAnniversaryWindow(ctx context.Context, from, to time.Time, years int) (int, error) {
	sent := 0
	afterID := ""
	for {
		users, err := s.store.ListUsersCreatedBetween(ctx, from, to, afterID, s.cfg.PageSize)
		if err != nil {
			return sent, fmt.Errorf("listing anniversary users (%d years): %w", years, err)
		}
		if len(users) == 0 {
			break
		}

		for _, u := range users {
			afterID = u.ID
			if !mailable(u) {
				continue
			}
			if err := s.sendAnniversary(ctx, u, years); err != nil {
				log.Printf("[AnniversarySweep] send to user %s: %v", u.ID, err)
				continue
			}
			s.sink.LogEvent("anniversary_sent", map[string]any{
				"user_id": u.ID, "years": years,
			})
			sent++
		}

		if len(users) < s.cfg.PageSize {
			break
		}
	}
	return sent, nil
}

func (s *Sweeper) sendAnniversary(ctx context.Context, u *domain.UserProfile, years int) error {
	key := lifecycle.TemplateKey(u.Role, lifecycle.EventAnniversary, u.LanguageCode())
	fields := projection.NewSendFields().
		Set(projection.KeyFName, u.FirstName).
		Set(projection.KeyDashboardURL, s.links.DashboardURL).
		Extra("YEARS", strconv.Itoa(years)).
		MustBuild()
	return s.mailer.SendTransactional(ctx, u.Email, key, fields)
}

// RunRetentionCleanup purges expired support follow-up records.
func (s *Sweeper) RunRetentionCleanup(ctx context.Context) error {
	for _, table := range []string{"negative_reviews", "support_alerts"} {
		n, err := s.store.PurgeExpired(ctx, table, 500)
		if err != nil {
			return fmt.Errorf("purging %s: %w", table, err)
		}
		if n > 0 {
			log.Printf("[Cleanup] purged %d expired rows from %s", n, table)
		}
	}
	return nil
}
