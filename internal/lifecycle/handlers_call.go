package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/notify"
	"github.com/expatline/lifecycle-engine/internal/projection"
)

const (
	negativeReviewRetention = 90 * 24 * time.Hour
	supportAlertRetention   = 30 * 24 * time.Hour
)

func (e *Engine) handleCallChange(ctx context.Context, before, after *domain.Call) error {
	for _, tr := range CallTransitions(before, after) {
		switch tr {
		case TransCallCompleted:
			if err := e.handleCallCompleted(ctx, after); err != nil {
				return err
			}
		case TransCallMissed:
			if err := e.handleCallMissed(ctx, after); err != nil {
				return err
			}
		}
	}
	return nil
}

// handleCallCompleted notifies both sides in their own language, bumps the
// provider's call counter and mirrors the new count to the platform.
func (e *Engine) handleCallCompleted(ctx context.Context, call *domain.Call) error {
	client, err := e.store.GetUser(ctx, call.ClientID)
	if err != nil {
		return fmt.Errorf("loading client %s: %w", call.ClientID, err)
	}
	provider, err := e.store.GetUser(ctx, call.ProviderID)
	if err != nil {
		return fmt.Errorf("loading provider %s: %w", call.ProviderID, err)
	}

	duration := formatDuration(call.DurationSeconds)

	return e.runEffects("call_completed",
		effect{"client_send", func() error {
			return e.send(ctx, client, EventCallCompleted, projection.NewSendFields().
				Set(projection.KeyFName, client.FirstName).
				Set(projection.KeyExpertName, fullName(provider)).
				Set(projection.KeyDuration, duration).
				Set(projection.KeyAmount, projection.FormatAmount(call.Price)).
				Set(projection.KeyTrustpilotURL, e.links.TrustpilotURL).
				MustBuild())
		}},
		effect{"provider_send", func() error {
			return e.send(ctx, provider, EventCallCompleted, projection.NewSendFields().
				Set(projection.KeyFName, provider.FirstName).
				Set(projection.KeyClientName, clientDisplayName(call, client)).
				Set(projection.KeyDuration, duration).
				Set(projection.KeyAmount, projection.FormatAmount(call.Price)).
				MustBuild())
		}},
		effect{"provider_stats", func() error {
			total, err := e.store.IncrementProviderStats(ctx, provider.ID)
			if err != nil {
				return err
			}
			provider.TotalCalls = total
			return e.syncSubscriber(ctx, provider, nil)
		}},
		effect{"analytics", e.track("call_completed", map[string]any{
			"call_id": call.ID, "provider_id": provider.ID,
			"duration_seconds": call.DurationSeconds, "price": call.Price,
		})},
	)
}

// handleCallMissed escalates through the missed-call template variants using
// the provider's consecutive-miss count maintained by the calls subsystem.
func (e *Engine) handleCallMissed(ctx context.Context, call *domain.Call) error {
	provider, err := e.store.GetUser(ctx, call.ProviderID)
	if err != nil {
		return fmt.Errorf("loading provider %s: %w", call.ProviderID, err)
	}

	event := MissedCallEvent(provider.ConsecutiveMissedCalls)
	return e.runEffects("call_missed",
		effect{"provider_send", func() error {
			return e.send(ctx, provider, event, projection.NewSendFields().
				Set(projection.KeyFName, provider.FirstName).
				Set(projection.KeyClientName, call.ClientFirstName).
				MustBuild())
		}},
		effect{"analytics", e.track("call_missed", map[string]any{
			"call_id": call.ID, "provider_id": provider.ID,
			"consecutive": provider.ConsecutiveMissedCalls,
		})},
	)
}

// handleReviewCreated is the review fan-out: the client is thanked (warmly
// for 4-5 stars, with a Trustpilot ask), the provider gets an in-app notice,
// the provider's RATING_STARS field is refreshed, and sub-4 ratings open the
// support follow-up records.
func (e *Engine) handleReviewCreated(ctx context.Context, rv *domain.Review) error {
	client, err := e.store.GetUser(ctx, rv.ClientID)
	if err != nil {
		return fmt.Errorf("loading client %s: %w", rv.ClientID, err)
	}
	provider, err := e.store.GetUser(ctx, rv.ProviderID)
	if err != nil {
		return fmt.Errorf("loading provider %s: %w", rv.ProviderID, err)
	}

	event := EventReviewThanks
	kind := notify.KindReviewNegative
	switch {
	case rv.Rating >= 4:
		event = EventReviewThanksPositive
		kind = notify.KindReviewPositive
	case rv.Rating == 3:
		event = EventReviewThanksNeutral
		kind = notify.KindReviewNeutral
	}

	now := time.Now()
	effects := []effect{
		{"client_send", func() error {
			fields := projection.NewSendFields().
				Set(projection.KeyFName, client.FirstName).
				Set(projection.KeyExpertName, fullName(provider)).
				Set(projection.KeyRatingStars, ratingStars(rv.Rating)).
				Set(projection.KeyReviewText, rv.Comment)
			if rv.Rating >= 4 {
				fields.Set(projection.KeyTrustpilotURL, e.links.TrustpilotURL)
			}
			return e.send(ctx, client, event, fields.MustBuild())
		}},
		{"review_stamp", func() error {
			return e.store.SetReviewSubmitted(ctx, client.ID)
		}},
		{"provider_rating_sync", func() error {
			return e.syncSubscriber(ctx, provider, map[string]string{
				projection.KeyRatingStars: ratingStars(rv.Rating),
			})
		}},
		{"provider_notice", func() error {
			e.notifier.NotifyReview(ctx, provider.ID, kind, provider.LanguageCode(), client.FirstName, rv.Rating)
			return nil
		}},
		{"analytics", e.track("review_created", map[string]any{
			"review_id": rv.ID, "provider_id": provider.ID, "rating": rv.Rating,
		})},
	}

	if rv.Rating < 4 {
		effects = append(effects, effect{"negative_review_record", func() error {
			return e.store.InsertNegativeReview(ctx, &domain.NegativeReview{
				ClientID:   rv.ClientID,
				ProviderID: rv.ProviderID,
				CallID:     rv.CallID,
				Rating:     rv.Rating,
				Text:       rv.Comment,
				ExpireAt:   now.Add(negativeReviewRetention),
			})
		}})
	}
	if rv.Rating <= 2 {
		effects = append(effects, effect{"support_alert", func() error {
			return e.store.InsertSupportAlert(ctx, &domain.SupportAlert{
				Type:       "negative_review",
				Severity:   "high",
				Status:     "open",
				ClientID:   rv.ClientID,
				ProviderID: rv.ProviderID,
				CallID:     rv.CallID,
				Rating:     rv.Rating,
				Text:       rv.Comment,
				ExpireAt:   now.Add(supportAlertRetention),
			})
		}})
	}

	return e.runEffects("review_created", effects...)
}

// clientDisplayName prefers the denormalized first name stored on the call.
func clientDisplayName(call *domain.Call, client *domain.UserProfile) string {
	if call.ClientFirstName != "" {
		return call.ClientFirstName
	}
	return client.FirstName
}

// formatDuration renders call length for templates, e.g. "12 min" or "45 s".
func formatDuration(seconds int) string {
	if seconds < 60 {
		return fmt.Sprintf("%d s", seconds)
	}
	return fmt.Sprintf("%d min", (seconds+30)/60)
}
