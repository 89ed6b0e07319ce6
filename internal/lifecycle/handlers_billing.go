package lifecycle

import (
	"context"
	"fmt"

	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/projection"
)

func (e *Engine) handlePaymentChange(ctx context.Context, before, after *domain.Payment) error {
	for _, tr := range PaymentTransitions(before, after) {
		client, err := e.store.GetUser(ctx, after.UserID)
		if err != nil {
			return fmt.Errorf("loading payer %s: %w", after.UserID, err)
		}

		switch tr {
		case TransPaymentSucceeded:
			invoiceURL := after.InvoiceURL
			if invoiceURL == "" {
				invoiceURL = e.links.InvoiceBase + "/" + after.ID
			}
			err = e.runEffects("payment_succeeded",
				effect{"client_send", func() error {
					return e.send(ctx, client, EventPaymentSucceeded, projection.NewSendFields().
						Set(projection.KeyFName, client.FirstName).
						Set(projection.KeyAmount, projection.FormatAmount(after.Amount)).
						Set(projection.KeyCurrency, after.Currency).
						Set(projection.KeyInvoiceURL, invoiceURL).
						MustBuild())
				}},
				effect{"analytics", e.track("purchase", map[string]any{
					"payment_id": after.ID, "user_id": client.ID,
					"amount": after.Amount, "currency": after.Currency,
				})},
			)

		case TransPaymentFailed:
			err = e.runEffects("payment_failed",
				effect{"client_send", func() error {
					return e.send(ctx, client, EventPaymentFailed, projection.NewSendFields().
						Set(projection.KeyFName, client.FirstName).
						Set(projection.KeyAmount, projection.FormatAmount(after.Amount)).
						Set(projection.KeyCurrency, after.Currency).
						Set(projection.KeyReason, after.FailureReason).
						Set(projection.KeyRetryURL, e.links.RetryURL).
						MustBuild())
				}},
				effect{"analytics", e.track("payment_failed", map[string]any{
					"payment_id": after.ID, "user_id": client.ID,
					"reason": after.FailureReason,
				})},
			)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handlePayoutChange(ctx context.Context, before, after *domain.Payout) error {
	transitions := PayoutTransitions(before, after)
	if len(transitions) == 0 {
		return nil
	}
	provider, err := e.store.GetUser(ctx, after.ProviderID)
	if err != nil {
		return fmt.Errorf("loading provider %s: %w", after.ProviderID, err)
	}

	for _, tr := range transitions {
		event := ""
		analyticsName := ""
		switch tr {
		case TransPayoutRequested:
			event, analyticsName = EventPayoutRequested, "payout_requested"
		case TransPayoutSent:
			event, analyticsName = EventPayoutSent, "payout_sent"
		case TransPayoutFailed:
			event, analyticsName = EventPayoutFailed, "payout_failed"
		default:
			continue
		}

		err := e.runEffects(analyticsName,
			effect{"provider_send", func() error {
				fields := projection.NewSendFields().
					Set(projection.KeyFName, provider.FirstName).
					Set(projection.KeyAmount, projection.FormatAmount(after.Amount)).
					Set(projection.KeyCurrency, after.Currency).
					Set(projection.KeyDashboardURL, e.links.DashboardURL)
				if tr == TransPayoutFailed {
					fields.Set(projection.KeyReason, after.FailureReason)
				}
				return e.send(ctx, provider, event, fields.MustBuild())
			}},
			effect{"analytics", e.track(analyticsName, map[string]any{
				"payout_id": after.ID, "provider_id": provider.ID,
				"amount": after.Amount, "currency": after.Currency,
			})},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) handleReferralBonus(ctx context.Context, bonus *domain.ReferralBonus) error {
	referrer, err := e.store.GetUser(ctx, bonus.ReferrerID)
	if err != nil {
		return fmt.Errorf("loading referrer %s: %w", bonus.ReferrerID, err)
	}

	return e.runEffects("referral_bonus",
		effect{"referrer_send", func() error {
			return e.send(ctx, referrer, EventReferralBonus, projection.NewSendFields().
				Set(projection.KeyFName, referrer.FirstName).
				Set(projection.KeyReferralName, bonus.ReferralName).
				Set(projection.KeyBonusAmount, projection.FormatAmount(bonus.Amount)).
				Set(projection.KeyCurrency, bonus.Currency).
				MustBuild())
		}},
		effect{"analytics", e.track("referral_bonus", map[string]any{
			"bonus_id": bonus.ID, "referrer_id": referrer.ID, "amount": bonus.Amount,
		})},
	)
}
