package lifecycle

import (
	"context"
	"maps"
	"strconv"
	"strings"

	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/projection"
	"github.com/expatline/lifecycle-engine/internal/stoprules"
)

// stopReasons maps the transitions that silence an onboarding drip sequence
// onto their recorded stop reason. The identifiers are the rule engine's, so
// an inline stop and a sweep stop are indistinguishable downstream.
var stopReasons = map[Transition]string{
	TransProfileCompleted: stoprules.ReasonProfileCompleted,
	TransFirstLogin:       stoprules.ReasonFirstLogin,
	TransWentOnline:       stoprules.ReasonUserOnline,
	TransKYCVerified:      stoprules.ReasonKYCVerified,
	TransPayPalConfigured: stoprules.ReasonPayPalConfigured,
}

// handleUserChange runs every transition a profile diff produced plus, when
// any projected field moved, one subscriber sync. The sync is diff-gated so
// updates to unprojected columns never generate platform traffic. Transitions
// that outgrow a drip sequence additionally issue one sequence stop carrying
// the joined reason list.
func (e *Engine) handleUserChange(ctx context.Context, before, after *domain.UserProfile) error {
	if after == nil {
		return nil // profile deletions have no marketing surface
	}
	transitions := UserTransitions(before, after)

	var effects []effect
	var subscriberUID string
	if before == nil || !maps.Equal(projection.Fields(before), projection.Fields(after)) {
		effects = append(effects, effect{"subscriber_sync", func() error {
			uid, err := e.syncSubscriberUID(ctx, after, nil)
			subscriberUID = uid
			return err
		}})
	}

	for _, tr := range transitions {
		effects = append(effects, e.userTransitionEffects(ctx, tr, before, after)...)
	}

	var reasons []string
	for _, tr := range transitions {
		if r, ok := stopReasons[tr]; ok {
			reasons = append(reasons, r)
		}
	}
	if len(reasons) > 0 && !after.AutorespondersStopped {
		effects = append(effects, effect{"sequence_stop", func() error {
			if err := e.store.MarkAutorespondersStopped(ctx, after.ID, reasons); err != nil {
				return err
			}
			id := subscriberUID
			if id == "" {
				id = after.Email // the platform client resolves emails to UIDs
			}
			return e.mailer.StopSequence(ctx, id, strings.Join(reasons, ", "))
		}})
	}
	return e.runEffects("user_change", effects...)
}

func (e *Engine) userTransitionEffects(ctx context.Context, tr Transition, before, after *domain.UserProfile) []effect {
	u := after
	switch tr {
	case TransUserCreated:
		return []effect{
			{"welcome_send", func() error {
				return e.send(ctx, u, EventWelcome, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("sign_up", map[string]any{
				"user_id": u.ID, "role": string(u.Role),
			})},
		}

	case TransProfileCompleted:
		return []effect{
			{"profile_completed_send", func() error {
				return e.send(ctx, u, EventProfileCompleted, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("profile_completed", map[string]any{"user_id": u.ID})},
		}

	case TransFirstLogin:
		return []effect{
			{"first_login_send", func() error {
				return e.send(ctx, u, EventFirstLogin, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("first_login", map[string]any{"user_id": u.ID})},
		}

	case TransWentOnline:
		// The sync already carries ONLINE_STATUS; only the analytics trail
		// wants the flip itself.
		return []effect{
			{"analytics", e.track("provider_online", map[string]any{"user_id": u.ID})},
		}

	case TransWentOffline:
		return nil

	case TransKYCVerified:
		if !u.Role.IsProvider() {
			return nil
		}
		return []effect{
			{"kyc_verified_send", func() error {
				return e.send(ctx, u, EventKYCVerified, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("kyc_verified", map[string]any{"user_id": u.ID})},
		}

	case TransPayPalConfigured:
		return []effect{
			{"paypal_configured_send", func() error {
				return e.send(ctx, u, EventPayPalConfigured, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("paypal_configured", map[string]any{"user_id": u.ID})},
		}

	case TransFirstEarning:
		if !u.Role.IsProvider() {
			return nil
		}
		return []effect{
			{"first_earning_send", func() error {
				return e.send(ctx, u, EventFirstEarning, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyAmount, projection.FormatAmount(u.TotalEarnings)).
					Set(projection.KeyTotalEarnings, projection.FormatAmount(u.TotalEarnings)).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("first_earning", map[string]any{
				"user_id": u.ID, "amount": u.TotalEarnings,
			})},
		}

	case TransEarningCredited:
		if !u.Role.IsProvider() {
			return nil
		}
		delta := u.TotalEarnings - before.TotalEarnings
		return []effect{
			{"earning_credited_send", func() error {
				fields := projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyAmount, projection.FormatAmount(delta)).
					Set(projection.KeyTotalEarnings, projection.FormatAmount(u.TotalEarnings)).
					Set(projection.KeyDashboardURL, e.links.DashboardURL)
				// Best-effort attribution to the latest completed call.
				if name, err := e.store.LatestCompletedCallClient(ctx, u.ID); err == nil && name != "" {
					fields.Set(projection.KeyClientName, name)
				}
				return e.send(ctx, u, EventEarningCredited, fields.MustBuild())
			}},
			{"analytics", e.track("earning_credited", map[string]any{
				"user_id": u.ID, "amount": delta,
			})},
		}

	case TransThresholdReached:
		if !u.Role.IsProvider() {
			return nil
		}
		return []effect{
			{"payout_threshold_send", func() error {
				return e.send(ctx, u, EventPayoutThreshold, projection.NewSendFields().
					Set(projection.KeyFName, u.FirstName).
					Set(projection.KeyThreshold, projection.FormatAmount(u.PayoutThreshold)).
					Set(projection.KeyTotalEarnings, projection.FormatAmount(u.TotalEarnings)).
					Set(projection.KeyDashboardURL, e.links.DashboardURL).
					MustBuild())
			}},
			{"analytics", e.track("payout_threshold_reached", map[string]any{
				"user_id": u.ID, "threshold": u.PayoutThreshold,
			})},
		}
	}
	return nil
}

// track wraps the analytics sink as an effect body. The sink never blocks or
// errors, so the effect always succeeds; it exists so the call shows up in
// the same ordered effect list as its siblings.
func (e *Engine) track(name string, params map[string]any) func() error {
	return func() error {
		e.sink.LogEvent(name, params)
		return nil
	}
}

// ratingStars renders a star count for the RATING_STARS field.
func ratingStars(rating int) string {
	return strconv.Itoa(rating)
}
