package lifecycle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/expatline/lifecycle-engine/internal/analytics"
	"github.com/expatline/lifecycle-engine/internal/config"
	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/notify"
	"github.com/expatline/lifecycle-engine/internal/pkg/logger"
	"github.com/expatline/lifecycle-engine/internal/projection"
	"github.com/expatline/lifecycle-engine/internal/store"
)

// Mailer is the slice of the subscriber platform API the engine uses.
type Mailer interface {
	UpsertSubscriber(ctx context.Context, fields map[string]string) (string, error)
	UpdateSubscriber(ctx context.Context, id string, fields map[string]string) error
	SendTransactional(ctx context.Context, to, templateKey string, customFields map[string]string) error
	StopSequence(ctx context.Context, id, reason string) error
}

// Engine dispatches change events to their lifecycle handlers.
type Engine struct {
	store    *store.Store
	mailer   Mailer
	notifier *notify.Notifier
	sink     analytics.Sink
	links    config.LinksConfig
}

// NewEngine wires the lifecycle engine. sink may be nil; it degrades to a
// no-op.
func NewEngine(st *store.Store, mailer Mailer, notifier *notify.Notifier, sink analytics.Sink, links config.LinksConfig) *Engine {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Engine{store: st, mailer: mailer, notifier: notifier, sink: sink, links: links}
}

// HandleEvent decodes one outbox row, detects its transitions and runs the
// matching handlers. Errors are aggregated: every effect gets its chance to
// run before the event is reported failed.
func (e *Engine) HandleEvent(ctx context.Context, ev domain.ChangeEvent) error {
	switch ev.EntityType {
	case domain.EntityUser:
		var before, after *domain.UserProfile
		if err := decodePair(ev, &before, &after); err != nil {
			return err
		}
		return e.handleUserChange(ctx, before, after)

	case domain.EntityCall:
		var before, after *domain.Call
		if err := decodePair(ev, &before, &after); err != nil {
			return err
		}
		return e.handleCallChange(ctx, before, after)

	case domain.EntityReview:
		var before, after *domain.Review
		if err := decodePair(ev, &before, &after); err != nil {
			return err
		}
		if before != nil || after == nil {
			return nil // reviews are immutable, only creations matter
		}
		return e.handleReviewCreated(ctx, after)

	case domain.EntityPayment:
		var before, after *domain.Payment
		if err := decodePair(ev, &before, &after); err != nil {
			return err
		}
		return e.handlePaymentChange(ctx, before, after)

	case domain.EntityPayout:
		var before, after *domain.Payout
		if err := decodePair(ev, &before, &after); err != nil {
			return err
		}
		return e.handlePayoutChange(ctx, before, after)

	case domain.EntityReferralBonus:
		var before, after *domain.ReferralBonus
		if err := decodePair(ev, &before, &after); err != nil {
			return err
		}
		if before != nil || after == nil {
			return nil
		}
		return e.handleReferralBonus(ctx, after)

	default:
		logger.Warn("unknown change event entity type", "entity_type", string(ev.EntityType), "event_id", ev.ID)
		return nil
	}
}

// decodePair unmarshals the before/after snapshots. A missing snapshot stays
// nil.
func decodePair[T any](ev domain.ChangeEvent, before, after **T) error {
	if len(ev.Before) > 0 && string(ev.Before) != "null" {
		*before = new(T)
		if err := json.Unmarshal(ev.Before, *before); err != nil {
			return fmt.Errorf("decoding before snapshot of event %d: %w", ev.ID, err)
		}
	}
	if len(ev.After) > 0 && string(ev.After) != "null" {
		*after = new(T)
		if err := json.Unmarshal(ev.After, *after); err != nil {
			return fmt.Errorf("decoding after snapshot of event %d: %w", ev.ID, err)
		}
	}
	return nil
}

// effect is one best-effort side channel of a handler.
type effect struct {
	name string
	run  func() error
}

// runEffects executes every effect regardless of individual failures and
// returns the aggregate. One channel failing (ESP down, DB hiccup) must not
// suppress the others.
func (e *Engine) runEffects(scope string, effects ...effect) error {
	var errs []error
	for _, ef := range effects {
		if err := ef.run(); err != nil {
			logger.Error("lifecycle effect failed",
				"scope", scope, "effect", ef.name, "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", ef.name, err))
		}
	}
	return errors.Join(errs...)
}

// canEmail reports whether the user may receive transactional sends.
// Deliverability and consent gates apply to sends only, never to subscriber
// field syncs.
func canEmail(u *domain.UserProfile) bool {
	return u != nil && u.Email != "" && u.EmailStatus != domain.EmailInvalid && !u.Unsubscribed
}

// syncSubscriber pushes the user's full projection to the platform. The
// projection carries every declared key, so this is a safe idempotent upsert.
func (e *Engine) syncSubscriber(ctx context.Context, u *domain.UserProfile, overrides map[string]string) error {
	_, err := e.syncSubscriberUID(ctx, u, overrides)
	return err
}

// syncSubscriberUID is syncSubscriber returning the platform's subscriber UID,
// for callers that chain a per-UID operation onto the sync.
func (e *Engine) syncSubscriberUID(ctx context.Context, u *domain.UserProfile, overrides map[string]string) (string, error) {
	fields := projection.Fields(u)
	for k, v := range overrides {
		fields[k] = v
	}
	return e.mailer.UpsertSubscriber(ctx, fields)
}

// send composes the template key for the user's audience and language and
// fires one transactional email. Blocked recipients are skipped silently.
func (e *Engine) send(ctx context.Context, u *domain.UserProfile, event string, fields map[string]string) error {
	if !canEmail(u) {
		logger.Debug("send skipped, recipient not mailable", "user_id", u.ID, "event", event)
		return nil
	}
	key := TemplateKey(u.Role, event, u.LanguageCode())
	return e.mailer.SendTransactional(ctx, u.Email, key, fields)
}

func fullName(u *domain.UserProfile) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}
