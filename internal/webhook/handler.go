// Package webhook is the inbound gateway for ESP callbacks: delivery events
// posted back by the subscriber platform (opens, clicks, bounces, complaints,
// unsubscribes). Events are recorded append-only and mapped onto local user
// state; processing failures are swallowed behind a 200 so the platform never
// retries into a poison loop.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/expatline/lifecycle-engine/internal/analytics"
	"github.com/expatline/lifecycle-engine/internal/domain"
	"github.com/expatline/lifecycle-engine/internal/pkg/logger"
	"github.com/expatline/lifecycle-engine/internal/store"
)

// Mailer is the slice of the platform client the gateway uses to push
// consent state back outbound.
type Mailer interface {
	Unsubscribe(ctx context.Context, id string) error
	StopSequence(ctx context.Context, id, reason string) error
}

// Stop reasons written from the gateway side. Distinct from the onboarding
// stop rules: these are deliverability and consent stops.
const (
	StopReasonHardBounce   = "hard_bounce"
	StopReasonComplaint    = "complaint"
	StopReasonUnsubscribed = "unsubscribed"
)

// Handler processes inbound ESP callbacks.
type Handler struct {
	store  *store.Store
	mailer Mailer
	sink   analytics.Sink
	secret string
}

// NewHandler wires the gateway handler. sink may be nil.
func NewHandler(st *store.Store, mailer Mailer, sink analytics.Sink, secret string) *Handler {
	if sink == nil {
		sink = analytics.NopSink{}
	}
	return &Handler{store: st, mailer: mailer, sink: sink, secret: secret}
}

// payload is the normalized callback body. The platform posts JSON; field
// names follow its callback schema.
type payload struct {
	Event         string `json:"event"`
	SubscriberUID string `json:"subscriber_uid"`
	CampaignUID   string `json:"campaign_uid"`
	Email         string `json:"email"`
	URL           string `json:"url"`
	BounceType    string `json:"bounce_type"`
}

// eventTypes maps callback event names onto the normalized event types.
var eventTypes = map[string]domain.EmailEventType{
	"open":        domain.EmailOpened,
	"opened":      domain.EmailOpened,
	"click":       domain.EmailClicked,
	"clicked":     domain.EmailClicked,
	"bounce":      domain.EmailBounced,
	"bounced":     domain.EmailBounced,
	"complaint":   domain.EmailComplained,
	"complained":  domain.EmailComplained,
	"unsubscribe": domain.EmailUnsubscribed,
	"unsubscribed": domain.EmailUnsubscribed,
}

// ServeHTTP is the callback endpoint. Auth failures and malformed requests
// are rejected; anything past that point returns 200 regardless of handler
// outcome, because the sender's retry cannot fix a processing error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := readPayload(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	evType, ok := eventTypes[strings.ToLower(body.Event)]
	if !ok {
		http.Error(w, "unknown event type", http.StatusBadRequest)
		return
	}
	if body.Email == "" {
		http.Error(w, "missing email", http.StatusBadRequest)
		return
	}

	if err := h.process(r.Context(), evType, body); err != nil {
		logger.Error("webhook processing failed",
			"event", string(evType), "email", body.Email, "error", err.Error())
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// authorized checks the shared webhook secret, provided either as the
// X-Webhook-Secret header or the secret query parameter. The comparison is
// constant-time even on length mismatch.
func (h *Handler) authorized(r *http.Request) bool {
	if h.secret == "" {
		return false // unconfigured gateway accepts nothing
	}
	got := r.Header.Get("X-Webhook-Secret")
	if got == "" {
		got = r.URL.Query().Get("secret")
	}
	// Pad the candidate to the secret's length so the compare always runs
	// over the full secret; a length mismatch still fails, without an early
	// exit.
	want := []byte(h.secret)
	in := make([]byte, len(want))
	copy(in, got)
	match := subtle.ConstantTimeCompare(in, want)
	sameLen := subtle.ConstantTimeEq(int32(len(got)), int32(len(want)))
	return match&sameLen == 1
}

func readPayload(r *http.Request) (*payload, error) {
	defer r.Body.Close()
	var p payload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		return nil, errors.New("invalid payload")
	}
	if p.Event == "" {
		return nil, errors.New("missing event")
	}
	return &p, nil
}

// process records the event and applies its local and outbound side effects.
func (h *Handler) process(ctx context.Context, evType domain.EmailEventType, p *payload) error {
	raw, _ := json.Marshal(p)
	if err := h.store.InsertEmailEvent(ctx, &domain.EmailEvent{
		Type:          evType,
		SubscriberUID: p.SubscriberUID,
		CampaignUID:   p.CampaignUID,
		Email:         p.Email,
		URL:           p.URL,
		BounceType:    p.BounceType,
		Payload:       raw,
		ReceivedAt:    time.Now(),
	}); err != nil {
		return err
	}

	switch evType {
	case domain.EmailBounced:
		return h.handleBounce(ctx, p)
	case domain.EmailComplained:
		return h.handleComplaint(ctx, p)
	case domain.EmailUnsubscribed:
		return h.handleUnsubscribe(ctx, p)
	case domain.EmailOpened, domain.EmailClicked:
		h.trackEngagement(evType, p)
		return nil
	}
	return nil
}

// handleBounce invalidates the address on a hard bounce and silences all
// sequences. Soft bounces are recorded only.
func (h *Handler) handleBounce(ctx context.Context, p *payload) error {
	if !strings.EqualFold(p.BounceType, "hard") {
		return nil
	}
	u, err := h.store.FindUserByEmail(ctx, p.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil // address unknown locally, nothing to invalidate
		}
		return err
	}

	var errs []error
	if err := h.store.MarkEmailInvalid(ctx, u.ID); err != nil {
		errs = append(errs, err)
	}
	if err := h.store.MarkAutorespondersStopped(ctx, u.ID, []string{StopReasonHardBounce}); err != nil {
		errs = append(errs, err)
	}
	if p.SubscriberUID != "" {
		if err := h.mailer.StopSequence(ctx, p.SubscriberUID, StopReasonHardBounce); err != nil {
			errs = append(errs, err)
		}
	}
	h.sink.LogEvent("email_hard_bounce", map[string]any{"user_id": u.ID})
	return errors.Join(errs...)
}

func (h *Handler) handleComplaint(ctx context.Context, p *payload) error {
	var errs []error
	u, err := h.store.FindUserByEmail(ctx, p.Email)
	if err == nil {
		if err := h.store.MarkComplained(ctx, u.ID); err != nil {
			errs = append(errs, err)
		}
		if err := h.store.MarkAutorespondersStopped(ctx, u.ID, []string{StopReasonComplaint}); err != nil {
			errs = append(errs, err)
		}
		h.sink.LogEvent("email_complaint", map[string]any{"user_id": u.ID})
	} else if !errors.Is(err, store.ErrNotFound) {
		errs = append(errs, err)
	}

	// A complaint implies withdrawal of consent on the platform side too.
	if p.SubscriberUID != "" {
		if err := h.mailer.Unsubscribe(ctx, p.SubscriberUID); err != nil {
			errs = append(errs, err)
		}
		if err := h.mailer.StopSequence(ctx, p.SubscriberUID, StopReasonComplaint); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) handleUnsubscribe(ctx context.Context, p *payload) error {
	var errs []error
	u, err := h.store.FindUserByEmail(ctx, p.Email)
	if err == nil {
		if err := h.store.MarkUnsubscribed(ctx, u.ID); err != nil {
			errs = append(errs, err)
		}
		if err := h.store.MarkAutorespondersStopped(ctx, u.ID, []string{StopReasonUnsubscribed}); err != nil {
			errs = append(errs, err)
		}
		h.sink.LogEvent("email_unsubscribe", map[string]any{"user_id": u.ID})
	} else if !errors.Is(err, store.ErrNotFound) {
		errs = append(errs, err)
	}

	// Mirror the unsubscribe on the platform so its own list state agrees;
	// the call is idempotent when the platform already recorded it.
	if p.SubscriberUID != "" {
		if err := h.mailer.Unsubscribe(ctx, p.SubscriberUID); err != nil {
			errs = append(errs, err)
		}
		if err := h.mailer.StopSequence(ctx, p.SubscriberUID, StopReasonUnsubscribed); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (h *Handler) trackEngagement(evType domain.EmailEventType, p *payload) {
	name := "email_open"
	if evType == domain.EmailClicked {
		name = "email_click"
	}
	params := map[string]any{
		"subscriber_uid": p.SubscriberUID,
		"campaign_uid":   p.CampaignUID,
	}
	if p.URL != "" {
		params["url"] = p.URL
		if strings.Contains(p.URL, "trustpilot.com") {
			name = "trustpilot_click"
		}
	}
	h.sink.LogEvent(name, params)
}
