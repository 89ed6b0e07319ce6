// Package notify writes in-app dashboard notifications. Writes are
// fire-and-forget: a failed insert is logged and swallowed, never surfaced to
// the triggering handler.
package notify

import (
	"context"
	"database/sql"
	"log"

	"github.com/google/uuid"
	"github.com/osteele/liquid"
)

// Kind selects a notification template.
type Kind string

const (
	KindReviewPositive Kind = "review_positive"
	KindReviewNeutral  Kind = "review_neutral"
	KindReviewNegative Kind = "review_negative"
)

type template struct {
	title   string
	message string
}

// Message bodies are Liquid templates; titles are fixed per language.
var templates = map[Kind]map[string]template{
	KindReviewPositive: {
		"FR": {"Nouvel avis positif", "{{ client_name }} vous a donné {{ rating }}/5 étoiles"},
		"EN": {"New positive review", "{{ client_name }} gave you {{ rating }}/5 stars"},
		"ES": {"Nueva reseña positiva", "{{ client_name }} te ha dado {{ rating }}/5 estrellas"},
	},
	KindReviewNeutral: {
		"FR": {"Nouvel avis", "{{ client_name }} vous a donné {{ rating }}/5 étoiles"},
		"EN": {"New review", "{{ client_name }} gave you {{ rating }}/5 stars"},
		"ES": {"Nueva reseña", "{{ client_name }} te ha dado {{ rating }}/5 estrellas"},
	},
	KindReviewNegative: {
		"FR": {"Avis négatif reçu", "{{ client_name }} vous a donné {{ rating }}/5 étoiles"},
		"EN": {"Negative review received", "{{ client_name }} gave you {{ rating }}/5 stars"},
		"ES": {"Reseña negativa recibida", "{{ client_name }} te ha dado {{ rating }}/5 estrellas"},
	},
}

// Notifier renders and inserts in-app notifications.
type Notifier struct {
	db     *sql.DB
	engine *liquid.Engine
}

// New creates a Notifier.
func New(db *sql.DB) *Notifier {
	return &Notifier{db: db, engine: liquid.NewEngine()}
}

// NotifyReview writes a review notice for the provider. lang is an
// upper-case two-letter code; unknown languages fall back to EN. Best-effort:
// errors are logged, not returned.
func (n *Notifier) NotifyReview(ctx context.Context, providerID string, kind Kind, lang, clientName string, rating int) {
	byLang, ok := templates[kind]
	if !ok {
		log.Printf("[Notify] unknown notification kind %q", kind)
		return
	}
	tpl, ok := byLang[lang]
	if !ok {
		tpl = byLang["EN"]
	}

	bindings := map[string]any{
		"client_name": clientName,
		"rating":      rating,
	}
	if bindings["client_name"] == "" {
		bindings["client_name"] = "Client"
	}

	message, renderErr := n.engine.ParseAndRenderString(tpl.message, bindings)
	if renderErr != nil {
		log.Printf("[Notify] template render error: %v", renderErr)
		message = tpl.message
	}

	if _, err := n.db.ExecContext(ctx, `
		INSERT INTO inapp_notifications (id, user_id, type, title, message, link, read)
		VALUES ($1, $2, 'new_review', $3, $4, '/dashboard/reviews', FALSE)
	`, uuid.NewString(), providerID, tpl.title, message); err != nil {
		log.Printf("[Notify] insert error for user %s: %v", providerID, err)
	}
}
