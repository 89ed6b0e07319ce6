package domain

import (
	"encoding/json"
	"time"
)

// EntityType identifies which collection a change event refers to.
type EntityType string

const (
	EntityUser          EntityType = "user"
	EntityCall          EntityType = "call"
	EntityReview        EntityType = "review"
	EntityPayment       EntityType = "payment"
	EntityPayout        EntityType = "payout"
	EntityReferralBonus EntityType = "referral_bonus"
)

// ChangeEvent is one row of the change-event outbox: a before/after snapshot
// written by the owning subsystem in the same transaction as the entity
// mutation. Delivery to handlers is at-least-once; Before is null for
// creations.
type ChangeEvent struct {
	ID         int64           `json:"id" db:"id"`
	EntityType EntityType      `json:"entity_type" db:"entity_type"`
	EntityID   string          `json:"entity_id" db:"entity_id"`
	Before     json.RawMessage `json:"before" db:"before"`
	After      json.RawMessage `json:"after" db:"after"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
}

// EmailEventType enumerates normalized inbound ESP callback types.
type EmailEventType string

const (
	EmailOpened       EmailEventType = "opened"
	EmailClicked      EmailEventType = "clicked"
	EmailBounced      EmailEventType = "bounced"
	EmailComplained   EmailEventType = "complained"
	EmailUnsubscribed EmailEventType = "unsubscribed"
)

// EmailEvent is an append-only record of an inbound ESP callback.
type EmailEvent struct {
	ID            string          `json:"id" db:"id"`
	Type          EmailEventType  `json:"type" db:"type"`
	SubscriberUID string          `json:"subscriber_uid" db:"subscriber_uid"`
	CampaignUID   string          `json:"campaign_uid" db:"campaign_uid"`
	Email         string          `json:"email" db:"email"`
	URL           string          `json:"url" db:"url"`
	BounceType    string          `json:"bounce_type" db:"bounce_type"`
	Payload       json.RawMessage `json:"payload" db:"payload"`
	ReceivedAt    time.Time       `json:"received_at" db:"received_at"`
}

// NegativeReview is stored for support follow-up when a client rates below 4.
// Rows carry an expiry timestamp honoured by the cleanup job (90 days).
type NegativeReview struct {
	ID         string    `json:"id" db:"id"`
	ClientID   string    `json:"client_id" db:"client_id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	CallID     string    `json:"call_id" db:"call_id"`
	Rating     int       `json:"rating" db:"rating"`
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ExpireAt   time.Time `json:"expire_at" db:"expire_at"`
}

// SupportAlert is opened for very low ratings (<=2). Expiry is 30 days.
type SupportAlert struct {
	ID         string    `json:"id" db:"id"`
	Type       string    `json:"type" db:"type"`
	Severity   string    `json:"severity" db:"severity"`
	Status     string    `json:"status" db:"status"`
	ClientID   string    `json:"client_id" db:"client_id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	CallID     string    `json:"call_id" db:"call_id"`
	Rating     int       `json:"rating" db:"rating"`
	Text       string    `json:"text" db:"text"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	ExpireAt   time.Time `json:"expire_at" db:"expire_at"`
}

// InAppNotification is the fire-and-forget dashboard notice write.
type InAppNotification struct {
	ID        string    `json:"id" db:"id"`
	UserID    string    `json:"user_id" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Link      string    `json:"link" db:"link"`
	Read      bool      `json:"read" db:"read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
