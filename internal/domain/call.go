package domain

import "time"

// CallStatus enumerates call session states.
type CallStatus string

const (
	CallPending    CallStatus = "pending"
	CallInProgress CallStatus = "in_progress"
	CallCompleted  CallStatus = "completed"
	CallMissed     CallStatus = "missed"
	CallNoAnswer   CallStatus = "no_answer"
	CallCancelled  CallStatus = "cancelled"
)

// IsMissed reports whether the status counts as a missed call.
func (s CallStatus) IsMissed() bool {
	return s == CallMissed || s == CallNoAnswer
}

// Call is a client/provider call session. The transition of interest is any
// status reaching completed; trigger delivery is at-least-once, so handlers
// must be idempotent per call id.
type Call struct {
	ID              string     `json:"id" db:"id"`
	Status          CallStatus `json:"status" db:"status"`
	ClientID        string     `json:"client_id" db:"client_id"`
	ProviderID      string     `json:"provider_id" db:"provider_id"`
	ClientFirstName string     `json:"client_first_name" db:"client_first_name"`
	DurationSeconds int        `json:"duration_seconds" db:"duration_seconds"`
	Price           float64    `json:"price" db:"price"`
	AttemptNumber   int        `json:"attempt_number" db:"attempt_number"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Review is a client's rating of a provider. Immutable once created.
type Review struct {
	ID         string    `json:"id" db:"id"`
	CallID     string    `json:"call_id" db:"call_id"`
	ClientID   string    `json:"client_id" db:"client_id"`
	ProviderID string    `json:"provider_id" db:"provider_id"`
	Rating     int       `json:"rating" db:"rating"`
	Comment    string    `json:"comment" db:"comment"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
