package domain

import "time"

// PaymentStatus enumerates payment states as reported by the billing
// subsystem. Success detection is delegated to billing's predicate, not
// matched here (statuses vary by payment provider).
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is a client charge. Each status transition is a one-shot
// notification trigger.
type Payment struct {
	ID            string        `json:"id" db:"id"`
	UserID        string        `json:"user_id" db:"user_id"`
	Status        PaymentStatus `json:"status" db:"status"`
	Amount        float64       `json:"amount" db:"amount"`
	Currency      string        `json:"currency" db:"currency"`
	InvoiceURL    string        `json:"invoice_url" db:"invoice_url"`
	FailureReason string        `json:"failure_reason" db:"failure_reason"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at" db:"updated_at"`
}

// PayoutStatus enumerates provider payout states.
type PayoutStatus string

const (
	PayoutRequested PayoutStatus = "requested"
	PayoutSent      PayoutStatus = "sent"
	PayoutFailed    PayoutStatus = "failed"
)

// Payout is a provider withdrawal.
type Payout struct {
	ID            string       `json:"id" db:"id"`
	ProviderID    string       `json:"provider_id" db:"provider_id"`
	Status        PayoutStatus `json:"status" db:"status"`
	Amount        float64      `json:"amount" db:"amount"`
	Currency      string       `json:"currency" db:"currency"`
	FailureReason string       `json:"failure_reason" db:"failure_reason"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// ReferralBonus is credited to a referrer when their referral converts.
type ReferralBonus struct {
	ID           string    `json:"id" db:"id"`
	ReferrerID   string    `json:"referrer_id" db:"referrer_id"`
	ReferralName string    `json:"referral_name" db:"referral_name"`
	Amount       float64   `json:"amount" db:"amount"`
	Currency     string    `json:"currency" db:"currency"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}
