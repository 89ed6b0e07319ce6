package domain

import "time"

// Role identifies which side of the marketplace a user is on.
type Role string

const (
	RoleClient         Role = "client"
	RoleProviderExpat  Role = "provider_expat"
	RoleProviderLawyer Role = "provider_lawyer"
)

// IsProvider reports whether the role is one of the provider variants.
func (r Role) IsProvider() bool {
	return r == RoleProviderExpat || r == RoleProviderLawyer
}

// KYCStatus enumerates the identity-verification states.
type KYCStatus string

const (
	KYCPending   KYCStatus = "pending"
	KYCSubmitted KYCStatus = "submitted"
	KYCRejected  KYCStatus = "rejected"
	KYCVerified  KYCStatus = "verified"
)

// EmailStatus tracks deliverability of a user's address.
type EmailStatus string

const (
	EmailValid   EmailStatus = "valid"
	EmailInvalid EmailStatus = "invalid"
)

// UserProfile is the engine's view of a marketplace user. It is mutated by
// many independent subsystems (registration, calls, payments, presence); every
// automation handler reads it and the sweeps scan it.
type UserProfile struct {
	ID               string      `json:"id" db:"id"`
	Email            string      `json:"email" db:"email"`
	EmailStatus      EmailStatus `json:"email_status" db:"email_status"`
	FirstName        string      `json:"first_name" db:"first_name"`
	LastName         string      `json:"last_name" db:"last_name"`
	Role             Role        `json:"role" db:"role"`
	Language         string      `json:"language" db:"language"`
	ProfileCompleted bool        `json:"profile_completed" db:"profile_completed"`
	KYCStatus        KYCStatus   `json:"kyc_status" db:"kyc_status"`
	IsActive         bool        `json:"is_active" db:"is_active"`
	IsOnline         bool        `json:"is_online" db:"is_online"`
	PayPalEmail      string      `json:"paypal_email" db:"paypal_email"`
	PayoutThreshold  float64     `json:"payout_threshold" db:"payout_threshold"`

	TotalCalls    int     `json:"total_calls" db:"total_calls"`
	TotalEarnings float64 `json:"total_earnings" db:"total_earnings"`

	ConsecutiveMissedCalls int  `json:"consecutive_missed_calls" db:"consecutive_missed_calls"`
	HasSubmittedReview     bool `json:"has_submitted_review" db:"has_submitted_review"`
	Unsubscribed           bool `json:"unsubscribed" db:"unsubscribed"`
	Complained             bool `json:"complained" db:"complained"`

	// AutorespondersStopped is monotonic: once true it never reverts.
	AutorespondersStopped        bool     `json:"autoresponders_stopped" db:"autoresponders_stopped"`
	AutorespondersStoppedReasons []string `json:"autoresponders_stopped_reasons" db:"autoresponders_stopped_reasons"`

	LastLoginAt            *time.Time `json:"last_login_at" db:"last_login_at"`
	LastActivityAt         *time.Time `json:"last_activity_at" db:"last_activity_at"`
	LastReviewAt           *time.Time `json:"last_review_at" db:"last_review_at"`
	LastReengagementSentAt *time.Time `json:"last_reengagement_sent_at" db:"last_reengagement_sent_at"`
	CreatedAt              time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt              time.Time  `json:"updated_at" db:"updated_at"`
}

// LastSeen returns the more recent of the login and activity timestamps.
// Zero time when neither is set.
func (u *UserProfile) LastSeen() time.Time {
	var last time.Time
	if u.LastLoginAt != nil {
		last = *u.LastLoginAt
	}
	if u.LastActivityAt != nil && u.LastActivityAt.After(last) {
		last = *u.LastActivityAt
	}
	return last
}

// LanguageCode normalizes the user's language to an upper-case two-letter
// code for template key composition. Defaults to EN.
func (u *UserProfile) LanguageCode() string {
	lang := u.Language
	if len(lang) >= 2 {
		c0, c1 := lang[0], lang[1]
		if c0 >= 'a' && c0 <= 'z' {
			c0 -= 'a' - 'A'
		}
		if c1 >= 'a' && c1 <= 'z' {
			c1 -= 'a' - 'A'
		}
		return string([]byte{c0, c1})
	}
	return "EN"
}
