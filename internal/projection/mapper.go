// Package projection flattens a UserProfile into the string field map the
// subscriber platform expects. The projection is a view: it is regenerated
// from the entity on every sync and is never a source of truth.
package projection

import (
	"strconv"
	"time"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

// Base field keys, matching the platform's upper-case custom-field schema.
const (
	KeyEmail             = "EMAIL"
	KeyFName             = "FNAME"
	KeyLName             = "LNAME"
	KeyLanguage          = "LANGUAGE"
	KeyRole              = "ROLE"
	KeyProfileStatus     = "PROFILE_STATUS"
	KeyProfileCompletion = "PROFILE_COMPLETION"
	KeyKYCStatus         = "KYC_STATUS"
	KeyOnlineStatus      = "ONLINE_STATUS"
	KeyAccountActive     = "ACCOUNT_ACTIVE"
	KeyTotalCalls        = "TOTAL_CALLS"
	KeyTotalEarnings     = "TOTAL_EARNINGS"
	KeyRatingStars       = "RATING_STARS"
	KeyPayPalStatus      = "PAYPAL_STATUS"
	KeyLastLogin         = "LAST_LOGIN"
	KeyLastActivity      = "LAST_ACTIVITY"
	KeySignupDate        = "SIGNUP_DATE"
)

// Dynamic per-send keys, empty in the base projection and overridden by the
// caller when composing a specific transactional send.
const (
	KeyExpertName    = "EXPERT_NAME"
	KeyClientName    = "CLIENT_NAME"
	KeyDuration      = "DURATION"
	KeyAmount        = "AMOUNT"
	KeyCurrency      = "CURRENCY"
	KeyReason        = "REASON"
	KeyRetryURL      = "RETRY_URL"
	KeyInvoiceURL    = "INVOICE_URL"
	KeyTrustpilotURL = "TRUSTPILOT_URL"
	KeyReviewText    = "REVIEW_TEXT"
	KeyThreshold     = "THRESHOLD"
	KeyDashboardURL  = "DASHBOARD_URL"
	KeyReferralName  = "REFERRAL_NAME"
	KeyBonusAmount   = "BONUS_AMOUNT"
)

// baseKeys is every field the platform schema declares. Fields produces all
// of them, so a partial update never clears a field by omission.
var baseKeys = []string{
	KeyEmail, KeyFName, KeyLName, KeyLanguage, KeyRole,
	KeyProfileStatus, KeyProfileCompletion, KeyKYCStatus,
	KeyOnlineStatus, KeyAccountActive, KeyTotalCalls, KeyTotalEarnings,
	KeyRatingStars, KeyPayPalStatus, KeyLastLogin, KeyLastActivity,
	KeySignupDate,
	KeyExpertName, KeyClientName, KeyDuration, KeyAmount, KeyCurrency,
	KeyReason, KeyRetryURL, KeyInvoiceURL, KeyTrustpilotURL, KeyReviewText,
	KeyThreshold, KeyDashboardURL, KeyReferralName, KeyBonusAmount,
}

// BaseKeys returns the declared field schema in a fixed order.
func BaseKeys() []string {
	out := make([]string, len(baseKeys))
	copy(out, baseKeys)
	return out
}

// Fields projects a user profile into the platform field map. Pure and
// deterministic: the same snapshot always yields a byte-identical map, and
// every declared key is present (possibly as the empty string) so the sweep's
// re-projections never generate spurious diffs.
func Fields(u *domain.UserProfile) map[string]string {
	out := make(map[string]string, len(baseKeys))
	for _, k := range baseKeys {
		out[k] = ""
	}
	if u == nil {
		return out
	}

	out[KeyEmail] = u.Email
	out[KeyFName] = u.FirstName
	out[KeyLName] = u.LastName
	out[KeyLanguage] = u.LanguageCode()
	out[KeyRole] = string(u.Role)
	out[KeyProfileStatus] = profileStatus(u.ProfileCompleted)
	out[KeyProfileCompletion] = strconv.Itoa(CompletionPercent(u))
	out[KeyKYCStatus] = kycStatus(u.KYCStatus)
	out[KeyOnlineStatus] = yesNo(u.IsOnline)
	out[KeyAccountActive] = yesNo(u.IsActive)
	out[KeyTotalCalls] = strconv.Itoa(u.TotalCalls)
	out[KeyTotalEarnings] = FormatAmount(u.TotalEarnings)
	out[KeyPayPalStatus] = paypalStatus(u.PayPalEmail)
	out[KeyLastLogin] = formatTime(u.LastLoginAt)
	out[KeyLastActivity] = formatTime(u.LastActivityAt)
	if !u.CreatedAt.IsZero() {
		out[KeySignupDate] = u.CreatedAt.UTC().Format("2006-01-02")
	}

	return out
}

// CompletionPercent computes the profile-completion percentage: the share of
// required fields that are non-empty, rounded to the nearest integer percent.
func CompletionPercent(u *domain.UserProfile) int {
	required := []string{
		u.Email,
		u.FirstName,
		u.LastName,
		u.Language,
		string(u.Role),
	}
	// KYC and PayPal count toward completion for providers only
	if u.Role.IsProvider() {
		kyc := ""
		if u.KYCStatus == domain.KYCVerified {
			kyc = "ok"
		}
		required = append(required, kyc, u.PayPalEmail)
	}

	filled := 0
	for _, f := range required {
		if f != "" {
			filled++
		}
	}
	return int(float64(filled)/float64(len(required))*100 + 0.5)
}

// FormatAmount renders a monetary value as a plain decimal string with two
// fractional digits, the format the platform's statistics fields expect.
func FormatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func profileStatus(completed bool) string {
	if completed {
		return "profile_complete"
	}
	return "profile_incomplete"
}

func kycStatus(s domain.KYCStatus) string {
	switch s {
	case domain.KYCSubmitted:
		return "kyc_submitted"
	case domain.KYCRejected:
		return "kyc_rejected"
	case domain.KYCVerified:
		return "kyc_verified"
	default:
		return "kyc_pending"
	}
}

func paypalStatus(email string) string {
	if email != "" {
		return "configured"
	}
	return "missing"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
