// Package lifecycle turns change-event snapshots into marketing side effects:
// transactional sends, subscriber syncs, stat stamps, notifications and
// analytics. Transition detection is pure; all effects run best-effort so one
// failing channel never suppresses another.
package lifecycle

import (
	"github.com/expatline/lifecycle-engine/internal/domain"
)

// Transition names one detected state change. Transitions are one-directional:
// each fires only on the edge where the condition first becomes true, so
// redelivered events and unrelated later updates never re-fire it.
type Transition string

const (
	TransUserCreated       Transition = "user_created"
	TransProfileCompleted  Transition = "profile_completed"
	TransFirstLogin        Transition = "first_login"
	TransWentOnline        Transition = "went_online"
	TransWentOffline       Transition = "went_offline"
	TransKYCVerified       Transition = "kyc_verified"
	TransPayPalConfigured  Transition = "paypal_configured"
	TransFirstEarning      Transition = "first_earning"
	TransEarningCredited   Transition = "earning_credited"
	TransThresholdReached  Transition = "payout_threshold_reached"
	TransCallCompleted     Transition = "call_completed"
	TransCallMissed        Transition = "call_missed"
	TransReviewCreated     Transition = "review_created"
	TransPaymentSucceeded  Transition = "payment_succeeded"
	TransPaymentFailed     Transition = "payment_failed"
	TransPayoutRequested   Transition = "payout_requested"
	TransPayoutSent        Transition = "payout_sent"
	TransPayoutFailed      Transition = "payout_failed"
	TransReferralCredited  Transition = "referral_bonus_created"
)

// UserTransitions compares two profile snapshots and returns every transition
// that fired between them. before is nil for creations; a creation yields only
// TransUserCreated (the initial state is not replayed as individual edges).
func UserTransitions(before, after *domain.UserProfile) []Transition {
	if after == nil {
		return nil
	}
	if before == nil {
		return []Transition{TransUserCreated}
	}

	var out []Transition
	if !before.ProfileCompleted && after.ProfileCompleted {
		out = append(out, TransProfileCompleted)
	}
	if before.LastLoginAt == nil && after.LastLoginAt != nil {
		out = append(out, TransFirstLogin)
	}
	if !before.IsOnline && after.IsOnline {
		out = append(out, TransWentOnline)
	}
	if before.IsOnline && !after.IsOnline {
		out = append(out, TransWentOffline)
	}
	if before.KYCStatus != domain.KYCVerified && after.KYCStatus == domain.KYCVerified {
		out = append(out, TransKYCVerified)
	}
	if before.PayPalEmail == "" && after.PayPalEmail != "" {
		out = append(out, TransPayPalConfigured)
	}
	if after.TotalEarnings > before.TotalEarnings {
		if before.TotalEarnings == 0 {
			out = append(out, TransFirstEarning)
		} else {
			out = append(out, TransEarningCredited)
		}
		// Threshold crossing can accompany either earning transition.
		if t := after.PayoutThreshold; t > 0 && before.TotalEarnings < t && after.TotalEarnings >= t {
			out = append(out, TransThresholdReached)
		}
	}
	return out
}

// CallTransitions detects completion and missed-call edges.
func CallTransitions(before, after *domain.Call) []Transition {
	if after == nil {
		return nil
	}
	var out []Transition
	if after.Status == domain.CallCompleted && (before == nil || before.Status != domain.CallCompleted) {
		out = append(out, TransCallCompleted)
	}
	if after.Status.IsMissed() && (before == nil || !before.Status.IsMissed()) {
		out = append(out, TransCallMissed)
	}
	return out
}

// paymentCompleted is the billing subsystem's success predicate: providers
// report success under different status names, so membership in this set is
// the contract, not a single string.
var paymentCompletedStatuses = map[domain.PaymentStatus]struct{}{
	domain.PaymentSucceeded: {},
	"paid":                  {},
	"completed":             {},
	"captured":              {},
}

func paymentCompleted(s domain.PaymentStatus) bool {
	_, ok := paymentCompletedStatuses[s]
	return ok
}

// PaymentTransitions detects success and failure edges on a charge.
func PaymentTransitions(before, after *domain.Payment) []Transition {
	if after == nil {
		return nil
	}
	var out []Transition
	if paymentCompleted(after.Status) && (before == nil || !paymentCompleted(before.Status)) {
		out = append(out, TransPaymentSucceeded)
	}
	if after.Status == domain.PaymentFailed && (before == nil || before.Status != domain.PaymentFailed) {
		out = append(out, TransPaymentFailed)
	}
	return out
}

// PayoutTransitions detects each payout status being reached for the first
// time. A payout created directly in requested state fires TransPayoutRequested.
func PayoutTransitions(before, after *domain.Payout) []Transition {
	if after == nil {
		return nil
	}
	reached := func(s domain.PayoutStatus) bool {
		return after.Status == s && (before == nil || before.Status != s)
	}
	var out []Transition
	if reached(domain.PayoutRequested) {
		out = append(out, TransPayoutRequested)
	}
	if reached(domain.PayoutSent) {
		out = append(out, TransPayoutSent)
	}
	if reached(domain.PayoutFailed) {
		out = append(out, TransPayoutFailed)
	}
	return out
}
