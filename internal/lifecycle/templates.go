package lifecycle

import (
	"fmt"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

// Event names are the middle segment of a template key. They are part of the
// template catalog contract on the subscriber platform; renaming one orphans
// the template.
const (
	EventWelcome              = "welcome"
	EventProfileCompleted     = "profile-completed"
	EventFirstLogin           = "first-login"
	EventKYCVerified          = "kyc-verified"
	EventPayPalConfigured     = "paypal-configured"
	EventPayoutThreshold      = "payout-threshold"
	EventFirstEarning         = "first-earning"
	EventEarningCredited      = "earning-credited"
	EventCallCompleted        = "call-completed"
	EventReviewThanksPositive = "review-thanks-positive"
	EventReviewThanksNeutral  = "review-thanks-neutral"
	EventReviewThanks         = "review-thanks"
	EventPaymentSucceeded     = "payment-succeeded"
	EventPaymentFailed        = "payment-failed"
	EventPayoutRequested      = "payout-requested"
	EventPayoutSent           = "payout-sent"
	EventPayoutFailed         = "payout-failed"
	EventReferralBonus        = "referral-bonus"
	EventReengagement         = "reengagement"
	EventWeeklyStats          = "weekly-stats"
	EventMonthlyStats         = "monthly-stats"
	EventAnniversary          = "anniversary"
)

// TemplateKey composes a transactional template UID:
// TR_{CLI|PRO}_{event}_{LANG}, e.g. "TR_PRO_call-completed_FR".
func TemplateKey(role domain.Role, event, lang string) string {
	audience := "CLI"
	if role.IsProvider() {
		audience = "PRO"
	}
	return fmt.Sprintf("TR_%s_%s_%s", audience, event, lang)
}

// MissedCallEvent returns the missed-call template variant for the given
// consecutive-miss count. Variants exist for 1 through 4; higher counts reuse
// the strongest one.
func MissedCallEvent(consecutive int) string {
	if consecutive < 1 {
		consecutive = 1
	}
	if consecutive > 4 {
		consecutive = 4
	}
	return fmt.Sprintf("call-missed-%02d", consecutive)
}
