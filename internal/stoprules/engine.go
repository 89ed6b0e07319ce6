// Package stoprules evaluates the onboarding stop-conditions: named boolean
// predicates over a subscriber's projected fields. A matched rule means the
// user has progressed past the drip sequence the rule guards, so the sequence
// should be silenced. Evaluation is pure; acting on the result is the
// caller's job.
package stoprules

import (
	"strconv"

	"github.com/expatline/lifecycle-engine/internal/projection"
)

// Reason strings are stable identifiers: they are persisted on the user,
// written to the platform's stop marker field, and logged. Do not rename.
const (
	ReasonProfileCompleted   = "profile_completed"
	ReasonUserActive         = "user_active"
	ReasonFirstCallCompleted = "first_call_completed"
	ReasonUserOnline         = "user_online"
	ReasonKYCVerified        = "kyc_verified"
	ReasonPayPalConfigured   = "paypal_configured"
	ReasonFirstLogin         = "first_login"
)

// Rule is one stop-condition: a reason plus its predicate over a projection.
type Rule struct {
	Reason string
	Match  func(fields map[string]string) bool
}

// Rules is the fixed rule set, in a stable evaluation order.
var Rules = []Rule{
	{ReasonProfileCompleted, func(f map[string]string) bool {
		return f[projection.KeyProfileStatus] == "profile_complete"
	}},
	{ReasonUserActive, func(f map[string]string) bool {
		return f[projection.KeyAccountActive] == "yes"
	}},
	{ReasonFirstCallCompleted, func(f map[string]string) bool {
		n, err := strconv.Atoi(f[projection.KeyTotalCalls])
		return err == nil && n > 0
	}},
	{ReasonUserOnline, func(f map[string]string) bool {
		return f[projection.KeyOnlineStatus] == "yes"
	}},
	{ReasonKYCVerified, func(f map[string]string) bool {
		return f[projection.KeyKYCStatus] == "kyc_verified"
	}},
	{ReasonPayPalConfigured, func(f map[string]string) bool {
		return f[projection.KeyPayPalStatus] == "configured"
	}},
	{ReasonFirstLogin, func(f map[string]string) bool {
		return f[projection.KeyLastLogin] != ""
	}},
}

// Evaluate returns every matched stop reason, not just the first: all the
// sequences a user has outgrown are silenced together and all reasons are
// recorded together.
func Evaluate(fields map[string]string) []string {
	var matched []string
	for _, r := range Rules {
		if r.Match(fields) {
			matched = append(matched, r.Reason)
		}
	}
	return matched
}
