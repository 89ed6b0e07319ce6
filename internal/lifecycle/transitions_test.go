package lifecycle

import (
	"reflect"
	"testing"
	"time"

	"github.com/expatline/lifecycle-engine/internal/domain"
)

func TestUserTransitionsCreation(t *testing.T) {
	after := &domain.UserProfile{ID: "u1", ProfileCompleted: true, IsOnline: true}
	got := UserTransitions(nil, after)
	want := []Transition{TransUserCreated}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("creation yielded %v, want only %v", got, want)
	}
}

func TestUserTransitionsNoChangeNoFire(t *testing.T) {
	login := time.Now()
	u := domain.UserProfile{
		ProfileCompleted: true,
		IsOnline:         true,
		KYCStatus:        domain.KYCVerified,
		PayPalEmail:      "p@x.com",
		TotalEarnings:    50,
		LastLoginAt:      &login,
	}
	same := u
	if got := UserTransitions(&u, &same); got != nil {
		t.Errorf("identical snapshots fired %v", got)
	}
}

func TestUserTransitionsEdges(t *testing.T) {
	login := time.Now()
	tests := []struct {
		name          string
		before, after domain.UserProfile
		want          []Transition
	}{
		{
			"profile completed",
			domain.UserProfile{},
			domain.UserProfile{ProfileCompleted: true},
			[]Transition{TransProfileCompleted},
		},
		{
			"profile un-completed does not fire",
			domain.UserProfile{ProfileCompleted: true},
			domain.UserProfile{},
			nil,
		},
		{
			"first login",
			domain.UserProfile{},
			domain.UserProfile{LastLoginAt: &login},
			[]Transition{TransFirstLogin},
		},
		{
			"online flip",
			domain.UserProfile{},
			domain.UserProfile{IsOnline: true},
			[]Transition{TransWentOnline},
		},
		{
			"offline flip",
			domain.UserProfile{IsOnline: true},
			domain.UserProfile{},
			[]Transition{TransWentOffline},
		},
		{
			"kyc submitted to verified",
			domain.UserProfile{KYCStatus: domain.KYCSubmitted},
			domain.UserProfile{KYCStatus: domain.KYCVerified},
			[]Transition{TransKYCVerified},
		},
		{
			"paypal configured",
			domain.UserProfile{},
			domain.UserProfile{PayPalEmail: "p@x.com"},
			[]Transition{TransPayPalConfigured},
		},
		{
			"first earning",
			domain.UserProfile{},
			domain.UserProfile{TotalEarnings: 19},
			[]Transition{TransFirstEarning},
		},
		{
			"earning credited",
			domain.UserProfile{TotalEarnings: 19},
			domain.UserProfile{TotalEarnings: 38},
			[]Transition{TransEarningCredited},
		},
		{
			"earning crosses payout threshold",
			domain.UserProfile{TotalEarnings: 40, PayoutThreshold: 50},
			domain.UserProfile{TotalEarnings: 60, PayoutThreshold: 50},
			[]Transition{TransEarningCredited, TransThresholdReached},
		},
		{
			"already above threshold does not re-fire",
			domain.UserProfile{TotalEarnings: 60, PayoutThreshold: 50},
			domain.UserProfile{TotalEarnings: 70, PayoutThreshold: 50},
			[]Transition{TransEarningCredited},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := UserTransitions(&tt.before, &tt.after)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("UserTransitions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCallTransitions(t *testing.T) {
	tests := []struct {
		name          string
		before, after *domain.Call
		want          []Transition
	}{
		{
			"pending to completed",
			&domain.Call{Status: domain.CallPending},
			&domain.Call{Status: domain.CallCompleted},
			[]Transition{TransCallCompleted},
		},
		{
			"created directly completed",
			nil,
			&domain.Call{Status: domain.CallCompleted},
			[]Transition{TransCallCompleted},
		},
		{
			"completed stays completed",
			&domain.Call{Status: domain.CallCompleted},
			&domain.Call{Status: domain.CallCompleted},
			nil,
		},
		{
			"missed",
			&domain.Call{Status: domain.CallPending},
			&domain.Call{Status: domain.CallMissed},
			[]Transition{TransCallMissed},
		},
		{
			"no answer counts as missed",
			&domain.Call{Status: domain.CallPending},
			&domain.Call{Status: domain.CallNoAnswer},
			[]Transition{TransCallMissed},
		},
		{
			"missed to no answer does not re-fire",
			&domain.Call{Status: domain.CallMissed},
			&domain.Call{Status: domain.CallNoAnswer},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CallTransitions(tt.before, tt.after)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CallTransitions() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPaymentTransitions(t *testing.T) {
	// Success status names vary by payment provider.
	for _, status := range []domain.PaymentStatus{"succeeded", "paid", "completed", "captured"} {
		got := PaymentTransitions(
			&domain.Payment{Status: domain.PaymentPending},
			&domain.Payment{Status: status},
		)
		if !reflect.DeepEqual(got, []Transition{TransPaymentSucceeded}) {
			t.Errorf("status %q yielded %v, want success", status, got)
		}
	}

	got := PaymentTransitions(
		&domain.Payment{Status: "succeeded"},
		&domain.Payment{Status: "paid"},
	)
	if got != nil {
		t.Errorf("success-to-success renaming re-fired: %v", got)
	}

	got = PaymentTransitions(
		&domain.Payment{Status: domain.PaymentPending},
		&domain.Payment{Status: domain.PaymentFailed},
	)
	if !reflect.DeepEqual(got, []Transition{TransPaymentFailed}) {
		t.Errorf("failed edge yielded %v", got)
	}
}

func TestPayoutTransitions(t *testing.T) {
	got := PayoutTransitions(nil, &domain.Payout{Status: domain.PayoutRequested})
	if !reflect.DeepEqual(got, []Transition{TransPayoutRequested}) {
		t.Errorf("new payout yielded %v", got)
	}

	got = PayoutTransitions(
		&domain.Payout{Status: domain.PayoutRequested},
		&domain.Payout{Status: domain.PayoutSent},
	)
	if !reflect.DeepEqual(got, []Transition{TransPayoutSent}) {
		t.Errorf("sent edge yielded %v", got)
	}

	got = PayoutTransitions(
		&domain.Payout{Status: domain.PayoutSent},
		&domain.Payout{Status: domain.PayoutSent},
	)
	if got != nil {
		t.Errorf("unchanged payout re-fired: %v", got)
	}
}

func TestTemplateKey(t *testing.T) {
	tests := []struct {
		role  domain.Role
		event string
		lang  string
		want  string
	}{
		{domain.RoleClient, EventWelcome, "FR", "TR_CLI_welcome_FR"},
		{domain.RoleProviderExpat, EventCallCompleted, "EN", "TR_PRO_call-completed_EN"},
		{domain.RoleProviderLawyer, EventPayoutSent, "ES", "TR_PRO_payout-sent_ES"},
	}
	for _, tt := range tests {
		if got := TemplateKey(tt.role, tt.event, tt.lang); got != tt.want {
			t.Errorf("TemplateKey(%s, %s, %s) = %q, want %q", tt.role, tt.event, tt.lang, got, tt.want)
		}
	}
}

func TestMissedCallEvent(t *testing.T) {
	tests := []struct {
		consecutive int
		want        string
	}{
		{0, "call-missed-01"},
		{1, "call-missed-01"},
		{3, "call-missed-03"},
		{4, "call-missed-04"},
		{9, "call-missed-04"},
	}
	for _, tt := range tests {
		if got := MissedCallEvent(tt.consecutive); got != tt.want {
			t.Errorf("MissedCallEvent(%d) = %q, want %q", tt.consecutive, got, tt.want)
		}
	}
}
