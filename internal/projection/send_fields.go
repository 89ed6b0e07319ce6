package projection

import (
	"fmt"
	"strings"
)

// knownSendKeys are the dynamic keys a transactional send may override.
var knownSendKeys = map[string]struct{}{
	KeyFName: {}, KeyExpertName: {}, KeyClientName: {}, KeyDuration: {},
	KeyAmount: {}, KeyCurrency: {}, KeyReason: {}, KeyRetryURL: {},
	KeyInvoiceURL: {}, KeyTrustpilotURL: {}, KeyReviewText: {},
	KeyThreshold: {}, KeyDashboardURL: {}, KeyReferralName: {},
	KeyBonusAmount: {}, KeyRatingStars: {}, KeyTotalEarnings: {},
}

// SendFields builds the custom-field bag for one transactional send. Known
// keys are set with Set; anything else must go through Extra, which enforces
// the platform's field-name shape so typos fail loudly at build time instead
// of being silently dropped by the platform.
type SendFields struct {
	fields map[string]string
	err    error
}

// NewSendFields creates an empty per-send field bag.
func NewSendFields() *SendFields {
	return &SendFields{fields: make(map[string]string)}
}

// Set assigns a known dynamic field. Unknown keys record an error surfaced
// by Build.
func (s *SendFields) Set(key, value string) *SendFields {
	if _, ok := knownSendKeys[key]; !ok {
		if s.err == nil {
			s.err = fmt.Errorf("unknown send field %q", key)
		}
		return s
	}
	s.fields[key] = value
	return s
}

// Extra assigns an arbitrary custom field. The key must be upper-case
// snake-case, matching the platform's custom-field naming rules.
func (s *SendFields) Extra(key, value string) *SendFields {
	if !validFieldName(key) {
		if s.err == nil {
			s.err = fmt.Errorf("invalid extra field name %q", key)
		}
		return s
	}
	s.fields[key] = value
	return s
}

// Build returns the field map, or the first recorded construction error.
func (s *SendFields) Build() (map[string]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make(map[string]string, len(s.fields))
	for k, v := range s.fields {
		out[k] = v
	}
	return out, nil
}

// MustBuild is Build for call sites whose keys are all compile-time
// constants; it panics on a construction error.
func (s *SendFields) MustBuild() map[string]string {
	out, err := s.Build()
	if err != nil {
		panic(err)
	}
	return out
}

func validFieldName(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return !strings.HasPrefix(key, "_")
}
