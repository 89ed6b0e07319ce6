package projection

import "testing"

func TestSendFieldsKnownKeys(t *testing.T) {
	fields, err := NewSendFields().
		Set(KeyAmount, "19.00").
		Set(KeyCurrency, "EUR").
		Build()
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if fields[KeyAmount] != "19.00" || fields[KeyCurrency] != "EUR" {
		t.Errorf("unexpected fields: %v", fields)
	}
}

func TestSendFieldsUnknownKeyFails(t *testing.T) {
	_, err := NewSendFields().Set("TOTALLY_UNKNOWN", "x").Build()
	if err == nil {
		t.Fatal("Build() accepted an unknown key")
	}
}

func TestSendFieldsExtraValidation(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"YEARS", false},
		{"TOTAL_CALLS", false},
		{"lowercase", true},
		{"_LEADING", true},
		{"WITH-DASH", true},
		{"", true},
	}
	for _, tt := range tests {
		_, err := NewSendFields().Extra(tt.key, "v").Build()
		if (err != nil) != tt.wantErr {
			t.Errorf("Extra(%q) error = %v, wantErr %v", tt.key, err, tt.wantErr)
		}
	}
}

func TestSendFieldsFirstErrorWins(t *testing.T) {
	_, err := NewSendFields().
		Set("BAD_ONE", "x").
		Set("BAD_TWO", "y").
		Build()
	if err == nil || err.Error() != `unknown send field "BAD_ONE"` {
		t.Errorf("unexpected error: %v", err)
	}
}
