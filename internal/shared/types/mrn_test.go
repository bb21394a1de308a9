package types

import "testing"

func TestParseMRN(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid 7 digit", "1234566", false},
		{"valid 8 digit", "76543214", false},
		{"bad check digit", "1234567", true},
		{"too short", "123456", true},
		{"too long", "12345678901", true},
		{"non-numeric", "12345ab", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseMRN(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseMRN(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestMRNMasked(t *testing.T) {
	tests := []struct {
		name string
		mrn  MRN
		want string
	}{
		{"seven digits", MRN("1234566"), "***4566"},
		{"eight digits", MRN("76543214"), "****3214"},
		{"short value", MRN("12"), "****"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mrn.Masked(); got != tt.want {
				t.Errorf("Masked() = %q, want %q", got, tt.want)
			}
		})
	}
}
