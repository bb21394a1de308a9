package prescription

import (
	"strings"
	"testing"
	"time"
)

func TestRefillable(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	past := now.AddDate(0, -1, 0)
	future := now.AddDate(0, 6, 0)

	tests := []struct {
		name string
		p    Prescription
		want bool
	}{
		{"active with refills", Prescription{Status: StatusActive, RefillsRemaining: 2}, true},
		{"active no refills", Prescription{Status: StatusActive, RefillsRemaining: 0}, false},
		{"on hold", Prescription{Status: StatusOnHold, RefillsRemaining: 2}, false},
		{"discontinued", Prescription{Status: StatusDiscontinued, RefillsRemaining: 2}, false},
		{"expired date", Prescription{Status: StatusActive, RefillsRemaining: 2, ExpiresAt: &past}, false},
		{"expires later", Prescription{Status: StatusActive, RefillsRemaining: 1, ExpiresAt: &future}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Refillable(now); got != tt.want {
				t.Errorf("Refillable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRenderFaxBody(t *testing.T) {
	p := &Prescription{
		RxNumber:       "RX-2026-000042",
		Medication:     "Lisinopril 10mg",
		NDCCode:        "00071-0222-23",
		Sig:            "Take one tablet by mouth daily",
		Quantity:       30,
		RefillsAllowed: 3,
		WrittenAt:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	body := renderFaxBody(p)

	for _, want := range []string{
		"RX-2026-000042",
		"Lisinopril 10mg",
		"00071-0222-23",
		"Take one tablet by mouth daily",
		"Quantity: 30",
		"Refills: 3",
		"2026-03-01",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("fax body missing %q:\n%s", want, body)
		}
	}
}

func TestRenderFaxBodyOmitsEmptyNDC(t *testing.T) {
	p := &Prescription{
		RxNumber:   "RX-2026-000043",
		Medication: "Metformin 500mg",
		Sig:        "Take one tablet twice daily",
		Quantity:   60,
		WrittenAt:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}

	if strings.Contains(renderFaxBody(p), "NDC") {
		t.Error("fax body should not include an NDC line when the code is empty")
	}
}
