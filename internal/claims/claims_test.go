package claims

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ClaimStatus
		to   ClaimStatus
		want bool
	}{
		{"draft to submitted", StatusDraft, StatusSubmitted, true},
		{"draft to accepted", StatusDraft, StatusAccepted, false},
		{"draft to paid", StatusDraft, StatusPaid, false},
		{"submitted to accepted", StatusSubmitted, StatusAccepted, true},
		{"submitted to denied", StatusSubmitted, StatusDenied, true},
		{"submitted to paid", StatusSubmitted, StatusPaid, false},
		{"accepted to paid", StatusAccepted, StatusPaid, true},
		{"denied to paid", StatusDenied, StatusPaid, true},
		{"denied to submitted", StatusDenied, StatusSubmitted, false},
		{"paid is terminal", StatusPaid, StatusSubmitted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTotalLineItems(t *testing.T) {
	c := &Claim{
		LineItems: []LineItem{
			{Code: "G0151", Units: 2, AmountCents: 15000},
			{Code: "G0299", Units: 1, AmountCents: 9500},
			{Code: "G0156", Units: 3, AmountCents: 4500},
		},
	}

	if got := c.TotalLineItems(); got != 29000 {
		t.Errorf("TotalLineItems() = %d, want 29000", got)
	}

	empty := &Claim{}
	if got := empty.TotalLineItems(); got != 0 {
		t.Errorf("TotalLineItems() on empty claim = %d, want 0", got)
	}
}
