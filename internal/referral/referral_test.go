package referral

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from ReferralStatus
		to   ReferralStatus
		want bool
	}{
		{"received to reviewing", StatusReceived, StatusReviewing, true},
		{"received to declined", StatusReceived, StatusDeclined, true},
		{"received to accepted", StatusReceived, StatusAccepted, false},
		{"received to admitted", StatusReceived, StatusAdmitted, false},
		{"reviewing to eligibility_pending", StatusReviewing, StatusEligibilityPending, true},
		{"reviewing to declined", StatusReviewing, StatusDeclined, true},
		{"reviewing to accepted", StatusReviewing, StatusAccepted, false},
		{"eligibility_pending to accepted", StatusEligibilityPending, StatusAccepted, true},
		{"eligibility_pending to declined", StatusEligibilityPending, StatusDeclined, true},
		{"eligibility_pending to admitted", StatusEligibilityPending, StatusAdmitted, false},
		{"accepted to admitted", StatusAccepted, StatusAdmitted, true},
		{"accepted to declined", StatusAccepted, StatusDeclined, false},
		{"declined is terminal", StatusDeclined, StatusReviewing, false},
		{"admitted is terminal", StatusAdmitted, StatusReviewing, false},
		{"no self transition", StatusReviewing, StatusReviewing, false},
		{"unknown status", ReferralStatus("bogus"), StatusReviewing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	for _, s := range []ReferralStatus{StatusDeclined, StatusAdmitted} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []ReferralStatus{StatusReceived, StatusReviewing, StatusEligibilityPending, StatusAccepted} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestValidUrgency(t *testing.T) {
	for _, u := range []Urgency{UrgencyRoutine, UrgencyUrgent, UrgencyEmergent} {
		if !ValidUrgency(u) {
			t.Errorf("%s should be valid", u)
		}
	}
	if ValidUrgency(Urgency("stat")) {
		t.Error("stat should not be valid")
	}
}
