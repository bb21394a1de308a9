package ai

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func TestScoreHomebound(t *testing.T) {
	tests := []struct {
		name      string
		input     HomeboundInput
		wantScore int
		want      HomeboundDetermination
	}{
		{
			name: "all criteria met",
			input: HomeboundInput{
				RequiresAssistiveDevice:  true,
				RequiresHumanAssistance:  true,
				MedicallyContraindicated: true,
				TaxingEffort:             true,
				AbsenceFrequency:         AbsencesNone,
				CognitiveImpairment:      true,
			},
			wantScore: 100,
			want:      HomeboundQualified,
		},
		{
			name: "taxing effort with device and infrequent absences",
			input: HomeboundInput{
				RequiresAssistiveDevice: true,
				TaxingEffort:            true,
				AbsenceFrequency:        AbsencesInfrequent,
			},
			wantScore: 50,
			want:      HomeboundBorderline,
		},
		{
			name: "supporting factors without taxing effort cap at borderline",
			input: HomeboundInput{
				RequiresAssistiveDevice:  true,
				RequiresHumanAssistance:  true,
				MedicallyContraindicated: true,
				AbsenceFrequency:         AbsencesNone,
				CognitiveImpairment:      true,
			},
			wantScore: 70,
			want:      HomeboundBorderline,
		},
		{
			name: "device only with frequent absences",
			input: HomeboundInput{
				RequiresAssistiveDevice: true,
				AbsenceFrequency:        AbsencesFrequent,
			},
			wantScore: 15,
			want:      HomeboundNotQualified,
		},
		{
			name:      "nothing met",
			input:     HomeboundInput{AbsenceFrequency: AbsencesFrequent},
			wantScore: 0,
			want:      HomeboundNotQualified,
		},
		{
			name: "taxing effort and contraindication qualify",
			input: HomeboundInput{
				MedicallyContraindicated: true,
				TaxingEffort:             true,
				AbsenceFrequency:         AbsencesNone,
			},
			wantScore: 65,
			want:      HomeboundQualified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ScoreHomebound(tt.input)
			if got.Score != tt.wantScore {
				t.Errorf("Score = %d, want %d", got.Score, tt.wantScore)
			}
			if got.Determination != tt.want {
				t.Errorf("Determination = %s, want %s", got.Determination, tt.want)
			}
			if got.Source != "rules" {
				t.Errorf("Source = %s, want rules", got.Source)
			}
			if len(got.Factors) == 0 && tt.wantScore > 0 {
				t.Error("expected at least one factor")
			}
		})
	}
}

func TestDecodeStrictJSON(t *testing.T) {
	type reply struct {
		Answer string `json:"answer"`
	}

	tests := []struct {
		name    string
		reply   string
		want    string
		wantErr bool
	}{
		{
			name:  "plain object",
			reply: `{"answer": "yes"}`,
			want:  "yes",
		},
		{
			name:  "fenced object",
			reply: "```json\n{\"answer\": \"fenced\"}\n```",
			want:  "fenced",
		},
		{
			name:  "surrounding whitespace",
			reply: "\n  {\"answer\": \"padded\"}  \n",
			want:  "padded",
		},
		{
			name:    "trailing content",
			reply:   `{"answer": "yes"} and some prose`,
			wantErr: true,
		},
		{
			name:    "not json",
			reply:   "the patient qualifies",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out reply
			err := decodeStrictJSON(tt.reply, &out)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeStrictJSON: %v", err)
			}
			if out.Answer != tt.want {
				t.Errorf("Answer = %q, want %q", out.Answer, tt.want)
			}
		})
	}
}

// fakeProvider returns a canned reply or error and counts calls
type fakeProvider struct {
	name  string
	reply string
	err   error
	calls int
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func testClient(providers ...Provider) *Client {
	return &Client{
		providers: providers,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		timeout:   time.Second,
	}
}

func TestClientFailover(t *testing.T) {
	primary := &fakeProvider{name: "openai", err: fmt.Errorf("rate limited")}
	secondary := &fakeProvider{name: "anthropic", reply: `{"ok": true}`}

	client := testClient(primary, secondary)
	reply, provider, err := client.Complete(context.Background(), "test", CompletionRequest{Prompt: "{}"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if provider != "anthropic" {
		t.Errorf("provider = %s, want anthropic", provider)
	}
	if reply != `{"ok": true}` {
		t.Errorf("reply = %q", reply)
	}
	if primary.calls != 1 || secondary.calls != 1 {
		t.Errorf("calls = %d/%d, want 1/1", primary.calls, secondary.calls)
	}
}

func TestClientPrefersPrimary(t *testing.T) {
	primary := &fakeProvider{name: "openai", reply: `{}`}
	secondary := &fakeProvider{name: "anthropic", reply: `{}`}

	client := testClient(primary, secondary)
	_, provider, err := client.Complete(context.Background(), "test", CompletionRequest{Prompt: "{}"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if provider != "openai" {
		t.Errorf("provider = %s, want openai", provider)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary called %d times, want 0", secondary.calls)
	}
}

func TestClientAllProvidersFail(t *testing.T) {
	primary := &fakeProvider{name: "openai", err: fmt.Errorf("down")}
	secondary := &fakeProvider{name: "anthropic", err: fmt.Errorf("also down")}

	client := testClient(primary, secondary)
	if _, _, err := client.Complete(context.Background(), "test", CompletionRequest{Prompt: "{}"}); err == nil {
		t.Fatal("expected error when every provider fails")
	}
}

func TestClientNoProviders(t *testing.T) {
	client := testClient()
	if client.Configured() {
		t.Error("Configured() = true with no providers")
	}
	if _, _, err := client.Complete(context.Background(), "test", CompletionRequest{}); err == nil {
		t.Fatal("expected error with no providers")
	}
}

func TestAssessHomeboundFallsBackToRules(t *testing.T) {
	failing := &fakeProvider{name: "openai", err: fmt.Errorf("timeout")}
	o := NewOrchestrator(testClient(failing), zerolog.Nop())

	result, err := o.AssessHomebound(context.Background(), HomeboundInput{
		TaxingEffort:             true,
		MedicallyContraindicated: true,
		AbsenceFrequency:         AbsencesNone,
	})
	if err != nil {
		t.Fatalf("AssessHomebound: %v", err)
	}
	if result.Source != "rules" {
		t.Errorf("Source = %s, want rules", result.Source)
	}
	if result.Determination != HomeboundQualified {
		t.Errorf("Determination = %s, want qualified", result.Determination)
	}
}

func TestAssessHomeboundUsesLLMReply(t *testing.T) {
	replying := &fakeProvider{
		name:  "openai",
		reply: `{"determination": "borderline", "score": 55, "factors": ["limited mobility"], "rationale": "partially met"}`,
	}
	o := NewOrchestrator(testClient(replying), zerolog.Nop())

	result, err := o.AssessHomebound(context.Background(), HomeboundInput{TaxingEffort: true})
	if err != nil {
		t.Fatalf("AssessHomebound: %v", err)
	}
	if result.Source != "llm" {
		t.Errorf("Source = %s, want llm", result.Source)
	}
	if result.Determination != HomeboundBorderline {
		t.Errorf("Determination = %s, want borderline", result.Determination)
	}
}

func TestAssessReferralRejectsUnknownRecommendation(t *testing.T) {
	replying := &fakeProvider{
		name:  "openai",
		reply: `{"recommendation": "maybe", "confidence": 0.5, "rationale": "unsure"}`,
	}
	o := NewOrchestrator(testClient(replying), zerolog.Nop())

	if _, err := o.AssessReferral(context.Background(), ReferralIntelligenceInput{Urgency: "routine"}); err == nil {
		t.Fatal("expected error for unknown recommendation")
	}
}
