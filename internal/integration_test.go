package internal

import (
	"bytes"
	"testing"
	"time"

	"github.com/harborhealth/platform/internal/ai"
	"github.com/harborhealth/platform/internal/claims"
	"github.com/harborhealth/platform/internal/clinical"
	"github.com/harborhealth/platform/internal/document"
	"github.com/harborhealth/platform/internal/patient"
	"github.com/harborhealth/platform/internal/referral"
	"github.com/harborhealth/platform/internal/shared/types"
)

// TestReferralToAdmissionWorkflow walks a referral from receipt through
// eligibility to admission using the status machine.
func TestReferralToAdmissionWorkflow(t *testing.T) {
	path := []struct {
		from referral.ReferralStatus
		to   referral.ReferralStatus
	}{
		{referral.StatusReceived, referral.StatusReviewing},
		{referral.StatusReviewing, referral.StatusEligibilityPending},
		{referral.StatusEligibilityPending, referral.StatusAccepted},
		{referral.StatusAccepted, referral.StatusAdmitted},
	}

	for _, step := range path {
		if !referral.CanTransition(step.from, step.to) {
			t.Errorf("transition %s -> %s should be allowed", step.from, step.to)
		}
	}

	if !referral.StatusAdmitted.Terminal() {
		t.Error("admitted should be terminal")
	}
	if referral.CanTransition(referral.StatusReceived, referral.StatusAccepted) {
		t.Error("acceptance must not skip the eligibility check")
	}
	if referral.CanTransition(referral.StatusAdmitted, referral.StatusDeclined) {
		t.Error("admitted referrals must not be declined")
	}
}

// TestVisitDocumentationWorkflow dictates a visit, builds the draft
// note, and checks the signing rules.
func TestVisitDocumentationWorkflow(t *testing.T) {
	store := clinical.NewSessionStore(time.Minute)
	defer store.Stop()

	patientID := types.NewID()
	authorID := types.NewID()

	session := store.Start(patientID, authorID, clinical.VisitSkilledNursing)
	if _, err := store.Append(session.ID, "Patient reports improved appetite."); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := store.Append(session.ID, "Wound site clean, no drainage."); err != nil {
		t.Fatalf("Append: %v", err)
	}

	finished, err := store.Remove(session.ID)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}

	note := &clinical.SOAPNote{
		PatientID:  patientID,
		AuthorID:   authorID,
		VisitType:  finished.VisitType,
		Status:     clinical.NoteStatusDraft,
		Subjective: finished.Transcript(),
	}
	if !note.Editable() {
		t.Error("draft note should be editable")
	}

	note.Status = clinical.NoteStatusSigned
	if note.Editable() {
		t.Error("signed note must not be editable")
	}

	if _, err := store.Get(session.ID); err == nil {
		t.Error("finalized session should be gone from the store")
	}
}

// TestDocumentVersioning uploads two versions of a referral packet and
// verifies hashing and extraction reset.
func TestDocumentVersioning(t *testing.T) {
	uploadedBy := types.NewID()
	patientID := types.NewID()

	doc, err := document.NewDocument(document.TypeReferralPacket, "Referral packet", "", uploadedBy, &patientID, nil)
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}

	v1, err := doc.AddVersion("pkt/v1", "application/pdf", 4, bytes.NewReader([]byte("v1..")), uploadedBy)
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}
	v2, err := doc.AddVersion("pkt/v2", "application/pdf", 4, bytes.NewReader([]byte("v2..")), uploadedBy)
	if err != nil {
		t.Fatalf("AddVersion: %v", err)
	}

	if v1.FileHash == v2.FileHash {
		t.Error("different content must hash differently")
	}
	if doc.CurrentVersion != 2 {
		t.Errorf("CurrentVersion = %d, want 2", doc.CurrentVersion)
	}
	if latest := doc.LatestVersion(); latest == nil || latest.Version != 2 {
		t.Error("LatestVersion should return version 2")
	}
	if doc.ProcessingStatus != document.ProcessingPending {
		t.Errorf("new upload should reset processing, got %s", doc.ProcessingStatus)
	}
}

// TestClaimDenialAppealWorkflow runs a claim through submission, denial
// and an overturned appeal.
func TestClaimDenialAppealWorkflow(t *testing.T) {
	claim := &claims.Claim{
		Status: claims.StatusDraft,
		LineItems: []claims.LineItem{
			{Code: "G0299", Description: "skilled nursing visit", Units: 4, AmountCents: 12500},
			{Code: "G0151", Description: "physical therapy visit", Units: 2, AmountCents: 15000},
		},
	}

	if got := claim.TotalLineItems(); got != 80000 {
		t.Errorf("TotalLineItems = %d, want 80000", got)
	}

	for _, step := range []struct{ from, to claims.ClaimStatus }{
		{claims.StatusDraft, claims.StatusSubmitted},
		{claims.StatusSubmitted, claims.StatusDenied},
		{claims.StatusDenied, claims.StatusPaid},
	} {
		if !claims.CanTransition(step.from, step.to) {
			t.Errorf("transition %s -> %s should be allowed", step.from, step.to)
		}
	}

	if claims.CanTransition(claims.StatusPaid, claims.StatusDraft) {
		t.Error("paid claims must not reopen")
	}
}

// TestHomeboundDeterminationFlow scores an intake and maps the result
// onto the patient snapshot.
func TestHomeboundDeterminationFlow(t *testing.T) {
	assessment := ai.ScoreHomebound(ai.HomeboundInput{
		RequiresAssistiveDevice: true,
		RequiresHumanAssistance: true,
		TaxingEffort:            true,
		AbsenceFrequency:        ai.AbsencesInfrequent,
	})

	if assessment.Determination != ai.HomeboundQualified {
		t.Fatalf("Determination = %s, want qualified", assessment.Determination)
	}

	snapshot := patient.HomeboundStatus(assessment.Determination)
	if snapshot != patient.HomeboundQualified {
		t.Errorf("snapshot = %s, want %s", snapshot, patient.HomeboundQualified)
	}
}
