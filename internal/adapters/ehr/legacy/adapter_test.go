package legacy

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
)

func testAdapter(t *testing.T) (*Adapter, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	a := New(DefaultLegacyConfig(), zerolog.Nop())
	a.db = db
	a.running = true

	return a, mock
}

func TestFetchDemographics(t *testing.T) {
	a, mock := testAdapter(t)

	dob := time.Date(1948, 6, 2, 0, 0, 0, 0, time.UTC)
	modified := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"PatientID", "MRN", "FirstName", "LastName", "MiddleName",
		"DateOfBirth", "Gender", "Address", "City", "PostalCode",
		"Phone", "Email", "Payer", "MemberID", "IsDeceased",
		"DeceasedDate", "LastModified",
	}).AddRow(
		"1042", "MRN-778812", "Harold", "Okafor", nil,
		dob, "M", "12 Cedar Ln", "Harborview", "02119",
		"617-555-0188", nil, "Medicare", "1EG4-TE5-MK72", false,
		nil, modified,
	)

	mock.ExpectQuery(`SELECT(.|\n)*FROM dbo.Patients(.|\n)*WHERE MRN = @mrn`).
		WithArgs("MRN-778812").
		WillReturnRows(rows)

	record, err := a.FetchDemographics(context.Background(), "MRN-778812")
	if err != nil {
		t.Fatalf("FetchDemographics: %v", err)
	}

	if record.MRN != "MRN-778812" {
		t.Errorf("MRN = %s", record.MRN)
	}
	if record.Gender != "male" {
		t.Errorf("Gender = %s, want male", record.Gender)
	}
	if record.Payer != "Medicare" {
		t.Errorf("Payer = %s", record.Payer)
	}
	if record.Email != "" {
		t.Errorf("Email = %q, want empty for NULL column", record.Email)
	}
	if record.SourceSystem != "legacy_ehr" {
		t.Errorf("SourceSystem = %s", record.SourceSystem)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestFetchDemographicsNotFound(t *testing.T) {
	a, mock := testAdapter(t)

	mock.ExpectQuery(`SELECT(.|\n)*FROM dbo.Patients`).
		WithArgs("MRN-000000").
		WillReturnRows(sqlmock.NewRows([]string{"PatientID"}))

	if _, err := a.FetchDemographics(context.Background(), "MRN-000000"); err == nil {
		t.Fatal("expected error for unknown MRN")
	}
}

func TestFetchDemographicsNotConnected(t *testing.T) {
	a := New(DefaultLegacyConfig(), zerolog.Nop())

	if _, err := a.FetchDemographics(context.Background(), "MRN-778812"); err == nil {
		t.Fatal("expected error when adapter is not connected")
	}
}

func TestFetchMedicationHistory(t *testing.T) {
	a, mock := testAdapter(t)

	prescribed := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	modified := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"MedicationID", "MRN", "MedicationName", "NDCCode", "Dosage",
		"Frequency", "Route", "Quantity", "Refills", "PrescribedAt",
		"PrescribedBy", "ValidUntil", "Status", "Instructions", "LastModified",
	}).AddRow(
		"rx-001", "MRN-778812", "Lisinopril 10mg", "0093-1036-01", "10 mg",
		"once daily", "oral", 30, 3, prescribed,
		"Dr. Patel", nil, "active", "take with food", modified,
	).AddRow(
		"rx-002", "MRN-778812", "Metformin 500mg", nil, nil,
		"twice daily", nil, nil, nil, prescribed,
		nil, nil, "active", nil, modified,
	)

	mock.ExpectQuery(`SELECT(.|\n)*FROM dbo.Medications m(.|\n)*WHERE p.MRN = @mrn(.|\n)*m.Status = 'active'`).
		WithArgs("MRN-778812").
		WillReturnRows(rows)

	meds, err := a.FetchMedicationHistory(context.Background(), "MRN-778812", true)
	if err != nil {
		t.Fatalf("FetchMedicationHistory: %v", err)
	}

	if len(meds) != 2 {
		t.Fatalf("got %d medications, want 2", len(meds))
	}
	if meds[0].MedicationName != "Lisinopril 10mg" {
		t.Errorf("MedicationName = %s", meds[0].MedicationName)
	}
	if meds[0].Refills != 3 {
		t.Errorf("Refills = %d, want 3", meds[0].Refills)
	}
	if meds[1].NDCCode != "" {
		t.Errorf("NDCCode = %q, want empty for NULL column", meds[1].NDCCode)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestFetchEncounters(t *testing.T) {
	a, mock := testAdapter(t)

	admitted := time.Date(2026, 7, 4, 8, 0, 0, 0, time.UTC)
	discharged := time.Date(2026, 7, 9, 14, 0, 0, 0, time.UTC)
	modified := time.Date(2026, 7, 9, 14, 5, 0, 0, time.UTC)

	rows := sqlmock.NewRows([]string{
		"EncounterID", "MRN", "AdmissionDate", "DischargeDate", "Department",
		"AdmissionType", "DischargeType", "AttendingName", "AttendingNPI",
		"PrimaryDiagnosisICD", "PrimaryDiagnosisText", "Status", "LastModified",
	}).AddRow(
		"enc-501", "MRN-778812", admitted, discharged, "Cardiology",
		"emergency", "home", "Dr. Chen", "1234567890",
		"I50.9", "Heart failure, unspecified", "closed", modified,
	)

	mock.ExpectQuery(`SELECT(.|\n)*FROM dbo.Encounters e(.|\n)*WHERE p.MRN = @mrn`).
		WithArgs("MRN-778812", admitted.Add(-30*24*time.Hour), discharged).
		WillReturnRows(rows)

	encounters, err := a.FetchEncounters(context.Background(), "MRN-778812", admitted.Add(-30*24*time.Hour), discharged)
	if err != nil {
		t.Fatalf("FetchEncounters: %v", err)
	}

	if len(encounters) != 1 {
		t.Fatalf("got %d encounters, want 1", len(encounters))
	}
	e := encounters[0]
	if e.PrimaryDiagnosis != "I50.9" {
		t.Errorf("PrimaryDiagnosis = %s", e.PrimaryDiagnosis)
	}
	if e.DischargeDate == nil || !e.DischargeDate.Equal(discharged) {
		t.Errorf("DischargeDate = %v, want %v", e.DischargeDate, discharged)
	}
	if e.AttendingNPI != "1234567890" {
		t.Errorf("AttendingNPI = %s", e.AttendingNPI)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations: %v", err)
	}
}

func TestMapGender(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"M", "male"},
		{"m", "male"},
		{"1", "male"},
		{"F", "female"},
		{"2", "female"},
		{"O", "other"},
		{"", "unknown"},
		{"X", "unknown"},
	}

	for _, tt := range tests {
		if got := mapGender(tt.code); got != tt.want {
			t.Errorf("mapGender(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
