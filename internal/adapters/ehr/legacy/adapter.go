package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // SQL Server driver
	"github.com/rs/zerolog"

	"github.com/harborhealth/platform/internal/adapters/ehr"
)

// Adapter implements ehr.Adapter for the legacy hospital EHR. The
// legacy system exposes read-only SQL Server views; changes are picked
// up by polling the LastModified columns.
type Adapter struct {
	db     *sql.DB
	config Config
	log    zerolog.Logger

	admissionChan chan ehr.AdmissionEvent
	dischargeChan chan ehr.DischargeEvent

	running  bool
	mu       sync.RWMutex
	cancel   context.CancelFunc
	lastPoll time.Time
	wg       sync.WaitGroup
}

// Config holds legacy adapter configuration
type Config struct {
	ehr.Config

	PatientTable    string `json:"patient_table"`
	EncounterTable  string `json:"encounter_table"`
	MedicationTable string `json:"medication_table"`
}

// DefaultLegacyConfig returns default legacy EHR configuration
func DefaultLegacyConfig() Config {
	return Config{
		Config:          ehr.DefaultConfig(),
		PatientTable:    "dbo.Patients",
		EncounterTable:  "dbo.Encounters",
		MedicationTable: "dbo.Medications",
	}
}

// New creates a new legacy EHR adapter
func New(cfg Config, log zerolog.Logger) *Adapter {
	return &Adapter{
		config:        cfg,
		log:           log.With().Str("component", "ehr_legacy").Logger(),
		admissionChan: make(chan ehr.AdmissionEvent, cfg.EventBufferSize),
		dischargeChan: make(chan ehr.DischargeEvent, cfg.EventBufferSize),
	}
}

// Start opens the database connection and starts polling
func (a *Adapter) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return fmt.Errorf("adapter already running")
	}

	connStr := fmt.Sprintf("server=%s;port=%d;database=%s;user id=%s;password=%s",
		a.config.Host,
		a.config.Port,
		a.config.Database,
		a.config.User,
		a.config.Password,
	)
	if a.config.SSLMode != "disable" {
		connStr += ";encrypt=true;TrustServerCertificate=true"
	}

	db, err := sql.Open("sqlserver", connStr)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	a.running = true
	a.lastPoll = time.Now().Add(-a.config.PollInterval)

	pollCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.wg.Add(1)
	go a.pollLoop(pollCtx)

	return nil
}

// Stop stops polling and closes the connection
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	close(a.admissionChan)
	close(a.dischargeChan)

	if a.db != nil {
		a.db.Close()
	}

	a.running = false
	return nil
}

// Health checks database connectivity
func (a *Adapter) Health(ctx context.Context) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return fmt.Errorf("adapter not running")
	}

	return a.db.PingContext(ctx)
}

// SourceSystem returns the source system name
func (a *Adapter) SourceSystem() string {
	return "legacy_ehr"
}

// IsConnected returns connection status
func (a *Adapter) IsConnected() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.running && a.db != nil
}

// FetchDemographics retrieves a patient record by MRN
func (a *Adapter) FetchDemographics(ctx context.Context, mrn string) (*ehr.Demographics, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := fmt.Sprintf(`
		SELECT
			PatientID,
			MRN,
			FirstName,
			LastName,
			MiddleName,
			DateOfBirth,
			Gender,
			Address,
			City,
			PostalCode,
			Phone,
			Email,
			Payer,
			MemberID,
			IsDeceased,
			DeceasedDate,
			LastModified
		FROM %s
		WHERE MRN = @mrn
	`, a.config.PatientTable)

	row := a.db.QueryRowContext(ctx, query, sql.Named("mrn", mrn))

	var record ehr.Demographics
	var genderCode string
	var deceased sql.NullBool
	var deceasedAt sql.NullTime
	var middleName, email, payer, memberID sql.NullString

	err := row.Scan(
		&record.LocalID,
		&record.MRN,
		&record.FirstName,
		&record.LastName,
		&middleName,
		&record.DateOfBirth,
		&genderCode,
		&record.Address,
		&record.City,
		&record.PostalCode,
		&record.Phone,
		&email,
		&payer,
		&memberID,
		&deceased,
		&deceasedAt,
		&record.LastUpdated,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("patient not found: %s", mrn)
		}
		return nil, fmt.Errorf("failed to fetch patient: %w", err)
	}

	if middleName.Valid {
		record.MiddleName = middleName.String
	}
	if email.Valid {
		record.Email = email.String
	}
	if payer.Valid {
		record.Payer = payer.String
	}
	if memberID.Valid {
		record.MemberID = memberID.String
	}
	if deceased.Valid {
		record.Deceased = deceased.Bool
	}
	if deceasedAt.Valid {
		record.DeceasedAt = &deceasedAt.Time
	}

	record.Gender = mapGender(genderCode)
	record.SourceSystem = a.SourceSystem()

	return &record, nil
}

// FetchMedicationHistory retrieves medication rows for a patient
func (a *Adapter) FetchMedicationHistory(ctx context.Context, mrn string, activeOnly bool) ([]ehr.Medication, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := fmt.Sprintf(`
		SELECT
			m.MedicationID,
			p.MRN,
			m.MedicationName,
			m.NDCCode,
			m.Dosage,
			m.Frequency,
			m.Route,
			m.Quantity,
			m.Refills,
			m.PrescribedAt,
			m.PrescribedBy,
			m.ValidUntil,
			m.Status,
			m.Instructions,
			m.LastModified
		FROM %s m
		INNER JOIN %s p ON m.PatientID = p.PatientID
		WHERE p.MRN = @mrn
	`, a.config.MedicationTable, a.config.PatientTable)

	if activeOnly {
		query += ` AND m.Status = 'active' AND (m.ValidUntil IS NULL OR m.ValidUntil > GETDATE())`
	}

	query += ` ORDER BY m.PrescribedAt DESC`

	rows, err := a.db.QueryContext(ctx, query, sql.Named("mrn", mrn))
	if err != nil {
		return nil, fmt.Errorf("failed to query medications: %w", err)
	}
	defer rows.Close()

	var medications []ehr.Medication
	for rows.Next() {
		var m ehr.Medication
		var ndc, dosage, frequency, route, prescribedBy, instructions sql.NullString
		var validUntil sql.NullTime
		var quantity, refills sql.NullInt32

		err := rows.Scan(
			&m.ID,
			&m.PatientMRN,
			&m.MedicationName,
			&ndc,
			&dosage,
			&frequency,
			&route,
			&quantity,
			&refills,
			&m.PrescribedAt,
			&prescribedBy,
			&validUntil,
			&m.Status,
			&instructions,
			&m.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}

		if ndc.Valid {
			m.NDCCode = ndc.String
		}
		if dosage.Valid {
			m.Dosage = dosage.String
		}
		if frequency.Valid {
			m.Frequency = frequency.String
		}
		if route.Valid {
			m.Route = route.String
		}
		if quantity.Valid {
			m.Quantity = int(quantity.Int32)
		}
		if refills.Valid {
			m.Refills = int(refills.Int32)
		}
		if prescribedBy.Valid {
			m.PrescribedBy = prescribedBy.String
		}
		if validUntil.Valid {
			m.ValidUntil = &validUntil.Time
		}
		if instructions.Valid {
			m.Instructions = instructions.String
		}

		m.SourceSystem = a.SourceSystem()
		medications = append(medications, m)
	}

	return medications, rows.Err()
}

// FetchEncounters retrieves hospital encounters for a patient
func (a *Adapter) FetchEncounters(ctx context.Context, mrn string, from, to time.Time) ([]ehr.Encounter, error) {
	if !a.IsConnected() {
		return nil, fmt.Errorf("adapter not connected")
	}

	query := fmt.Sprintf(`
		SELECT
			e.EncounterID,
			p.MRN,
			e.AdmissionDate,
			e.DischargeDate,
			e.Department,
			e.AdmissionType,
			e.DischargeType,
			e.AttendingName,
			e.AttendingNPI,
			e.PrimaryDiagnosisICD,
			e.PrimaryDiagnosisText,
			e.Status,
			e.LastModified
		FROM %s e
		INNER JOIN %s p ON e.PatientID = p.PatientID
		WHERE p.MRN = @mrn
		  AND e.AdmissionDate >= @from
		  AND e.AdmissionDate <= @to
		ORDER BY e.AdmissionDate DESC
	`, a.config.EncounterTable, a.config.PatientTable)

	rows, err := a.db.QueryContext(ctx, query,
		sql.Named("mrn", mrn),
		sql.Named("from", from),
		sql.Named("to", to),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query encounters: %w", err)
	}
	defer rows.Close()

	var encounters []ehr.Encounter
	for rows.Next() {
		var e ehr.Encounter
		var dischargeDate sql.NullTime
		var dischargeType, attendingName, attendingNPI sql.NullString
		var diagICD, diagText sql.NullString

		err := rows.Scan(
			&e.ID,
			&e.PatientMRN,
			&e.AdmissionDate,
			&dischargeDate,
			&e.Department,
			&e.AdmissionType,
			&dischargeType,
			&attendingName,
			&attendingNPI,
			&diagICD,
			&diagText,
			&e.Status,
			&e.LastUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan encounter: %w", err)
		}

		if dischargeDate.Valid {
			e.DischargeDate = &dischargeDate.Time
		}
		if dischargeType.Valid {
			e.DischargeType = dischargeType.String
		}
		if attendingName.Valid {
			e.AttendingName = attendingName.String
		}
		if attendingNPI.Valid {
			e.AttendingNPI = attendingNPI.String
		}
		if diagICD.Valid {
			e.PrimaryDiagnosis = diagICD.String
		}
		if diagText.Valid {
			e.DiagnosisText = diagText.String
		}

		e.SourceSystem = a.SourceSystem()
		encounters = append(encounters, e)
	}

	return encounters, rows.Err()
}

// SubscribeAdmissions registers a handler for admission events
func (a *Adapter) SubscribeAdmissions(ctx context.Context, handler ehr.AdmissionHandler) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-a.admissionChan:
				if !ok {
					return
				}
				handler(event)
			}
		}
	}()
	return nil
}

// SubscribeDischarges registers a handler for discharge events
func (a *Adapter) SubscribeDischarges(ctx context.Context, handler ehr.DischargeHandler) error {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-a.dischargeChan:
				if !ok {
					return
				}
				handler(event)
			}
		}
	}()
	return nil
}

// pollLoop polls for new admissions and discharges
func (a *Adapter) pollLoop(ctx context.Context) {
	defer a.wg.Done()

	ticker := time.NewTicker(a.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.mu.Lock()
			lastPoll := a.lastPoll
			a.lastPoll = time.Now()
			a.mu.Unlock()

			if err := a.pollAdmissions(ctx, lastPoll); err != nil {
				a.log.Warn().Err(err).Msg("admission poll failed")
			}
			if err := a.pollDischarges(ctx, lastPoll); err != nil {
				a.log.Warn().Err(err).Msg("discharge poll failed")
			}
		}
	}
}

// pollAdmissions checks for new admissions since the last poll
func (a *Adapter) pollAdmissions(ctx context.Context, since time.Time) error {
	query := fmt.Sprintf(`
		SELECT
			e.EncounterID,
			e.AdmissionDate,
			p.MRN,
			p.FirstName + ' ' + p.LastName as PatientName,
			e.Department,
			e.AdmissionType,
			e.PrimaryDiagnosisICD
		FROM %s e
		INNER JOIN %s p ON e.PatientID = p.PatientID
		WHERE e.AdmissionDate > @since
		ORDER BY e.AdmissionDate ASC
	`, a.config.EncounterTable, a.config.PatientTable)

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var event ehr.AdmissionEvent
		var diagICD sql.NullString

		err := rows.Scan(
			&event.EventID,
			&event.Timestamp,
			&event.PatientMRN,
			&event.PatientName,
			&event.Department,
			&event.AdmissionType,
			&diagICD,
		)
		if err != nil {
			continue
		}

		if diagICD.Valid {
			event.DiagnosisICD = diagICD.String
		}
		event.SourceSystem = a.SourceSystem()

		select {
		case a.admissionChan <- event:
		default:
			// Channel full, skip event
		}
	}

	return rows.Err()
}

// pollDischarges checks for new discharges since the last poll
func (a *Adapter) pollDischarges(ctx context.Context, since time.Time) error {
	query := fmt.Sprintf(`
		SELECT
			e.EncounterID,
			e.DischargeDate,
			p.MRN,
			p.FirstName + ' ' + p.LastName as PatientName,
			e.Department,
			e.DischargeType,
			e.AdmissionDate,
			e.PrimaryDiagnosisICD
		FROM %s e
		INNER JOIN %s p ON e.PatientID = p.PatientID
		WHERE e.DischargeDate > @since
		  AND e.DischargeDate IS NOT NULL
		ORDER BY e.DischargeDate ASC
	`, a.config.EncounterTable, a.config.PatientTable)

	rows, err := a.db.QueryContext(ctx, query, sql.Named("since", since))
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var event ehr.DischargeEvent
		var diagICD sql.NullString

		err := rows.Scan(
			&event.EventID,
			&event.Timestamp,
			&event.PatientMRN,
			&event.PatientName,
			&event.Department,
			&event.DischargeType,
			&event.AdmissionDate,
			&diagICD,
		)
		if err != nil {
			continue
		}

		event.DischargeDate = event.Timestamp
		if diagICD.Valid {
			event.DiagnosisICD = diagICD.String
		}
		event.SourceSystem = a.SourceSystem()

		select {
		case a.dischargeChan <- event:
		default:
			// Channel full, skip event
		}
	}

	return rows.Err()
}

// mapGender normalizes the legacy gender codes
func mapGender(code string) string {
	switch code {
	case "M", "m", "1":
		return "male"
	case "F", "f", "2":
		return "female"
	case "O", "o", "3":
		return "other"
	default:
		return "unknown"
	}
}

// Verify interface implementation
var _ ehr.Adapter = (*Adapter)(nil)
