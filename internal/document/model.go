package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/harborhealth/platform/internal/shared/types"
)

// DocumentType defines the clinical document taxonomy
type DocumentType string

const (
	TypeReferralPacket DocumentType = "referral_packet"
	TypeFaceToFace     DocumentType = "face_to_face"
	TypeCCD            DocumentType = "ccd"
	TypeLab            DocumentType = "lab"
	TypeInsuranceCard  DocumentType = "insurance_card"
	TypeOther          DocumentType = "other"
)

// ValidType reports whether the given document type is recognized
func ValidType(t DocumentType) bool {
	switch t {
	case TypeReferralPacket, TypeFaceToFace, TypeCCD, TypeLab, TypeInsuranceCard, TypeOther:
		return true
	}
	return false
}

// ProcessingStatus of content extraction on a document
type ProcessingStatus string

const (
	ProcessingPending    ProcessingStatus = "pending"
	ProcessingInProgress ProcessingStatus = "processing"
	ProcessingProcessed  ProcessingStatus = "processed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// Document is uploaded clinical paperwork attached to a patient or referral
type Document struct {
	ID             types.ID     `json:"id"`
	DocumentNumber string       `json:"document_number"`
	PatientID      *types.ID    `json:"patient_id,omitempty"`
	ReferralID     *types.ID    `json:"referral_id,omitempty"`
	Type           DocumentType `json:"type"`
	Title          string       `json:"title"`
	Description    string       `json:"description,omitempty"`
	UploadedBy     types.ID     `json:"uploaded_by"`

	CurrentVersion int               `json:"current_version"`
	Versions       []DocumentVersion `json:"versions,omitempty"`

	ProcessingStatus ProcessingStatus `json:"processing_status"`
	ExtractedData    json.RawMessage  `json:"extracted_data,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DocumentVersion is one stored revision of a document's content
type DocumentVersion struct {
	ID         types.ID  `json:"id"`
	DocumentID types.ID  `json:"document_id"`
	Version    int       `json:"version"`
	FilePath   string    `json:"file_path"`
	FileHash   string    `json:"file_hash"`
	FileSize   int64     `json:"file_size"`
	MimeType   string    `json:"mime_type"`
	CreatedBy  types.ID  `json:"created_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewDocument creates a new document with no versions yet
func NewDocument(docType DocumentType, title, description string, uploadedBy types.ID, patientID, referralID *types.ID) (*Document, error) {
	if title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if !ValidType(docType) {
		return nil, fmt.Errorf("unknown document type %q", docType)
	}

	now := time.Now()
	return &Document{
		ID:               types.NewID(),
		DocumentNumber:   generateDocumentNumber(docType),
		PatientID:        patientID,
		ReferralID:       referralID,
		Type:             docType,
		Title:            title,
		Description:      description,
		UploadedBy:       uploadedBy,
		CurrentVersion:   0,
		ProcessingStatus: ProcessingPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// AddVersion hashes the content and appends a new version. The caller stores
// the bytes at filePath.
func (d *Document) AddVersion(filePath, mimeType string, fileSize int64, content io.Reader, createdBy types.ID) (*DocumentVersion, error) {
	hash := sha256.New()
	if _, err := io.Copy(hash, content); err != nil {
		return nil, fmt.Errorf("failed to calculate file hash: %w", err)
	}

	d.CurrentVersion++
	version := DocumentVersion{
		ID:         types.NewID(),
		DocumentID: d.ID,
		Version:    d.CurrentVersion,
		FilePath:   filePath,
		FileHash:   hex.EncodeToString(hash.Sum(nil)),
		FileSize:   fileSize,
		MimeType:   mimeType,
		CreatedBy:  createdBy,
		CreatedAt:  time.Now(),
	}

	d.Versions = append(d.Versions, version)
	// New content invalidates any previous extraction
	d.ProcessingStatus = ProcessingPending
	d.ExtractedData = nil
	d.UpdatedAt = time.Now()

	return &version, nil
}

// LatestVersion returns the newest version, or nil when none exist
func (d *Document) LatestVersion() *DocumentVersion {
	for i := range d.Versions {
		if d.Versions[i].Version == d.CurrentVersion {
			return &d.Versions[i]
		}
	}
	return nil
}

var numberPrefixes = map[DocumentType]string{
	TypeReferralPacket: "REF",
	TypeFaceToFace:     "F2F",
	TypeCCD:            "CCD",
	TypeLab:            "LAB",
	TypeInsuranceCard:  "INS",
	TypeOther:          "DOC",
}

func generateDocumentNumber(docType DocumentType) string {
	year := time.Now().Year()
	seq := time.Now().UnixNano() % 1000000
	return fmt.Sprintf("%s-%d-%06d", numberPrefixes[docType], year, seq)
}

// --- Request/Response types ---

type CreateDocumentRequest struct {
	Type        DocumentType `json:"type"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`
	PatientID   string       `json:"patient_id,omitempty"`
	ReferralID  string       `json:"referral_id,omitempty"`
}

type UpdateDocumentRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
}

type ListDocumentsFilter struct {
	Type       *DocumentType
	Processing *ProcessingStatus
	PatientID  *types.ID
	ReferralID *types.ID
	Search     string
	Limit      int
	Offset     int
}
