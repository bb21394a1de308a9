package ai

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/harborhealth/platform/internal/document"
	"github.com/harborhealth/platform/internal/shared/errors"
)

// maxExtractionBytes caps how much document text is sent to the model
const maxExtractionBytes = 16 * 1024

// DocumentExtractor pulls structured fields out of uploaded document
// text using the extraction agent. It satisfies the document module's
// Extractor interface for everything except CCDs, which the document
// module parses itself.
type DocumentExtractor struct {
	orchestrator *Orchestrator
}

// NewDocumentExtractor creates an extractor over the orchestrator
func NewDocumentExtractor(o *Orchestrator) *DocumentExtractor {
	return &DocumentExtractor{orchestrator: o}
}

var extractionSchemas = map[document.DocumentType]string{
	document.TypeReferralPacket: `{"patient_name": "...", "date_of_birth": "YYYY-MM-DD",
"referring_provider": "...", "diagnosis_codes": ["..."],
"requested_services": ["..."], "insurance": "..."}`,
	document.TypeFaceToFace: `{"patient_name": "...", "encounter_date": "YYYY-MM-DD",
"provider": "...", "clinical_findings": "...", "homebound_statement": "..."}`,
	document.TypeLab: `{"patient_name": "...", "collected_at": "YYYY-MM-DD",
"results": [{"test": "...", "value": "...", "unit": "...", "flag": "..."}]}`,
	document.TypeInsuranceCard: `{"payer": "...", "plan_name": "...", "member_id": "...",
"group_number": "...", "effective_date": "YYYY-MM-DD"}`,
	document.TypeOther: `{"summary": "...", "key_fields": {"...": "..."}}`,
}

const extractionPromptHeader = `You are a medical records extraction service. Extract the fields below
from the document text. Use null for fields the document does not
contain. Respond with exactly this JSON object shape:
`

// Extract sends the document text to the extraction agent and returns
// the structured fields as raw JSON. Binary content is rejected.
func (e *DocumentExtractor) Extract(ctx context.Context, docType document.DocumentType, mimeType string, content []byte) (json.RawMessage, error) {
	schema, ok := extractionSchemas[docType]
	if !ok {
		return nil, errors.BadRequest("no extraction schema for this document type")
	}

	if !textualMIME(mimeType) || !utf8.Valid(content) {
		return nil, errors.BadRequest("document content is not text and cannot be extracted")
	}

	text := string(content)
	if len(text) > maxExtractionBytes {
		text = text[:maxExtractionBytes]
	}

	var extracted json.RawMessage
	_, err := e.orchestrator.invoke(ctx, AgentDocumentExtraction, extractionPromptHeader+schema,
		map[string]string{"document_text": text}, &extracted)
	if err != nil {
		return nil, err
	}

	return extracted, nil
}

func textualMIME(mimeType string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch {
	case strings.Contains(mimeType, "json"),
		strings.Contains(mimeType, "xml"),
		strings.Contains(mimeType, "x-www-form-urlencoded"):
		return true
	}
	return false
}
