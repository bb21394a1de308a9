package document

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/harborhealth/platform/internal/shared/auth"
	"github.com/harborhealth/platform/internal/shared/errors"
	"github.com/harborhealth/platform/internal/shared/events"
	"github.com/harborhealth/platform/internal/shared/metrics"
	"github.com/harborhealth/platform/internal/shared/types"
)

// Extractor pulls structured data out of non-CCD document content
type Extractor interface {
	Extract(ctx context.Context, docType DocumentType, mimeType string, content []byte) (json.RawMessage, error)
}

// Handler provides HTTP handlers for the document module
type Handler struct {
	repo      *Repository
	storage   *Storage
	bus       *events.Bus
	extractor Extractor
	maxUpload int64
}

// NewHandler creates a new document handler. The extractor is optional;
// without one only CCD documents can be processed.
func NewHandler(repo *Repository, storage *Storage, bus *events.Bus, extractor Extractor, maxUpload int64) *Handler {
	if maxUpload <= 0 {
		maxUpload = 25 << 20
	}
	return &Handler{repo: repo, storage: storage, bus: bus, extractor: extractor, maxUpload: maxUpload}
}

// Routes registers the document routes
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListDocuments)
	r.Post("/", h.CreateDocument)

	r.Route("/{documentID}", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Put("/", h.UpdateDocument)
		r.Post("/versions", h.UploadVersion)
		r.Get("/content", h.DownloadContent)
		r.Post("/process", h.ProcessDocument)
	})

	return r
}

// ListDocuments lists documents matching the query filters
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	filter := ListDocumentsFilter{
		Search: r.URL.Query().Get("search"),
	}

	if t := r.URL.Query().Get("type"); t != "" {
		docType := DocumentType(t)
		filter.Type = &docType
	}
	if s := r.URL.Query().Get("processing"); s != "" {
		status := ProcessingStatus(s)
		filter.Processing = &status
	}
	if p := r.URL.Query().Get("patient"); p != "" {
		id, err := types.ParseID(p)
		if err != nil {
			writeError(w, errors.BadRequest("invalid patient ID"))
			return
		}
		filter.PatientID = &id
	}
	if ref := r.URL.Query().Get("referral"); ref != "" {
		id, err := types.ParseID(ref)
		if err != nil {
			writeError(w, errors.BadRequest("invalid referral ID"))
			return
		}
		filter.ReferralID = &id
	}

	documents, total, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  documents,
		"total": total,
	})
}

// GetDocument gets a document with its version history
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// CreateDocument creates a document record. Content is uploaded separately
// as versions.
func (h *Handler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	var patientID, referralID *types.ID
	if req.PatientID != "" {
		id, err := types.ParseID(req.PatientID)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"patient_id": "must be a valid UUID",
			}))
			return
		}
		patientID = &id
	}
	if req.ReferralID != "" {
		id, err := types.ParseID(req.ReferralID)
		if err != nil {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"referral_id": "must be a valid UUID",
			}))
			return
		}
		referralID = &id
	}

	d, err := NewDocument(req.Type, req.Title, req.Description, user.ID, patientID, referralID)
	if err != nil {
		writeError(w, errors.Validation("validation failed", map[string]string{
			"document": err.Error(),
		}))
		return
	}

	if err := h.repo.Create(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, d)
}

// UpdateDocument updates document title and description
func (h *Handler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req UpdateDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.BadRequest("invalid request body"))
		return
	}

	if req.Title != nil {
		if *req.Title == "" {
			writeError(w, errors.Validation("validation failed", map[string]string{
				"title": "title cannot be empty",
			}))
			return
		}
		d.Title = *req.Title
	}
	if req.Description != nil {
		d.Description = *req.Description
	}

	if err := h.repo.UpdateMetadata(r.Context(), d); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, d)
}

// UploadVersion accepts multipart file content as a new document version
func (h *Handler) UploadVersion(w http.ResponseWriter, r *http.Request) {
	d, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	user := auth.GetUser(r.Context())
	if user == nil {
		writeError(w, errors.Unauthorized("authentication required"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		writeError(w, errors.BadRequest("invalid multipart upload"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, errors.BadRequest("file field is required"))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to read upload"))
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(content)
	}

	version, err := d.AddVersion("", mimeType, int64(len(content)), bytes.NewReader(content), user.ID)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to add version"))
		return
	}

	path, err := h.storage.Save(d.ID, version.Version, content)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to store content"))
		return
	}
	version.FilePath = path

	if err := h.repo.AddVersion(r.Context(), d, version); err != nil {
		writeError(w, err)
		return
	}

	h.publish(r, d, "document.uploaded")
	writeJSON(w, http.StatusCreated, version)
}

// DownloadContent streams the latest version's content
func (h *Handler) DownloadContent(w http.ResponseWriter, r *http.Request) {
	d, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	version := d.LatestVersion()
	if version == nil {
		writeError(w, errors.NotFound("document content", d.ID.String()))
		return
	}

	rc, err := h.storage.Open(version.FilePath)
	if err != nil {
		writeError(w, errors.Wrap(err, "failed to open content"))
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", version.MimeType)
	io.Copy(w, rc)
}

// ProcessDocument runs content extraction on the latest version. CCD
// documents are parsed directly; other types go through the extractor.
func (h *Handler) ProcessDocument(w http.ResponseWriter, r *http.Request) {
	d, err := h.getFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	version := d.LatestVersion()
	if version == nil {
		writeError(w, errors.Conflict("document has no content to process"))
		return
	}
	if d.ProcessingStatus == ProcessingInProgress {
		writeError(w, errors.Conflict("document is already being processed"))
		return
	}

	if err := h.repo.SetProcessing(r.Context(), d.ID, d.ProcessingStatus, ProcessingInProgress, nil); err != nil {
		writeError(w, err)
		return
	}

	extracted, extractErr := h.extract(r.Context(), d, version)
	if extractErr != nil {
		h.repo.SetProcessing(r.Context(), d.ID, ProcessingInProgress, ProcessingFailed, nil)
		metrics.RecordDocumentProcessed(string(d.Type), "failed")
		writeError(w, extractErr)
		return
	}

	if err := h.repo.SetProcessing(r.Context(), d.ID, ProcessingInProgress, ProcessingProcessed, extracted); err != nil {
		writeError(w, err)
		return
	}

	d.ProcessingStatus = ProcessingProcessed
	d.ExtractedData = extracted

	metrics.RecordDocumentProcessed(string(d.Type), "processed")
	h.publish(r, d, "document.processed")
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) extract(ctx context.Context, d *Document, version *DocumentVersion) (json.RawMessage, error) {
	content, err := h.storage.Read(version.FilePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read content")
	}

	if d.Type == TypeCCD {
		summary, err := ParseCCD(bytes.NewReader(content))
		if err != nil {
			return nil, errors.Wrap(err, "failed to parse CCD")
		}
		data, err := json.Marshal(summary)
		if err != nil {
			return nil, errors.Wrap(err, "failed to marshal CCD summary")
		}
		return data, nil
	}

	if h.extractor == nil {
		return nil, errors.Unavailable("no extraction backend configured for this document type")
	}

	return h.extractor.Extract(ctx, d.Type, version.MimeType, content)
}

func (h *Handler) getFromPath(r *http.Request) (*Document, error) {
	id, err := types.ParseID(chi.URLParam(r, "documentID"))
	if err != nil {
		return nil, errors.BadRequest("invalid document ID")
	}
	return h.repo.GetByID(r.Context(), id)
}

func (h *Handler) publish(r *http.Request, d *Document, eventType string) {
	if h.bus == nil {
		return
	}

	user := auth.GetUser(r.Context())
	actorID := types.ID("")
	actorType := "system"
	if user != nil {
		actorID = user.ID
		actorType = "office"
		if auth.IsClinician(user.Role) {
			actorType = "clinician"
		}
	}

	event := events.NewEvent(eventType, "document", map[string]any{
		"document_id":     d.ID,
		"document_number": d.DocumentNumber,
		"type":            d.Type,
		"version":         d.CurrentVersion,
	}).WithActor(actorID, actorType)

	h.bus.Publish(r.Context(), event)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")

	if appErr, ok := err.(*errors.AppError); ok {
		w.WriteHeader(appErr.HTTPStatus)
		json.NewEncoder(w).Encode(map[string]any{
			"error":   appErr.Message,
			"code":    appErr.Code,
			"details": appErr.Details,
		})
		return
	}

	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]string{"error": "internal server error"})
}
