package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/core"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/store"
)

// multipart overhead allowed on top of the configured upload limit
const formOverhead = 1 << 20

type Documents interface {
	Upload(ctx context.Context, in core.UploadInput) (*model.Document, error)
	Status(ctx context.Context, docID string) (*model.Document, error)
	Content(ctx context.Context, docID string) (*model.Document, []byte, error)
}

type Analysis interface {
	Summarize(ctx context.Context, docID string) (*core.SummaryResult, error)
	Risks(ctx context.Context, docID string) (*core.RiskReport, error)
	RetryAfter() time.Duration
}

type Chat interface {
	Ask(ctx context.Context, in core.ChatInput) (*core.ChatResult, error)
	History(ctx context.Context, docID, sessionID string) (*store.Session, error)
}

type APIHandler struct {
	documents      Documents
	analysis       Analysis
	chat           Chat
	maxUploadBytes int64
	log            *slog.Logger
}

func NewAPIHandler(docs Documents, analysis Analysis, chat Chat, maxUploadBytes int64) *APIHandler {
	return &APIHandler{
		documents:      docs,
		analysis:       analysis,
		chat:           chat,
		maxUploadBytes: maxUploadBytes,
		log:            logging.New("api"),
	}
}

type errorResponse struct {
	Kind    apperr.Kind `json:"kind"`
	Message string      `json:"message"`
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Warn("failed to encode response", "error", err)
	}
}

// writeError logs the full chain and returns only the kind and client-safe message.
func (h *APIHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	} else {
		h.log.Info("request rejected", "method", r.Method, "path", r.URL.Path, "status", status, "error", err)
	}
	h.writeJSON(w, status, errorResponse{Kind: apperr.KindOf(err), Message: apperr.Message(err)})
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperr.Validation("request body is required")
		}
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}

type UploadResponse struct {
	DocumentID       string                 `json:"doc_id"`
	StorageURI       string                 `json:"storage_uri"`
	Filename         string                 `json:"filename"`
	SizeBytes        int64                  `json:"size_bytes"`
	ExtractionStatus model.ExtractionStatus `json:"extraction_status"`
	ExtractionError  string                 `json:"extraction_error,omitempty"`
	PageCount        int                    `json:"page_count"`
	IngestionStatus  model.IngestionStatus  `json:"ingestion_status"`
	Message          string                 `json:"message"`
}

func (h *APIHandler) UploadPDFHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+formOverhead)

	filename, data, err := h.readUpload(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	doc, err := h.documents.Upload(r.Context(), core.UploadInput{Filename: filename, Data: data})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	msg := "Document uploaded."
	switch {
	case doc.ExtractionStatus != model.ExtractionOK:
		msg = "Document uploaded, but no text could be extracted; risk analysis is unavailable."
	case doc.IngestionStatus == model.IngestionPending:
		msg = "Document uploaded; ingestion has started."
	case doc.IngestionStatus == model.IngestionFailed:
		msg = "Document uploaded; ingestion will be retried on the first summary or question."
	}
	h.writeJSON(w, http.StatusCreated, UploadResponse{
		DocumentID:       doc.ID,
		StorageURI:       doc.StorageURI,
		Filename:         doc.Filename,
		SizeBytes:        doc.SizeBytes,
		ExtractionStatus: doc.ExtractionStatus,
		ExtractionError:  doc.ExtractionError,
		PageCount:        len(doc.Pages),
		IngestionStatus:  doc.IngestionStatus,
		Message:          msg,
	})
}

// readUpload accepts a multipart form with a "file" field or a raw PDF body.
func (h *APIHandler) readUpload(r *http.Request) (string, []byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		file, header, err := r.FormFile("file")
		if err != nil {
			if tooLarge(err) {
				return "", nil, h.tooLarge()
			}
			return "", nil, apperr.Validation("multipart field \"file\" is required")
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return "", nil, apperr.Validation("failed to read uploaded file: %v", err)
		}
		return header.Filename, data, nil
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		if tooLarge(err) {
			return "", nil, h.tooLarge()
		}
		return "", nil, apperr.Validation("failed to read request body: %v", err)
	}
	return r.URL.Query().Get("filename"), data, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}

func (h *APIHandler) tooLarge() error {
	return apperr.Validation("uploaded file exceeds the %d MB limit", h.maxUploadBytes>>20)
}

type DocumentRequest struct {
	DocumentID string `json:"doc_id"`
}

type SummaryResponse struct {
	DocumentID string            `json:"doc_id"`
	Status     string            `json:"status"`
	Summary    string            `json:"summary"`
	Sources    []model.SourceRef `json:"sources"`
	Cached     bool              `json:"cached"`
}

type PendingResponse struct {
	DocumentID        string      `json:"doc_id"`
	Status            string      `json:"status"`
	Kind              apperr.Kind `json:"kind"`
	Message           string      `json:"message"`
	RetryAfterSeconds int         `json:"retry_after_seconds"`
}

func (h *APIHandler) SummarizeHandler(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	res, err := h.analysis.Summarize(r.Context(), req.DocumentID)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindPending {
			h.writePending(w, req.DocumentID, err)
			return
		}
		h.writeError(w, r, err)
		return
	}

	sources := res.Sources
	if sources == nil {
		sources = []model.SourceRef{}
	}
	h.writeJSON(w, http.StatusOK, SummaryResponse{
		DocumentID: res.DocumentID,
		Status:     string(model.IngestionReady),
		Summary:    res.Summary,
		Sources:    sources,
		Cached:     res.Cached,
	})
}

func (h *APIHandler) writePending(w http.ResponseWriter, docID string, err error) {
	secs := int(h.analysis.RetryAfter().Round(time.Second) / time.Second)
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	h.writeJSON(w, http.StatusAccepted, PendingResponse{
		DocumentID:        docID,
		Status:            string(model.IngestionPending),
		Kind:              apperr.KindPending,
		Message:           apperr.Message(err),
		RetryAfterSeconds: secs,
	})
}

func (h *APIHandler) RisksHandler(w http.ResponseWriter, r *http.Request) {
	var req DocumentRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.analysis.Risks(r.Context(), req.DocumentID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	DocumentID string        `json:"doc_id"`
	SessionID  string        `json:"session_id,omitempty"`
	Question   string        `json:"question,omitempty"`
	Messages   []ChatMessage `json:"messages,omitempty"`
}

type ChatResponse struct {
	DocumentID string            `json:"doc_id"`
	SessionID  string            `json:"session_id"`
	Answer     string            `json:"answer"`
	Sources    []model.SourceRef `json:"sources"`
	Fallback   bool              `json:"fallback"`
}

func (h *APIHandler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	in := core.ChatInput{
		DocumentID: req.DocumentID,
		SessionID:  req.SessionID,
		Question:   req.Question,
	}
	for _, m := range req.Messages {
		in.Messages = append(in.Messages, rag.Message{Role: rag.Role(m.Role), Content: m.Content})
	}

	res, err := h.chat.Ask(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	sources := res.Sources
	if sources == nil {
		sources = []model.SourceRef{}
	}
	h.writeJSON(w, http.StatusOK, ChatResponse{
		DocumentID: res.DocumentID,
		SessionID:  res.SessionID,
		Answer:     res.Answer,
		Sources:    sources,
		Fallback:   res.Fallback,
	})
}

type DocumentResponse struct {
	*model.Document
	PageCount int  `json:"page_count"`
	HasText   bool `json:"has_text"`
}

func (h *APIHandler) GetDocumentHandler(w http.ResponseWriter, r *http.Request) {
	doc, err := h.documents.Status(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, DocumentResponse{Document: doc, PageCount: len(doc.Pages), HasText: doc.HasText()})
}

func (h *APIHandler) GetDocumentContentHandler(w http.ResponseWriter, r *http.Request) {
	doc, data, err := h.documents.Content(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", doc.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": doc.Filename}))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.log.Warn("failed to write document content", "doc_id", doc.ID, "error", err)
	}
}

func (h *APIHandler) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, err := h.chat.History(r.Context(), chi.URLParam(r, "docID"), chi.URLParam(r, "sessionID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *APIHandler) RootHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{
		"service": "legal-rag",
		"message": fmt.Sprintf("Upload a PDF to POST /upload_pdf (max %d MB), then use /summarize, /risks and /chat.", h.maxUploadBytes>>20),
	})
}
