package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/extract"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/storage"
)

const pdfContentType = "application/pdf"

type UploadInput struct {
	Filename string
	Data     []byte
}

type DocumentService struct {
	store          Store
	storage        storage.Storage
	extractor      extract.Extractor
	ingestor       *Ingestor
	ingestOnUpload bool
	maxBytes       int64
	log            *slog.Logger
}

type DocumentServiceConfig struct {
	IngestOnUpload bool
	MaxUploadBytes int64
}

func NewDocumentService(s Store, st storage.Storage, ex extract.Extractor, ing *Ingestor, cfg DocumentServiceConfig) *DocumentService {
	return &DocumentService{
		store:          s,
		storage:        st,
		extractor:      ex,
		ingestor:       ing,
		ingestOnUpload: cfg.IngestOnUpload,
		maxBytes:       cfg.MaxUploadBytes,
		log:            logging.New("documents"),
	}
}

// Upload validates a PDF, stores it and extracts its text. Storage and extraction
// run concurrently; only a storage failure fails the upload. Nothing reaches
// storage unless the bytes are a PDF.
func (s *DocumentService) Upload(ctx context.Context, in UploadInput) (*model.Document, error) {
	if len(in.Data) == 0 {
		return nil, apperr.Validation("uploaded file is empty")
	}
	if s.maxBytes > 0 && int64(len(in.Data)) > s.maxBytes {
		return nil, apperr.Validation("uploaded file exceeds the %d MB limit", s.maxBytes>>20)
	}
	if !extract.IsPDF(in.Data) {
		return nil, apperr.Validation("uploaded file is not a PDF")
	}

	filename := cleanFilename(in.Filename)
	sum := sha256.Sum256(in.Data)
	doc := &model.Document{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: pdfContentType,
		SizeBytes:   int64(len(in.Data)),
		SHA256:      hex.EncodeToString(sum[:]),
	}

	var ext *model.Extraction
	var extErr error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uri, err := s.storage.Put(gctx, storage.ObjectName(doc.ID, filename), pdfContentType, in.Data)
		if err != nil {
			return err
		}
		doc.StorageURI = uri
		return nil
	})
	g.Go(func() error {
		ext, extErr = s.extractor.Extract(gctx, in.Data)
		return nil
	})
	if err := g.Wait(); err != nil {
		s.log.Error("failed to store upload", "doc_id", doc.ID, "error", err)
		return nil, storageError(err, "store the uploaded document")
	}

	applyExtraction(doc, ext, extErr)
	if doc.ExtractionStatus != model.ExtractionOK {
		s.log.Warn("text extraction incomplete", "doc_id", doc.ID, "status", doc.ExtractionStatus, "error", extErr)
	}

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to save document")
	}
	s.log.Info("document uploaded", "doc_id", doc.ID, "filename", filename, "bytes", doc.SizeBytes,
		"pages", len(doc.Pages), "uri", doc.StorageURI)

	if s.ingestOnUpload && s.ingestor != nil {
		// Best effort: summarize and chat retry ingestion on demand.
		if ingested, err := s.ingestor.Ensure(ctx, doc); err != nil {
			s.log.Warn("ingestion on upload failed", "doc_id", doc.ID, "error", err)
			if fresh, gerr := s.store.GetDocument(ctx, doc.ID); gerr == nil && fresh != nil {
				doc = fresh
			}
		} else {
			doc = ingested
		}
	}
	return doc, nil
}

func applyExtraction(doc *model.Document, ext *model.Extraction, err error) {
	switch {
	case err == nil && ext != nil:
		text := ext.Text
		doc.Text = &text
		doc.Pages = ext.Pages
		doc.ExtractionStatus = model.ExtractionOK
	case errors.Is(err, extract.ErrEmpty):
		doc.ExtractionStatus = model.ExtractionEmpty
		doc.ExtractionError = extract.ErrEmpty.Error()
		if ext != nil {
			doc.Pages = ext.Pages
		}
	default:
		doc.ExtractionStatus = model.ExtractionFailed
		if err != nil {
			doc.ExtractionError = err.Error()
		} else {
			doc.ExtractionError = "extraction returned no result"
		}
	}
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(path.Base(strings.ReplaceAll(name, `\`, "/")))
	if name == "" || name == "." || name == "/" {
		return "document.pdf"
	}
	return name
}

func (s *DocumentService) Get(ctx context.Context, docID string) (*model.Document, error) {
	return loadDocument(ctx, s.store, docID)
}

// Status returns the document after one readiness poll of a pending ingestion.
// A failed poll is logged and the stored state returned.
func (s *DocumentService) Status(ctx context.Context, docID string) (*model.Document, error) {
	doc, err := loadDocument(ctx, s.store, docID)
	if err != nil {
		return nil, err
	}
	if s.ingestor != nil {
		if _, err := s.ingestor.Refresh(ctx, doc); err != nil {
			s.log.Warn("status refresh failed", "doc_id", doc.ID, "error", err)
		}
	}
	return doc, nil
}

// Content returns the stored bytes of the original upload.
func (s *DocumentService) Content(ctx context.Context, docID string) (*model.Document, []byte, error) {
	doc, err := loadDocument(ctx, s.store, docID)
	if err != nil {
		return nil, nil, err
	}
	data, err := s.storage.Get(ctx, doc.StorageURI)
	if err != nil {
		s.log.Error("failed to read stored document", "doc_id", doc.ID, "uri", doc.StorageURI, "error", err)
		return nil, nil, storageError(err, fmt.Sprintf("read document %s", doc.ID))
	}
	return doc, data, nil
}
