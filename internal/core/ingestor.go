package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/logging"
	"gwi.com/legal-rag/internal/metrics"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/store"
)

var errIngestionFailed = errors.New("corpus import failed")

// Ingestor moves documents into their RAG corpus and tracks readiness.
// Concurrent requests for the same document share one ingestion.
type Ingestor struct {
	store   Store
	corpus  rag.Corpus
	poll    rag.Poll
	timeout time.Duration
	flights singleflight.Group
	log     *slog.Logger
}

func NewIngestor(s Store, corpus rag.Corpus, poll rag.Poll, timeout time.Duration) *Ingestor {
	return &Ingestor{
		store:   s,
		corpus:  corpus,
		poll:    poll,
		timeout: timeout,
		log:     logging.New("ingestor"),
	}
}

// Poll returns the readiness bound used by Await.
func (i *Ingestor) Poll() rag.Poll { return i.poll }

// Ensure starts ingestion unless it is already pending or ready and returns the
// document as stored afterwards.
func (i *Ingestor) Ensure(ctx context.Context, doc *model.Document) (*model.Document, error) {
	if !needsIngestion(doc) {
		return doc, nil
	}

	v, err, shared := i.flights.Do(doc.ID, func() (any, error) {
		// The shared work outlives any single caller that disconnects.
		fctx := context.WithoutCancel(ctx)
		if i.timeout > 0 {
			var cancel context.CancelFunc
			fctx, cancel = context.WithTimeout(fctx, i.timeout)
			defer cancel()
		}
		return i.ingest(fctx, doc.ID)
	})
	if shared {
		i.log.Debug("joined in-flight ingestion", "doc_id", doc.ID)
	}
	if err != nil {
		return nil, err
	}
	// Callers that shared the flight each get their own copy.
	out := *v.(*model.Document)
	return &out, nil
}

func needsIngestion(doc *model.Document) bool {
	switch doc.IngestionStatus {
	case model.IngestionReady:
		return false
	case model.IngestionPending:
		return doc.ImportOperation == ""
	default:
		return true
	}
}

func (i *Ingestor) ingest(ctx context.Context, docID string) (*model.Document, error) {
	// Re-read: another flight may have finished between the caller's load and now.
	doc, err := loadDocument(ctx, i.store, docID)
	if err != nil {
		return nil, err
	}
	if !needsIngestion(doc) {
		return doc, nil
	}

	h, err := i.corpus.Ingest(ctx, rag.IngestRequest{
		DocumentID: doc.ID,
		SourceURI:  doc.StorageURI,
		Corpus:     doc.CorpusName,
	})
	if err != nil {
		metrics.Get().UpstreamErrors.WithLabelValues("ingest").Inc()
		i.log.Error("ingestion failed to start", "doc_id", doc.ID, "error", err)
		corpus := h.Corpus
		if corpus == "" {
			corpus = doc.CorpusName
		}
		i.record(ctx, doc, store.Ingestion{Status: model.IngestionFailed, Corpus: corpus, Error: err.Error()})
		if errors.Is(err, rag.ErrUnsupportedSource) {
			return nil, apperr.Upstream(err, "document storage location cannot be ingested")
		}
		return nil, apperr.Upstream(err, "failed to start document ingestion")
	}

	i.log.Info("ingestion started", "doc_id", doc.ID, "corpus", h.Corpus)
	if err := i.record(ctx, doc, store.Ingestion{Status: model.IngestionPending, Corpus: h.Corpus, Operation: h.Operation}); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to save ingestion state")
	}
	return doc, nil
}

// Await polls readiness within the configured bound and persists any change.
func (i *Ingestor) Await(ctx context.Context, doc *model.Document) (model.IngestionStatus, error) {
	return i.check(ctx, doc, i.poll)
}

// Refresh polls readiness once.
func (i *Ingestor) Refresh(ctx context.Context, doc *model.Document) (model.IngestionStatus, error) {
	if doc.IngestionStatus != model.IngestionPending {
		return doc.IngestionStatus, nil
	}
	return i.check(ctx, doc, rag.Poll{Attempts: 1})
}

func (i *Ingestor) check(ctx context.Context, doc *model.Document, p rag.Poll) (model.IngestionStatus, error) {
	if doc.IngestionStatus == model.IngestionReady {
		return model.IngestionReady, nil
	}
	h := rag.Handle{Corpus: doc.CorpusName, Operation: doc.ImportOperation}
	status, err := rag.WaitReady(ctx, i.corpus, h, p)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return model.IngestionPending, apperr.Upstream(err, "readiness check did not complete")
		}
		metrics.Get().UpstreamErrors.WithLabelValues("readiness").Inc()
		return model.IngestionPending, apperr.Upstream(err, "failed to check document readiness")
	}
	if status == doc.IngestionStatus {
		return status, nil
	}

	in := store.Ingestion{Status: status, Corpus: doc.CorpusName, Operation: doc.ImportOperation}
	if status == model.IngestionFailed {
		in.Error = errIngestionFailed.Error()
	}
	if err := i.record(ctx, doc, in); err != nil {
		i.log.Warn("failed to save readiness", "doc_id", doc.ID, "status", status, "error", err)
	}
	return status, nil
}

// record persists ingestion state and mirrors it onto doc.
func (i *Ingestor) record(ctx context.Context, doc *model.Document, in store.Ingestion) error {
	if err := i.store.UpdateIngestion(ctx, doc.ID, in); err != nil {
		i.log.Warn("failed to record ingestion", "doc_id", doc.ID, "error", err)
		return fmt.Errorf("record ingestion: %w", err)
	}
	doc.IngestionStatus = in.Status
	doc.CorpusName = in.Corpus
	doc.ImportOperation = in.Operation
	doc.IngestionError = in.Error
	return nil
}
