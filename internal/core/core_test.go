package core

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gwi.com/legal-rag/internal/cache"
	"gwi.com/legal-rag/internal/extract"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/risk"
	"gwi.com/legal-rag/internal/storage"
	"gwi.com/legal-rag/internal/store"
)

const contractText = "MASTER SERVICES AGREEMENT\nThe Supplier shall indemnify the Customer.\n"

var fakePDF = []byte("%PDF-1.7\n1 0 obj << >> endobj\n%%EOF")

type fakeStorage struct {
	mu   sync.Mutex
	puts int
	objs map[string][]byte
	err  error
}

func newFakeStorage() *fakeStorage { return &fakeStorage{objs: map[string][]byte{}} }

func (f *fakeStorage) Put(ctx context.Context, name, contentType string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.puts++
	if f.err != nil {
		return "", f.err
	}
	uri := "gs://staging/" + name
	f.objs[uri] = append([]byte(nil), data...)
	return uri, nil
}

func (f *fakeStorage) Get(ctx context.Context, uri string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objs[uri]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return data, nil
}

func (f *fakeStorage) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.puts
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte) (*model.Extraction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return extract.Assemble([]string{f.text}), nil
}

type fakeCorpus struct {
	mu        sync.Mutex
	ingests   int
	statuses  int
	status    model.IngestionStatus
	ingestErr error
	delay     time.Duration
}

func (f *fakeCorpus) Ingest(ctx context.Context, req rag.IngestRequest) (rag.Handle, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingests++
	if f.ingestErr != nil {
		return rag.Handle{}, f.ingestErr
	}
	return rag.Handle{Corpus: "corpora/" + req.DocumentID, Operation: "operations/" + req.DocumentID}, nil
}

func (f *fakeCorpus) Status(ctx context.Context, h rag.Handle) (model.IngestionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	return f.status, nil
}

func (f *fakeCorpus) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ingests, f.statuses
}

type fakeGenerator struct {
	mu      sync.Mutex
	reply   func(p rag.Prompt) (string, error)
	prompts []rag.Prompt
}

func (f *fakeGenerator) Generate(ctx context.Context, p rag.Prompt) (rag.Answer, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, p)
	f.mu.Unlock()
	text, err := f.reply(p)
	if err != nil {
		return rag.Answer{}, err
	}
	var sources []model.SourceRef
	if p.Corpus != "" {
		sources = []model.SourceRef{{URI: "gs://staging/source.pdf", Text: "retrieved"}}
	}
	return rag.Answer{Text: text, Sources: sources}, nil
}

func (f *fakeGenerator) grounded() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.prompts {
		if p.Corpus != "" {
			n++
		}
	}
	return n
}

type fixture struct {
	store     *store.SQLiteStore
	storage   *fakeStorage
	extractor *fakeExtractor
	corpus    *fakeCorpus
	gen       *fakeGenerator
	ingestor  *Ingestor
	docs      *DocumentService
	analysis  *AnalysisService
	chat      *ChatService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "core.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rs, err := risk.DefaultRuleSet()
	require.NoError(t, err)
	ev, err := risk.NewEvaluator(rs)
	require.NoError(t, err)

	f := &fixture{
		store:     db,
		storage:   newFakeStorage(),
		extractor: &fakeExtractor{text: contractText},
		corpus:    &fakeCorpus{status: model.IngestionReady},
		gen: &fakeGenerator{reply: func(p rag.Prompt) (string, error) {
			return "generated answer", nil
		}},
	}
	svc := rag.NewService(f.gen, nil, time.Second)
	f.ingestor = NewIngestor(db, f.corpus, rag.Poll{Attempts: 2, Interval: 5 * time.Millisecond}, time.Second)
	f.docs = NewDocumentService(db, f.storage, f.extractor, f.ingestor, DocumentServiceConfig{
		IngestOnUpload: true,
		MaxUploadBytes: 1 << 20,
	})
	f.analysis = NewAnalysisService(db, f.ingestor, svc, ev, cache.NewSummaryCache(nil, time.Minute))
	f.chat = NewChatService(db, f.ingestor, svc)
	return f
}

func (f *fixture) upload(t *testing.T) *model.Document {
	t.Helper()
	doc, err := f.docs.Upload(context.Background(), UploadInput{Filename: "msa.pdf", Data: fakePDF})
	require.NoError(t, err)
	return doc
}

var errBoom = errors.New("boom")
