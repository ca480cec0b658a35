package store

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/legal-rag/internal/model"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleDocument() *model.Document {
	text := "The Supplier shall indemnify the Customer.\n"
	return &model.Document{
		Filename:         "msa.pdf",
		ContentType:      "application/pdf",
		SizeBytes:        1234,
		SHA256:           "abc123",
		StorageURI:       "gs://staging/uploads/x_msa.pdf",
		Text:             &text,
		Pages:            []model.Page{{Number: 1, Start: 0, End: len(text) - 1}},
		ExtractionStatus: model.ExtractionOK,
	}
}

func TestDocument_CreateAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, s.CreateDocument(ctx, doc))
	require.NotEmpty(t, doc.ID)

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, doc.Filename, got.Filename)
	assert.Equal(t, doc.StorageURI, got.StorageURI)
	require.NotNil(t, got.Text)
	assert.Equal(t, *doc.Text, *got.Text)
	assert.Equal(t, doc.Pages, got.Pages)
	assert.Equal(t, model.ExtractionOK, got.ExtractionStatus)
	assert.Equal(t, model.IngestionNotStarted, got.IngestionStatus)
	assert.False(t, got.CreatedAt.IsZero())
}

func TestDocument_WithoutText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	doc.Text = nil
	doc.Pages = nil
	doc.ExtractionStatus = model.ExtractionFailed
	doc.ExtractionError = "PDF could not be read"
	require.NoError(t, s.CreateDocument(ctx, doc))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Nil(t, got.Text)
	assert.False(t, got.HasText())
	assert.Nil(t, got.Pages)
	assert.Equal(t, "PDF could not be read", got.ExtractionError)
}

func TestGetDocument_NotFound(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetDocument(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestUpdateIngestion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, s.CreateDocument(ctx, doc))

	require.NoError(t, s.UpdateIngestion(ctx, doc.ID, Ingestion{
		Status:    model.IngestionPending,
		Corpus:    "projects/p/locations/l/ragCorpora/1",
		Operation: "projects/p/locations/l/operations/9",
	}))

	got, err := s.GetDocument(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionPending, got.IngestionStatus)
	assert.Equal(t, "projects/p/locations/l/ragCorpora/1", got.CorpusName)
	assert.Equal(t, "projects/p/locations/l/operations/9", got.ImportOperation)

	err = s.UpdateIngestion(ctx, "missing", Ingestion{Status: model.IngestionReady})
	assert.Error(t, err)

	err = s.UpdateIngestion(ctx, doc.ID, Ingestion{Status: "bogus"})
	assert.Error(t, err)
}

func TestChatTurns_OrderAndLastN(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	doc := sampleDocument()
	require.NoError(t, s.CreateDocument(ctx, doc))

	for i := 0; i < 5; i++ {
		turn := &model.ChatTurn{
			DocumentID: doc.ID,
			SessionID:  "s1",
			Question:   fmt.Sprintf("q%d", i),
			Answer:     fmt.Sprintf("a%d", i),
			Fallback:   i%2 == 0,
		}
		if i == 0 {
			turn.Sources = []model.SourceRef{{URI: "gs://b/x.pdf", Text: "clause"}}
		}
		require.NoError(t, s.CreateChatTurn(ctx, turn))
	}
	require.NoError(t, s.CreateChatTurn(ctx, &model.ChatTurn{DocumentID: doc.ID, SessionID: "s2", Question: "other", Answer: "x"}))

	all, err := s.GetChatTurns(ctx, doc.ID, "s1", 100)
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "q0", all[0].Question)
	assert.Equal(t, []model.SourceRef{{URI: "gs://b/x.pdf", Text: "clause"}}, all[0].Sources)
	assert.True(t, all[0].Fallback)
	assert.Equal(t, "q4", all[4].Question)

	last, err := s.GetLastNChatTurns(ctx, doc.ID, "s1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "q3", last[0].Question)
	assert.Equal(t, "q4", last[1].Question)

	none, err := s.GetChatTurns(ctx, doc.ID, "nope", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
