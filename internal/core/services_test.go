package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/extract"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/rag"
	"gwi.com/legal-rag/internal/risk"
	"gwi.com/legal-rag/internal/storage"
)

func TestUploadRejectsNonPDFBeforeStorage(t *testing.T) {
	f := newFixture(t)

	_, err := f.docs.Upload(context.Background(), UploadInput{Filename: "notes.txt", Data: []byte("plain text")})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = f.docs.Upload(context.Background(), UploadInput{Filename: "empty.pdf"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	assert.Equal(t, 0, f.storage.putCount())
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	f := newFixture(t)
	f.docs.maxBytes = 16

	_, err := f.docs.Upload(context.Background(), UploadInput{Filename: "big.pdf", Data: fakePDF})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, 0, f.storage.putCount())
}

func TestUploadStoresExtractsAndIngests(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	assert.NotEmpty(t, doc.ID)
	assert.Equal(t, "msa.pdf", doc.Filename)
	assert.True(t, strings.HasPrefix(doc.StorageURI, "gs://staging/uploads/"+doc.ID+"_"))
	assert.Equal(t, model.ExtractionOK, doc.ExtractionStatus)
	require.True(t, doc.HasText())
	assert.Contains(t, doc.TextOrEmpty(), "indemnify")
	assert.Equal(t, model.IngestionPending, doc.IngestionStatus)
	assert.Equal(t, "corpora/"+doc.ID, doc.CorpusName)

	stored, err := f.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.IngestionPending, stored.IngestionStatus)
	assert.Equal(t, "operations/"+doc.ID, stored.ImportOperation)
}

func TestUploadKeepsDocumentWhenExtractionFails(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = extract.ErrUnreadable

	doc := f.upload(t)
	assert.Equal(t, model.ExtractionFailed, doc.ExtractionStatus)
	assert.False(t, doc.HasText())
	assert.Equal(t, 1, f.storage.putCount())
}

func TestUploadFailsWhenStorageFails(t *testing.T) {
	f := newFixture(t)
	f.storage.err = storage.ErrPermissionDenied

	_, err := f.docs.Upload(context.Background(), UploadInput{Filename: "msa.pdf", Data: fakePDF})
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestUploadWithFailedIngestionStillSucceeds(t *testing.T) {
	f := newFixture(t)
	f.corpus.ingestErr = rag.ErrUnsupportedSource

	doc := f.upload(t)
	assert.Equal(t, model.IngestionFailed, doc.IngestionStatus)
	assert.NotEmpty(t, doc.IngestionError)
}

func TestContentReturnsUploadedBytes(t *testing.T) {
	f := newFixture(t)
	local, err := storage.NewLocal(t.TempDir())
	require.NoError(t, err)
	f.docs.storage = local

	doc := f.upload(t)
	got, data, err := f.docs.Content(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
	assert.Equal(t, fakePDF, data)

	_, _, err = f.docs.Content(context.Background(), "missing")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestGetUnknownDocument(t *testing.T) {
	f := newFixture(t)

	_, err := f.docs.Get(context.Background(), "nope")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	_, err = f.docs.Get(context.Background(), "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestStatusRefreshesPendingIngestion(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)
	require.Equal(t, model.IngestionPending, doc.IngestionStatus)

	got, err := f.docs.Status(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionReady, got.IngestionStatus)
}

func TestSummarizePendingReturnsWithinBound(t *testing.T) {
	f := newFixture(t)
	f.corpus.status = model.IngestionPending
	doc := f.upload(t)

	start := time.Now()
	_, err := f.analysis.Summarize(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindPending, apperr.KindOf(err))
	assert.Less(t, time.Since(start), time.Second)

	_, statuses := f.corpus.counts()
	assert.Equal(t, 2, statuses)
	assert.Zero(t, f.gen.grounded())
	assert.GreaterOrEqual(t, f.analysis.RetryAfter(), time.Second)
}

func TestSummarizeReady(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = func(p rag.Prompt) (string, error) { return "The supplier indemnifies the customer.", nil }
	doc := f.upload(t)

	res, err := f.analysis.Summarize(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, res.DocumentID)
	assert.Equal(t, "The supplier indemnifies the customer.", res.Summary)
	assert.Len(t, res.Sources, 1)
	assert.False(t, res.Cached)

	stored, err := f.store.GetDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, model.IngestionReady, stored.IngestionStatus)
}

func TestSummarizeFailedIngestion(t *testing.T) {
	f := newFixture(t)
	f.corpus.status = model.IngestionFailed
	doc := f.upload(t)

	_, err := f.analysis.Summarize(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestSummarizeGenerationError(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = func(p rag.Prompt) (string, error) { return "", errBoom }
	doc := f.upload(t)

	_, err := f.analysis.Summarize(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(err))
}

func TestRisksWithoutTextIsUnprocessable(t *testing.T) {
	f := newFixture(t)
	f.extractor.err = extract.ErrEmpty
	doc := f.upload(t)

	_, err := f.analysis.Risks(context.Background(), doc.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindExtraction, apperr.KindOf(err))
}

func TestRisksKeepsEvaluatorSeverity(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = func(p rag.Prompt) (string, error) {
		if !p.JSON {
			return "unexpected", nil
		}
		return "```json\n" + `[{"id":"indemnification-45","severity":"low","explanation":"Uncapped indemnity.","remediation":["Add a cap"]}]` + "\n```", nil
	}
	doc := f.upload(t)

	report, err := f.analysis.Risks(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, report.Risks, 1)

	item := report.Risks[0]
	assert.Equal(t, "indemnification-45", item.ID)
	assert.Equal(t, "indemnification", item.RuleID)
	assert.Equal(t, risk.SeverityHigh, item.Severity)
	assert.Equal(t, "indemnify", item.MatchedText)
	assert.Equal(t, 1, item.Page)
	assert.Equal(t, "Uncapped indemnity.", item.Explanation)
	assert.Equal(t, []string{"Add a cap"}, item.Remediation)
	assert.Equal(t, ExplanationFromLLM, item.ExplanationSource)
	assert.Equal(t, 30, report.Score)
	assert.Equal(t, risk.LevelLow, report.Level)
	assert.Equal(t, "2024.1", report.RuleSetVersion)
}

func TestRisksFallBackWhenExplanationFails(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = func(p rag.Prompt) (string, error) { return "", errBoom }
	doc := f.upload(t)

	first, err := f.analysis.Risks(context.Background(), doc.ID)
	require.NoError(t, err)
	require.Len(t, first.Risks, 1)
	item := first.Risks[0]
	assert.Equal(t, ExplanationFromFallback, item.ExplanationSource)
	assert.Equal(t, risk.SeverityHigh, item.Severity)
	assert.NotEmpty(t, item.Explanation)
	assert.NotEmpty(t, item.Remediation)

	second, err := f.analysis.Risks(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRisksNoFindings(t *testing.T) {
	f := newFixture(t)
	f.extractor.text = "This letter confirms our meeting on Tuesday."
	doc := f.upload(t)

	report, err := f.analysis.Risks(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.NotNil(t, report.Risks)
	assert.Empty(t, report.Risks)
	assert.Equal(t, 0, report.Score)
	assert.Empty(t, f.gen.prompts)
}

func TestChatRejectsEmptyQuestion(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	_, err := f.chat.Ask(context.Background(), ChatInput{DocumentID: doc.ID, Question: "   "})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestChatGroundedPersistsTurns(t *testing.T) {
	f := newFixture(t)
	f.gen.reply = func(p rag.Prompt) (string, error) { return "Answer to " + p.Text, nil }
	doc := f.upload(t)
	ctx := context.Background()

	first, err := f.chat.Ask(ctx, ChatInput{DocumentID: doc.ID, Question: "Who indemnifies whom?"})
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.False(t, first.Fallback)
	assert.Equal(t, "Answer to Who indemnifies whom?", first.Answer)
	assert.Len(t, first.Sources, 1)

	second, err := f.chat.Ask(ctx, ChatInput{DocumentID: doc.ID, SessionID: first.SessionID, Question: "Is it capped?"})
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, second.SessionID)

	last := f.gen.prompts[len(f.gen.prompts)-1]
	require.Len(t, last.History, 2)
	assert.Equal(t, rag.RoleUser, last.History[0].Role)
	assert.Equal(t, "Who indemnifies whom?", last.History[0].Content)
	assert.Equal(t, rag.RoleModel, last.History[1].Role)

	session, err := f.chat.History(ctx, doc.ID, first.SessionID)
	require.NoError(t, err)
	require.Len(t, session.Turns, 2)
	assert.Equal(t, "Is it capped?", session.Turns[1].Question)
}

func TestChatFallsBackWhilePending(t *testing.T) {
	f := newFixture(t)
	f.corpus.status = model.IngestionPending
	doc := f.upload(t)

	res, err := f.chat.Ask(context.Background(), ChatInput{DocumentID: doc.ID, Question: "What is this?"})
	require.NoError(t, err)
	assert.True(t, res.Fallback)
	assert.Empty(t, res.Sources)
	assert.Zero(t, f.gen.grounded())

	last := f.gen.prompts[len(f.gen.prompts)-1]
	assert.Contains(t, last.Text, "indemnify")
	assert.Contains(t, last.Text, "What is this?")
}

func TestChatPendingWithoutTextIsPending(t *testing.T) {
	f := newFixture(t)
	f.corpus.status = model.IngestionPending
	f.extractor.err = extract.ErrEmpty
	doc := f.upload(t)

	_, err := f.chat.Ask(context.Background(), ChatInput{DocumentID: doc.ID, Question: "What is this?"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPending, apperr.KindOf(err))
}

func TestChatUsesMessages(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	_, err := f.chat.Ask(context.Background(), ChatInput{
		DocumentID: doc.ID,
		Messages: []rag.Message{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello"},
			{Role: "user", Content: "Summarize clause 4"},
		},
	})
	require.NoError(t, err)

	last := f.gen.prompts[len(f.gen.prompts)-1]
	assert.Equal(t, "Summarize clause 4", last.Text)
	require.Len(t, last.History, 2)
	assert.Equal(t, rag.RoleModel, last.History[1].Role)
}

func TestHistoryUnknownSession(t *testing.T) {
	f := newFixture(t)
	doc := f.upload(t)

	_, err := f.chat.History(context.Background(), doc.ID, "no-such-session")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestEnsureSharesOneIngestion(t *testing.T) {
	f := newFixture(t)
	f.docs.ingestOnUpload = false
	f.corpus.delay = 20 * time.Millisecond
	doc := f.upload(t)
	require.Equal(t, model.IngestionNotStarted, doc.IngestionStatus)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for n := range errs {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			cp := *doc
			_, errs[n] = f.ingestor.Ensure(context.Background(), &cp)
		}(n)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	ingests, _ := f.corpus.counts()
	assert.Equal(t, 1, ingests)
}

func TestFailedIngestionIsRetried(t *testing.T) {
	f := newFixture(t)
	f.corpus.ingestErr = errBoom
	doc := f.upload(t)
	require.Equal(t, model.IngestionFailed, doc.IngestionStatus)

	f.corpus.mu.Lock()
	f.corpus.ingestErr = nil
	f.corpus.mu.Unlock()

	res, err := f.analysis.Summarize(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.Summary)
	ingests, _ := f.corpus.counts()
	assert.Equal(t, 2, ingests)
}
