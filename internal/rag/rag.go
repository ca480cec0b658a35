// Package rag talks to the managed retrieval-augmented generation platform:
// per-document corpora, readiness polling and grounded or direct generation.
package rag

import (
	"context"
	"errors"
	"fmt"

	"gwi.com/legal-rag/internal/model"
)

var (
	ErrEmptyResponse       = errors.New("model returned an empty response")
	ErrUnsupportedSource   = errors.New("source uri cannot be imported into a corpus")
	ErrGroundingNotEnabled = errors.New("generator does not support corpus grounding")
)

// Handle identifies a document's corpus and its pending import operation.
type Handle struct {
	Corpus    string
	Operation string
}

type IngestRequest struct {
	DocumentID string
	SourceURI  string
	// Corpus reuses an existing corpus instead of creating one.
	Corpus string
}

// Corpus manages the external store the platform retrieves from.
type Corpus interface {
	Ingest(ctx context.Context, req IngestRequest) (Handle, error)
	Status(ctx context.Context, h Handle) (model.IngestionStatus, error)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type Prompt struct {
	System  string
	Text    string
	History []Message
	// Corpus, when set, grounds generation on retrieval from that corpus.
	Corpus string
	// JSON asks the model for a JSON response body.
	JSON bool
}

type Answer struct {
	Text    string
	Sources []model.SourceRef
}

type Generator interface {
	Generate(ctx context.Context, p Prompt) (Answer, error)
}

// CorpusDisplayName is the human-readable corpus name for a document.
func CorpusDisplayName(docID string) string {
	short := docID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("legal_doc_%s", short)
}
