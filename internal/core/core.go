// Package core holds the application services behind the HTTP API.
package core

import (
	"context"
	"errors"

	"gwi.com/legal-rag/internal/apperr"
	"gwi.com/legal-rag/internal/model"
	"gwi.com/legal-rag/internal/storage"
	"gwi.com/legal-rag/internal/store"
)

// Store is the persistence the services need; *store.SQLiteStore implements it.
type Store interface {
	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	UpdateIngestion(ctx context.Context, docID string, in store.Ingestion) error
	CreateChatTurn(ctx context.Context, turn *model.ChatTurn) error
	GetChatTurns(ctx context.Context, docID, sessionID string, limit int) ([]model.ChatTurn, error)
	GetLastNChatTurns(ctx context.Context, docID, sessionID string, n int) ([]model.ChatTurn, error)
}

func loadDocument(ctx context.Context, s Store, docID string) (*model.Document, error) {
	if docID == "" {
		return nil, apperr.Validation("doc_id is required")
	}
	doc, err := s.GetDocument(ctx, docID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "failed to load document")
	}
	if doc == nil {
		return nil, apperr.NotFound("document %s not found", docID)
	}
	return doc, nil
}

// storageError maps adapter errors to client-facing kinds.
func storageError(err error, action string) error {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return apperr.Wrap(apperr.KindNotFound, err, "stored file not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Upstream(err, "storage request did not complete")
	default:
		return apperr.Upstream(err, "failed to %s", action)
	}
}
