package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"gwi.com/legal-rag/internal/model"
)

// Session is the ordered conversation held about one document.
type Session struct {
	DocumentID string           `json:"doc_id"`
	SessionID  string           `json:"session_id"`
	Turns      []model.ChatTurn `json:"turns"`
}

// JSON columns hold pages and sources; NULL and "" both decode to nil.

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodePages(col sql.NullString) ([]model.Page, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var pages []model.Page
	if err := json.Unmarshal([]byte(col.String), &pages); err != nil {
		return nil, fmt.Errorf("failed to decode pages: %w", err)
	}
	return pages, nil
}

func decodeSources(col sql.NullString) ([]model.SourceRef, error) {
	if !col.Valid || col.String == "" {
		return nil, nil
	}
	var sources []model.SourceRef
	if err := json.Unmarshal([]byte(col.String), &sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	return sources, nil
}
