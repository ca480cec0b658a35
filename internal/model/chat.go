package model

import "time"

// SourceRef is a retrieved-context reference returned by the RAG platform.
// Its contents are opaque to this service.
type SourceRef struct {
	URI   string `json:"uri,omitempty"`
	Title string `json:"title,omitempty"`
	Text  string `json:"text,omitempty"`
}

// ChatTurn is one question/answer exchange about a document.
type ChatTurn struct {
	ID         string      `json:"id"`
	DocumentID string      `json:"doc_id"`
	SessionID  string      `json:"session_id"`
	Question   string      `json:"question"`
	Answer     string      `json:"answer"`
	Sources    []SourceRef `json:"sources,omitempty"`
	Fallback   bool        `json:"fallback"`
	CreatedAt  time.Time   `json:"created_at"`
}
