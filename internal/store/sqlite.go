package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"gwi.com/legal-rag/internal/model"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows one writer at a time.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        filename TEXT NOT NULL,
        content_type TEXT NOT NULL,
        size_bytes INTEGER NOT NULL,
        sha256 TEXT NOT NULL,
        storage_uri TEXT NOT NULL,
        text TEXT, -- NULL until extraction succeeds
        pages_json TEXT,
        extraction_status TEXT NOT NULL,
        extraction_error TEXT NOT NULL DEFAULT '',
        ingestion_status TEXT NOT NULL DEFAULT 'not_started'
            CHECK (ingestion_status IN ('not_started', 'pending', 'ready', 'failed')),
        corpus_name TEXT NOT NULL DEFAULT '',
        import_operation TEXT NOT NULL DEFAULT '',
        ingestion_error TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS chat_turns (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        document_id TEXT NOT NULL,
        session_id TEXT NOT NULL,
        question TEXT NOT NULL,
        answer TEXT NOT NULL,
        sources_json TEXT,
        fallback BOOLEAN NOT NULL DEFAULT FALSE,
        created_at DATETIME NOT NULL,
        FOREIGN KEY (document_id) REFERENCES documents (id)
    );

    CREATE INDEX IF NOT EXISTS idx_chat_turns_session ON chat_turns (document_id, session_id, seq);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Document methods
func (s *SQLiteStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now
	if doc.IngestionStatus == "" {
		doc.IngestionStatus = model.IngestionNotStarted
	}

	var pages sql.NullString
	if doc.Pages != nil {
		encoded, err := encodeJSON(doc.Pages)
		if err != nil {
			return fmt.Errorf("failed to encode pages: %w", err)
		}
		pages = sql.NullString{String: encoded, Valid: true}
	}
	var text sql.NullString
	if doc.Text != nil {
		text = sql.NullString{String: *doc.Text, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO documents (
        id, filename, content_type, size_bytes, sha256, storage_uri, text, pages_json,
        extraction_status, extraction_error, ingestion_status, corpus_name, import_operation,
        ingestion_error, created_at, updated_at
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.ID, doc.Filename, doc.ContentType, doc.SizeBytes, doc.SHA256, doc.StorageURI, text, pages,
		doc.ExtractionStatus, doc.ExtractionError, doc.IngestionStatus, doc.CorpusName, doc.ImportOperation,
		doc.IngestionError, doc.CreatedAt, doc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}
	return nil
}

// GetDocument returns nil, nil when the document does not exist.
func (s *SQLiteStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	var (
		doc   model.Document
		text  sql.NullString
		pages sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `SELECT
        id, filename, content_type, size_bytes, sha256, storage_uri, text, pages_json,
        extraction_status, extraction_error, ingestion_status, corpus_name, import_operation,
        ingestion_error, created_at, updated_at
        FROM documents WHERE id = ?`, id).Scan(
		&doc.ID, &doc.Filename, &doc.ContentType, &doc.SizeBytes, &doc.SHA256, &doc.StorageURI, &text, &pages,
		&doc.ExtractionStatus, &doc.ExtractionError, &doc.IngestionStatus, &doc.CorpusName, &doc.ImportOperation,
		&doc.IngestionError, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	if text.Valid {
		doc.Text = &text.String
	}
	if doc.Pages, err = decodePages(pages); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Ingestion is the corpus-related state of a document.
type Ingestion struct {
	Status    model.IngestionStatus
	Corpus    string
	Operation string
	Error     string
}

func (s *SQLiteStore) UpdateIngestion(ctx context.Context, docID string, in Ingestion) error {
	res, err := s.db.ExecContext(ctx, `UPDATE documents
        SET ingestion_status = ?, corpus_name = ?, import_operation = ?, ingestion_error = ?, updated_at = ?
        WHERE id = ?`,
		in.Status, in.Corpus, in.Operation, in.Error, time.Now().UTC(), docID)
	if err != nil {
		return fmt.Errorf("failed to update ingestion: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("document %s not found, ingestion not updated", docID)
	}
	return nil
}

// Chat turn methods
func (s *SQLiteStore) CreateChatTurn(ctx context.Context, turn *model.ChatTurn) error {
	turn.ID = uuid.NewString()
	turn.CreatedAt = time.Now().UTC()

	var sources sql.NullString
	if len(turn.Sources) > 0 {
		encoded, err := encodeJSON(turn.Sources)
		if err != nil {
			return fmt.Errorf("failed to encode sources: %w", err)
		}
		sources = sql.NullString{String: encoded, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `INSERT INTO chat_turns
        (id, document_id, session_id, question, answer, sources_json, fallback, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		turn.ID, turn.DocumentID, turn.SessionID, turn.Question, turn.Answer, sources, turn.Fallback, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert chat turn: %w", err)
	}
	return nil
}

// GetChatTurns returns up to limit turns of a session, oldest first.
func (s *SQLiteStore) GetChatTurns(ctx context.Context, docID, sessionID string, limit int) ([]model.ChatTurn, error) {
	return s.queryTurns(ctx, `SELECT id, document_id, session_id, question, answer, sources_json, fallback, created_at
        FROM chat_turns WHERE document_id = ? AND session_id = ? ORDER BY seq ASC LIMIT ?`,
		docID, sessionID, limit)
}

// GetLastNChatTurns returns the most recent n turns of a session, oldest first.
func (s *SQLiteStore) GetLastNChatTurns(ctx context.Context, docID, sessionID string, n int) ([]model.ChatTurn, error) {
	turns, err := s.queryTurns(ctx, `SELECT id, document_id, session_id, question, answer, sources_json, fallback, created_at
        FROM chat_turns WHERE document_id = ? AND session_id = ? ORDER BY seq DESC LIMIT ?`,
		docID, sessionID, n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func (s *SQLiteStore) queryTurns(ctx context.Context, query string, args ...any) ([]model.ChatTurn, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat turns: %w", err)
	}
	defer rows.Close()

	turns := make([]model.ChatTurn, 0)
	for rows.Next() {
		var (
			turn    model.ChatTurn
			sources sql.NullString
		)
		if err := rows.Scan(&turn.ID, &turn.DocumentID, &turn.SessionID, &turn.Question, &turn.Answer,
			&sources, &turn.Fallback, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat turn row: %w", err)
		}
		if turn.Sources, err = decodeSources(sources); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate chat turns: %w", err)
	}
	return turns, nil
}
