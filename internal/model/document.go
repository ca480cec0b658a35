package model

import "time"

// IngestionStatus tracks a document's import into its external RAG corpus.
type IngestionStatus string

const (
	IngestionNotStarted IngestionStatus = "not_started"
	IngestionPending    IngestionStatus = "pending"
	IngestionReady      IngestionStatus = "ready"
	IngestionFailed     IngestionStatus = "failed"
)

// ExtractionStatus records the outcome of text extraction at upload time.
type ExtractionStatus string

const (
	ExtractionOK     ExtractionStatus = "ok"
	ExtractionEmpty  ExtractionStatus = "empty"
	ExtractionFailed ExtractionStatus = "failed"
)

// Page locates one PDF page inside the concatenated document text.
// Start and End are byte offsets; End is exclusive.
type Page struct {
	Number int `json:"page_number"`
	Start  int `json:"start"`
	End    int `json:"end"`
}

// Extraction is the text pulled out of a PDF.
type Extraction struct {
	Text  string
	Pages []Page
}

type Document struct {
	ID               string           `json:"doc_id"`
	Filename         string           `json:"filename"`
	ContentType      string           `json:"content_type"`
	SizeBytes        int64            `json:"size_bytes"`
	SHA256           string           `json:"sha256"`
	StorageURI       string           `json:"storage_uri"`
	Text             *string          `json:"-"` // nil until extraction succeeds
	Pages            []Page           `json:"pages,omitempty"`
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	ExtractionError  string           `json:"extraction_error,omitempty"`
	IngestionStatus  IngestionStatus  `json:"ingestion_status"`
	CorpusName       string           `json:"corpus_name,omitempty"`
	ImportOperation  string           `json:"import_operation,omitempty"`
	IngestionError   string           `json:"ingestion_error,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}

// HasText reports whether extraction produced usable text.
func (d *Document) HasText() bool {
	return d.Text != nil && *d.Text != ""
}

// TextOrEmpty returns the extracted text, or "" if there is none.
func (d *Document) TextOrEmpty() string {
	if d.Text == nil {
		return ""
	}
	return *d.Text
}
