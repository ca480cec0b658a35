// Package extract pulls plain text out of uploaded PDF documents.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"gwi.com/legal-rag/internal/model"
)

var (
	ErrNotPDF     = errors.New("not a PDF document")
	ErrUnreadable = errors.New("PDF could not be read")
	ErrEmpty      = errors.New("PDF contains no extractable text")

	// ErrEncrypted is an ErrUnreadable for documents that need a password.
	ErrEncrypted = fmt.Errorf("%w: document is password protected", ErrUnreadable)

	// ErrLicense means the PDF library refused to run; it is a deployment problem,
	// not a property of the document.
	ErrLicense = errors.New("PDF extraction is not licensed; set UNIDOC_LICENSE_KEY or leave it empty to use the built-in reader")
)

var pdfMagic = []byte("%PDF-")

// IsPDF reports whether data starts with the PDF header, allowing leading whitespace
// and a UTF-8 byte order mark.
func IsPDF(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimPrefix(head, []byte("\xef\xbb\xbf"))
	head = bytes.TrimLeft(head, " \t\r\n\x00")
	return bytes.HasPrefix(head, pdfMagic)
}

type Extractor interface {
	Extract(ctx context.Context, data []byte) (*model.Extraction, error)
}

// New returns the extractor for this deployment: unipdf when a metered license key
// is configured, otherwise the license-free reader.
func New(licenseKey string) (Extractor, error) {
	if licenseKey == "" {
		return NewPlain(), nil
	}
	u, err := NewUnidoc(licenseKey)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// pdfStart drops anything before the PDF header that IsPDF tolerated.
func pdfStart(data []byte) []byte {
	if i := bytes.Index(data, pdfMagic); i > 0 {
		return data[i:]
	}
	return data
}

// finish assembles page texts and reports ErrEmpty when none carry text.
func finish(texts []string) (*model.Extraction, error) {
	ext := Assemble(texts)
	if strings.TrimSpace(ext.Text) == "" {
		return ext, ErrEmpty
	}
	return ext, nil
}

// Assemble joins page texts with a trailing newline per page and records each
// page's byte range in the result.
func Assemble(pages []string) *model.Extraction {
	var sb strings.Builder
	out := &model.Extraction{Pages: make([]model.Page, 0, len(pages))}
	for i, text := range pages {
		text = strings.ReplaceAll(text, "\r\n", "\n")
		start := sb.Len()
		sb.WriteString(text)
		out.Pages = append(out.Pages, model.Page{Number: i + 1, Start: start, End: sb.Len()})
		sb.WriteByte('\n')
	}
	out.Text = sb.String()
	return out
}
