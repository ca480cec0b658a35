package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ledongthuc/pdf"

	"gwi.com/legal-rag/internal/model"
)

// Plain extracts text with the license-free ledongthuc/pdf reader. Layout is
// approximate, which is enough for clause matching and prompt excerpts.
type Plain struct{}

func NewPlain() *Plain { return &Plain{} }

func (p *Plain) Extract(ctx context.Context, data []byte) (ext *model.Extraction, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("%w: parser panic: %v", ErrUnreadable, r)
		}
	}()

	data = pdfStart(data)
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return nil, ErrEncrypted
		}
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	numPages := reader.NumPage()
	texts := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			texts = append(texts, "")
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", ErrUnreadable, i, err)
		}
		texts = append(texts, text)
	}
	return finish(texts)
}
