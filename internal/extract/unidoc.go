package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/extractor"
	pdfmodel "github.com/unidoc/unipdf/v3/model"

	"gwi.com/legal-rag/internal/model"
)

// Unidoc extracts text page by page with unipdf. It needs a metered license key.
type Unidoc struct{}

func NewUnidoc(licenseKey string) (*Unidoc, error) {
	if licenseKey == "" {
		return nil, ErrLicense
	}
	if err := license.SetMeteredKey(licenseKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLicense, err)
	}
	return &Unidoc{}, nil
}

func (u *Unidoc) Extract(ctx context.Context, data []byte) (ext *model.Extraction, err error) {
	if !IsPDF(data) {
		return nil, ErrNotPDF
	}
	defer func() {
		if r := recover(); r != nil {
			ext, err = nil, fmt.Errorf("%w: parser panic: %v", ErrUnreadable, r)
		}
	}()

	reader, err := pdfmodel.NewPdfReader(bytes.NewReader(pdfStart(data)))
	if err != nil {
		return nil, unidocError(err)
	}
	encrypted, err := reader.IsEncrypted()
	if err != nil {
		return nil, unidocError(err)
	}
	if encrypted {
		// Many PDFs are encrypted with an empty user password.
		ok, err := reader.Decrypt([]byte(""))
		if err != nil || !ok {
			return nil, ErrEncrypted
		}
	}

	numPages, err := reader.GetNumPages()
	if err != nil {
		return nil, unidocError(err)
	}

	texts := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := reader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, unidocError(err))
		}
		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, unidocError(err))
		}
		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, unidocError(err))
		}
		texts = append(texts, text)
	}
	return finish(texts)
}

// unidocError separates license refusals from unreadable documents; unipdf reports
// both as plain errors.
func unidocError(err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "license") {
		return fmt.Errorf("%w: %v", ErrLicense, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreadable, err)
}
