package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gwi.com/legal-rag/internal/model"
)

func TestIsPDF(t *testing.T) {
	cases := map[string]struct {
		data []byte
		want bool
	}{
		"header":          {[]byte("%PDF-1.7\n%âãÏÓ"), true},
		"leading newline": {[]byte("\r\n%PDF-1.4"), true},
		"bom":             {[]byte("\xef\xbb\xbf%PDF-1.4"), true},
		"text":            {[]byte("hello world"), false},
		"png":             {[]byte("\x89PNG\r\n\x1a\n"), false},
		"empty":           {nil, false},
		"truncated":       {[]byte("%PD"), false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsPDF(tc.data))
		})
	}
}

func TestExtract_RejectsNonPDF(t *testing.T) {
	_, err := NewPlain().Extract(context.Background(), []byte("plain text pretending to be a contract"))
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestExtract_CorruptPDFIsUnreadable(t *testing.T) {
	_, err := NewPlain().Extract(context.Background(), []byte("%PDF-1.7\nthis is not really a pdf body"))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestAssemble_PageOffsets(t *testing.T) {
	ext := Assemble([]string{"first page\r\nline two", "", "third"})

	assert.Equal(t, "first page\nline two\n\nthird\n", ext.Text)
	assert.Equal(t, []model.Page{
		{Number: 1, Start: 0, End: 19},
		{Number: 2, Start: 20, End: 20},
		{Number: 3, Start: 21, End: 26},
	}, ext.Pages)

	for _, p := range ext.Pages {
		assert.NotContains(t, ext.Text[p.Start:p.End], "\n\n")
	}
	assert.Equal(t, "third", ext.Text[ext.Pages[2].Start:ext.Pages[2].End])
}

// buildPDF writes a minimal PDF with one Helvetica text line per page. An encrypted
// document carries a Standard security handler that no password opens.
func buildPDF(pages []string, encrypted bool) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj("<< /Type /Catalog /Pages 2 0 R >>")
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>")
	for i, text := range pages {
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] "+
			"/Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i))
		content := ""
		if text != "" {
			esc := strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(text)
			content = fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", esc)
		}
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	trailerExtra := ""
	if encrypted {
		obj(fmt.Sprintf("<< /Filter /Standard /V 1 /R 2 /O <%s> /U <%s> /P -4 >>",
			strings.Repeat("00", 32), strings.Repeat("ab", 32)))
		id := "00112233445566778899aabbccddeeff"
		trailerExtra = fmt.Sprintf(" /Encrypt %d 0 R /ID [<%s> <%s>]", len(offsets), id, id)
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R%s >>\nstartxref\n%d\n%%%%EOF\n",
		len(offsets)+1, trailerExtra, xref)
	return buf.Bytes()
}

func TestPlain_ExtractsPagesWithOffsets(t *testing.T) {
	data := buildPDF([]string{"The Supplier shall indemnify the Customer.", "Governing law: England."}, false)

	ext, err := NewPlain().Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, ext.Pages, 2)

	first := ext.Text[ext.Pages[0].Start:ext.Pages[0].End]
	second := ext.Text[ext.Pages[1].Start:ext.Pages[1].End]
	assert.Contains(t, first, "indemnify")
	assert.NotContains(t, first, "Governing")
	assert.Contains(t, second, "Governing law")
	assert.Equal(t, 2, ext.Pages[1].Number)
}

func TestPlain_AllowsLeadingBytesBeforeHeader(t *testing.T) {
	data := append([]byte("\xef\xbb\xbf"), buildPDF([]string{"Termination for convenience."}, false)...)

	ext, err := NewPlain().Extract(context.Background(), data)
	require.NoError(t, err)
	assert.Contains(t, ext.Text, "Termination")
}

func TestPlain_NoTextIsEmpty(t *testing.T) {
	ext, err := NewPlain().Extract(context.Background(), buildPDF([]string{""}, false))
	assert.ErrorIs(t, err, ErrEmpty)
	require.NotNil(t, ext)
	assert.Len(t, ext.Pages, 1)
}

func TestPlain_EncryptedIsUnreadable(t *testing.T) {
	_, err := NewPlain().Extract(context.Background(), buildPDF([]string{"secret terms"}, true))
	assert.ErrorIs(t, err, ErrEncrypted)
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.NotErrorIs(t, err, ErrEmpty)
}

func TestPlain_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewPlain().Extract(ctx, buildPDF([]string{"text"}, false))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_SelectsBackend(t *testing.T) {
	ex, err := New("")
	require.NoError(t, err)
	assert.IsType(t, &Plain{}, ex)

	_, err = NewUnidoc("")
	assert.ErrorIs(t, err, ErrLicense)
}

func TestUnidocError_SeparatesLicenseFailures(t *testing.T) {
	assert.ErrorIs(t, unidocError(errors.New("unipdf license code required")), ErrLicense)

	err := unidocError(errors.New("invalid xref table"))
	assert.ErrorIs(t, err, ErrUnreadable)
	assert.NotErrorIs(t, err, ErrLicense)
}

func TestUnidoc_ExtractsText(t *testing.T) {
	key := os.Getenv("UNIDOC_LICENSE_KEY")
	if key == "" {
		t.Skip("UNIDOC_LICENSE_KEY not set")
	}
	u, err := NewUnidoc(key)
	require.NoError(t, err)

	ext, err := u.Extract(context.Background(), buildPDF([]string{"The Supplier shall indemnify the Customer."}, false))
	require.NoError(t, err)
	assert.Contains(t, ext.Text, "indemnify")

	_, err = u.Extract(context.Background(), buildPDF([]string{""}, false))
	assert.ErrorIs(t, err, ErrEmpty)
}
