package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/kgrag/backend/pkg/loader"

	"github.com/dslipak/pdf"
)

// MaxFileSize is the largest PDF the loader parses.
const MaxFileSize = 50 * 1024 * 1024

// PDFGraphLoader extracts the text layer of PDF files. Scanned PDFs
// without a text layer yield empty text.
type PDFGraphLoader struct {
	loader loader.GraphFileLoader
	cache  loader.Cache
}

// NewPDFGraphLoader creates a PDF loader reading from the given source loader.
func NewPDFGraphLoader(source loader.GraphFileLoader) *PDFGraphLoader {
	return &PDFGraphLoader{loader: source}
}

func (l *PDFGraphLoader) GetFileText(ctx context.Context, file loader.GraphFile) ([]byte, error) {
	return l.cache.Do(loader.CacheKey(file), func() ([]byte, error) {
		content, err := l.loader.GetFileText(ctx, file)
		if err != nil {
			return nil, err
		}
		return ExtractText(content)
	})
}

// ExtractText returns the plain text of a PDF document.
func ExtractText(content []byte) ([]byte, error) {
	if len(content) > MaxFileSize {
		return nil, fmt.Errorf("PDF exceeds size limit of %d bytes", MaxFileSize)
	}
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF text: %w", err)
	}
	text, err := io.ReadAll(plain)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF text: %w", err)
	}
	return []byte(loader.CleanText(text)), nil
}
