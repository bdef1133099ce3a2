package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// LocalExtractor reads PDF and plain text files without a remote service.
type LocalExtractor struct{}

// NewLocalExtractor returns a LocalExtractor.
func NewLocalExtractor() *LocalExtractor {
	return &LocalExtractor{}
}

// Extract dispatches on the file extension.
func (l *LocalExtractor) Extract(ctx context.Context, file File) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	switch file.Ext() {
	case "pdf":
		return pdfText(ctx, file.Data)
	case "txt", "md", "csv":
		if !utf8.Valid(file.Data) {
			return "", fmt.Errorf("%w: %s is not valid UTF-8", ErrExtractionFailed, file.Name)
		}
		return strings.TrimSpace(string(file.Data)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, file.Ext())
	}
}

func pdfText(ctx context.Context, content []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create PDF reader: %v", ErrExtractionFailed, err)
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(make(map[string]*pdf.Font))
		if err != nil {
			return "", fmt.Errorf("%w: page %d: %v", ErrExtractionFailed, i, err)
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(text)
	}
	return strings.TrimSpace(b.String()), nil
}
