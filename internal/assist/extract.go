package assist

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"
)

// UnsupportedFormatError is returned for documents the extractor cannot read.
type UnsupportedFormatError struct {
	MimeType string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported document format %q: upload a plain text file", e.MimeType)
}

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	ExtractText(data []byte, mimeType string) (string, error)
}

// PlainTextExtractor reads text/plain and text/markdown documents.
type PlainTextExtractor struct {
	// MaxBytes limits accepted documents. Zero means no limit.
	MaxBytes int
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// ExtractText implements TextExtractor.
func (x PlainTextExtractor) ExtractText(data []byte, mimeType string) (string, error) {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return "", &UnsupportedFormatError{MimeType: mimeType}
	}
	switch mediaType {
	case "text/plain", "text/markdown":
	default:
		return "", &UnsupportedFormatError{MimeType: mediaType}
	}

	if x.MaxBytes > 0 && len(data) > x.MaxBytes {
		return "", fmt.Errorf("document is %d bytes, limit is %d", len(data), x.MaxBytes)
	}
	data = bytes.TrimPrefix(data, utf8BOM)
	if !utf8.Valid(data) {
		return "", fmt.Errorf("document is not valid UTF-8 text")
	}

	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	return strings.TrimSpace(text), nil
}
