package assist

import (
	"errors"
	"testing"
)

func TestPlainTextExtractor(t *testing.T) {
	x := PlainTextExtractor{}

	text, err := x.ExtractText([]byte("\xEF\xBB\xBFJane Doe\r\nGo engineer\r\n"), "text/plain; charset=utf-8")
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if text != "Jane Doe\nGo engineer" {
		t.Errorf("Unexpected text: %q", text)
	}

	if _, err := x.ExtractText([]byte("# Resume"), "text/markdown"); err != nil {
		t.Errorf("Expected markdown to be accepted, got %v", err)
	}
}

func TestPlainTextExtractor_Unsupported(t *testing.T) {
	x := PlainTextExtractor{}

	for _, mt := range []string{"application/pdf", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", ""} {
		_, err := x.ExtractText([]byte("%PDF-1.7"), mt)
		var unsupported *UnsupportedFormatError
		if !errors.As(err, &unsupported) {
			t.Errorf("Expected UnsupportedFormatError for %q, got %v", mt, err)
		}
	}
}

func TestPlainTextExtractor_Limits(t *testing.T) {
	x := PlainTextExtractor{MaxBytes: 4}
	if _, err := x.ExtractText([]byte("too long"), "text/plain"); err == nil {
		t.Error("Expected size limit error")
	}
	if _, err := (PlainTextExtractor{}).ExtractText([]byte{0xff, 0xfe}, "text/plain"); err == nil {
		t.Error("Expected invalid UTF-8 error")
	}
}
