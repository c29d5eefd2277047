package extract

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	appErr "github.com/xxxsen/ragdesk/internal/pkg/errors"
)

const (
	TypePDF      = "pdf"
	TypeDOCX     = "docx"
	TypeText     = "txt"
	TypeCSV      = "csv"
	TypeMarkdown = "md"
)

// Extractor turns the raw bytes of one declared type into plain text.
type Extractor func(data []byte) (string, error)

var registry = map[string]Extractor{}

func Register(fileType string, fn Extractor) {
	key := NormalizeType(fileType)
	if key == "" || fn == nil {
		return
	}
	registry[key] = fn
}

// NormalizeType lower-cases a declared type and strips a leading dot so
// ".PDF" and "pdf" resolve the same extractor.
func NormalizeType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}

// TypeFromFilename returns the declared type implied by the file extension.
func TypeFromFilename(name string) string {
	ext := NormalizeType(filepath.Ext(name))
	switch ext {
	case "text":
		return TypeText
	case "markdown":
		return TypeMarkdown
	}
	return ext
}

func Supported(fileType string) bool {
	_, ok := registry[NormalizeType(fileType)]
	return ok
}

func SupportedTypes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Extract fails with ErrUnsupportedType for an unknown type and with
// ErrExtraction when the input cannot be parsed.
func Extract(fileType string, data []byte) (string, error) {
	fn, ok := registry[NormalizeType(fileType)]
	if !ok {
		return "", fmt.Errorf("%w: %q", appErr.ErrUnsupportedType, fileType)
	}
	text, err := fn(data)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", appErr.ErrExtraction, NormalizeType(fileType), err)
	}
	return text, nil
}

func init() {
	Register(TypePDF, extractPDF)
	Register(TypeDOCX, extractDOCX)
	Register(TypeText, extractText)
	Register(TypeCSV, extractCSV)
	Register(TypeMarkdown, extractMarkdown)
}
