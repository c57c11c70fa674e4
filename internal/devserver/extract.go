package devserver

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

// DefaultMaxFileSize is the largest accepted upload.
const DefaultMaxFileSize = 10 << 20 // 10MB

var allowedExtensions = map[string]bool{
	".pdf": true,
	".txt": true,
	".md":  true,
}

var errEmptyDocument = errors.New("document content is empty")

func fileExtension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func validateExtension(name string) error {
	ext := fileExtension(name)
	if !allowedExtensions[ext] {
		return fmt.Errorf("unsupported file format: %q", ext)
	}
	return nil
}

// extractText returns the plain text of an uploaded file.
func extractText(name string, data []byte) (string, error) {
	var text string
	switch fileExtension(name) {
	case ".pdf":
		r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return "", fmt.Errorf("parsing PDF: %w", err)
		}
		plain, err := r.GetPlainText()
		if err != nil {
			return "", fmt.Errorf("extracting PDF text: %w", err)
		}
		b, err := io.ReadAll(plain)
		if err != nil {
			return "", fmt.Errorf("reading PDF text: %w", err)
		}
		text = string(b)
	default:
		if !utf8.Valid(data) {
			return "", errors.New("text file is not valid UTF-8")
		}
		text = string(data)
	}

	if strings.TrimSpace(text) == "" {
		return "", errEmptyDocument
	}
	return text, nil
}
