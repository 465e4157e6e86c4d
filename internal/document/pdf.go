// Package document extracts profile text from uploaded documents.
package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
)

const (
	// MaxUploadBytes bounds the size of an accepted PDF upload.
	MaxUploadBytes = 5 << 20
	// MaxPages bounds how many pages are opened.
	MaxPages = 30
)

var (
	ErrEmpty        = errors.New("document is empty")
	ErrTooLarge     = fmt.Errorf("document exceeds %d bytes", MaxUploadBytes)
	ErrTooManyPages = fmt.Errorf("document has more than %d pages", MaxPages)
	ErrNoText       = errors.New("document contains no extractable text")
)

// Extracted is the text pulled out of a PDF.
type Extracted struct {
	Pages     int
	Text      string
	Truncated bool
}

// ExtractPDF returns the plain text of a PDF, whitespace-normalized, cut to
// at most maxRunes runes (0 means no limit). Pages that fail to decode are
// skipped.
func ExtractPDF(data []byte, maxRunes int) (Extracted, error) {
	if len(data) == 0 {
		return Extracted{}, ErrEmpty
	}
	if len(data) > MaxUploadBytes {
		return Extracted{}, ErrTooLarge
	}
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Extracted{}, fmt.Errorf("opening pdf: %w", err)
	}
	n := r.NumPage()
	if n == 0 {
		return Extracted{}, ErrNoText
	}
	if n > MaxPages {
		return Extracted{}, ErrTooManyPages
	}

	var parts []string
	for i := 1; i <= n; i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if cleaned := normalize(text); cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	if len(parts) == 0 {
		return Extracted{}, ErrNoText
	}

	out := Extracted{Pages: n, Text: strings.Join(parts, "\n")}
	out.Text, out.Truncated = Clip(out.Text, maxRunes)
	return out, nil
}

// Clip cuts s to at most max runes, preferring to end on a word boundary.
func Clip(s string, max int) (string, bool) {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s, false
	}
	runes := []rune(s)[:max]
	cut := len(runes)
	for i := len(runes) - 1; i >= max/2; i-- {
		if unicode.IsSpace(runes[i]) {
			cut = i
			break
		}
	}
	return strings.TrimSpace(string(runes[:cut])), true
}

// normalize drops NULs and control characters and collapses runs of
// blank space while keeping single line breaks.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.FieldsFunc(line, func(r rune) bool {
			return unicode.IsSpace(r) || unicode.IsControl(r)
		}), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}
