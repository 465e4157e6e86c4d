package document

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a minimal single-font PDF with one page per entry in
// pages, each drawing its string with a Tj operator.
func buildPDF(t *testing.T, pages ...string) []byte {
	t.Helper()
	var objs []string
	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), len(pages)),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	)
	for i, text := range pages {
		content := fmt.Sprintf("BT /F1 12 Tf 72 720 Td (%s) Tj ET", text)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 3 0 R >> >> /Contents %d 0 R >>", 5+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content),
		)
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objs)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

func TestExtractPDF(t *testing.T) {
	data := buildPDF(t, "Staff engineer building compilers", "Looking for a cofounder")

	got, err := ExtractPDF(data, 0)
	if err != nil {
		t.Fatalf("ExtractPDF: %v", err)
	}
	if got.Pages != 2 {
		t.Errorf("Pages = %d, want 2", got.Pages)
	}
	for _, want := range []string{"Staff engineer building compilers", "Looking for a cofounder"} {
		if !strings.Contains(got.Text, want) {
			t.Errorf("text missing %q:\n%s", want, got.Text)
		}
	}
	if got.Truncated {
		t.Error("Truncated = true without a limit")
	}
}

func TestExtractPDF_Errors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrEmpty},
		{"too large", make([]byte, MaxUploadBytes+1), ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ExtractPDF(tt.data, 0); !errors.Is(err, tt.want) {
				t.Errorf("ExtractPDF() = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := ExtractPDF([]byte("plain text, not a pdf"), 0); err == nil {
		t.Error("ExtractPDF accepted a non-PDF")
	}
}

func TestClip(t *testing.T) {
	tests := []struct {
		in        string
		max       int
		want      string
		truncated bool
	}{
		{"short", 10, "short", false},
		{"anything", 0, "anything", false},
		{"alpha beta gamma", 12, "alpha beta", true},
		{"abcdefghij", 4, "abcd", true},
		{"héllo wörld", 9, "héllo", true},
		{"unbrokenword tail", 6, "unbrok", true},
	}
	for _, tt := range tests {
		got, truncated := Clip(tt.in, tt.max)
		if got != tt.want || truncated != tt.truncated {
			t.Errorf("Clip(%q, %d) = %q, %v; want %q, %v", tt.in, tt.max, got, truncated, tt.want, tt.truncated)
		}
	}
}

func TestNormalize(t *testing.T) {
	in := "  Hello\x00   world \n\n\t\n  second\tline  "
	if got, want := normalize(in), "Hello world\nsecond line"; got != want {
		t.Errorf("normalize() = %q, want %q", got, want)
	}
}
