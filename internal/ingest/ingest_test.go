package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// minimalPDF builds a blank PDF with the given number of pages and a
// correct cross-reference table.
func minimalPDF(pages int) []byte {
	var objs []string
	kids := ""
	for i := 0; i < pages; i++ {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	objs = append(objs, "<< /Type /Catalog /Pages 2 0 R >>")
	objs = append(objs, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids, pages))
	for i := 0; i < pages; i++ {
		objs = append(objs, "<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << >> >>")
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs))
	for i, o := range objs {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(objs)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return buf.Bytes()
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestFromBytes(t *testing.T) {
	t.Run("image by extension", func(t *testing.T) {
		doc, err := FromBytes("card.JPG", []byte("jpeg bytes"), nil)
		if err != nil {
			t.Fatalf("FromBytes() error = %v", err)
		}
		if doc.Kind != KindImage || doc.Type != "image/jpeg" || doc.Pages != 1 {
			t.Errorf("got kind=%s type=%s pages=%d", doc.Kind, doc.Type, doc.Pages)
		}
		if doc.FileName() != "card.JPG" || !bytes.Equal(doc.Bytes(), []byte("jpeg bytes")) {
			t.Error("upload accessors do not reflect the document")
		}
	})

	t.Run("camera capture sniffed", func(t *testing.T) {
		doc, err := FromBytes("capture", pngHeader, nil)
		if err != nil {
			t.Fatalf("FromBytes() error = %v", err)
		}
		if doc.ContentType() != "image/png" {
			t.Errorf("ContentType() = %q, want image/png", doc.ContentType())
		}
	})

	t.Run("pdf page count", func(t *testing.T) {
		doc, err := FromBytes("passport.pdf", minimalPDF(3), nil)
		if err != nil {
			t.Fatalf("FromBytes() error = %v", err)
		}
		if doc.Kind != KindPDF {
			t.Errorf("Kind = %s, want pdf", doc.Kind)
		}
		if doc.Pages != 3 {
			t.Errorf("Pages = %d, want 3", doc.Pages)
		}
	})

	t.Run("unreadable pdf still loads", func(t *testing.T) {
		doc, err := FromBytes("broken.pdf", []byte("%PDF-1.4 not really"), nil)
		if err != nil {
			t.Fatalf("FromBytes() error = %v", err)
		}
		if doc.Kind != KindPDF || doc.Pages != 0 {
			t.Errorf("got kind=%s pages=%d", doc.Kind, doc.Pages)
		}
	})

	t.Run("empty", func(t *testing.T) {
		if _, err := FromBytes("a.png", nil, nil); !errors.Is(err, ErrEmptyFile) {
			t.Errorf("error = %v, want ErrEmptyFile", err)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := FromBytes("notes.txt", []byte("hello"), nil); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("error = %v, want ErrUnsupportedFormat", err)
		}
	})

	t.Run("unique ids", func(t *testing.T) {
		a, _ := FromBytes("a.png", pngHeader, nil)
		b, _ := FromBytes("a.png", pngHeader, nil)
		if a.ID == b.ID {
			t.Error("documents should get distinct ids")
		}
	})
}

func TestLoadAll(t *testing.T) {
	dir := t.TempDir()
	names := []string{"id-10.png", "id-2.png", "id-1.png", "id.png"}
	for _, n := range names {
		if err := os.WriteFile(filepath.Join(dir, n), pngHeader, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	var paths []string
	for _, n := range names {
		paths = append(paths, filepath.Join(dir, n))
	}
	docs, err := LoadAll(paths, nil)
	if err != nil {
		t.Fatalf("LoadAll() error = %v", err)
	}

	want := []string{"id.png", "id-1.png", "id-2.png", "id-10.png"}
	for i, d := range docs {
		if d.Name != want[i] {
			t.Errorf("index %d: got %q, want %q", i, d.Name, want[i])
		}
	}

	if _, err := LoadAll(nil, nil); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("LoadAll(nil) error = %v", err)
	}
	if _, err := LoadAll([]string{filepath.Join(dir, "missing.png")}, nil); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestSortByNumber(t *testing.T) {
	tests := []struct {
		name     string
		input    []string
		expected []string
	}{
		{
			name:     "already sorted",
			input:    []string{"scan-1.png", "scan-2.png", "scan-3.png"},
			expected: []string{"scan-1.png", "scan-2.png", "scan-3.png"},
		},
		{
			name:     "reverse order",
			input:    []string{"scan-3.png", "scan-2.png", "scan-1.png"},
			expected: []string{"scan-1.png", "scan-2.png", "scan-3.png"},
		},
		{
			name:     "mixed with double digits",
			input:    []string{"scan_10.jpg", "scan_2.jpg", "scan_1.jpg"},
			expected: []string{"scan_1.jpg", "scan_2.jpg", "scan_10.jpg"},
		},
		{
			name:     "single file without number",
			input:    []string{"passport.pdf"},
			expected: []string{"passport.pdf"},
		},
		{
			name:     "numbered and unnumbered",
			input:    []string{"id-2.png", "id.png", "id-1.png"},
			expected: []string{"id.png", "id-1.png", "id-2.png"},
		},
		{
			name:     "same number different prefix",
			input:    []string{"front-1.png", "back-1.png"},
			expected: []string{"back-1.png", "front-1.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := sortByNumber(tt.input)
			if len(result) != len(tt.expected) {
				t.Fatalf("length mismatch: got %d, want %d", len(result), len(tt.expected))
			}
			for i := range result {
				if result[i] != tt.expected[i] {
					t.Errorf("index %d: got %q, want %q", i, result[i], tt.expected[i])
				}
			}
		})
	}
}
