// Package ingest loads scanned documents and photos for extraction.
package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
)

var (
	// ErrUnsupportedFormat is returned for files the service cannot read.
	ErrUnsupportedFormat = errors.New("unsupported document format")
	// ErrEmptyFile is returned for zero-length input.
	ErrEmptyFile = errors.New("empty document")
)

// Kind distinguishes single images from paged documents.
type Kind string

const (
	KindImage Kind = "image"
	KindPDF   Kind = "pdf"
)

var contentTypes = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
}

// Document is one uploaded file. It satisfies providers.Upload.
type Document struct {
	ID    uuid.UUID
	Name  string
	Type  string
	Kind  Kind
	Data  []byte
	Pages int // 0 when a PDF's page count could not be read
}

func (d *Document) FileName() string    { return d.Name }
func (d *Document) ContentType() string { return d.Type }
func (d *Document) Bytes() []byte       { return d.Data }

// Load reads a document from disk.
func Load(path string, logger *slog.Logger) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return FromBytes(filepath.Base(path), data, logger)
}

// LoadAll reads documents in numeric-suffix order (scan-2.png before scan-10.png).
func LoadAll(paths []string, logger *slog.Logger) ([]*Document, error) {
	if len(paths) == 0 {
		return nil, ErrEmptyFile
	}
	docs := make([]*Document, 0, len(paths))
	for _, p := range sortByNumber(paths) {
		doc, err := Load(p, logger)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// FromBytes builds a document from in-memory data, such as a camera capture.
// The format is taken from the extension, falling back to content sniffing.
func FromBytes(name string, data []byte, logger *slog.Logger) (*Document, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyFile, name)
	}

	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(name))]
	if !ok {
		contentType = detectContentType(data)
		if contentType == "" {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
		}
	}

	doc := &Document{
		ID:   uuid.New(),
		Name: name,
		Type: contentType,
		Kind: KindImage,
		Data: data,
	}
	if contentType == "application/pdf" {
		doc.Kind = KindPDF
		doc.Pages = pdfPageCount(logger, name, data)
	} else {
		doc.Pages = 1
	}

	logger.Debug("loaded document", "name", name, "kind", doc.Kind, "pages", doc.Pages, "bytes", len(data))
	return doc, nil
}

func detectContentType(data []byte) string {
	ct := http.DetectContentType(data)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	for _, known := range contentTypes {
		if ct == known {
			return ct
		}
	}
	return ""
}

func pdfPageCount(logger *slog.Logger, name string, data []byte) int {
	count, err := api.PageCount(bytes.NewReader(data), nil)
	if err != nil {
		logger.Warn("failed to read PDF page count", "name", name, "error", err)
		return 0
	}
	return count
}

var numberSuffix = regexp.MustCompile(`[-_](\d+)\.[A-Za-z0-9]+$`)

// sortByNumber sorts paths by their numeric suffix.
// e.g., ["id-2.png", "id-1.png", "id-10.png"] -> ["id-1.png", "id-2.png", "id-10.png"]
func sortByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	sort.SliceStable(sorted, func(i, j int) bool {
		mi := numberSuffix.FindStringSubmatch(sorted[i])
		mj := numberSuffix.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			if ni != nj {
				return ni < nj
			}
			return sorted[i] < sorted[j]
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}

		return sorted[i] < sorted[j]
	})

	return sorted
}
