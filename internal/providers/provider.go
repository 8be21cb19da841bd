// Package providers is the client for the OCR extraction and verification
// service.
package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
)

// Upload is a document sent to the service as a multipart file.
type Upload interface {
	FileName() string
	ContentType() string
	Bytes() []byte
}

// Service is the OCR collaborator.
type Service interface {
	// Extract reads the mapped fields of one page of a document.
	Extract(ctx context.Context, doc Upload, opts ExtractOptions) (*ExtractResult, error)

	// ExtractAllPages reads the mapped fields of every page of a PDF.
	ExtractAllPages(ctx context.Context, doc Upload, language string) (*PagesResult, error)

	// Detect returns text regions and the confidence overlay of one page.
	Detect(ctx context.Context, doc Upload, page int) (*DetectResult, error)

	// Verify compares submitted values to what the service reads from doc.
	Verify(ctx context.Context, doc Upload, submitted map[string]string) (*VerifyResult, error)

	// Health reports service readiness.
	Health(ctx context.Context) (*HealthStatus, error)
}

// ExtractOptions controls a single-page extraction.
type ExtractOptions struct {
	Language         string
	IncludeDetection bool
	PageNumber       int // 1-indexed; 0 means the first page
}

// MappedField is one extracted field. The service sends either an object
// with value and confidence or a bare scalar.
type MappedField struct {
	Value      *string  `json:"value"`
	Confidence *float64 `json:"confidence"`
}

// UnmarshalJSON accepts {"value":..,"confidence":..}, a string, a number,
// or null.
func (m *MappedField) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = MappedField{}

	switch v := raw.(type) {
	case nil:
		return nil
	case map[string]any:
		if val, ok := v["value"]; ok && val != nil {
			s := scalarString(val)
			m.Value = &s
		}
		if c, ok := v["confidence"].(float64); ok {
			m.Confidence = &c
		}
		return nil
	case string, float64, bool:
		s := scalarString(v)
		m.Value = &s
		return nil
	default:
		return fmt.Errorf("unsupported mapped field value: %s", string(data))
	}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

// Detection is one detected text region.
type Detection struct {
	Text            string          `json:"text"`
	Confidence      float64         `json:"confidence"`
	BBox            json.RawMessage `json:"bbox,omitempty"`
	Polygon         json.RawMessage `json:"polygon,omitempty"`
	ConfidenceLevel string          `json:"confidence_level,omitempty"`
}

// QualityReport is the service's image quality assessment.
type QualityReport struct {
	Score       float64  `json:"score"`
	Suggestions []string `json:"suggestions,omitempty"`
}

// ExtractResult is the response of a single-page extraction.
type ExtractResult struct {
	MappedFields      map[string]MappedField `json:"mapped_fields"`
	RawText           string                 `json:"raw_text,omitempty"`
	Detections        []Detection            `json:"detections,omitempty"`
	TotalDetections   *int                   `json:"total_detections,omitempty"`
	ConfidenceOverlay string                 `json:"confidence_overlay,omitempty"`
	HasDetectionData  bool                   `json:"has_detection_data,omitempty"`
	ProcessingInfo    json.RawMessage        `json:"processing_info,omitempty"`
}

// PageResult is one page of a multipage extraction. Error is set when the
// service failed on that page.
type PageResult struct {
	PageNumber      int                    `json:"page_number"`
	MappedFields    map[string]MappedField `json:"mapped_fields,omitempty"`
	RawText         string                 `json:"raw_text,omitempty"`
	TotalDetections *int                   `json:"total_detections,omitempty"`
	Error           string                 `json:"error,omitempty"`
}

// PagesResult is the response of a multipage extraction, pages in numeric
// order.
type PagesResult struct {
	TotalPages int          `json:"total_pages"`
	Pages      []PageResult `json:"pages"`
}

// DetectResult is the response of a detection-only call.
type DetectResult struct {
	Detections        []Detection `json:"detections"`
	TotalDetections   int         `json:"total_detections"`
	ConfidenceOverlay string      `json:"confidence_overlay,omitempty"`
}

// VerifiedField is the service's comparison of one submitted field.
type VerifiedField struct {
	Submitted            *string  `json:"submitted"`
	Extracted            *string  `json:"extracted"`
	Status               string   `json:"status"`
	SimilarityScore      *float64 `json:"similarity_score,omitempty"`
	Confidence           *float64 `json:"confidence,omitempty"`
	ExtractionConfidence *float64 `json:"extraction_confidence,omitempty"`
}

// VerifyResult is the per-field verification response, keyed as the
// service returned it.
type VerifyResult struct {
	Fields  map[string]VerifiedField `json:"fields"`
	Summary json.RawMessage          `json:"summary,omitempty"`
}

// HealthStatus is the response of the health endpoint.
type HealthStatus struct {
	Status   string   `json:"status"`
	Features []string `json:"features,omitempty"`
}

// Healthy reports whether the service declared itself healthy.
func (h *HealthStatus) Healthy() bool {
	return h != nil && h.Status == "healthy"
}
