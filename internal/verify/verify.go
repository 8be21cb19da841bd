// Package verify submits field values to the service for comparison with
// what it reads from the document, and normalizes the per-field outcome.
package verify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/providers"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

// ErrEmptyInput is returned when there is no document or nothing to submit.
var ErrEmptyInput = errors.New("nothing to verify")

// Status is the outcome of one field.
type Status string

const (
	StatusMatch       Status = "MATCH"
	StatusMismatch    Status = "MISMATCH"
	StatusNotFound    Status = "NOT_FOUND"
	StatusNotVerified Status = "NOT_VERIFIED"
)

// Pass rule thresholds.
const (
	PassMatchRate      = 0.7
	CriticalSimilarity = 0.5
)

// Error is a verification call that failed or returned an unusable payload.
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "verification failed: " + e.Reason
	}
	return fmt.Sprintf("verification failed: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FieldResult is the outcome for one submitted field.
type FieldResult struct {
	Submitted       *string  `json:"submitted" yaml:"submitted"`
	Extracted       *string  `json:"extracted" yaml:"extracted"`
	Status          Status   `json:"status" yaml:"status"`
	SimilarityScore *float64 `json:"similarity_score" yaml:"similarity_score"`
}

// Outcome holds exactly one result per submitted field.
type Outcome struct {
	Fields map[schema.FieldID]FieldResult `json:"fields" yaml:"fields"`
}

// Summary counts outcomes by status.
type Summary struct {
	Total       int     `json:"total" yaml:"total"`
	Matched     int     `json:"matched" yaml:"matched"`
	Mismatched  int     `json:"mismatched" yaml:"mismatched"`
	NotFound    int     `json:"not_found" yaml:"not_found"`
	NotVerified int     `json:"not_verified" yaml:"not_verified"`
	MatchRate   float64 `json:"match_rate" yaml:"match_rate"`
	Passed      bool    `json:"passed" yaml:"passed"`
}

// Summary counts the outcome. NOT_VERIFIED fields do not count toward the
// match rate.
func (o *Outcome) Summary() Summary {
	s := Summary{Total: len(o.Fields)}
	for _, r := range o.Fields {
		switch r.Status {
		case StatusMatch:
			s.Matched++
		case StatusMismatch:
			s.Mismatched++
		case StatusNotFound:
			s.NotFound++
		default:
			s.NotVerified++
		}
	}
	if processed := s.Matched + s.Mismatched + s.NotFound; processed > 0 {
		s.MatchRate = float64(s.Matched) / float64(processed)
	}
	s.Passed = o.passed(s.MatchRate)
	return s
}

// Passed reports whether at least 70% of the compared fields match and no
// mismatch scored below 0.5.
func (o *Outcome) Passed() bool {
	return o.Summary().Passed
}

func (o *Outcome) passed(matchRate float64) bool {
	if matchRate < PassMatchRate {
		return false
	}
	for _, r := range o.Fields {
		if r.Status == StatusMismatch && (r.SimilarityScore == nil || *r.SimilarityScore < CriticalSimilarity) {
			return false
		}
	}
	return true
}

// FieldIDs returns the outcome's field ids in sorted order.
func (o *Outcome) FieldIDs() []schema.FieldID {
	ids := make([]schema.FieldID, 0, len(o.Fields))
	for id := range o.Fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Client verifies submissions through a providers.Service.
type Client struct {
	service providers.Service
	logger  *slog.Logger
}

// NewClient creates a verification client.
func NewClient(service providers.Service, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{service: service, logger: logger}
}

// Verify submits values for comparison against doc. Empty values are not
// sent but still receive a NOT_VERIFIED entry. If no value remains, or doc
// is nil, it returns ErrEmptyInput without calling the service.
func (c *Client) Verify(ctx context.Context, doc providers.Upload, submitted map[schema.FieldID]string) (*Outcome, error) {
	if doc == nil || len(doc.Bytes()) == 0 {
		return nil, fmt.Errorf("%w: no document", ErrEmptyInput)
	}
	all := make(map[string]string, len(submitted))
	payload := make(map[string]string, len(submitted))
	for id, v := range submitted {
		all[string(id)] = v
		if strings.TrimSpace(v) != "" {
			payload[string(id)] = v
		}
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: no field values", ErrEmptyInput)
	}

	c.logger.Debug("submitting verification", "document", doc.FileName(), "fields", len(payload))
	resp, err := c.service.Verify(ctx, doc, payload)
	if err != nil {
		return nil, &Error{Reason: "service call failed", Err: err}
	}
	if resp == nil {
		return nil, &Error{Reason: "empty response"}
	}

	return Normalize(all, resp), nil
}

// Normalize turns a service response into an Outcome with exactly one entry
// per submitted field. Response keys are matched exactly first, then
// case-insensitively; when several response keys fold together the first in
// sorted order wins. PARTIAL_MATCH counts as MISMATCH; unknown statuses and
// fields missing from the response are NOT_VERIFIED with score 0.
func Normalize(submitted map[string]string, resp *providers.VerifyResult) *Outcome {
	keys := make([]string, 0, len(resp.Fields))
	for k := range resp.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	folded := make(map[string]providers.VerifiedField, len(keys))
	for _, k := range keys {
		key := strings.ToLower(strings.TrimSpace(k))
		if _, dup := folded[key]; !dup {
			folded[key] = resp.Fields[k]
		}
	}

	out := &Outcome{Fields: make(map[schema.FieldID]FieldResult, len(submitted))}
	for id, value := range submitted {
		value := value
		entry, ok := resp.Fields[id]
		if !ok {
			entry, ok = folded[strings.ToLower(strings.TrimSpace(id))]
		}
		if !ok {
			zero := 0.0
			out.Fields[schema.FieldID(id)] = FieldResult{
				Submitted:       &value,
				Status:          StatusNotVerified,
				SimilarityScore: &zero,
			}
			continue
		}

		score := entry.SimilarityScore
		if score == nil {
			score = entry.Confidence
		}
		out.Fields[schema.FieldID(id)] = FieldResult{
			Submitted:       &value,
			Extracted:       entry.Extracted,
			Status:          normalizeStatus(entry.Status),
			SimilarityScore: score,
		}
	}
	return out
}

func normalizeStatus(s string) Status {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MATCH":
		return StatusMatch
	case "MISMATCH", "PARTIAL_MATCH":
		return StatusMismatch
	case "NOT_FOUND":
		return StatusNotFound
	default:
		return StatusNotVerified
	}
}
