// Package results stores per-unit extraction results.
//
// A unit is one independently processed input: one image, one page of a
// multipage document, or one file of a batch. Units are immutable once
// created; a retry produces a new unit that replaces the old one by key.
package results

import (
	"encoding/json"
	"sort"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

// FieldReading is one extracted field value with its confidence.
// Either part may be absent.
type FieldReading struct {
	Value      *string  `json:"value"`
	Confidence *float64 `json:"confidence"`
}

func (r FieldReading) clone() FieldReading {
	var c FieldReading
	if r.Value != nil {
		v := *r.Value
		c.Value = &v
	}
	if r.Confidence != nil {
		f := *r.Confidence
		c.Confidence = &f
	}
	return c
}

// Reading builds a FieldReading from a value and a confidence.
func Reading(value string, confidence float64) FieldReading {
	return FieldReading{Value: &value, Confidence: &confidence}
}

// Params describes a unit to create.
type Params struct {
	Key            string
	DocumentID     string
	TemplateID     string
	Fields         map[schema.FieldID]FieldReading
	Failed         bool
	FailureReason  string
	Overlay        string
	DetectionCount *int
	RawText        string
}

// UnitResult is the extraction output of one unit.
type UnitResult struct {
	key            string
	documentID     string
	templateID     string
	fields         map[schema.FieldID]FieldReading
	failed         bool
	failureReason  string
	overlay        string
	detectionCount *int
	rawText        string
}

// NewUnit creates a unit from p. The field map is copied.
func NewUnit(p Params) *UnitResult {
	u := &UnitResult{
		key:           p.Key,
		documentID:    p.DocumentID,
		templateID:    p.TemplateID,
		fields:        make(map[schema.FieldID]FieldReading, len(p.Fields)),
		failed:        p.Failed,
		failureReason: p.FailureReason,
		overlay:       p.Overlay,
		rawText:       p.RawText,
	}
	for id, r := range p.Fields {
		u.fields[id] = r.clone()
	}
	if p.DetectionCount != nil {
		n := *p.DetectionCount
		u.detectionCount = &n
	}
	return u
}

// Failure creates a failed unit carrying reason.
func Failure(key, documentID, templateID, reason string) *UnitResult {
	return NewUnit(Params{
		Key:           key,
		DocumentID:    documentID,
		TemplateID:    templateID,
		Failed:        true,
		FailureReason: reason,
	})
}

func (u *UnitResult) Key() string           { return u.key }
func (u *UnitResult) DocumentID() string    { return u.documentID }
func (u *UnitResult) TemplateID() string    { return u.templateID }
func (u *UnitResult) Failed() bool          { return u.failed }
func (u *UnitResult) FailureReason() string { return u.failureReason }
func (u *UnitResult) Overlay() string       { return u.overlay }
func (u *UnitResult) RawText() string       { return u.rawText }

// DetectionCount returns the number of detected text regions, if reported.
func (u *UnitResult) DetectionCount() (int, bool) {
	if u.detectionCount == nil {
		return 0, false
	}
	return *u.detectionCount, true
}

// Field returns a copy of the reading for id.
func (u *UnitResult) Field(id schema.FieldID) (FieldReading, bool) {
	r, ok := u.fields[id]
	if !ok {
		return FieldReading{}, false
	}
	return r.clone(), true
}

// FieldIDs returns the unit's field ids in sorted order.
func (u *UnitResult) FieldIDs() []schema.FieldID {
	ids := make([]schema.FieldID, 0, len(u.fields))
	for id := range u.fields {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Fields returns a copy of the field map.
func (u *UnitResult) Fields() map[schema.FieldID]FieldReading {
	out := make(map[schema.FieldID]FieldReading, len(u.fields))
	for id, r := range u.fields {
		out[id] = r.clone()
	}
	return out
}

type unitJSON struct {
	Key            string                          `json:"key"`
	DocumentID     string                          `json:"document_id"`
	TemplateID     string                          `json:"template_id"`
	Fields         map[schema.FieldID]FieldReading `json:"fields,omitempty"`
	Failed         bool                            `json:"failed"`
	FailureReason  string                          `json:"failure_reason,omitempty"`
	DetectionCount *int                            `json:"detection_count,omitempty"`
}

// MarshalJSON encodes the unit without its overlay image.
func (u *UnitResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(unitJSON{
		Key:            u.key,
		DocumentID:     u.documentID,
		TemplateID:     u.templateID,
		Fields:         u.fields,
		Failed:         u.failed,
		FailureReason:  u.failureReason,
		DetectionCount: u.detectionCount,
	})
}
