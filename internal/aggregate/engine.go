// Package aggregate merges unit results into one unified record.
package aggregate

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/results"
	"github.com/KrishnaChaitanya16/MosipDecode2025/internal/schema"
)

// Schemas resolves templates and translates field ids between them.
// *schema.Registry satisfies it.
type Schemas interface {
	Resolve(templateID string) (*schema.Template, error)
	MapFieldID(id schema.FieldID, fromTemplateID, toTemplateID string) schema.FieldID
}

var _ Schemas = (*schema.Registry)(nil)

// Record is the merged view of a set of units in one target template.
type Record struct {
	TemplateID  string                      `json:"template_id" yaml:"template_id"`
	Fields      []schema.FieldID            `json:"fields" yaml:"fields"`
	Values      map[schema.FieldID]string   `json:"values" yaml:"values"`
	Confidence  map[schema.FieldID]*float64 `json:"confidence" yaml:"confidence"`
	SourceUnits []string                    `json:"source_units" yaml:"source_units"`
	Overridden  []schema.FieldID            `json:"overridden,omitempty" yaml:"overridden,omitempty"`
}

// Config configures an Engine.
type Config struct {
	Schemas Schemas
	// RawTextHints fills empty email/tel fields from a unit's raw text.
	RawTextHints bool
	Logger       *slog.Logger
}

// Engine merges units. It holds no state between calls.
type Engine struct {
	schemas      Schemas
	rawTextHints bool
	logger       *slog.Logger
}

// NewEngine creates an aggregation engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{
		schemas:      cfg.Schemas,
		rawTextHints: cfg.RawTextHints,
		logger:       cfg.Logger,
	}
}

// Merge combines units, given in insertion order, into a record expressed in
// targetTemplateID. For each field the first unit with a non-empty value
// supplies both the value and the confidence. Failed units are skipped.
func (e *Engine) Merge(targetTemplateID string, units []*results.UnitResult) (*Record, error) {
	target, err := e.schemas.Resolve(targetTemplateID)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		TemplateID:  target.ID,
		Fields:      target.FieldIDs(),
		Values:      make(map[schema.FieldID]string),
		Confidence:  make(map[schema.FieldID]*float64),
		SourceUnits: []string{},
	}
	known := make(map[schema.FieldID]bool, len(rec.Fields))
	for _, id := range rec.Fields {
		known[id] = true
	}
	filled := make(map[schema.FieldID]bool)

	for _, u := range units {
		if u == nil || u.Failed() {
			continue
		}
		contributed := false
		for _, srcID := range u.FieldIDs() {
			id := e.schemas.MapFieldID(srcID, u.TemplateID(), target.ID)
			if !known[id] {
				known[id] = true
				rec.Fields = append(rec.Fields, id)
			}
			if filled[id] {
				continue
			}
			reading, _ := u.Field(srcID)
			if reading.Value == nil {
				continue
			}
			value := strings.TrimSpace(*reading.Value)
			if value == "" {
				continue
			}
			rec.Values[id] = value
			rec.Confidence[id] = reading.Confidence
			filled[id] = true
			contributed = true
		}
		if contributed {
			rec.SourceUnits = append(rec.SourceUnits, u.Key())
		}
	}

	if e.rawTextHints {
		e.applyRawTextHints(rec, target, units, filled)
	}

	for _, id := range rec.Fields {
		if !filled[id] {
			rec.Values[id] = ""
			rec.Confidence[id] = nil
		}
	}

	e.logger.Debug("merged units",
		"template", target.ID,
		"units", len(units),
		"sources", len(rec.SourceUnits),
		"fields", len(rec.Fields))
	return rec, nil
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\d[\d\s()-]{7,}\d`)
)

// applyRawTextHints fills empty email and tel fields from the raw text of
// the units, in insertion order. Hinted values carry no confidence.
func (e *Engine) applyRawTextHints(rec *Record, target *schema.Template, units []*results.UnitResult, filled map[schema.FieldID]bool) {
	for _, f := range target.Fields {
		if filled[f.ID] {
			continue
		}
		var pattern *regexp.Regexp
		switch f.Kind {
		case schema.KindEmail:
			pattern = emailPattern
		case schema.KindTel:
			pattern = phonePattern
		default:
			continue
		}
		for _, u := range units {
			if u == nil || u.Failed() || u.RawText() == "" {
				continue
			}
			match := strings.TrimSpace(pattern.FindString(u.RawText()))
			if match == "" {
				continue
			}
			rec.Values[f.ID] = match
			rec.Confidence[f.ID] = nil
			filled[f.ID] = true
			if !containsString(rec.SourceUnits, u.Key()) {
				rec.SourceUnits = append(rec.SourceUnits, u.Key())
				sortByUnitOrder(rec.SourceUnits, units)
			}
			break
		}
	}
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sortByUnitOrder keeps SourceUnits in insertion order after an append.
func sortByUnitOrder(keys []string, units []*results.UnitResult) {
	pos := make(map[string]int, len(units))
	for i, u := range units {
		if u != nil {
			pos[u.Key()] = i
		}
	}
	sort.SliceStable(keys, func(i, j int) bool { return pos[keys[i]] < pos[keys[j]] })
}

// Effective returns a copy of the record with overrides applied. Overridden
// fields carry no confidence. Override ids outside the record are appended
// in sorted order.
func (r *Record) Effective(overrides map[schema.FieldID]string) *Record {
	out := r.clone()
	out.Overridden = nil
	present := make(map[schema.FieldID]bool, len(out.Fields))
	for _, id := range out.Fields {
		present[id] = true
	}
	for _, id := range sortedIDs(overrides) {
		if !present[id] {
			out.Fields = append(out.Fields, id)
		}
		out.Values[id] = overrides[id]
		out.Confidence[id] = nil
		out.Overridden = append(out.Overridden, id)
	}
	return out
}

// Fill returns a copy of the record with values set only where the record
// has no non-empty value. Filled fields carry no confidence and are not
// marked overridden.
func (r *Record) Fill(values map[schema.FieldID]string) *Record {
	out := r.clone()
	present := make(map[schema.FieldID]bool, len(out.Fields))
	for _, id := range out.Fields {
		present[id] = true
	}
	for _, id := range sortedIDs(values) {
		if strings.TrimSpace(values[id]) == "" || strings.TrimSpace(out.Values[id]) != "" {
			continue
		}
		if !present[id] {
			out.Fields = append(out.Fields, id)
		}
		out.Values[id] = values[id]
		out.Confidence[id] = nil
	}
	return out
}

func sortedIDs(m map[schema.FieldID]string) []schema.FieldID {
	ids := make([]schema.FieldID, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Record) clone() *Record {
	out := &Record{
		TemplateID:  r.TemplateID,
		Fields:      append([]schema.FieldID(nil), r.Fields...),
		Values:      make(map[schema.FieldID]string, len(r.Values)),
		Confidence:  make(map[schema.FieldID]*float64, len(r.Confidence)),
		SourceUnits: append([]string{}, r.SourceUnits...),
	}
	for id, v := range r.Values {
		out.Values[id] = v
	}
	for id, c := range r.Confidence {
		out.Confidence[id] = c
	}
	out.Overridden = append([]schema.FieldID(nil), r.Overridden...)
	return out
}

// NonEmpty returns the record's non-empty values.
func (r *Record) NonEmpty() map[schema.FieldID]string {
	out := make(map[schema.FieldID]string)
	for id, v := range r.Values {
		if strings.TrimSpace(v) != "" {
			out[id] = v
		}
	}
	return out
}
