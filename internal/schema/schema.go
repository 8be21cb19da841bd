// Package schema holds the form templates extraction results are expressed in
// and the tables that map field ids between them.
package schema

import (
	"errors"
	"fmt"
)

// ErrUnknownTemplate is returned when a template id is not registered.
var ErrUnknownTemplate = errors.New("unknown template")

// FieldID identifies a field within one template.
type FieldID string

// InputKind is the kind of input a field renders as.
type InputKind string

const (
	KindText   InputKind = "text"
	KindNumber InputKind = "number"
	KindSelect InputKind = "select"
	KindEmail  InputKind = "email"
	KindTel    InputKind = "tel"
)

// Valid reports whether k is one of the known input kinds.
func (k InputKind) Valid() bool {
	switch k {
	case KindText, KindNumber, KindSelect, KindEmail, KindTel:
		return true
	}
	return false
}

// FieldDescriptor describes one form field.
type FieldDescriptor struct {
	ID          FieldID   `json:"id" yaml:"id"`
	Label       string    `json:"label,omitempty" yaml:"label,omitempty"`
	Kind        InputKind `json:"kind" yaml:"kind"`
	Placeholder string    `json:"placeholder,omitempty" yaml:"placeholder,omitempty"`
	Options     []string  `json:"options,omitempty" yaml:"options,omitempty"`
}

// Template is an ordered set of fields for one language/form.
type Template struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name,omitempty" yaml:"name,omitempty"`
	LangCode string            `json:"lang_code" yaml:"lang_code"`
	Fields   []FieldDescriptor `json:"fields" yaml:"fields"`
}

// FieldIDs returns the template's field ids in render order.
func (t *Template) FieldIDs() []FieldID {
	ids := make([]FieldID, len(t.Fields))
	for i, f := range t.Fields {
		ids[i] = f.ID
	}
	return ids
}

// Field returns the descriptor for id.
func (t *Template) Field(id FieldID) (FieldDescriptor, bool) {
	for _, f := range t.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return FieldDescriptor{}, false
}

// Has reports whether id belongs to the template.
func (t *Template) Has(id FieldID) bool {
	_, ok := t.Field(id)
	return ok
}

func (t *Template) validate() error {
	if t.ID == "" {
		return fmt.Errorf("template id is required")
	}
	if len(t.Fields) == 0 {
		return fmt.Errorf("template %s has no fields", t.ID)
	}
	seen := make(map[FieldID]bool, len(t.Fields))
	for _, f := range t.Fields {
		if f.ID == "" {
			return fmt.Errorf("template %s has a field without id", t.ID)
		}
		if seen[f.ID] {
			return fmt.Errorf("template %s: duplicate field id %q", t.ID, f.ID)
		}
		if !f.Kind.Valid() {
			return fmt.Errorf("template %s: field %q has invalid kind %q", t.ID, f.ID, f.Kind)
		}
		seen[f.ID] = true
	}
	return nil
}

func (t *Template) clone() *Template {
	c := *t
	c.Fields = make([]FieldDescriptor, len(t.Fields))
	for i, f := range t.Fields {
		if f.Options != nil {
			f.Options = append([]string(nil), f.Options...)
		}
		c.Fields[i] = f
	}
	return &c
}
