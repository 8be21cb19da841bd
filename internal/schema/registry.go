package schema

import (
	"fmt"
	"log/slog"
	"sync"
)

type templatePair struct {
	from, to string
}

// Registry holds templates and the cross-template field id tables.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	templates map[string]*Template
	order     []string
	mappings  map[templatePair]map[FieldID]FieldID
	logger    *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		templates: make(map[string]*Template),
		mappings:  make(map[templatePair]map[FieldID]FieldID),
		logger:    logger,
	}
}

// Register adds a template. A template with the same id is replaced.
func (r *Registry) Register(t Template) error {
	if err := t.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.templates[t.ID]; exists {
		r.logger.Info("replacing template", "template", t.ID)
	} else {
		r.order = append(r.order, t.ID)
	}
	r.templates[t.ID] = t.clone()
	return nil
}

// AddMapping registers field id translations from one template to another.
// The reverse direction is registered as well. Templates do not need to be
// registered yet. Nothing is registered when any entry is invalid.
func (r *Registry) AddMapping(from, to string, fields map[FieldID]FieldID) error {
	if err := validateMapping(from, to, fields); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	fwd := r.table(from, to)
	rev := r.table(to, from)
	for src, dst := range fields {
		fwd[src] = dst
		rev[dst] = src
	}
	return nil
}

func validateMapping(from, to string, fields map[FieldID]FieldID) error {
	if from == "" || to == "" {
		return fmt.Errorf("mapping requires both template ids")
	}
	if from == to {
		return fmt.Errorf("mapping from %s to itself", from)
	}
	for src, dst := range fields {
		if src == "" || dst == "" {
			return fmt.Errorf("mapping %s->%s has an empty field id", from, to)
		}
	}
	return nil
}

// table returns the mapping table for a pair, creating it. Must hold mu.
func (r *Registry) table(from, to string) map[FieldID]FieldID {
	key := templatePair{from: from, to: to}
	m, ok := r.mappings[key]
	if !ok {
		m = make(map[FieldID]FieldID)
		r.mappings[key] = m
	}
	return m
}

// Resolve returns a copy of the template with the given id.
func (r *Registry) Resolve(templateID string) (*Template, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, templateID)
	}
	return t.clone(), nil
}

// MapFieldID translates id from one template's vocabulary to another's.
// Ids without a mapping entry are returned unchanged.
func (r *Registry) MapFieldID(id FieldID, fromTemplateID, toTemplateID string) FieldID {
	if fromTemplateID == toTemplateID {
		return id
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if mapped, ok := r.mappings[templatePair{from: fromTemplateID, to: toTemplateID}][id]; ok {
		return mapped
	}
	return id
}

// Templates returns all templates in registration order.
func (r *Registry) Templates() []*Template {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Template, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.templates[id].clone())
	}
	return out
}
