package results

import (
	"fmt"
	"math"
	"sync"
)

type slot struct {
	key  string
	unit *UnitResult
}

type docSet struct {
	slots    []slot
	revision uint64
}

func (d *docSet) indexOf(key string) int {
	for i, s := range d.slots {
		if s.key == key {
			return i
		}
	}
	return -1
}

// Stats summarizes the units of one document.
type Stats struct {
	Total       int `json:"total" yaml:"total"`
	Successful  int `json:"successful" yaml:"successful"`
	Failed      int `json:"failed" yaml:"failed"`
	SuccessRate int `json:"success_rate" yaml:"success_rate"` // percent, rounded
}

// Store holds unit results grouped by document, in insertion order.
type Store struct {
	mu    sync.RWMutex
	docs  map[string]*docSet
	order []string
	rev   uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{docs: make(map[string]*docSet)}
}

func (s *Store) doc(documentID string) *docSet {
	d, ok := s.docs[documentID]
	if !ok {
		d = &docSet{}
		s.docs[documentID] = d
		s.order = append(s.order, documentID)
	}
	return d
}

// Reserve fixes the position of key within a document before its result
// arrives. Reserving an existing key is a no-op.
func (s *Store) Reserve(documentID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.doc(documentID)
	if d.indexOf(key) < 0 {
		d.slots = append(d.slots, slot{key: key})
	}
}

// Put inserts u, or replaces the unit with the same key in place.
func (s *Store) Put(u *UnitResult) error {
	if u == nil {
		return fmt.Errorf("nil unit")
	}
	if u.Key() == "" {
		return fmt.Errorf("unit key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	d := s.doc(u.DocumentID())
	if i := d.indexOf(u.Key()); i >= 0 {
		d.slots[i].unit = u
	} else {
		d.slots = append(d.slots, slot{key: u.Key(), unit: u})
	}
	s.rev++
	d.revision = s.rev
	return nil
}

// Remove deletes the unit (or reservation) with key. It reports whether
// anything was removed.
func (s *Store) Remove(documentID, key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.docs[documentID]
	if !ok {
		return false
	}
	i := d.indexOf(key)
	if i < 0 {
		return false
	}
	d.slots = append(d.slots[:i], d.slots[i+1:]...)
	s.rev++
	d.revision = s.rev
	return true
}

// Get returns the unit with key.
func (s *Store) Get(documentID, key string) (*UnitResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[documentID]
	if !ok {
		return nil, false
	}
	i := d.indexOf(key)
	if i < 0 || d.slots[i].unit == nil {
		return nil, false
	}
	return d.slots[i].unit, true
}

// AllFor returns the document's units in insertion order. Reservations
// without a result are skipped.
func (s *Store) AllFor(documentID string) []*UnitResult {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.docs[documentID]
	if !ok {
		return nil
	}
	out := make([]*UnitResult, 0, len(d.slots))
	for _, sl := range d.slots {
		if sl.unit != nil {
			out = append(out, sl.unit)
		}
	}
	return out
}

// Revision returns a counter that changes whenever the document's unit set
// changes.
func (s *Store) Revision(documentID string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if d, ok := s.docs[documentID]; ok {
		return d.revision
	}
	return 0
}

// Documents returns document ids in first-use order.
func (s *Store) Documents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Len returns the number of stored units across all documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, d := range s.docs {
		for _, sl := range d.slots {
			if sl.unit != nil {
				n++
			}
		}
	}
	return n
}

// Clear drops every document and reservation.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = make(map[string]*docSet)
	s.order = nil
}

// Stats counts successful and failed units of a document.
func (s *Store) Stats(documentID string) Stats {
	units := s.AllFor(documentID)
	st := Stats{Total: len(units)}
	for _, u := range units {
		if u.Failed() {
			st.Failed++
		} else {
			st.Successful++
		}
	}
	if st.Total > 0 {
		st.SuccessRate = int(math.Round(float64(st.Successful) / float64(st.Total) * 100))
	}
	return st
}
