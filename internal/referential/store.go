package referential

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/vitisalign/vitisalign-backend/internal/types"
)

// Store holds the reference-concept snapshot the process serves from.
// The snapshot is immutable; Replace swaps it wholesale, so concurrent
// readers never observe a partially updated referential.
type Store struct {
	snap atomic.Pointer[snapshot]
}

type snapshot struct {
	ordered []types.ReferenceConcept
	byID    map[string]types.ReferenceConcept
}

func NewStore(concepts []types.ReferenceConcept) (*Store, error) {
	s := &Store{}
	if err := s.Replace(concepts); err != nil {
		return nil, err
	}
	return s, nil
}

// Replace validates and installs a new snapshot atomically.
func (s *Store) Replace(concepts []types.ReferenceConcept) error {
	ordered := make([]types.ReferenceConcept, len(concepts))
	copy(ordered, concepts)

	byID := make(map[string]types.ReferenceConcept, len(ordered))
	for i, c := range ordered {
		id := c.IndexID()
		if id == "" {
			return fmt.Errorf("concept at position %d has neither ref_id nor name", i)
		}
		if _, exists := byID[id]; exists {
			return fmt.Errorf("duplicate concept id %q", id)
		}
		byID[id] = c
	}

	s.snap.Store(&snapshot{ordered: ordered, byID: byID})
	return nil
}

// Concepts returns the current snapshot in load order. The returned
// slice is a copy; callers may not mutate the store through it.
func (s *Store) Concepts() []types.ReferenceConcept {
	snap := s.snap.Load()
	out := make([]types.ReferenceConcept, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

func (s *Store) Len() int {
	return len(s.snap.Load().ordered)
}

func (s *Store) Get(refID string) (types.ReferenceConcept, bool) {
	c, ok := s.snap.Load().byID[strings.TrimSpace(refID)]
	return c, ok
}

// GetAll materializes full concepts for a candidate id list, preserving
// order. A missing id is an error: candidates come from the index, and
// the index and store are built from the same snapshot.
func (s *Store) GetAll(refIDs []string) ([]types.ReferenceConcept, error) {
	snap := s.snap.Load()
	out := make([]types.ReferenceConcept, 0, len(refIDs))
	for _, id := range refIDs {
		c, ok := snap.byID[strings.TrimSpace(id)]
		if !ok {
			return nil, fmt.Errorf("concept %q not present in referential store", id)
		}
		out = append(out, c)
	}
	return out, nil
}
