package runtime

import (
	"encoding/json"
	"sort"

	"github.com/aretw0/parley/pkg/domain"
)

// Store is a scoped variable container. The zero value is not usable; use NewStore.
type Store struct {
	vars map[string]any
}

// NewStore creates a store seeded with a copy of init.
func NewStore(init map[string]any) *Store {
	s := &Store{vars: make(map[string]any, len(init))}
	for k, v := range init {
		s.vars[k] = v
	}
	return s
}

// Merge returns a new store where keys of override shadow keys of base.
// Neither input is modified; nil inputs are treated as empty.
func Merge(base, override *Store) *Store {
	out := &Store{vars: make(map[string]any, base.Len()+override.Len())}
	if base != nil {
		for k, v := range base.vars {
			out.vars[k] = v
		}
	}
	if override != nil {
		for k, v := range override.vars {
			out.vars[k] = v
		}
	}
	return out
}

// Get returns the value of key. Missing keys yield (nil, false).
func (s *Store) Get(key string) (any, bool) {
	if s == nil {
		return nil, false
	}
	v, ok := s.vars[key]
	return v, ok
}

// Has reports whether key is set.
func (s *Store) Has(key string) bool {
	_, ok := s.Get(key)
	return ok
}

// Set assigns value to key.
func (s *Store) Set(key string, value any) {
	s.vars[key] = value
}

// Delete removes key.
func (s *Store) Delete(key string) {
	delete(s.vars, key)
}

// Len returns the number of keys.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.vars)
}

// Keys returns the sorted keys.
func (s *Store) Keys() []string {
	if s == nil {
		return nil
	}
	keys := make([]string, 0, len(s.vars))
	for k := range s.vars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot returns a deep copy of the contents.
func (s *Store) Snapshot() domain.Variables {
	if s == nil {
		return domain.Variables{}
	}
	return domain.Variables(domain.DeepCopyMap(s.vars))
}

// MarshalJSON encodes the store as a flat object.
func (s *Store) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.vars)
}

// UnmarshalJSON decodes a flat object, keeping number literals intact.
func (s *Store) UnmarshalJSON(data []byte) error {
	var v domain.Variables
	if err := v.UnmarshalJSON(data); err != nil {
		return err
	}
	if v == nil {
		v = domain.Variables{}
	}
	s.vars = v
	return nil
}
