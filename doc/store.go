package doc

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// Hash is a content-addressed reference into a Store. It is the hex-encoded
// xxhash of the value's canonical JSON encoding, so equal values always
// collapse to the same reference.
type Hash string

// HashOf computes the content hash of a value.
func HashOf(value any) Hash {
	// encoding/json sorts map keys, which makes the encoding canonical for
	// the attribute maps stored here.
	b, err := json.Marshal(value)
	if err != nil {
		// Store values are plain data; a marshal failure means the caller
		// put something non-serializable in an attribute map.
		panic(fmt.Sprintf("doc: unhashable store value: %v", err))
	}
	return Hash(fmt.Sprintf("h%016x", xxhash.Sum64(b)))
}

// Store is a content-addressed hash→value map. Values are immutable once
// stored. Store is not safe for concurrent mutation; see Merge.
type Store struct {
	values map[Hash]any
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{values: make(map[Hash]any)}
}

// Put stores a value and returns its hash. Storing the same value twice is
// idempotent.
func (s *Store) Put(value any) Hash {
	h := HashOf(value)
	if _, ok := s.values[h]; !ok {
		s.values[h] = value
	}
	return h
}

// Value returns the value for a hash, if present.
func (s *Store) Value(h Hash) (any, bool) {
	v, ok := s.values[h]
	return v, ok
}

// Annotation returns the stored value for h as an Annotation, when it is one.
func (s *Store) Annotation(h Hash) (Annotation, bool) {
	v, ok := s.values[h]
	if !ok {
		return Annotation{}, false
	}
	a, ok := v.(Annotation)
	return a, ok
}

// Len returns the number of stored values.
func (s *Store) Len() int { return len(s.values) }

// Merge adds entries present in other but missing here. Existing entries are
// never overwritten, which makes Merge commutative and idempotent.
func (s *Store) Merge(other *Store) {
	if other == nil {
		return
	}
	for h, v := range other.values {
		if _, ok := s.values[h]; !ok {
			s.values[h] = v
		}
	}
}

// Clone returns an independent copy of the store. Values are shared (they are
// immutable by contract).
func (s *Store) Clone() *Store {
	out := NewStore()
	for h, v := range s.values {
		out.values[h] = v
	}
	return out
}
