// Package hashmap provides the open-hashing associative store used for the
// machine's variable and verb tables.
//
// The table has a fixed 2^precision bucket count chosen at construction.
// Each bucket is a slice of (key, value) pairs grown in steps of
// BucketStep. Lookups return a Handle addressing the pair directly, which
// stays valid until the map is next modified.
package hashmap

import (
	"errors"
	"fmt"
	"iter"

	"github.com/cespare/xxhash/v2"
)

// BucketStep is the number of slots a full bucket grows by.
const BucketStep = 4

// DefaultPrecision gives 16 buckets.
const DefaultPrecision = 4

// MaxPrecision bounds the bucket array to 2^24 slots.
const MaxPrecision = 24

// ErrPrecision is returned by New for a precision outside [0, MaxPrecision].
var ErrPrecision = errors.New("hashmap: precision out of range")

// Handle addresses one live pair. The zero Handle is only meaningful when
// returned alongside ok == true.
type Handle struct {
	bucket int
	slot   int
}

type entry[V any] struct {
	key   string
	value V
}

// Map is an open-hashing table from string keys to values of type V.
// It is not safe for concurrent use.
type Map[V any] struct {
	buckets [][]entry[V]
	mask    uint64
	size    int
	release func(key string, value V)
}

// Option configures a Map.
type Option[V any] func(*Map[V])

// WithRelease installs the destructor run for every pair leaving the map
// through Remove, Clear or Destroy.
func WithRelease[V any](fn func(key string, value V)) Option[V] {
	return func(m *Map[V]) {
		m.release = fn
	}
}

// New creates a map with 2^precision buckets.
func New[V any](precision int, opts ...Option[V]) (*Map[V], error) {
	if precision < 0 || precision > MaxPrecision {
		return nil, fmt.Errorf("%w: %d", ErrPrecision, precision)
	}
	n := 1 << precision
	m := &Map[V]{
		buckets: make([][]entry[V], n),
		mask:    uint64(n - 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Map[V]) index(key string) int {
	return int(xxhash.Sum64String(key) & m.mask)
}

// Len returns the number of live pairs.
func (m *Map[V]) Len() int {
	return m.size
}

// Buckets returns the bucket count.
func (m *Map[V]) Buckets() int {
	return len(m.buckets)
}

// Cap returns the total slot capacity across all buckets.
func (m *Map[V]) Cap() int {
	total := 0
	for _, b := range m.buckets {
		total += cap(b)
	}
	return total
}

// Insert appends a pair without checking for an existing key. Callers that
// want replace semantics must Search first; a duplicate key creates a second
// live pair that Search never reaches while the first exists.
func (m *Map[V]) Insert(key string, value V) Handle {
	i := m.index(key)
	b := m.buckets[i]
	if len(b) == cap(b) {
		grown := make([]entry[V], len(b), cap(b)+BucketStep)
		copy(grown, b)
		b = grown
	}
	b = append(b, entry[V]{key: key, value: value})
	m.buckets[i] = b
	m.size++
	return Handle{bucket: i, slot: len(b) - 1}
}

// Search scans the key's bucket linearly for the first matching pair.
func (m *Map[V]) Search(key string) (Handle, bool) {
	i := m.index(key)
	for j := range m.buckets[i] {
		if m.buckets[i][j].key == key {
			return Handle{bucket: i, slot: j}, true
		}
	}
	return Handle{}, false
}

// Get returns a pointer to the value stored at h. No copy is made; the
// pointer is invalidated by the next Insert, Remove or Reclaim.
func (m *Map[V]) Get(h Handle) *V {
	return &m.buckets[h.bucket][h.slot].value
}

// Key returns the key stored at h.
func (m *Map[V]) Key(h Handle) string {
	return m.buckets[h.bucket][h.slot].key
}

// Lookup is Search followed by Get.
func (m *Map[V]) Lookup(key string) (*V, bool) {
	h, ok := m.Search(key)
	if !ok {
		return nil, false
	}
	return m.Get(h), true
}

// Remove deletes the pair at h by swapping the bucket's last pair into its
// slot. The release function runs on the removed pair.
func (m *Map[V]) Remove(h Handle) {
	b := m.buckets[h.bucket]
	e := b[h.slot]
	last := len(b) - 1
	b[h.slot] = b[last]
	var zero entry[V]
	b[last] = zero
	m.buckets[h.bucket] = b[:last]
	m.size--
	if m.release != nil {
		m.release(e.key, e.value)
	}
}

// Clear releases every pair. Bucket capacity is kept; call Reclaim to
// give it back.
func (m *Map[V]) Clear() {
	for i, b := range m.buckets {
		m.releaseAll(b)
		clear(b)
		m.buckets[i] = b[:0]
	}
	m.size = 0
}

// Reclaim shrinks every bucket's capacity to its length.
func (m *Map[V]) Reclaim() {
	for i, b := range m.buckets {
		if len(b) == cap(b) {
			continue
		}
		if len(b) == 0 {
			m.buckets[i] = nil
			continue
		}
		shrunk := make([]entry[V], len(b))
		copy(shrunk, b)
		m.buckets[i] = shrunk
	}
}

// Destroy releases every pair and drops all storage. The map must not be
// used afterwards.
func (m *Map[V]) Destroy() {
	for _, b := range m.buckets {
		m.releaseAll(b)
	}
	m.buckets = nil
	m.size = 0
}

func (m *Map[V]) releaseAll(b []entry[V]) {
	if m.release == nil {
		return
	}
	for _, e := range b {
		m.release(e.key, e.value)
	}
}

// First returns a cursor at the first live pair in bucket order.
// ok is false when the map is empty.
func (m *Map[V]) First() (Handle, bool) {
	return m.seek(0)
}

// Next advances the cursor, skipping empty buckets. ok is false past the
// last pair.
func (m *Map[V]) Next(h Handle) (Handle, bool) {
	if h.slot+1 < len(m.buckets[h.bucket]) {
		return Handle{bucket: h.bucket, slot: h.slot + 1}, true
	}
	return m.seek(h.bucket + 1)
}

func (m *Map[V]) seek(from int) (Handle, bool) {
	for i := from; i < len(m.buckets); i++ {
		if len(m.buckets[i]) > 0 {
			return Handle{bucket: i}, true
		}
	}
	return Handle{}, false
}

// All iterates live pairs in bucket order. The map must not be modified
// during iteration.
func (m *Map[V]) All() iter.Seq2[string, *V] {
	return func(yield func(string, *V) bool) {
		for h, ok := m.First(); ok; h, ok = m.Next(h) {
			if !yield(m.Key(h), m.Get(h)) {
				return
			}
		}
	}
}
