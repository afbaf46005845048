// Package hashtable implements the open-addressed, linear-probing
// table with tombstone deletion used throughout voxl for globals,
// instance fields, and class method tables (C6).
//
// The table is generic over its stored value so it can back module
// globals, instance fields and class method tables (Key = interned
// string) without pkg/hashtable depending on pkg/value (the
// allocator's string-intern set is a plain Go map, not this table) — that dependency runs the other way (value imports
// hashtable), so this package must stay value-agnostic.
package hashtable

// Key is anything a Table can use as a lookup key: a precomputed hash
// plus an equality test. Implementations are expected to be cheap,
// typically a wrapped pointer or small struct (see pkg/value's
// StringKey/ValueKey).
type Key interface {
	Hash() uint64
	Equal(other Key) bool
}

const (
	initialSize   = 8
	maxLoadFactor = 0.75
)

type bucket[V any] struct {
	key   Key
	value V
	state bucketState
}

type bucketState byte

const (
	bucketEmpty bucketState = iota
	bucketTombstone
	bucketOccupied
)

// Table is a generic open-addressed hash table.
type Table[V any] struct {
	buckets []bucket[V]
	size    int // occupied, excludes tombstones
	used    int // occupied + tombstones, drives the 0.75 growth check
}

// New returns an empty Table with an initial capacity of 8 buckets.
func New[V any]() *Table[V] {
	return &Table[V]{buckets: make([]bucket[V], initialSize)}
}

// Len reports the number of live (non-tombstone) entries.
func (t *Table[V]) Len() int { return t.size }

// Set inserts or overwrites key's value, growing the table first if
// the load factor would exceed 0.75. Returns true if key is new.
func (t *Table[V]) Set(key Key, value V) bool {
	if float64(t.used+1) > maxLoadFactor*float64(len(t.buckets)) {
		t.grow()
	}
	b := t.findBucket(key)
	isNew := b.state != bucketOccupied
	if b.state == bucketEmpty {
		t.used++
	}
	b.key = key
	b.value = value
	b.state = bucketOccupied
	if isNew {
		t.size++
	}
	return isNew
}

// Get looks up key, reporting whether it was found.
func (t *Table[V]) Get(key Key) (V, bool) {
	var zero V
	if len(t.buckets) == 0 {
		return zero, false
	}
	b := t.findBucket(key)
	if b.state != bucketOccupied {
		return zero, false
	}
	return b.value, true
}

// Has reports whether key is present.
func (t *Table[V]) Has(key Key) bool {
	_, ok := t.Get(key)
	return ok
}

// Delete removes key, leaving a tombstone behind so later probes for
// colliding keys keep working. Returns true if key was present.
func (t *Table[V]) Delete(key Key) bool {
	if len(t.buckets) == 0 {
		return false
	}
	b := t.findBucket(key)
	if b.state != bucketOccupied {
		return false
	}
	var zero V
	b.value = zero
	b.state = bucketTombstone
	t.size--
	return true
}

// findBucket runs the linear probe: starting at key.Hash()%cap, scan
// forward (wrapping) until key is found, or an empty bucket is hit.
// The first tombstone seen along the way is remembered and returned
// instead of the terminating empty bucket, so inserts reuse tombstone
// slots rather than growing the table unnecessarily.
func (t *Table[V]) findBucket(key Key) *bucket[V] {
	cap := len(t.buckets)
	idx := int(key.Hash() % uint64(cap))
	var tombstone *bucket[V]
	for {
		b := &t.buckets[idx]
		switch b.state {
		case bucketEmpty:
			if tombstone != nil {
				return tombstone
			}
			return b
		case bucketTombstone:
			if tombstone == nil {
				tombstone = b
			}
		case bucketOccupied:
			if b.key.Equal(key) {
				return b
			}
		}
		idx = (idx + 1) % cap
	}
}

func (t *Table[V]) grow() {
	newCap := len(t.buckets) * 2
	if newCap < initialSize {
		newCap = initialSize
	}
	old := t.buckets
	t.buckets = make([]bucket[V], newCap)
	t.size = 0
	t.used = 0
	for _, b := range old {
		if b.state == bucketOccupied {
			t.Set(b.key, b.value)
		}
	}
}

// Clear empties the table back to its initial capacity.
func (t *Table[V]) Clear() {
	t.buckets = make([]bucket[V], initialSize)
	t.size = 0
	t.used = 0
}

// Each visits every occupied bucket in storage order. Iteration order
// is stable for a fixed sequence of inserts/deletes/grows but is not
// insertion order.
func (t *Table[V]) Each(fn func(key Key, value V) bool) {
	for i := range t.buckets {
		b := &t.buckets[i]
		if b.state == bucketOccupied {
			if !fn(b.key, b.value) {
				return
			}
		}
	}
}

// Keys returns every live key, in bucket-scan order.
func (t *Table[V]) Keys() []Key {
	out := make([]Key, 0, t.size)
	t.Each(func(k Key, _ V) bool {
		out = append(out, k)
		return true
	})
	return out
}
