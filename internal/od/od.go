// Package od implements the CiA-301 object dictionary: a mutex-guarded
// store of tagged entries addressed by (index, subIndex), seeded from
// an EDS file and mutated by the SDO server and RPDO consumer.
//
// Entries carry a single tagged Value (see value.go); there is no
// per-datatype streamer/extension machinery since expedited-only,
// no-domain-callback access never needs it.
package od

import (
	"sort"
	"sync"
)

// ObjectDictionary is the node's object dictionary: a two-level map from
// index to sub-index to Entry, guarded by a single mutex so SDO, PDO and
// the drive state machine can all touch it from their own goroutines.
type ObjectDictionary struct {
	mu      sync.Mutex
	entries map[uint16]map[uint8]*Entry
}

// New returns an empty object dictionary.
func New() *ObjectDictionary {
	return &ObjectDictionary{entries: make(map[uint16]map[uint8]*Entry)}
}

// Add seeds an entry into the store. Add is not safe to call
// concurrently with itself or with Get/Mutate; callers seed the
// dictionary fully (e.g. from ParseEDS) before publishing it to other
// goroutines.
func (od *ObjectDictionary) Add(e *Entry) {
	sub, ok := od.entries[e.Index]
	if !ok {
		sub = make(map[uint8]*Entry)
		od.entries[e.Index] = sub
	}
	sub[e.SubIndex] = e.clone()
}

// Get returns a copy of the entry at (index, subIndex).
func (od *ObjectDictionary) Get(index uint16, subIndex uint8) (*Entry, error) {
	od.mu.Lock()
	defer od.mu.Unlock()
	e, err := od.lookup(index, subIndex)
	if err != nil {
		return nil, err
	}
	return e.clone(), nil
}

func (od *ObjectDictionary) lookup(index uint16, subIndex uint8) (*Entry, error) {
	sub, ok := od.entries[index]
	if !ok {
		return nil, ErrNotFound
	}
	e, ok := sub[subIndex]
	if !ok {
		return nil, ErrNotFound
	}
	return e, nil
}

// Mutate replaces the value stored at (index, subIndex) with v. The new
// value's Kind must match the entry's existing Kind (invariant I1); a
// mismatch returns ErrTypeMismatch and leaves the store unchanged.
func (od *ObjectDictionary) Mutate(index uint16, subIndex uint8, v Value) error {
	od.mu.Lock()
	defer od.mu.Unlock()
	e, err := od.lookup(index, subIndex)
	if err != nil {
		return err
	}
	if e.Value.Kind() != v.Kind() {
		return ErrTypeMismatch
	}
	e.Value = v
	return nil
}

// SubIndices returns the sub-indices present at index in ascending
// order, for callers that must enumerate an object deterministically.
func (od *ObjectDictionary) SubIndices(index uint16) []uint8 {
	od.mu.Lock()
	defer od.mu.Unlock()
	sub, ok := od.entries[index]
	if !ok {
		return nil
	}
	out := make([]uint8, 0, len(sub))
	for s := range sub {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Indices returns every populated index in ascending order.
func (od *ObjectDictionary) Indices() []uint16 {
	od.mu.Lock()
	defer od.mu.Unlock()
	out := make([]uint16, 0, len(od.entries))
	for idx := range od.entries {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
