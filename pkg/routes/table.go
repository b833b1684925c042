// Package routes maps chain identifiers to the counterpart bridge registered on
// that chain. Keys are compared exactly: "arbitrum" and "Arbitrum" are
// different chains.
package routes

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrEmptyChain       = errors.New("empty chain identifier")
	ErrEmptyCounterpart = errors.New("empty counterpart")
)

// Entry is one registered route.
type Entry[K comparable, V comparable] struct {
	Chain       K
	Counterpart V
}

// Table holds at most one counterpart per chain. It is not safe for concurrent
// use; the owning bridge serializes access.
type Table[K comparable, V comparable] struct {
	entries map[K]V
}

func New[K comparable, V comparable]() *Table[K, V] {
	return &Table[K, V]{entries: make(map[K]V)}
}

// Add inserts or overwrites the route for chain.
func (t *Table[K, V]) Add(chain K, counterpart V) error {
	var zeroK K
	if chain == zeroK {
		return ErrEmptyChain
	}
	var zeroV V
	if counterpart == zeroV {
		return fmt.Errorf("%w for chain %v", ErrEmptyCounterpart, chain)
	}
	t.entries[chain] = counterpart
	return nil
}

// Remove clears the route for chain. Removing a missing route is a no-op.
func (t *Table[K, V]) Remove(chain K) {
	delete(t.entries, chain)
}

// Lookup returns the counterpart for chain, or the zero value and false.
func (t *Table[K, V]) Lookup(chain K) (V, bool) {
	v, ok := t.entries[chain]
	return v, ok
}

// Matches reports whether chain is registered with exactly counterpart.
func (t *Table[K, V]) Matches(chain K, counterpart V) bool {
	v, ok := t.entries[chain]
	return ok && v == counterpart
}

func (t *Table[K, V]) Len() int {
	return len(t.entries)
}

// Entries returns every route ordered by the string form of the chain.
func (t *Table[K, V]) Entries() []Entry[K, V] {
	out := make([]Entry[K, V], 0, len(t.entries))
	for k, v := range t.entries {
		out = append(out, Entry[K, V]{Chain: k, Counterpart: v})
	}
	sort.Slice(out, func(i, j int) bool {
		return fmt.Sprint(out[i].Chain) < fmt.Sprint(out[j].Chain)
	})
	return out
}

// Restore replaces all routes, rejecting empty keys or counterparts.
func (t *Table[K, V]) Restore(entries []Entry[K, V]) error {
	next := New[K, V]()
	for _, e := range entries {
		if err := next.Add(e.Chain, e.Counterpart); err != nil {
			return err
		}
	}
	t.entries = next.entries
	return nil
}
