// Package correspondence maps hierarchical detector keys to canonical flat
// detector ids and back.
package correspondence

import (
	"fmt"
	"sort"

	"petsirdrecon/internal/models"
)

// Table is a bijection between DetectorKey and DetID over the inserted
// entries. It is written once while the scanner is canonicalized and only
// read afterwards; it performs no locking, so concurrent readers are safe
// only once writing has finished.
type Table struct {
	forward map[models.DetectorKey]models.DetID
	reverse map[models.DetID]models.DetectorKey
}

// New returns an empty table
func New() *Table {
	return &Table{
		forward: make(map[models.DetectorKey]models.DetID),
		reverse: make(map[models.DetID]models.DetectorKey),
	}
}

// AddMapping registers key <-> id. A key or id inserted earlier is
// overwritten; callers must not present either twice.
func (t *Table) AddMapping(key models.DetectorKey, id models.DetID) {
	t.forward[key] = id
	t.reverse[id] = key
}

// FlatIndexOf returns the flat id registered for key
func (t *Table) FlatIndexOf(key models.DetectorKey) (models.DetID, error) {
	id, ok := t.forward[key]
	if !ok {
		return 0, fmt.Errorf("%w: key %v", models.ErrNotFound, key)
	}
	return id, nil
}

// HierarchicalKeyOf returns the key registered for id
func (t *Table) HierarchicalKeyOf(id models.DetID) (models.DetectorKey, error) {
	key, ok := t.reverse[id]
	if !ok {
		return models.DetectorKey{}, fmt.Errorf("%w: flat id %d", models.ErrNotFound, id)
	}
	return key, nil
}

// Contains reports whether key was registered
func (t *Table) Contains(key models.DetectorKey) bool {
	_, ok := t.forward[key]
	return ok
}

// Len returns the number of registered flat ids
func (t *Table) Len() int {
	return len(t.reverse)
}

// Each calls fn for every entry in ascending flat id order, stopping at the
// first error
func (t *Table) Each(fn func(id models.DetID, key models.DetectorKey) error) error {
	ids := make([]models.DetID, 0, len(t.reverse))
	for id := range t.reverse {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		if err := fn(id, t.reverse[id]); err != nil {
			return err
		}
	}
	return nil
}
