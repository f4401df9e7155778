package comments

import (
	"slices"
	"sync"
)

// CollapseState tracks which comment ids are collapsed. Ids absent from the
// set are expanded. The set is keyed by id only and survives ingestion.
type CollapseState struct {
	mu  sync.RWMutex
	ids map[int64]struct{}
}

func NewCollapseState(ids ...int64) *CollapseState {
	c := &CollapseState{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		c.ids[id] = struct{}{}
	}
	return c
}

// Toggle flips id and reports whether it is now collapsed.
func (c *CollapseState) Toggle(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		delete(c.ids, id)
		return false
	}
	c.ids[id] = struct{}{}
	return true
}

func (c *CollapseState) IsCollapsed(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[id]
	return ok
}

// IDs returns the collapsed ids in ascending order.
func (c *CollapseState) IDs() []int64 {
	c.mu.RLock()
	out := make([]int64, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	c.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Prune drops ids that are not in snap and returns how many were removed.
func (c *CollapseState) Prune(snap *Snapshot) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id := range c.ids {
		if _, ok := snap.Find(id); !ok {
			delete(c.ids, id)
			removed++
		}
	}
	return removed
}
