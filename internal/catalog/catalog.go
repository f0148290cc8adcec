// Package catalog holds the in-memory set of postings.
package catalog

import (
	"sync"

	"github.com/pauljones0/production-scout/internal/models"
)

// Catalog is the authoritative posting set for the life of the process.
// Reads return copies; all writes go through Update or Replace under a single
// write lock.
type Catalog struct {
	mu       sync.RWMutex
	postings []models.Posting
}

// New creates a catalog seeded with postings.
func New(postings []models.Posting) *Catalog {
	c := &Catalog{}
	c.postings = clone(postings)
	return c
}

// All returns every posting in insertion order.
func (c *Catalog) All() []models.Posting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clone(c.postings)
}

// ByTier returns postings whose tier equals tier.
func (c *Catalog) ByTier(tier models.BudgetTier) []models.Posting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := []models.Posting{}
	for _, p := range c.postings {
		if p.Tier == tier {
			out = append(out, p)
		}
	}
	return out
}

// Len returns the number of postings.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.postings)
}

// Update runs fn as a read-modify-write critical section. fn receives a copy
// of the current postings and returns the replacement set; if fn returns an
// error the catalog is left unchanged. Update returns a copy of the new set.
func (c *Catalog) Update(fn func(current []models.Posting) ([]models.Posting, error)) ([]models.Posting, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fn(clone(c.postings))
	if err != nil {
		return nil, err
	}
	c.postings = clone(next)
	return clone(c.postings), nil
}

// Replace swaps the whole posting set.
func (c *Catalog) Replace(postings []models.Posting) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.postings = clone(postings)
}

// Stats counts postings by tier and by VFX needs level. Every known tier and
// level is present in the result, zero or not.
func (c *Catalog) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Total:      len(c.postings),
		ByTier:     make(map[models.BudgetTier]int, len(models.Tiers)),
		ByVfxNeeds: make(map[models.VfxNeedsLevel]int, len(models.VfxLevels)),
	}
	for _, t := range models.Tiers {
		s.ByTier[t] = 0
	}
	for _, l := range models.VfxLevels {
		s.ByVfxNeeds[l] = 0
	}
	for _, p := range c.postings {
		s.ByTier[p.Tier]++
		s.ByVfxNeeds[p.VfxNeeds]++
	}
	return s
}

// Stats summarises the catalog.
type Stats struct {
	Total      int                          `json:"total"`
	ByTier     map[models.BudgetTier]int    `json:"byTier"`
	ByVfxNeeds map[models.VfxNeedsLevel]int `json:"byVfxNeeds"`
}

func clone(postings []models.Posting) []models.Posting {
	out := make([]models.Posting, len(postings))
	copy(out, postings)
	return out
}
