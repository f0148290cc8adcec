package models

import "time"

// BudgetTier buckets a production by budget size, tier1 being the largest.
type BudgetTier string

const (
	Tier1 BudgetTier = "tier1"
	Tier2 BudgetTier = "tier2"
	Tier3 BudgetTier = "tier3"
	Tier4 BudgetTier = "tier4"
)

// Tiers lists every tier from largest to smallest.
var Tiers = []BudgetTier{Tier1, Tier2, Tier3, Tier4}

// Rank returns 1 for tier1 through 4 for tier4, and 0 for unknown values.
func (t BudgetTier) Rank() int {
	for i, tier := range Tiers {
		if t == tier {
			return i + 1
		}
	}
	return 0
}

// VfxNeedsLevel is the ordinal visual-effects workload of a production.
type VfxNeedsLevel string

const (
	VfxExtreme VfxNeedsLevel = "Extreme"
	VfxHigh    VfxNeedsLevel = "High"
	VfxMedium  VfxNeedsLevel = "Medium"
	VfxLow     VfxNeedsLevel = "Low"
)

// VfxLevels lists every level from heaviest to lightest.
var VfxLevels = []VfxNeedsLevel{VfxExtreme, VfxHigh, VfxMedium, VfxLow}

// Rank returns 1 for Extreme through 4 for Low, and 0 for unknown values.
func (l VfxNeedsLevel) Rank() int {
	for i, level := range VfxLevels {
		if l == level {
			return i + 1
		}
	}
	return 0
}

// Contact is a person or desk listed on a posting.
type Contact struct {
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty" validate:"omitempty,email"`
	Phone string `json:"phone,omitempty"`
}

// RawPosting is a listing as handed back by a source adapter, before classification.
type RawPosting struct {
	Title       string    `json:"title" validate:"required"`
	Description string    `json:"description" validate:"required"`
	Budget      string    `json:"budget,omitempty"`
	Location    string    `json:"location,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Company     string    `json:"company,omitempty"`
	PostedAt    time.Time `json:"postedAt,omitempty"`
	Contacts    []Contact `json:"contacts,omitempty" validate:"dive"`
	URL         string    `json:"url,omitempty" validate:"omitempty,url"`

	// Summary is filled by AI enrichment when it is enabled.
	Summary string `json:"summary,omitempty"`
}

// Posting is a classified, catalog-resident production listing.
type Posting struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Budget      string    `json:"budget"`
	Location    string    `json:"location,omitempty"`
	Stage       string    `json:"stage,omitempty"`
	Company     string    `json:"company,omitempty"`
	PostedAt    time.Time `json:"postedAt"`
	Contacts    []Contact `json:"contacts,omitempty"`
	URL         string    `json:"url,omitempty"`
	Summary     string    `json:"summary,omitempty"`

	Tier              BudgetTier        `json:"tier"`
	VfxNeeds          VfxNeedsLevel     `json:"vfxNeeds"`
	VfxNeedsRationale string            `json:"vfxNeedsRationale"`
	Source            string            `json:"source"`
	CrossSourceData   map[string]string `json:"crossSourceData"`
	ScrapedAt         time.Time         `json:"scrapedAt"`
}
