package models

import "time"

// ScrapeState is the lifecycle state of a source's retrieval process.
type ScrapeState string

const (
	StateIdle     ScrapeState = "idle"
	StateScraping ScrapeState = "scraping"
	StateActive   ScrapeState = "active"
	StateError    ScrapeState = "error"
)

// SourceStatus tracks scrape health for a single source.
type SourceStatus struct {
	LastScrapeAt *time.Time  `json:"lastScrapeAt"`
	PostingCount int         `json:"postingCount"`
	State        ScrapeState `json:"state"`
}
