// Package status implements the per-source scrape state machine.
//
// Valid transitions:
//
//	idle ──► scraping ──► active
//	            ▲   │
//	            │   └───► error
//	            │
//	 active / error (next attempt)
//
// Only the Started event leaves idle, active or error; Succeeded and Failed are
// accepted only while scraping.
package status

import (
	"errors"
	"fmt"
	"time"

	"github.com/pauljones0/production-scout/internal/models"
)

// ErrInvalidTransition is returned when an event does not apply to the current state.
var ErrInvalidTransition = errors.New("invalid scrape state transition")

// Event is something that happened to a source's scrape cycle.
type Event interface {
	target() models.ScrapeState
}

// Started marks the beginning of a scrape attempt.
type Started struct {
	At time.Time
}

// Succeeded marks an adapter returning Count postings.
type Succeeded struct {
	Count int
}

// Failed marks an adapter or pipeline error.
type Failed struct {
	Err error
}

func (Started) target() models.ScrapeState   { return models.StateScraping }
func (Succeeded) target() models.ScrapeState { return models.StateActive }
func (Failed) target() models.ScrapeState    { return models.StateError }

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[models.ScrapeState][]models.ScrapeState{
	models.StateIdle:     {models.StateScraping},
	models.StateActive:   {models.StateScraping},
	models.StateError:    {models.StateScraping},
	models.StateScraping: {models.StateActive, models.StateError},
}

// IsTransitionAllowed returns true when moving from → to is permitted.
func IsTransitionAllowed(from, to models.ScrapeState) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyTransition returns the status that results from applying ev to s.
// On an invalid transition s is returned unchanged with ErrInvalidTransition.
func ApplyTransition(s models.SourceStatus, ev Event) (models.SourceStatus, error) {
	if ev == nil {
		return s, fmt.Errorf("%w: nil event", ErrInvalidTransition)
	}
	to := ev.target()
	if !IsTransitionAllowed(s.State, to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.State, to)
	}

	next := s
	next.State = to
	switch e := ev.(type) {
	case Started:
		at := e.At
		next.LastScrapeAt = &at
	case Succeeded:
		if e.Count < 0 {
			return s, fmt.Errorf("%w: negative posting count %d", ErrInvalidTransition, e.Count)
		}
		next.PostingCount = e.Count
	case Failed:
		// postingCount and lastScrapeAt keep their prior values.
	}
	return next, nil
}
