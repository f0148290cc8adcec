package status

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pauljones0/production-scout/internal/models"
)

// Tracker owns the SourceStatus of every known source and serialises scrape
// cycles per source.
type Tracker struct {
	mu       sync.RWMutex
	statuses map[string]models.SourceStatus
	locks    map[string]chan struct{}
}

// NewTracker creates an idle status for every source.
func NewTracker(sources []string) *Tracker {
	t := &Tracker{
		statuses: make(map[string]models.SourceStatus, len(sources)),
		locks:    make(map[string]chan struct{}, len(sources)),
	}
	for _, s := range sources {
		t.statuses[s] = models.SourceStatus{State: models.StateIdle}
		t.locks[s] = make(chan struct{}, 1)
	}
	return t
}

// Acquire blocks until the caller holds source's cycle lock or ctx is done.
// The returned release func must be called exactly once.
func (t *Tracker) Acquire(ctx context.Context, source string) (func(), error) {
	t.mu.RLock()
	lock, ok := t.locks[source]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrUnknownSource, source)
	}

	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() { once.Do(func() { <-lock }) }, nil
}

// Apply runs ev against source's status and stores the result.
func (t *Tracker) Apply(source string, ev Event) (models.SourceStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current, ok := t.statuses[source]
	if !ok {
		return models.SourceStatus{}, fmt.Errorf("%w: %s", models.ErrUnknownSource, source)
	}
	next, err := ApplyTransition(current, ev)
	if err != nil {
		return current, fmt.Errorf("source %s: %w", source, err)
	}
	t.statuses[source] = next
	return next, nil
}

// Get returns the status for source.
func (t *Tracker) Get(source string) (models.SourceStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	s, ok := t.statuses[source]
	return s, ok
}

// Snapshot returns a copy of every status keyed by source.
func (t *Tracker) Snapshot() map[string]models.SourceStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]models.SourceStatus, len(t.statuses))
	for k, v := range t.statuses {
		if v.LastScrapeAt != nil {
			at := *v.LastScrapeAt
			v.LastScrapeAt = &at
		}
		out[k] = v
	}
	return out
}

// Sources returns the known source names, sorted.
func (t *Tracker) Sources() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.statuses))
	for k := range t.statuses {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Restore carries persisted counters over for known sources. Every state is
// reset to idle since no cycle has run in this process yet; unknown sources are
// ignored.
func (t *Tracker) Restore(saved map[string]models.SourceStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for source, s := range saved {
		if _, ok := t.statuses[source]; !ok {
			continue
		}
		restored := models.SourceStatus{State: models.StateIdle, PostingCount: s.PostingCount}
		if s.PostingCount < 0 {
			restored.PostingCount = 0
		}
		if s.LastScrapeAt != nil {
			at := *s.LastScrapeAt
			restored.LastScrapeAt = &at
		}
		t.statuses[source] = restored
	}
}
