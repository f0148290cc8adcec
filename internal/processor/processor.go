package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/production-scout/internal/catalog"
	"github.com/pauljones0/production-scout/internal/merge"
	"github.com/pauljones0/production-scout/internal/metrics"
	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/sources"
	"github.com/pauljones0/production-scout/internal/status"
)

const (
	defaultRetrieveTimeout = 2 * time.Minute
	persistTimeout         = 15 * time.Second
	notifyTimeout          = 2 * time.Minute
)

// Result is the outcome of one scrape cycle.
type Result struct {
	Source        string `json:"source"`
	Success       bool   `json:"success"`
	ProjectsAdded int    `json:"projectsAdded"`
	TotalProjects int    `json:"totalProjects"`
	Error         string `json:"error,omitempty"`
}

// Pipeline runs scrape cycles: retrieve, classify and merge, record status,
// persist and notify.
type Pipeline struct {
	adapters AdapterRegistry
	catalog  *catalog.Catalog
	tracker  *status.Tracker
	state    StateStore
	merger   Merger
	notifier PostingNotifier
	enricher PostingEnricher
	metrics  *metrics.Metrics
	timeout  time.Duration
	now      func() time.Time

	// persistMu orders saves so a slow write of an older snapshot cannot
	// land after a newer one.
	persistMu sync.Mutex
}

type Option func(*Pipeline)

func WithNotifier(n PostingNotifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

func WithEnricher(e PostingEnricher) Option {
	return func(p *Pipeline) { p.enricher = e }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithMerger(m Merger) Option {
	return func(p *Pipeline) { p.merger = m }
}

// WithRetrieveTimeout bounds how long one adapter may take.
func WithRetrieveTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(adapters AdapterRegistry, cat *catalog.Catalog, tracker *status.Tracker, state StateStore, opts ...Option) *Pipeline {
	p := &Pipeline{
		adapters: adapters,
		catalog:  cat,
		tracker:  tracker,
		state:    state,
		merger:   merge.New(),
		timeout:  defaultRetrieveTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Scrape runs one cycle for sourceID. Only one cycle per source runs at a
// time; a second caller waits for the first to finish or for ctx to end.
// Retrieval failures come back as *models.RetrievalError after the source
// has been marked as errored. Persistence and notification failures are
// logged and never fail the cycle.
func (p *Pipeline) Scrape(ctx context.Context, sourceID string) (Result, error) {
	adapter, ok := p.adapters.Get(sourceID)
	if !ok {
		return Result{Source: sourceID}, fmt.Errorf("%w: %s", models.ErrUnknownSource, sourceID)
	}

	release, err := p.tracker.Acquire(ctx, sourceID)
	if err != nil {
		return Result{Source: sourceID}, err
	}
	defer release()

	started := p.now()
	if _, err := p.tracker.Apply(sourceID, status.Started{At: started}); err != nil {
		return Result{Source: sourceID}, fmt.Errorf("start cycle for %s: %w", sourceID, err)
	}
	slog.Info("Scrape cycle started", "source", sourceID)

	raw, err := p.retrieve(ctx, sourceID, adapter)
	if err != nil {
		p.fail(ctx, sourceID, err, started)
		return Result{Source: sourceID, TotalProjects: p.catalog.Len(), Error: err.Error()}, err
	}

	if p.enricher != nil {
		raw = p.enrich(ctx, raw)
	}

	var added []models.Posting
	updated, err := p.catalog.Update(func(current []models.Posting) ([]models.Posting, error) {
		next, n := p.merger.Merge(current, raw, sourceID)
		added = next[len(next)-n:]
		return next, nil
	})
	if err != nil {
		p.fail(ctx, sourceID, err, started)
		return Result{Source: sourceID, TotalProjects: p.catalog.Len(), Error: err.Error()}, err
	}

	if _, err := p.tracker.Apply(sourceID, status.Succeeded{Count: len(raw)}); err != nil {
		slog.Error("Failed to record successful cycle", "source", sourceID, "error", err)
	}
	slog.Info("Scrape cycle complete", "source", sourceID, "retrieved", len(raw), "added", len(added), "total", len(updated))

	p.persist(ctx)
	p.notify(ctx, sourceID, added)
	p.metrics.ObserveMerge(sourceID, len(raw), len(added), len(updated))
	p.metrics.ObserveCycle(sourceID, nil, p.now().Sub(started))

	return Result{
		Source:        sourceID,
		Success:       true,
		ProjectsAdded: len(added),
		TotalProjects: len(updated),
	}, nil
}

// ScrapeAll runs a cycle for every registered source concurrently and
// returns the per-source results in id order. It never fails as a whole.
func (p *Pipeline) ScrapeAll(ctx context.Context) []Result {
	ids := p.adapters.IDs()
	results := make([]Result, len(ids))

	var g errgroup.Group
	for i, id := range ids {
		g.Go(func() error {
			res, err := p.Scrape(ctx, id)
			if err != nil {
				res.Error = err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	slog.Info("Scrape of all sources complete", "sources", len(ids), "failed", failed, "total", p.catalog.Len())
	return results
}

// Statuses returns a copy of every source's status.
func (p *Pipeline) Statuses() map[string]models.SourceStatus {
	return p.tracker.Snapshot()
}

func (p *Pipeline) retrieve(ctx context.Context, sourceID string, adapter sources.Adapter) ([]models.RawPosting, error) {
	rctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	raw, err := adapter.Retrieve(rctx)
	if err != nil {
		var re *models.RetrievalError
		if !errors.As(err, &re) {
			err = models.NewRetrievalError(sourceID, models.ReasonUnreachable, err)
		}
		return nil, err
	}
	if raw == nil {
		raw = []models.RawPosting{}
	}
	return raw, nil
}

func (p *Pipeline) fail(ctx context.Context, sourceID string, cause error, started time.Time) {
	if _, err := p.tracker.Apply(sourceID, status.Failed{Err: cause}); err != nil {
		slog.Error("Failed to record failed cycle", "source", sourceID, "error", err)
	}

	attrs := []any{"source", sourceID, "error", cause}
	var re *models.RetrievalError
	if errors.As(cause, &re) {
		attrs = append(attrs, "reason", re.Reason)
		slog.Debug("Retrieval failure stack", "source", sourceID, "stack", string(re.Stack))
	}
	slog.Error("Scrape cycle failed", attrs...)

	p.persistStatuses(ctx)
	p.metrics.ObserveCycle(sourceID, cause, p.now().Sub(started))
}

// enrich runs the enricher over postings whose titles are not yet in the
// catalog, so repeat listings are not summarised again.
func (p *Pipeline) enrich(ctx context.Context, raw []models.RawPosting) []models.RawPosting {
	fresh := merge.Absent(p.catalog.All(), raw)
	if len(fresh) == 0 {
		return raw
	}
	p.enricher.Enrich(ctx, fresh)

	summaries := make(map[string]string, len(fresh))
	for _, f := range fresh {
		if f.Summary != "" {
			summaries[f.Title] = f.Summary
		}
	}
	out := make([]models.RawPosting, len(raw))
	copy(out, raw)
	for i := range out {
		if s, ok := summaries[out[i].Title]; ok && out[i].Summary == "" {
			out[i].Summary = s
		}
	}
	return out
}

// persist saves the catalog and statuses as they are at save time, not as
// they were when this cycle merged.
func (p *Pipeline) persist(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := p.state.SaveCatalog(pctx, p.catalog.All()); err != nil {
		p.persistenceFailed(err)
	}
	p.saveStatuses(pctx)
}

func (p *Pipeline) persistStatuses(ctx context.Context) {
	p.persistMu.Lock()
	defer p.persistMu.Unlock()

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	p.saveStatuses(pctx)
}

// saveStatuses must be called with persistMu held.
func (p *Pipeline) saveStatuses(ctx context.Context) {
	if err := p.state.SaveStatuses(ctx, p.tracker.Snapshot()); err != nil {
		p.persistenceFailed(err)
	}
}

func (p *Pipeline) persistenceFailed(err error) {
	key := "unknown"
	var pe *models.PersistenceError
	if errors.As(err, &pe) {
		key = pe.Key
	}
	slog.Error("Failed to persist state, continuing with in-memory copy", "key", key, "error", err)
	p.metrics.PersistenceFailed(key)
}

func (p *Pipeline) notify(ctx context.Context, sourceID string, added []models.Posting) {
	if p.notifier == nil || len(added) == 0 {
		return
	}
	nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	sent, err := p.notifier.Notify(nctx, p.adapters.Name(sourceID), added)
	if err != nil {
		slog.Warn("Notification failed", "source", sourceID, "sent", sent, "error", err)
	} else if sent > 0 {
		slog.Info("Sent notifications", "source", sourceID, "count", sent)
	}
	p.metrics.NotificationsDelivered(sent, err)
}
