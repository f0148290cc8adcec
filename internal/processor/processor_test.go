package processor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pauljones0/production-scout/internal/catalog"
	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/sources"
	"github.com/pauljones0/production-scout/internal/status"
)

// --- Mock implementations ---

type mockAdapter struct {
	mu        sync.Mutex
	raws      []models.RawPosting
	err       error
	block     bool
	delay     time.Duration
	active    int32
	maxActive int32
}

func (m *mockAdapter) Retrieve(ctx context.Context) ([]models.RawPosting, error) {
	n := atomic.AddInt32(&m.active, 1)
	defer atomic.AddInt32(&m.active, -1)
	for {
		max := atomic.LoadInt32(&m.maxActive)
		if n <= max || atomic.CompareAndSwapInt32(&m.maxActive, max, n) {
			break
		}
	}

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.delay > 0 {
		time.Sleep(m.delay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]models.RawPosting, len(m.raws))
	copy(out, m.raws)
	return out, nil
}

func (m *mockAdapter) set(raws []models.RawPosting, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raws = raws
	m.err = err
}

type mockState struct {
	mu           sync.Mutex
	catalog      []models.Posting
	statuses     map[string]models.SourceStatus
	catalogErr   error
	statusErr    error
	catalogSaves int
}

func (m *mockState) SaveCatalog(_ context.Context, postings []models.Posting) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.catalogSaves++
	if m.catalogErr != nil {
		return m.catalogErr
	}
	m.catalog = postings
	return nil
}

func (m *mockState) SaveStatuses(_ context.Context, statuses map[string]models.SourceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.statusErr != nil {
		return m.statusErr
	}
	m.statuses = statuses
	return nil
}

type mockNotifier struct {
	mu      sync.Mutex
	batches [][]models.Posting
	err     error
}

func (m *mockNotifier) Notify(_ context.Context, _ string, postings []models.Posting) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, postings)
	if m.err != nil {
		return 0, m.err
	}
	return len(postings), nil
}

type mockEnricher struct {
	seen []string
}

func (m *mockEnricher) Enrich(_ context.Context, postings []models.RawPosting) {
	for i := range postings {
		m.seen = append(m.seen, postings[i].Title)
		postings[i].Summary = "summary of " + postings[i].Title
	}
}

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	pipeline *Pipeline
	catalog  *catalog.Catalog
	tracker  *status.Tracker
	state    *mockState
}

func newFixture(adapters map[string]sources.Adapter, existing []models.Posting, opts ...Option) *fixture {
	reg := sources.NewStaticRegistry(adapters)
	cat := catalog.New(existing)
	tracker := status.NewTracker(reg.IDs())
	state := &mockState{}
	opts = append([]Option{WithClock(func() time.Time { return t0 })}, opts...)
	return &fixture{
		pipeline: New(reg, cat, tracker, state, opts...),
		catalog:  cat,
		tracker:  tracker,
		state:    state,
	}
}

func raw(title, description string) models.RawPosting {
	return models.RawPosting{Title: title, Description: description}
}

// --- Tests ---

func TestScrape_MergesAndRecordsStatus(t *testing.T) {
	adapter := &mockAdapter{raws: []models.RawPosting{
		raw("Creature Feature", "heavy vfx and creature work"),
		raw("Indie Drama", "dialogue driven"),
		raw("Creature Feature", "duplicate listing"),
	}}
	f := newFixture(map[string]sources.Adapter{"hub": adapter}, nil)

	res, err := f.pipeline.Scrape(context.Background(), "hub")
	if err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	want := Result{Source: "hub", Success: true, ProjectsAdded: 2, TotalProjects: 2}
	if res != want {
		t.Errorf("Scrape() = %+v, want %+v", res, want)
	}

	st, _ := f.tracker.Get("hub")
	if st.State != models.StateActive || st.PostingCount != 3 {
		t.Errorf("status = %+v, want active with postingCount 3 (adapter yield)", st)
	}
	if st.LastScrapeAt == nil || !st.LastScrapeAt.Equal(t0) {
		t.Errorf("lastScrapeAt = %v, want %v", st.LastScrapeAt, t0)
	}

	if len(f.state.catalog) != 2 {
		t.Errorf("persisted catalog has %d postings, want 2", len(f.state.catalog))
	}
	if f.state.statuses["hub"].State != models.StateActive {
		t.Errorf("persisted status = %+v", f.state.statuses["hub"])
	}
	if got := f.catalog.All()[0].VfxNeeds; got != models.VfxExtreme {
		t.Errorf("first posting VfxNeeds = %s, want Extreme", got)
	}
}

func TestScrape_FailingAdapterKeepsCount(t *testing.T) {
	adapter := &mockAdapter{raws: []models.RawPosting{raw("A", "vfx"), raw("B", "cgi")}}
	reg := sources.NewStaticRegistry(map[string]sources.Adapter{"hub": adapter})
	cat := catalog.New(nil)
	tracker := status.NewTracker(reg.IDs())
	now := t0
	p := New(reg, cat, tracker, &mockState{}, WithClock(func() time.Time { return now }))

	if _, err := p.Scrape(context.Background(), "hub"); err != nil {
		t.Fatalf("first Scrape() error = %v", err)
	}

	now = t0.Add(time.Hour)
	adapter.set(nil, models.NewRetrievalError("hub", models.ReasonUnreachable, errors.New("connection refused")))
	res, err := p.Scrape(context.Background(), "hub")

	var re *models.RetrievalError
	if !errors.As(err, &re) {
		t.Fatalf("Scrape() error = %v, want *RetrievalError", err)
	}
	if res.Success || res.TotalProjects != 2 || res.Error == "" {
		t.Errorf("Scrape() result = %+v", res)
	}

	st, _ := tracker.Get("hub")
	if st.State != models.StateError {
		t.Errorf("state = %s, want error", st.State)
	}
	if st.PostingCount != 2 {
		t.Errorf("postingCount = %d, want 2 kept from the last success", st.PostingCount)
	}
	if !st.LastScrapeAt.Equal(now) {
		t.Errorf("lastScrapeAt = %v, want the failed attempt's start %v", st.LastScrapeAt, now)
	}
	if cat.Len() != 2 {
		t.Errorf("catalog changed on failure: %d postings", cat.Len())
	}
}

func TestScrape_PlainAdapterErrorIsWrapped(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{"hub": &mockAdapter{err: errors.New("boom")}}, nil)
	_, err := f.pipeline.Scrape(context.Background(), "hub")
	var re *models.RetrievalError
	if !errors.As(err, &re) || re.Source != "hub" || re.Reason != models.ReasonUnreachable {
		t.Errorf("Scrape() error = %v, want unreachable RetrievalError for hub", err)
	}
}

func TestScrape_UnknownSource(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{"hub": &mockAdapter{}}, nil)
	_, err := f.pipeline.Scrape(context.Background(), "nowhere")
	if !errors.Is(err, models.ErrUnknownSource) {
		t.Errorf("Scrape() error = %v, want ErrUnknownSource", err)
	}
}

func TestScrape_EmptyRetrievalIsSuccess(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{"hub": &mockAdapter{}}, nil)
	res, err := f.pipeline.Scrape(context.Background(), "hub")
	if err != nil || !res.Success || res.ProjectsAdded != 0 {
		t.Fatalf("Scrape() = %+v, %v", res, err)
	}
	st, _ := f.tracker.Get("hub")
	if st.State != models.StateActive || st.PostingCount != 0 {
		t.Errorf("status = %+v, want active with 0 postings", st)
	}
}

func TestScrape_PersistenceFailureIsSwallowed(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{"hub": &mockAdapter{raws: []models.RawPosting{raw("A", "vfx")}}}, nil)
	f.state.catalogErr = &models.PersistenceError{Op: "save", Key: "projects", Err: errors.New("disk full")}
	f.state.statusErr = errors.New("disk full")

	res, err := f.pipeline.Scrape(context.Background(), "hub")
	if err != nil || !res.Success {
		t.Fatalf("Scrape() = %+v, %v; persistence failures must not fail the cycle", res, err)
	}
	if f.catalog.Len() != 1 {
		t.Errorf("in-memory catalog should hold the merge, got %d", f.catalog.Len())
	}
	if f.state.catalogSaves != 1 {
		t.Errorf("catalog save attempted %d times, want 1", f.state.catalogSaves)
	}
}

func TestScrape_NotifiesOnlyAddedPostings(t *testing.T) {
	existing := []models.Posting{{ID: "old", Title: "Old Show"}}
	n := &mockNotifier{}
	adapter := &mockAdapter{raws: []models.RawPosting{raw("Old Show", "again"), raw("New Show", "full cgi")}}
	f := newFixture(map[string]sources.Adapter{"hub": adapter}, existing, WithNotifier(n))

	if _, err := f.pipeline.Scrape(context.Background(), "hub"); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(n.batches) != 1 || len(n.batches[0]) != 1 || n.batches[0][0].Title != "New Show" {
		t.Errorf("notified batches = %+v, want only New Show", n.batches)
	}

	// Nothing new the second time round, so no notification.
	if _, err := f.pipeline.Scrape(context.Background(), "hub"); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(n.batches) != 1 {
		t.Errorf("notifier called %d times, want 1", len(n.batches))
	}
}

func TestScrape_NotifierFailureIsSwallowed(t *testing.T) {
	n := &mockNotifier{err: errors.New("webhook gone")}
	f := newFixture(map[string]sources.Adapter{"hub": &mockAdapter{raws: []models.RawPosting{raw("A", "vfx")}}}, nil, WithNotifier(n))
	if res, err := f.pipeline.Scrape(context.Background(), "hub"); err != nil || !res.Success {
		t.Errorf("Scrape() = %+v, %v", res, err)
	}
}

func TestScrape_EnrichesOnlyUnseenTitles(t *testing.T) {
	existing := []models.Posting{{ID: "old", Title: "Old Show"}}
	e := &mockEnricher{}
	adapter := &mockAdapter{raws: []models.RawPosting{raw("Old Show", "again"), raw("New Show", "full cgi")}}
	f := newFixture(map[string]sources.Adapter{"hub": adapter}, existing, WithEnricher(e))

	if _, err := f.pipeline.Scrape(context.Background(), "hub"); err != nil {
		t.Fatalf("Scrape() error = %v", err)
	}
	if len(e.seen) != 1 || e.seen[0] != "New Show" {
		t.Errorf("enricher saw %v, want [New Show]", e.seen)
	}
	all := f.catalog.All()
	if all[0].Summary != "" {
		t.Errorf("existing posting was modified: %+v", all[0])
	}
	if all[1].Summary != "summary of New Show" {
		t.Errorf("new posting summary = %q", all[1].Summary)
	}
}

func TestScrape_RetrieveTimeout(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{"slow": &mockAdapter{block: true}}, nil,
		WithRetrieveTimeout(30*time.Millisecond))

	start := time.Now()
	_, err := f.pipeline.Scrape(context.Background(), "slow")
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("Scrape() took %v, timeout not applied", elapsed)
	}
	var re *models.RetrievalError
	if !errors.As(err, &re) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Scrape() error = %v, want RetrievalError wrapping DeadlineExceeded", err)
	}
	if st, _ := f.tracker.Get("slow"); st.State != models.StateError {
		t.Errorf("state = %s, want error", st.State)
	}
}

func TestScrape_SerialisesSameSource(t *testing.T) {
	adapter := &mockAdapter{raws: []models.RawPosting{raw("A", "vfx")}, delay: 20 * time.Millisecond}
	f := newFixture(map[string]sources.Adapter{"hub": adapter}, nil)

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.pipeline.Scrape(context.Background(), "hub"); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent Scrape() error = %v", err)
	}
	if adapter.maxActive != 1 {
		t.Errorf("adapter ran %d cycles at once, want 1", adapter.maxActive)
	}
	if f.catalog.Len() != 1 {
		t.Errorf("catalog has %d postings, want 1", f.catalog.Len())
	}
}

func TestScrape_CancelledWhileWaitingForLock(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{"hub": &mockAdapter{}}, nil)
	release, err := f.tracker.Acquire(context.Background(), "hub")
	if err != nil {
		t.Fatal(err)
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := f.pipeline.Scrape(ctx, "hub"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Scrape() error = %v, want DeadlineExceeded", err)
	}
	if st, _ := f.tracker.Get("hub"); st.State != models.StateIdle {
		t.Errorf("state = %s, a cycle that never started must not change status", st.State)
	}
}

func TestScrapeAll_PartialFailure(t *testing.T) {
	f := newFixture(map[string]sources.Adapter{
		"b-broken": &mockAdapter{err: errors.New("503")},
		"a-ok":     &mockAdapter{raws: []models.RawPosting{raw("A", "vfx"), raw("B", "cgi")}},
		"c-ok":     &mockAdapter{raws: []models.RawPosting{raw("B", "cgi"), raw("C", "effects")}},
	}, nil)

	results := f.pipeline.ScrapeAll(context.Background())
	if len(results) != 3 {
		t.Fatalf("ScrapeAll() returned %d results", len(results))
	}
	if results[0].Source != "a-ok" || !results[0].Success {
		t.Errorf("results[0] = %+v", results[0])
	}
	if results[1].Source != "b-broken" || results[1].Success || results[1].Error == "" {
		t.Errorf("results[1] = %+v", results[1])
	}
	if results[2].Source != "c-ok" || !results[2].Success {
		t.Errorf("results[2] = %+v", results[2])
	}
	if f.catalog.Len() != 3 {
		t.Errorf("catalog has %d postings, want 3 distinct titles", f.catalog.Len())
	}

	statuses := f.pipeline.Statuses()
	if statuses["b-broken"].State != models.StateError || statuses["a-ok"].State != models.StateActive {
		t.Errorf("statuses = %+v", statuses)
	}
}

// gatedState holds the first catalog save until release is closed and keeps
// whatever was saved last.
type gatedState struct {
	mu       sync.Mutex
	calls    int
	entered  chan struct{}
	release  chan struct{}
	catalog  []models.Posting
	statuses map[string]models.SourceStatus
}

func (g *gatedState) SaveCatalog(_ context.Context, postings []models.Posting) error {
	g.mu.Lock()
	g.calls++
	first := g.calls == 1
	g.mu.Unlock()
	if first {
		close(g.entered)
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.catalog = postings
	return nil
}

func (g *gatedState) SaveStatuses(_ context.Context, statuses map[string]models.SourceStatus) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses = statuses
	return nil
}

func TestScrape_SlowSaveDoesNotOverwriteNewerState(t *testing.T) {
	reg := sources.NewStaticRegistry(map[string]sources.Adapter{
		"a": &mockAdapter{raws: []models.RawPosting{raw("Alpha", "vfx")}},
		"b": &mockAdapter{raws: []models.RawPosting{raw("Beta", "cgi")}},
	})
	cat := catalog.New(nil)
	tracker := status.NewTracker(reg.IDs())
	state := &gatedState{entered: make(chan struct{}), release: make(chan struct{})}
	p := New(reg, cat, tracker, state, WithClock(func() time.Time { return t0 }))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := p.Scrape(context.Background(), "a"); err != nil {
			t.Errorf("Scrape(a) error = %v", err)
		}
	}()
	<-state.entered

	go func() {
		defer wg.Done()
		if _, err := p.Scrape(context.Background(), "b"); err != nil {
			t.Errorf("Scrape(b) error = %v", err)
		}
	}()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if st, _ := tracker.Get("b"); st.State == models.StateActive {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("second cycle never finished merging")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give the second cycle time to reach its save before the first one lands.
	time.Sleep(50 * time.Millisecond)
	close(state.release)
	wg.Wait()

	state.mu.Lock()
	defer state.mu.Unlock()
	if len(state.catalog) != cat.Len() {
		t.Errorf("persisted catalog has %d postings, in memory %d", len(state.catalog), cat.Len())
	}
	if state.statuses["a"].State != models.StateActive || state.statuses["b"].State != models.StateActive {
		t.Errorf("persisted statuses = %+v, want both active", state.statuses)
	}
}
