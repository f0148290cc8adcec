package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/pauljones0/production-scout/internal/catalog"
	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/processor"
)

type fakeScraper struct {
	results  map[string]processor.Result
	errs     map[string]error
	statuses map[string]models.SourceStatus
	calls    []string
}

func (f *fakeScraper) Scrape(_ context.Context, id string) (processor.Result, error) {
	f.calls = append(f.calls, id)
	if err, ok := f.errs[id]; ok {
		return processor.Result{Source: id}, err
	}
	res, ok := f.results[id]
	if !ok {
		return processor.Result{Source: id}, fmt.Errorf("%w: %s", models.ErrUnknownSource, id)
	}
	return res, nil
}

func (f *fakeScraper) ScrapeAll(ctx context.Context) []processor.Result {
	var out []processor.Result
	for _, id := range []string{"alpha", "beta"} {
		res, err := f.Scrape(ctx, id)
		if err != nil {
			res.Error = err.Error()
		}
		out = append(out, res)
	}
	return out
}

func (f *fakeScraper) Statuses() map[string]models.SourceStatus {
	return f.statuses
}

func newTestRouter(t *testing.T, cat CatalogReader, s Scraper) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(cat, s, prometheus.NewRegistry()).Register(r)
	return r
}

func do(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]models.Posting{
		{ID: "1", Title: "Star Saga", Tier: models.Tier1, VfxNeeds: models.VfxExtreme, Source: "alpha"},
		{ID: "2", Title: "Kitchen Doc", Tier: models.Tier4, VfxNeeds: models.VfxLow, Source: "beta"},
	})
}

func TestListProjects(t *testing.T) {
	tests := []struct {
		name      string
		cat       *catalog.Catalog
		path      string
		wantCount int
		wantBody  string
	}{
		{name: "all", cat: testCatalog(), path: "/api/projects", wantCount: 2},
		{name: "empty catalog is an empty array", cat: catalog.New(nil), path: "/api/projects", wantBody: "[]"},
		{name: "by tier", cat: testCatalog(), path: "/api/projects/tier/tier4", wantCount: 1},
		{name: "unknown tier", cat: testCatalog(), path: "/api/projects/tier/platinum", wantBody: "[]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter(t, tt.cat, &fakeScraper{})
			w := do(r, http.MethodGet, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			if tt.wantBody != "" {
				if got := strings.TrimSpace(w.Body.String()); got != tt.wantBody {
					t.Fatalf("body = %q, want %q", got, tt.wantBody)
				}
				return
			}
			var got []models.Posting
			if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(got) != tt.wantCount {
				t.Errorf("got %d postings, want %d", len(got), tt.wantCount)
			}
		})
	}
}

func TestScrapeSource(t *testing.T) {
	s := &fakeScraper{
		results: map[string]processor.Result{
			"alpha": {Source: "alpha", Success: true, ProjectsAdded: 3, TotalProjects: 10},
		},
		errs: map[string]error{
			"beta": &models.RetrievalError{Source: "beta", Reason: models.ReasonAuth, Err: errors.New("status 401")},
		},
	}
	r := newTestRouter(t, testCatalog(), s)

	tests := []struct {
		name       string
		source     string
		wantStatus int
		check      func(t *testing.T, body map[string]any)
	}{
		{
			name:       "success",
			source:     "alpha",
			wantStatus: http.StatusOK,
			check: func(t *testing.T, body map[string]any) {
				if body["success"] != true || body["projectsAdded"] != float64(3) || body["totalProjects"] != float64(10) || body["source"] != "alpha" {
					t.Errorf("unexpected body %v", body)
				}
				if _, ok := body["error"]; ok {
					t.Errorf("success body carries an error field: %v", body)
				}
			},
		},
		{
			name:       "unknown source",
			source:     "nope",
			wantStatus: http.StatusNotFound,
			check: func(t *testing.T, body map[string]any) {
				if msg, _ := body["error"].(string); !strings.Contains(msg, "nope") {
					t.Errorf("error = %q, want source id", msg)
				}
			},
		},
		{
			name:       "retrieval failure",
			source:     "beta",
			wantStatus: http.StatusInternalServerError,
			check: func(t *testing.T, body map[string]any) {
				if msg, _ := body["error"].(string); !strings.Contains(msg, "status 401") {
					t.Errorf("error = %q, want the triggering message", msg)
				}
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/scrape/"+tt.source)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]any
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			tt.check(t, body)
		})
	}
}

func TestScrapeAll(t *testing.T) {
	s := &fakeScraper{
		results: map[string]processor.Result{"alpha": {Source: "alpha", Success: true, ProjectsAdded: 1, TotalProjects: 1}},
		errs:    map[string]error{"beta": errors.New("boom")},
	}
	r := newTestRouter(t, testCatalog(), s)

	w := do(r, http.MethodPost, "/api/scrape")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 on partial failure", w.Code)
	}
	var got []processor.Result
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if !got[0].Success || got[1].Success || got[1].Error != "boom" {
		t.Errorf("unexpected results %+v", got)
	}
}

func TestSourcesAndStats(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &fakeScraper{statuses: map[string]models.SourceStatus{
		"alpha": {State: models.StateActive, PostingCount: 4, LastScrapeAt: &at},
		"beta":  {State: models.StateIdle},
	}}
	r := newTestRouter(t, testCatalog(), s)

	t.Run("sources", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/sources")
		var got map[string]models.SourceStatus
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got["alpha"].State != models.StateActive || got["alpha"].PostingCount != 4 {
			t.Errorf("alpha = %+v", got["alpha"])
		}
		if got["beta"].LastScrapeAt != nil {
			t.Errorf("beta lastScrapeAt = %v, want null", got["beta"].LastScrapeAt)
		}
	})

	t.Run("stats", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/stats")
		var got struct {
			Total      int                            `json:"total"`
			ByTier     map[string]int                 `json:"byTier"`
			ByVfxNeeds map[string]int                 `json:"byVfxNeeds"`
			Sources    map[string]models.SourceStatus `json:"sources"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got.Total != 2 || got.ByTier["tier1"] != 1 || got.ByTier["tier2"] != 0 || got.ByVfxNeeds["Low"] != 1 {
			t.Errorf("unexpected stats %+v", got)
		}
		if len(got.ByTier) != 4 || len(got.ByVfxNeeds) != 4 {
			t.Errorf("stats should list every tier and level: %+v", got)
		}
		if len(got.Sources) != 2 {
			t.Errorf("sources = %v", got.Sources)
		}
	})
}

func TestHealthAndMetrics(t *testing.T) {
	r := newTestRouter(t, testCatalog(), &fakeScraper{})

	w := do(r, http.MethodGet, "/health")
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["uptime"] == "" {
		t.Errorf("health = %v", body)
	}

	w = do(r, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Errorf("metrics status = %d", w.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RecoveryMiddleware(), LoggerMiddleware())
	r.GET("/panic", func(*gin.Context) { panic("kaboom") })

	w := do(r, http.MethodGet, "/panic")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestServerConfigDefaults(t *testing.T) {
	var cfg ServerConfig
	cfg.SetDefaults()
	if cfg.Port != "8080" || cfg.WriteTimeout < 2*time.Minute || cfg.ShutdownTimeout == 0 {
		t.Errorf("defaults = %+v", cfg)
	}
}
