package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pauljones0/production-scout/internal/catalog"
	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/processor"
)

// CatalogReader is the read side of the catalog.
type CatalogReader interface {
	All() []models.Posting
	ByTier(tier models.BudgetTier) []models.Posting
	Stats() catalog.Stats
}

// Scraper runs scrape cycles and reports source health.
type Scraper interface {
	Scrape(ctx context.Context, sourceID string) (processor.Result, error)
	ScrapeAll(ctx context.Context) []processor.Result
	Statuses() map[string]models.SourceStatus
}

// Handler serves the HTTP API.
type Handler struct {
	catalog  CatalogReader
	scraper  Scraper
	gatherer prometheus.Gatherer
	started  time.Time
}

// NewHandler builds the API handler. gatherer may be nil, in which case the
// default Prometheus registry is exposed.
func NewHandler(cat CatalogReader, scraper Scraper, gatherer prometheus.Gatherer) *Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Handler{catalog: cat, scraper: scraper, gatherer: gatherer, started: time.Now()}
}

// statsResponse is the body of GET /api/stats.
type statsResponse struct {
	catalog.Stats
	Sources map[string]models.SourceStatus `json:"sources"`
}

// Register mounts every route on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.GET("/projects", h.listProjects)
	api.GET("/projects/tier/:tier", h.listProjectsByTier)
	api.GET("/sources", h.listSources)
	api.GET("/stats", h.stats)
	api.POST("/scrape", h.scrapeAll)
	api.POST("/scrape/:source", h.scrapeSource)
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) listProjects(c *gin.Context) {
	c.JSON(http.StatusOK, nonNil(h.catalog.All()))
}

func (h *Handler) listProjectsByTier(c *gin.Context) {
	tier := models.BudgetTier(c.Param("tier"))
	c.JSON(http.StatusOK, nonNil(h.catalog.ByTier(tier)))
}

func (h *Handler) listSources(c *gin.Context) {
	c.JSON(http.StatusOK, h.scraper.Statuses())
}

func (h *Handler) stats(c *gin.Context) {
	c.JSON(http.StatusOK, statsResponse{
		Stats:   h.catalog.Stats(),
		Sources: h.scraper.Statuses(),
	})
}

func (h *Handler) scrapeSource(c *gin.Context) {
	source := c.Param("source")
	// A client hanging up must not abort a cycle halfway; the retrieve timeout bounds it.
	res, err := h.scraper.Scrape(context.WithoutCancel(c.Request.Context()), source)
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, models.ErrUnknownSource) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) scrapeAll(c *gin.Context) {
	results := h.scraper.ScrapeAll(context.WithoutCancel(c.Request.Context()))
	c.JSON(http.StatusOK, results)
}

func nonNil(postings []models.Posting) []models.Posting {
	if postings == nil {
		return []models.Posting{}
	}
	return postings
}
