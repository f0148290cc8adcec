// Package merge reconciles newly retrieved postings into the catalog.
//
// The merge is append-only and keyed on exact title: the first posting seen
// for a title is kept permanently and later postings with the same title are
// discarded without touching the existing entry.
package merge

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/production-scout/internal/classifier"
	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/validator"
)

// PostingValidator checks a raw posting before classification.
type PostingValidator interface {
	ValidatePosting(p models.RawPosting) error
}

// Engine classifies and merges raw postings. The zero value is not usable; use New.
type Engine struct {
	newID    func() string
	now      func() time.Time
	validate PostingValidator
}

// Option customizes an Engine.
type Option func(*Engine)

// WithIDFunc overrides the posting ID generator.
func WithIDFunc(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// WithClock overrides the time source used for ScrapedAt.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// WithValidator overrides the posting validator.
func WithValidator(v PostingValidator) Option {
	return func(e *Engine) { e.validate = v }
}

func New(opts ...Option) *Engine {
	e := &Engine{
		newID:    uuid.NewString,
		now:      time.Now,
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

var defaultEngine = New()

// Merge reconciles incoming against existing using the default engine.
func Merge(existing []models.Posting, incoming []models.RawPosting, sourceID string) ([]models.Posting, int) {
	return defaultEngine.Merge(existing, incoming, sourceID)
}

// Merge returns existing followed by every incoming posting whose title is not
// already present, and the number of postings appended. existing is not modified.
func (e *Engine) Merge(existing []models.Posting, incoming []models.RawPosting, sourceID string) ([]models.Posting, int) {
	out := make([]models.Posting, len(existing), len(existing)+len(incoming))
	copy(out, existing)

	seen := make(map[string]struct{}, len(existing)+len(incoming))
	for _, p := range existing {
		seen[p.Title] = struct{}{}
	}

	scrapedAt := e.now()
	added := 0
	for _, raw := range incoming {
		posting := e.classify(raw, sourceID, scrapedAt)
		if _, dup := seen[posting.Title]; dup {
			continue
		}
		seen[posting.Title] = struct{}{}
		out = append(out, posting)
		added++
	}
	return out, added
}

// Absent returns the incoming postings whose titles are not in existing, in order
// and without in-batch duplicates.
func Absent(existing []models.Posting, incoming []models.RawPosting) []models.RawPosting {
	seen := make(map[string]struct{}, len(existing))
	for _, p := range existing {
		seen[p.Title] = struct{}{}
	}
	var fresh []models.RawPosting
	for _, raw := range incoming {
		if _, dup := seen[raw.Title]; dup {
			continue
		}
		seen[raw.Title] = struct{}{}
		fresh = append(fresh, raw)
	}
	return fresh
}

func (e *Engine) classify(raw models.RawPosting, sourceID string, scrapedAt time.Time) models.Posting {
	var result classifier.Result
	err := e.validate.ValidatePosting(raw)
	var classErr *models.ClassificationError
	switch {
	case errors.As(err, &classErr):
		slog.Warn("Posting lacks required text, classifying as insufficient data",
			"source", sourceID, "title", raw.Title, "missing", classErr.Fields)
		result = classifier.Insufficient(raw.Budget)
	case err != nil:
		slog.Debug("Posting failed optional field validation", "source", sourceID, "title", raw.Title, "error", err)
		result = classifier.Classify(raw.Description, raw.Budget)
	default:
		result = classifier.Classify(raw.Description, raw.Budget)
	}

	return models.Posting{
		ID:                e.newID(),
		Title:             raw.Title,
		Description:       raw.Description,
		Budget:            result.Budget,
		Location:          raw.Location,
		Stage:             raw.Stage,
		Company:           raw.Company,
		PostedAt:          raw.PostedAt,
		Contacts:          raw.Contacts,
		URL:               raw.URL,
		Summary:           raw.Summary,
		Tier:              result.Tier,
		VfxNeeds:          result.VfxNeeds,
		VfxNeedsRationale: result.Rationale,
		Source:            sourceID,
		CrossSourceData:   map[string]string{sourceID: raw.Description},
		ScrapedAt:         scrapedAt,
	}
}
