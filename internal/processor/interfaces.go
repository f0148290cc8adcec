package processor

import (
	"context"

	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/sources"
)

// AdapterRegistry resolves source ids to adapters.
type AdapterRegistry interface {
	Get(id string) (sources.Adapter, bool)
	IDs() []string
	Name(id string) string
}

// StateStore abstracts persistence of the catalog and source statuses.
type StateStore interface {
	SaveCatalog(ctx context.Context, postings []models.Posting) error
	SaveStatuses(ctx context.Context, statuses map[string]models.SourceStatus) error
}

// PostingNotifier abstracts the notification layer.
type PostingNotifier interface {
	Notify(ctx context.Context, sourceName string, postings []models.Posting) (int, error)
}

// PostingEnricher fills optional fields on postings that are about to be merged.
type PostingEnricher interface {
	Enrich(ctx context.Context, postings []models.RawPosting)
}

// Merger folds incoming postings into the catalog.
type Merger interface {
	Merge(existing []models.Posting, incoming []models.RawPosting, sourceID string) ([]models.Posting, int)
}
