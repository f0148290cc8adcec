package sources

import (
	"context"
	"fmt"
	"sort"

	"github.com/pauljones0/production-scout/internal/models"
)

// Adapter retrieves the current postings of one source. Implementations
// return a *models.RetrievalError when the source cannot be read; an empty
// slice with a nil error means the source simply has nothing listed.
type Adapter interface {
	Retrieve(ctx context.Context) ([]models.RawPosting, error)
}

// Registry maps source ids to adapters. It is built once at startup and
// never changes.
type Registry struct {
	adapters map[string]Adapter
	names    map[string]string
	ids      []string
}

// NewRegistry builds an adapter for every definition, using the fetcher
// registered for its fetch mode restricted to its allowed domains.
func NewRegistry(defs []Definition, fetchers map[FetchMode]Fetcher) (*Registry, error) {
	adapters := make(map[string]Adapter, len(defs))
	names := make(map[string]string, len(defs))
	for _, def := range defs {
		if _, dup := adapters[def.ID]; dup {
			return nil, fmt.Errorf("duplicate source id %q", def.ID)
		}
		mode := def.Fetch
		if mode == "" {
			mode = FetchHTTP
		}
		fetcher, ok := fetchers[mode]
		if !ok {
			return nil, fmt.Errorf("source %s: no fetcher for mode %q", def.ID, mode)
		}
		fetcher = Restrict(fetcher, def.AllowedDomains)

		var adapter Adapter
		var err error
		switch def.Kind {
		case KindHTML:
			adapter, err = NewHTMLAdapter(def, fetcher)
		case KindJSON:
			adapter, err = NewJSONAdapter(def, fetcher)
		default:
			err = fmt.Errorf("source %s: unknown kind %q", def.ID, def.Kind)
		}
		if err != nil {
			return nil, err
		}
		adapters[def.ID] = adapter
		names[def.ID] = def.Name
	}
	return newRegistry(adapters, names), nil
}

// NewStaticRegistry wraps adapters that were built elsewhere.
func NewStaticRegistry(adapters map[string]Adapter) *Registry {
	copied := make(map[string]Adapter, len(adapters))
	for id, a := range adapters {
		copied[id] = a
	}
	return newRegistry(copied, map[string]string{})
}

func newRegistry(adapters map[string]Adapter, names map[string]string) *Registry {
	ids := make([]string, 0, len(adapters))
	for id := range adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return &Registry{adapters: adapters, names: names, ids: ids}
}

// Get returns the adapter for id.
func (r *Registry) Get(id string) (Adapter, bool) {
	a, ok := r.adapters[id]
	return a, ok
}

// IDs returns every registered source id in sorted order.
func (r *Registry) IDs() []string {
	out := make([]string, len(r.ids))
	copy(out, r.ids)
	return out
}

// Name returns the display name of id, falling back to the id itself.
func (r *Registry) Name(id string) string {
	if n := r.names[id]; n != "" {
		return n
	}
	return id
}
