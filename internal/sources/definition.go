package sources

import (
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/pauljones0/production-scout/internal/validator"
)

//go:embed sources.json
var embeddedSources embed.FS

// Kind selects the adapter that parses a source.
type Kind string

const (
	KindHTML Kind = "html"
	KindJSON Kind = "json"
)

// FetchMode selects how a source's pages are downloaded.
type FetchMode string

const (
	FetchHTTP       FetchMode = "http"
	FetchChromedp   FetchMode = "chromedp"
	FetchPlaywright FetchMode = "playwright"
)

// Definition describes one listing source.
type Definition struct {
	ID             string    `json:"id" validate:"required,alphanum"`
	Name           string    `json:"name"`
	Kind           Kind      `json:"kind" validate:"required,oneof=html json"`
	URL            string    `json:"url" validate:"required,url"`
	Fetch          FetchMode `json:"fetch" validate:"omitempty,oneof=http chromedp playwright"`
	AllowedDomains []string  `json:"allowed_domains" validate:"min=1,dive,hostname_rfc1123"`
	Selectors      Selectors `json:"selectors"`
}

// Selectors configures the HTML adapter for one source.
type Selectors struct {
	Container   ListContainer   `json:"container"`
	Elements    ListElements    `json:"elements"`
	Detail      DetailSelectors `json:"detail"`
	EmptyMarker string          `json:"empty_marker"` // present when the listing legitimately has no results
}

type ListContainer struct {
	Item           string `json:"item"`            // e.g., "div.job-listing"
	IgnoreModifier string `json:"ignore_modifier"` // e.g., ".sponsored"
}

type ListElements struct {
	Title       string `json:"title"`
	Link        string `json:"link"`
	Description string `json:"description"`
	Budget      string `json:"budget"`
	Location    string `json:"location"`
	Stage       string `json:"stage"`
	Company     string `json:"company"`
	PostedTime  string `json:"posted_time"`
	Contact     string `json:"contact"`
}

// DetailSelectors are applied to each posting's own page. Empty means no
// detail pages are fetched.
type DetailSelectors struct {
	Description string `json:"description"`
	Contact     string `json:"contact"`
}

func (d DetailSelectors) enabled() bool {
	return d.Description != "" || d.Contact != ""
}

// LoadDefinitions loads source definitions from path when it is set, falling
// back to the embedded sources.json if the file is missing or invalid.
func LoadDefinitions(path string) ([]Definition, error) {
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			defs, parseErr := ParseDefinitions(data)
			if parseErr == nil {
				slog.Info("Loaded source definitions from external file", "path", path, "count", len(defs))
				return defs, nil
			}
			err = parseErr
		}
		slog.Warn("Failed to load external source definitions, falling back to embedded", "path", path, "error", err)
	}

	data, err := embeddedSources.ReadFile("sources.json")
	if err != nil {
		return nil, fmt.Errorf("read embedded sources: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, fmt.Errorf("embedded sources: %w", err)
	}
	slog.Info("Loaded source definitions from embedded config", "count", len(defs))
	return defs, nil
}

// ParseDefinitions decodes and validates a JSON array of definitions.
func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse source config JSON: %w", err)
	}

	v := validator.New()
	seen := make(map[string]bool, len(defs))
	for i := range defs {
		if defs[i].Fetch == "" {
			defs[i].Fetch = FetchHTTP
		}
		if err := v.ValidateStruct(defs[i]); err != nil {
			return nil, fmt.Errorf("source %d (%q): %w", i, defs[i].ID, err)
		}
		if defs[i].Kind == KindHTML && defs[i].Selectors.Container.Item == "" {
			return nil, fmt.Errorf("source %q: html sources need a container item selector", defs[i].ID)
		}
		if seen[defs[i].ID] {
			return nil, fmt.Errorf("duplicate source id %q", defs[i].ID)
		}
		seen[defs[i].ID] = true
	}
	return defs, nil
}
