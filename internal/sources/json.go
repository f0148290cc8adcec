package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/util"
)

// feedResponse mirrors feeds that wrap their listings in an object.
type feedResponse struct {
	Results []feedItem `json:"results"`
	Count   int        `json:"count"`
}

// feedItem mirrors a single listing in a JSON feed.
type feedItem struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Budget      string        `json:"budget"`
	Location    string        `json:"location"`
	Stage       string        `json:"stage"`
	Company     string        `json:"company"`
	PostedAt    string        `json:"posted_at"`
	URL         string        `json:"url"`
	Contacts    []feedContact `json:"contacts"`
}

type feedContact struct {
	Name  string `json:"name"`
	Role  string `json:"role"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// JSONAdapter reads a JSON feed that is either a bare array of listings or
// an object with a "results" array.
type JSONAdapter struct {
	id      string
	feedURL string
	base    *url.URL
	fetcher Fetcher
}

func NewJSONAdapter(def Definition, fetcher Fetcher) (*JSONAdapter, error) {
	base, err := url.Parse(def.URL)
	if err != nil {
		return nil, fmt.Errorf("source %s: parse url: %w", def.ID, err)
	}
	return &JSONAdapter{id: def.ID, feedURL: def.URL, base: base, fetcher: fetcher}, nil
}

func (a *JSONAdapter) Retrieve(ctx context.Context) ([]models.RawPosting, error) {
	slog.Info("Fetching JSON feed", "source", a.id, "url", a.feedURL)
	body, err := a.fetcher.Fetch(ctx, a.feedURL)
	if err != nil {
		return nil, retrievalError(a.id, err)
	}

	items, err := decodeFeed(body)
	if err != nil {
		return nil, models.NewRetrievalError(a.id, models.ReasonParse, err)
	}

	raws := make([]models.RawPosting, 0, len(items))
	for _, it := range items {
		raw := models.RawPosting{
			Title:       it.Title,
			Description: it.Description,
			Budget:      it.Budget,
			Location:    it.Location,
			Stage:       it.Stage,
			Company:     it.Company,
			URL:         it.URL,
		}
		if t, ok := util.ParseTime(it.PostedAt); ok {
			raw.PostedAt = t
		}
		for _, c := range it.Contacts {
			raw.Contacts = append(raw.Contacts, models.Contact(c))
		}
		raws = append(raws, raw)
	}
	return normalize(raws, a.base), nil
}

func decodeFeed(body []byte) ([]feedItem, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty feed body")
	}
	if trimmed[0] == '[' {
		var items []feedItem
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("json unmarshal: %w", err)
		}
		return items, nil
	}
	var resp feedResponse
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}
	return resp.Results, nil
}
