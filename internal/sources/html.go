package sources

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/util"
)

const detailConcurrency = 5

// HTMLAdapter scrapes a listing page with goquery using a source's selectors.
type HTMLAdapter struct {
	id      string
	listURL string
	base    *url.URL
	sel     Selectors
	fetcher Fetcher
}

// NewHTMLAdapter builds an adapter for def. The fetcher should already be
// restricted to the source's allowed domains.
func NewHTMLAdapter(def Definition, fetcher Fetcher) (*HTMLAdapter, error) {
	base, err := url.Parse(def.URL)
	if err != nil {
		return nil, fmt.Errorf("source %s: parse url: %w", def.ID, err)
	}
	return &HTMLAdapter{
		id:      def.ID,
		listURL: def.URL,
		base:    base,
		sel:     def.Selectors,
		fetcher: fetcher,
	}, nil
}

// Retrieve fetches the listing page and returns its postings. A page that
// shows the configured empty marker yields an empty slice.
func (a *HTMLAdapter) Retrieve(ctx context.Context) ([]models.RawPosting, error) {
	slog.Info("Scraping listing page", "source", a.id, "url", a.listURL)
	doc, err := a.fetchDocument(ctx, a.listURL)
	if err != nil {
		return nil, retrievalError(a.id, err)
	}

	items := doc.Find(a.sel.Container.Item)
	if items.Length() == 0 {
		if a.sel.EmptyMarker != "" && doc.Find(a.sel.EmptyMarker).Length() > 0 {
			slog.Info("Listing page reports no results", "source", a.id)
			return []models.RawPosting{}, nil
		}
		if fallback := parseJSONLD(doc); len(fallback) > 0 {
			slog.Warn("No listing items matched, using JSON-LD job postings", "source", a.id, "count", len(fallback))
			return normalize(fallback, a.base), nil
		}
		return nil, models.NewRetrievalError(a.id, models.ReasonParse,
			fmt.Errorf("no '%s' elements found on %s. Potential block or page structure change", a.sel.Container.Item, a.listURL))
	}

	var raws []models.RawPosting
	items.Each(func(_ int, s *goquery.Selection) {
		if a.sel.Container.IgnoreModifier != "" && s.Is(a.sel.Container.IgnoreModifier) {
			return
		}
		raws = append(raws, a.parseItem(s))
	})

	if a.sel.Detail.enabled() {
		if err := a.enrichFromDetails(ctx, raws); err != nil {
			return nil, retrievalError(a.id, err)
		}
	}
	return normalize(raws, a.base), nil
}

func (a *HTMLAdapter) parseItem(s *goquery.Selection) models.RawPosting {
	el := a.sel.Elements
	raw := models.RawPosting{
		Title:       text(s, el.Title),
		Description: text(s, el.Description),
		Budget:      text(s, el.Budget),
		Location:    text(s, el.Location),
		Stage:       text(s, el.Stage),
		Company:     text(s, el.Company),
		URL:         link(s, el.Link),
		Contacts:    mailtoContacts(s, el.Contact),
	}
	if raw.URL == "" && el.Title != "" {
		raw.URL = link(s, el.Title)
	}
	if posted := postedTime(s, el.PostedTime); posted != "" {
		if t, ok := util.ParseTime(posted); ok {
			raw.PostedAt = t
		} else {
			slog.Debug("Unrecognised posted time", "source", a.id, "value", posted)
		}
	}
	return raw
}

// enrichFromDetails fetches each posting's own page, replacing the listing
// teaser with the full description. A failed detail page is logged and
// skipped; only cancellation fails the batch.
func (a *HTMLAdapter) enrichFromDetails(ctx context.Context, raws []models.RawPosting) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)

	for i := range raws {
		if raws[i].URL == "" {
			continue
		}
		target, err := util.ResolveURL(a.base, raws[i].URL)
		if err != nil || target == "" {
			continue
		}
		g.Go(func() error {
			doc, err := a.fetchDocument(gctx, target)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("Failed to scrape detail page", "source", a.id, "url", target, "error", err)
				return nil
			}
			if d := text(doc.Selection, a.sel.Detail.Description); d != "" {
				raws[i].Description = d
			}
			if contacts := mailtoContacts(doc.Selection, a.sel.Detail.Contact); len(contacts) > 0 {
				raws[i].Contacts = append(raws[i].Contacts, contacts...)
			}
			return nil
		})
	}
	return g.Wait()
}

func (a *HTMLAdapter) fetchDocument(ctx context.Context, target string) (*goquery.Document, error) {
	body, err := a.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonParse, Err: fmt.Errorf("parse html: %w", err)}
	}
	return doc, nil
}

func text(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	found := s.Find(selector)
	if found.Length() == 0 {
		return ""
	}
	return strings.TrimSpace(found.First().Text())
}

// link returns the href of selector, looking inside it for an anchor when the
// match itself is not one.
func link(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return ""
	}
	if !found.Is("a") {
		found = found.Find("a").First()
	}
	href, _ := found.Attr("href")
	return strings.TrimSpace(href)
}

// postedTime prefers a <time datetime> attribute over the element text.
func postedTime(s *goquery.Selection, selector string) string {
	if selector == "" {
		return ""
	}
	found := s.Find(selector).First()
	if found.Length() == 0 {
		return ""
	}
	t := found
	if !found.Is("time") {
		t = found.Find("time").First()
	}
	if t.Length() > 0 {
		if dt, ok := t.Attr("datetime"); ok && strings.TrimSpace(dt) != "" {
			return dt
		}
		return strings.TrimSpace(t.Text())
	}
	return strings.TrimSpace(found.Text())
}

func mailtoContacts(s *goquery.Selection, selector string) []models.Contact {
	if selector == "" {
		return nil
	}
	var contacts []models.Contact
	s.Find(selector).Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		if !strings.HasPrefix(href, "mailto:") {
			return
		}
		c := models.Contact{Email: href}
		if name := strings.TrimSpace(a.Text()); name != "" && !strings.Contains(name, "@") {
			c.Name = name
		}
		contacts = append(contacts, c)
	})
	return contacts
}

// retrievalError attaches the source id to a fetch failure.
func retrievalError(source string, err error) error {
	var re *models.RetrievalError
	if errors.As(err, &re) {
		return err
	}
	var fe *FetchError
	if errors.As(err, &fe) {
		return models.NewRetrievalError(source, fe.Reason, err)
	}
	return models.NewRetrievalError(source, models.ReasonUnreachable, err)
}
