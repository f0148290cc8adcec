package sources

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/util"
)

// jsonLDJobPosting is the subset of schema.org JobPosting that listing pages
// embed for search engines.
type jsonLDJobPosting struct {
	Type               string          `json:"@type"`
	Title              string          `json:"title"`
	Description        string          `json:"description"`
	DatePosted         string          `json:"datePosted"`
	URL                string          `json:"url"`
	EmploymentType     json.RawMessage `json:"employmentType"`
	HiringOrganization struct {
		Name string `json:"name"`
	} `json:"hiringOrganization"`
	JobLocation json.RawMessage `json:"jobLocation"`
	BaseSalary  struct {
		Currency string `json:"currency"`
		Value    struct {
			Value    json.Number `json:"value"`
			MinValue json.Number `json:"minValue"`
			MaxValue json.Number `json:"maxValue"`
		} `json:"value"`
	} `json:"baseSalary"`
}

type jsonLDPlace struct {
	Address struct {
		Locality string `json:"addressLocality"`
		Region   string `json:"addressRegion"`
	} `json:"address"`
}

// parseJSONLD extracts JobPosting objects from ld+json script tags. It is the
// fallback when a page's markup no longer matches the configured selectors.
func parseJSONLD(doc *goquery.Document) []models.RawPosting {
	var out []models.RawPosting
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		for _, jp := range decodeJobPostings([]byte(s.Text())) {
			out = append(out, jp.toRaw())
		}
	})
	return out
}

func decodeJobPostings(data []byte) []jsonLDJobPosting {
	var many []jsonLDJobPosting
	if err := json.Unmarshal(data, &many); err != nil {
		var one jsonLDJobPosting
		if err := json.Unmarshal(data, &one); err != nil {
			return nil
		}
		many = []jsonLDJobPosting{one}
	}
	out := many[:0]
	for _, jp := range many {
		if jp.Type == "JobPosting" {
			out = append(out, jp)
		}
	}
	return out
}

func (jp jsonLDJobPosting) toRaw() models.RawPosting {
	raw := models.RawPosting{
		Title:       jp.Title,
		Description: htmlToText(jp.Description),
		Company:     jp.HiringOrganization.Name,
		Location:    jp.location(),
		Stage:       firstString(jp.EmploymentType),
		Budget:      jp.budget(),
		URL:         jp.URL,
	}
	if t, ok := util.ParseTime(jp.DatePosted); ok {
		raw.PostedAt = t
	}
	return raw
}

func (jp jsonLDJobPosting) location() string {
	var places []jsonLDPlace
	if err := json.Unmarshal(jp.JobLocation, &places); err != nil {
		var one jsonLDPlace
		if err := json.Unmarshal(jp.JobLocation, &one); err != nil {
			return ""
		}
		places = []jsonLDPlace{one}
	}
	if len(places) == 0 {
		return ""
	}
	parts := []string{}
	for _, p := range []string{places[0].Address.Locality, places[0].Address.Region} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func (jp jsonLDJobPosting) budget() string {
	v := jp.BaseSalary.Value
	switch {
	case v.MinValue != "" && v.MaxValue != "":
		return "$" + thousands(v.MinValue) + "-" + thousands(v.MaxValue)
	case v.Value != "":
		return "$" + thousands(v.Value)
	}
	return ""
}

// thousands renders a dollar amount in the K notation budgets are written in.
func thousands(n json.Number) string {
	f, err := n.Float64()
	if err != nil || f < 1000 {
		return n.String()
	}
	return strconv.FormatFloat(f/1000, 'f', -1, 64) + "K"
}

func firstString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
		return list[0]
	}
	return ""
}

// htmlToText strips markup from rich description fields.
func htmlToText(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return s
	}
	return doc.Text()
}
