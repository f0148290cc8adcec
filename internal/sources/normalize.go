package sources

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/util"
)

// normalize cleans adapter output in place order: whitespace folded, links
// resolved against base, contact emails lifted from the description when the
// listing gave none, and records with no content at all dropped. The result
// is never nil.
func normalize(raws []models.RawPosting, base *url.URL) []models.RawPosting {
	out := make([]models.RawPosting, 0, len(raws))
	for _, r := range raws {
		r.Title = util.CollapseWhitespace(r.Title)
		r.Description = util.CollapseWhitespace(r.Description)
		r.Budget = util.CollapseWhitespace(r.Budget)
		r.Location = util.CollapseWhitespace(r.Location)
		r.Stage = util.CollapseWhitespace(r.Stage)
		r.Company = util.CollapseWhitespace(r.Company)
		r.Summary = util.CollapseWhitespace(r.Summary)

		if r.URL != "" {
			resolved, err := util.ResolveURL(base, r.URL)
			if err != nil {
				slog.Debug("Dropping unparsable posting URL", "url", r.URL, "error", err)
				resolved = ""
			}
			r.URL = resolved
		}

		r.Contacts = normalizeContacts(r.Contacts)
		if !hasEmail(r.Contacts) {
			for _, email := range util.ExtractEmails(r.Description) {
				r.Contacts = append(r.Contacts, models.Contact{Email: email})
			}
		}

		if isEmpty(r) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func normalizeContacts(contacts []models.Contact) []models.Contact {
	var out []models.Contact
	for _, c := range contacts {
		c.Name = util.CollapseWhitespace(c.Name)
		c.Role = util.CollapseWhitespace(c.Role)
		c.Email = strings.TrimPrefix(strings.TrimSpace(c.Email), "mailto:")
		if i := strings.IndexByte(c.Email, '?'); i >= 0 {
			c.Email = c.Email[:i]
		}
		c.Phone = util.CollapseWhitespace(c.Phone)
		if c == (models.Contact{}) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func hasEmail(contacts []models.Contact) bool {
	for _, c := range contacts {
		if c.Email != "" {
			return true
		}
	}
	return false
}

func isEmpty(r models.RawPosting) bool {
	return r.Title == "" && r.Description == "" && r.Budget == "" && r.Location == "" &&
		r.Stage == "" && r.Company == "" && r.URL == "" && len(r.Contacts) == 0
}
