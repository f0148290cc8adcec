package classifier

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pauljones0/production-scout/internal/models"
)

type vfxRule struct {
	level    models.VfxNeedsLevel
	keywords []string
	patterns []*regexp.Regexp
}

// vfxRules is evaluated top-down; the first rule with a matching keyword wins.
var vfxRules = []vfxRule{
	newVfxRule(models.VfxExtreme, "extensive vfx", "heavy vfx", "full cgi", "green screen", "500+ shots", "creature work"),
	newVfxRule(models.VfxHigh, "vfx supervisor", "vfx heavy", "visual effects", "cgi", "compositing", "200+ shots"),
	newVfxRule(models.VfxMedium, "vfx", "visual effects", "post production", "effects"),
}

func newVfxRule(level models.VfxNeedsLevel, keywords ...string) vfxRule {
	patterns := make([]*regexp.Regexp, len(keywords))
	for i, kw := range keywords {
		patterns[i] = regexp.MustCompile("(?i)" + regexp.QuoteMeta(kw))
	}
	return vfxRule{level: level, keywords: keywords, patterns: patterns}
}

const snippetRadius = 40

// DetermineVfxNeeds returns the VFX workload level for a description along with
// a rationale naming the matched keyword and the text around it.
func DetermineVfxNeeds(description string) (models.VfxNeedsLevel, string) {
	for _, rule := range vfxRules {
		for i, re := range rule.patterns {
			loc := re.FindStringIndex(description)
			if loc == nil {
				continue
			}
			return rule.level, fmt.Sprintf("%s: description mentions %q (%s)",
				rule.level, rule.keywords[i], snippet(description, loc[0], loc[1]))
		}
	}
	return models.VfxLow, fmt.Sprintf("%s: no VFX indicators found in description, defaulted", models.VfxLow)
}

// snippet returns the text surrounding [start, end) trimmed to whole runes.
func snippet(text string, start, end int) string {
	from := start - snippetRadius
	prefix := "..."
	if from <= 0 {
		from, prefix = 0, ""
	}
	to := end + snippetRadius
	suffix := "..."
	if to >= len(text) {
		to, suffix = len(text), ""
	}
	// Step off UTF-8 continuation bytes.
	for from > 0 && from < len(text) && text[from]&0xC0 == 0x80 {
		from--
	}
	for to < len(text) && text[to]&0xC0 == 0x80 {
		to++
	}
	body := strings.Join(strings.Fields(text[from:to]), " ")
	return prefix + body + suffix
}
