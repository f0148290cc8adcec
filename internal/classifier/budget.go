package classifier

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pauljones0/production-scout/internal/models"
)

// BudgetUnknown is the budget recorded when none can be found.
const BudgetUnknown = "TBD"

var (
	currencyPattern = regexp.MustCompile(`\$\d+(?:,\d+)*(?:\.\d+)?[KkMm]?`)
	rangePattern    = regexp.MustCompile(`\b(\d+)\s*[kK]?\s*-\s*(\d+)[kK]?\b`)
	leadingNumber   = regexp.MustCompile(`^(\d+(?:\.\d+)?)(\s*m)?`)

	magnitudeStripper = strings.NewReplacer("$", "", ",", "", "K", "", "k", "")
)

// Tier thresholds in thousands of currency units.
const (
	tier1Threshold = 10000
	tier2Threshold = 1000
	tier3Threshold = 100
)

// ExtractBudget pulls a budget out of free text: a currency amount such as
// "$2.5M" if present, else a numeric range rendered as "$<lo>K-<hi>K", else "TBD".
func ExtractBudget(text string) string {
	if m := currencyPattern.FindString(text); m != "" {
		return m
	}
	if lo, hi, ok := findRange(text); ok {
		return fmt.Sprintf("$%sK-%sK", lo, hi)
	}
	return BudgetUnknown
}

// findRange returns the first "lo-hi" pair that is not part of a longer
// hyphen or slash chain such as a phone number or an ISO date. Short day or
// date ranges like "3-5" still match.
func findRange(text string) (lo, hi string, ok bool) {
	for _, loc := range rangePattern.FindAllStringSubmatchIndex(text, -1) {
		if chained(text, loc[0], loc[1]) {
			continue
		}
		return text[loc[2]:loc[3]], text[loc[4]:loc[5]], true
	}
	return "", "", false
}

func chained(text string, start, end int) bool {
	if start > 0 && strings.IndexByte("-/", text[start-1]) >= 0 {
		return true
	}
	return end < len(text) && strings.IndexByte("-/", text[end]) >= 0
}

// DetermineTier maps a budget string to a tier. Magnitudes are normalised to
// thousands: "K" is dropped and anything containing "M" is multiplied by 1000.
//
// A budget with no numeric value at all is tier3, while a numeric value under
// $100K is tier4. Unknown budgets deliberately land mid-tier.
func DetermineTier(budget string) models.BudgetTier {
	amount, ok := budgetMagnitude(budget)
	if !ok {
		return models.Tier3
	}
	switch {
	case amount >= tier1Threshold:
		return models.Tier1
	case amount >= tier2Threshold:
		return models.Tier2
	case amount >= tier3Threshold:
		return models.Tier3
	default:
		return models.Tier4
	}
}

// budgetMagnitude returns the budget's leading amount in thousands.
func budgetMagnitude(budget string) (float64, bool) {
	cleaned := strings.TrimSpace(magnitudeStripper.Replace(budget))
	m := leadingNumber.FindStringSubmatch(cleaned)
	if m == nil {
		return 0, false
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	// A lowercase "15m" right after the number counts the same as "M".
	if strings.Contains(budget, "M") || m[2] != "" {
		amount *= 1000
	}
	return amount, true
}
