// Package classifier derives a VFX needs level and budget tier from posting text.
// Everything here is pure: the same input always yields the same Result.
package classifier

import (
	"strings"

	"github.com/pauljones0/production-scout/internal/models"
)

// InsufficientData is the rationale recorded for postings that cannot be classified.
const InsufficientData = "insufficient data"

// Result is the outcome of classifying one posting.
type Result struct {
	VfxNeeds  models.VfxNeedsLevel
	Tier      models.BudgetTier
	Budget    string
	Rationale string
}

// Classify determines the VFX needs and budget tier of a posting. When
// budgetText is blank the budget is extracted from the description.
func Classify(description, budgetText string) Result {
	budget := strings.TrimSpace(budgetText)
	if budget == "" {
		budget = ExtractBudget(description)
	}
	level, rationale := DetermineVfxNeeds(description)
	return Result{
		VfxNeeds:  level,
		Tier:      DetermineTier(budget),
		Budget:    budget,
		Rationale: rationale,
	}
}

// Insufficient is the fixed result for postings missing required text.
func Insufficient(budgetText string) Result {
	budget := strings.TrimSpace(budgetText)
	if budget == "" {
		budget = BudgetUnknown
	}
	return Result{
		VfxNeeds:  models.VfxLow,
		Tier:      models.Tier4,
		Budget:    budget,
		Rationale: InsufficientData,
	}
}
