package validator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pauljones0/production-scout/internal/models"
)

// Validator is a wrapper around the validator library.
type Validator struct {
	validate *validator.Validate
}

// New creates a new Validator instance.
func New() *Validator {
	return &Validator{
		validate: validator.New(),
	}
}

// ValidateStruct validates a struct based on its tags.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidatePosting checks a raw posting. Missing required text (whitespace-only
// counts as missing) comes back as a *models.ClassificationError naming the
// fields; other tag failures, such as a malformed contact email, come back as a
// plain wrapped error.
func (v *Validator) ValidatePosting(p models.RawPosting) error {
	trimmed := p
	trimmed.Title = strings.TrimSpace(p.Title)
	trimmed.Description = strings.TrimSpace(p.Description)

	err := v.validate.Struct(trimmed)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("validation failed: %w", err)
	}
	var missing []string
	for _, fe := range fieldErrs {
		if fe.Tag() == "required" {
			missing = append(missing, fe.Field())
		}
	}
	if len(missing) > 0 {
		return &models.ClassificationError{Fields: missing}
	}
	return fmt.Errorf("validation failed: %w", err)
}
