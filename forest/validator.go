package forest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ValidationResult carries the normalized values of an accepted node proposal.
type ValidationResult struct {
	Label    string
	ParentID *int64
}

// Validator checks proposed nodes before they reach the store.
//
// It does not look for cycles: a new node can only reference an id that
// already exists, and parents are immutable, so the write path cannot form one.
type Validator struct {
	cfg      Config
	exists   ExistenceChecker
	validate *validator.Validate
	labelTag string
}

// NewValidator creates a Validator. exists is consulted for parent ids.
func NewValidator(cfg Config, exists ExistenceChecker) *Validator {
	cfg.validate()
	return &Validator{
		cfg:      cfg,
		exists:   exists,
		validate: validator.New(),
		labelTag: fmt.Sprintf("required,max=%d", cfg.MaxLabelLength),
	}
}

// Config returns the effective label policy.
func (v *Validator) Config() Config {
	return v.cfg
}

// Validate checks label and parentID.
// The returned label has surrounding whitespace removed.
func (v *Validator) Validate(ctx context.Context, label string, parentID *int64) (ValidationResult, error) {
	normalized, err := v.ValidateLabel(label)
	if err != nil {
		return ValidationResult{}, err
	}

	if parentID != nil {
		// Store ids start at 1.
		if *parentID <= 0 {
			return ValidationResult{}, &ParentNotFoundError{ParentID: *parentID}
		}
		ok, err := v.exists.Exists(ctx, *parentID)
		if err != nil {
			return ValidationResult{}, Unavailable("exists", err)
		}
		if !ok {
			return ValidationResult{}, &ParentNotFoundError{ParentID: *parentID}
		}
	}

	return ValidationResult{Label: normalized, ParentID: parentID}, nil
}

// ValidateLabel applies the label policy without touching the store.
func (v *Validator) ValidateLabel(label string) (string, error) {
	trimmed := strings.TrimSpace(label)

	err := v.validate.Var(trimmed, v.labelTag)
	if err == nil {
		return trimmed, nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return "", &InvalidLabelError{Label: label, Reason: err.Error()}
	}
	switch fieldErrs[0].Tag() {
	case "required":
		if label == "" {
			return "", &InvalidLabelError{Label: label, Reason: "label must not be empty"}
		}
		return "", &InvalidLabelError{Label: label, Reason: "label must not be whitespace only"}
	case "max":
		return "", &InvalidLabelError{
			Label:  label,
			Reason: fmt.Sprintf("label must be at most %d characters", v.cfg.MaxLabelLength),
		}
	default:
		return "", &InvalidLabelError{Label: label, Reason: fieldErrs[0].Error()}
	}
}
