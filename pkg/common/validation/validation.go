// Package validation provides common validation utilities for the flowgraph library.
package validation

import (
	"time"

	gferrors "github.com/vnykmshr/flowgraph/pkg/common/errors"
)

// ValidatePositive validates that an integer value is positive (> 0).
func ValidatePositive(module, field string, value int) error {
	if value <= 0 {
		return gferrors.NewValidationError(module, field, value, "must be positive").
			WithHint("value must be greater than 0")
	}
	return nil
}

// ValidateAtMost validates that an integer value does not exceed max.
func ValidateAtMost(module, field string, value, max int) error {
	if value > max {
		return gferrors.NewValidationError(module, field, value, "too large").
			WithHint("value must not exceed the documented maximum")
	}
	return nil
}

// ValidateNonNegativeDuration rejects negative durations. Zero usually
// selects a default.
func ValidateNonNegativeDuration(module, field string, value time.Duration) error {
	if value < 0 {
		return gferrors.NewValidationError(module, field, value, "cannot be negative").
			WithHint("use 0 for the default or a positive duration")
	}
	return nil
}

// ValidateNotNil validates that an interface value is not nil.
func ValidateNotNil(module, field string, value interface{}) error {
	if value == nil {
		return gferrors.NewValidationError(module, field, nil, "cannot be nil").
			WithHint("provide a valid " + field)
	}
	return nil
}

// ValidateNotEmpty validates that a string value is not empty.
func ValidateNotEmpty(module, field string, value string) error {
	if value == "" {
		return gferrors.NewValidationError(module, field, value, "cannot be empty").
			WithHint("provide a non-empty " + field)
	}
	return nil
}
