package validation

import (
	"testing"
	"time"

	"github.com/vnykmshr/flowgraph/pkg/common/errors"
)

func TestValidatePositive(t *testing.T) {
	tests := []struct {
		name      string
		value     int
		wantError bool
	}{
		{"positive value", 10, false},
		{"one", 1, false},
		{"zero value", 0, true},
		{"negative value", -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePositive("taskflow", "workers", tt.value)

			if tt.wantError {
				if !errors.IsValidationError(err) {
					t.Errorf("expected ValidationError, got %T", err)
				}
			} else if err != nil {
				t.Errorf("expected no error, got %v", err)
			}
		})
	}
}

func TestValidateAtMost(t *testing.T) {
	if err := ValidateAtMost("scheduler", "id", 255, 255); err != nil {
		t.Errorf("expected no error at the limit, got %v", err)
	}
	if err := ValidateAtMost("scheduler", "id", 256, 255); !errors.IsValidationError(err) {
		t.Errorf("expected ValidationError above the limit, got %v", err)
	}
}

func TestValidateNonNegativeDuration(t *testing.T) {
	tests := []struct {
		name      string
		value     time.Duration
		wantError bool
	}{
		{"zero", 0, false},
		{"positive", time.Millisecond, false},
		{"negative", -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNonNegativeDuration("scheduler", "tick", tt.value)
			if (err != nil) != tt.wantError {
				t.Errorf("ValidateNonNegativeDuration(%v) error = %v, wantError %v", tt.value, err, tt.wantError)
			}
		})
	}
}

func TestValidateNotNil(t *testing.T) {
	if err := ValidateNotNil("scheduler", "executor", nil); !errors.IsValidationError(err) {
		t.Errorf("expected ValidationError for nil, got %v", err)
	}
	if err := ValidateNotNil("scheduler", "executor", struct{}{}); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

func TestValidateNotEmpty(t *testing.T) {
	if err := ValidateNotEmpty("scheduler", "id", ""); !errors.IsValidationError(err) {
		t.Errorf("expected ValidationError for empty string, got %v", err)
	}
	if err := ValidateNotEmpty("scheduler", "id", "nightly"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}
