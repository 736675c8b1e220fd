// Package validation provides the configuration checks shared by the
// executor, pipeline and scheduler constructors.
//
// Every helper returns a *errors.ValidationError so callers can match the
// failure with errors.Is(err, errors.ErrInvalidConfiguration).
package validation
