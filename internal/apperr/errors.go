// Package apperr defines the error kinds shared by the workflow engine, storage and API layers.
package apperr

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrConflictingFolio  = errors.New("conflicting folio")
)

// ForbiddenError is returned when the permission evaluator denies an operation.
type ForbiddenError struct {
	Reason       string
	AllowedHours string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Is lets errors.Is(err, ErrForbidden) match a *ForbiddenError.
func (e *ForbiddenError) Is(target error) bool {
	return target == ErrForbidden
}

// Forbidden builds a *ForbiddenError.
func Forbidden(reason, allowedHours string) error {
	return &ForbiddenError{Reason: reason, AllowedHours: allowedHours}
}

// InvalidTransition wraps ErrInvalidTransition with the offending status.
func InvalidTransition(status string) error {
	return errors.Wrapf(ErrInvalidTransition, "unknown workflow status %q", status)
}

// NotFound wraps ErrNotFound with the resource description.
func NotFound(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}
