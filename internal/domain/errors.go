package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrInvalidInput          = errors.New("invalid input")
	ErrQuotaExceeded         = errors.New("quota exceeded")
	ErrInvalidTransition     = errors.New("invalid status transition")
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	ErrSynthesisFailed       = errors.New("synthesis failed")
)
