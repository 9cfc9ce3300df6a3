package model

import "errors"

var (
	ErrValidation              = errors.New("validation failed")
	ErrDwell                   = errors.New("minimum reading time not elapsed")
	ErrCatalogUnavailable      = errors.New("question catalog unavailable")
	ErrRemoteStatusUnreachable = errors.New("remote status unreachable")
	ErrSubmission              = errors.New("submission failed")
	ErrSealed                  = errors.New("session sealed")
	ErrSubmitInFlight          = errors.New("submission already in flight")
	ErrAlreadyComplete         = errors.New("survey already completed")
	ErrNotActive               = errors.New("session not active")
)

// AdvisoryError is a locally recovered failure with respondent-facing text.
// It unwraps to ErrValidation or ErrDwell.
type AdvisoryError struct {
	Kind    error
	Message string
}

func (e *AdvisoryError) Error() string { return e.Message }

func (e *AdvisoryError) Unwrap() error { return e.Kind }

// Invalid returns an advisory for a missing or invalid answer.
func Invalid(msg string) error {
	return &AdvisoryError{Kind: ErrValidation, Message: msg}
}

// DwellViolation returns an advisory for acting before the reading time elapsed.
func DwellViolation(msg string) error {
	return &AdvisoryError{Kind: ErrDwell, Message: msg}
}
