package service

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("validation error")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrNotEligible       = errors.New("correspondent not eligible")
	ErrInvalidValue      = errors.New("invalid value")
	ErrAlreadyAssigned   = errors.New("already assigned")
	ErrConflict          = errors.New("concurrent modification")
)

const (
	CodeNotFound          = "NOT_FOUND"
	CodeForbidden         = "FORBIDDEN"
	CodeValidation        = "VALIDATION_ERROR"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNotEligible       = "NOT_ELIGIBLE"
	CodeInvalidValue      = "INVALID_VALUE"
	CodeAlreadyAssigned   = "ALREADY_ASSIGNED"
	CodeConflict          = "CONFLICT"
	CodeInternal          = "INTERNAL"
)

var errorCodes = []struct {
	err  error
	code string
}{
	{ErrNotFound, CodeNotFound},
	{ErrForbidden, CodeForbidden},
	{ErrValidation, CodeValidation},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrNotEligible, CodeNotEligible},
	{ErrInvalidValue, CodeInvalidValue},
	{ErrAlreadyAssigned, CodeAlreadyAssigned},
	{ErrConflict, CodeConflict},
}

// Code returns the stable machine-readable code of err. Anything outside the
// business taxonomy is an infrastructure failure.
func Code(err error) string {
	for _, entry := range errorCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

// IsBusiness reports whether err belongs to the caller-facing taxonomy.
func IsBusiness(err error) bool {
	return Code(err) != CodeInternal
}
