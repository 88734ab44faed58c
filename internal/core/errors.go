package core

import "errors"

// Error taxonomy shared by every layer. Services wrap these with operation
// context; the HTTP layer maps them to status codes with errors.Is.
var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrUnauthenticated = errors.New("not authenticated")
	ErrUnauthorized    = errors.New("not authorized")
	ErrValidation      = errors.New("validation failed")
)

// Validation sentinels. All of them unwrap to ErrValidation.
var (
	ErrInvalidAmount   = validation("invalid amount")
	ErrInvalidType     = validation("type must be income or expense")
	ErrInvalidLimit    = validation("invalid monthly limit")
	ErrMissingUser     = validation("missing user")
	ErrMissingCategory = validation("missing category")
	ErrEmptyName       = validation("empty name")
	ErrEmptyDebtorName = validation("empty debtor name")
	ErrNameTooLong     = validation("name too long (max 100 characters)")
	ErrNoteTooLong     = validation("note too long (max 200 characters)")
)

type validationError struct{ msg string }

func validation(msg string) error { return &validationError{msg: msg} }

func (e *validationError) Error() string { return e.msg }

func (e *validationError) Unwrap() error { return ErrValidation }
