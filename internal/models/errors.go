package models

import (
	"errors"
	"fmt"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrNumberTaken         = errors.New("number already taken")
	ErrAllocationExhausted = errors.New("no available number found, try again")
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketAlreadyPaid   = errors.New("ticket already paid")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}
