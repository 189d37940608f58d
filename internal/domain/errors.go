package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedInput   = errors.New("invalid product input structure")
	ErrDuplicateID      = errors.New("product with this id already exists")
	ErrStoreUnavailable = errors.New("product store temporarily unavailable")
	ErrConfiguration    = errors.New("configuration error")
	ErrProductNotFound  = errors.New("product not found")
)

// FieldError names one violated business rule.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries every FieldError found for one input.
type ValidationError struct {
	Fields []FieldError
}

func NewValidationError(fields []FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s", strings.Join(e.Messages(), ", "))
}

func (e *ValidationError) Messages() []string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return msgs
}
