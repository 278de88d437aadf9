// Package domain holds the error kinds shared by the ward domain packages.
package domain

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrValidation marks a rejected input: missing required field, negative
	// amount, unknown enum value, duplicate key.
	ErrValidation = errors.New("validation failed")

	// ErrInsufficientStock marks a stock-out larger than the quantity on hand.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrNotFound marks a lookup of a record key that does not exist.
	ErrNotFound = errors.New("not found")
)

// Invalid wraps ErrValidation with a formatted reason.
func Invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps ErrNotFound with the kind and key that was looked up.
func NotFound(kind, key string) error {
	return fmt.Errorf("%w: %s %q", ErrNotFound, kind, key)
}

// HTTPStatus maps an error kind to the status code handlers answer with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
