// Package service implements the account and user operations behind the
// HTTP API and the CLI.
package service

import (
	"errors"
	"fmt"

	"github.com/nhle/ambrose/internal/store"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is returned when an entity belongs to another user.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrConflict is returned when an entity with the same identity exists.
	ErrConflict = errors.New("conflict")

	// ErrInvalid is returned for input that fails validation.
	ErrInvalid = errors.New("invalid input")
)

// translate maps store sentinels onto service sentinels, keeping the
// original error in the chain.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, store.ErrDuplicate):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
