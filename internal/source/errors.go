package source

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/nhle/ambrose/internal/model"
)

// ProviderError reports a failed call to an external provider: a
// transport failure, a non-2xx response or a malformed payload.
type ProviderError struct {
	Provider   model.ProviderType
	URL        string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s returned %d: %v", e.Provider, e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.URL, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsProviderError reports whether err (or any error in its chain) is a
// ProviderError.
func IsProviderError(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// IsAuthError reports whether err was caused by rejected credentials.
func IsAuthError(err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	return pe.StatusCode == http.StatusUnauthorized || pe.StatusCode == http.StatusForbidden
}
