package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNoContent           = errors.New("no content provided")
	ErrInvalidImageType    = errors.New("invalid image type")
	ErrUnsupportedModel    = errors.New("unsupported model")
	ErrUnknownSizeClass    = errors.New("unknown size class")
	ErrContentFlagged      = errors.New("content flagged")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoResponseContent   = errors.New("no response content")
	ErrMissingCredential   = errors.New("missing credential")
)

// ProviderError carries an upstream provider's status and message verbatim.
// The core never retries these; retry policy belongs to the caller.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func NewProviderError(provider string, status int, message string) *ProviderError {
	return &ProviderError{Provider: provider, StatusCode: status, Message: message}
}
