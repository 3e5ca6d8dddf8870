package app

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCredentials        = errors.New("invalid username or password")
	ErrNotAuthenticated          = errors.New("not authenticated")
	ErrNotLeadOwner              = errors.New("lead purchase belongs to another agent")
	ErrNotAgent                  = errors.New("user is not an agent")
	ErrUnlimitedRequiresCheckout = errors.New("unlimited plan must be purchased through checkout")
	ErrPaymentsNotConfigured     = errors.New("payment processor is not configured")
)

// FieldError is a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports a rejected request. Fields may be empty when the
// message alone describes the problem.
type ValidationError struct {
	Message string
	Fields  []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s: %s %s", e.Message, e.Fields[0].Field, e.Fields[0].Message)
}

func badRequest(message string) error {
	return &ValidationError{Message: message}
}

// fieldErrors collects field failures in the order they are found.
type fieldErrors []FieldError

func (f *fieldErrors) add(field, message string) {
	*f = append(*f, FieldError{Field: field, Message: message})
}

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &ValidationError{Message: "Validation error", Fields: f}
}

// RateLimitError is returned when a caller exceeded a throttle.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many attempts; retry after %ds", e.RetryAfterSeconds)
}

// WebhookSignatureError wraps a rejected processor callback.
type WebhookSignatureError struct {
	Err error
}

func (e *WebhookSignatureError) Error() string {
	return e.Err.Error()
}

func (e *WebhookSignatureError) Unwrap() error {
	return e.Err
}

// PaymentProviderError wraps a processor failure whose message is safe to show.
type PaymentProviderError struct {
	Err error
}

func (e *PaymentProviderError) Error() string {
	return e.Err.Error()
}

func (e *PaymentProviderError) Unwrap() error {
	return e.Err
}
