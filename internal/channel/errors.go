package channel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnknownProvider is returned when no adapter is registered for a key.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrUnauthorized is returned by verifiers for bad or missing credentials.
	ErrUnauthorized = errors.New("unauthorized webhook")
	// ErrMalformedInput is returned by parsers for unusable envelopes.
	ErrMalformedInput = errors.New("malformed input")
	// ErrInvalidMessage is returned when an outbound message fails validation.
	ErrInvalidMessage = errors.New("invalid outbound message")
)

// ErrorKind separates failures that are worth retrying from those that are not.
type ErrorKind int

const (
	KindPermanent ErrorKind = iota
	KindTransient
)

func (k ErrorKind) String() string {
	if k == KindTransient {
		return "transient"
	}
	return "permanent"
}

// AdapterError is the typed failure returned by Sender implementations. Its
// message carries only the provider, classification, status and provider
// error code; credentials and payloads never appear in it.
type AdapterError struct {
	Provider   ProviderKey
	Kind       ErrorKind
	Reason     string
	StatusCode int
	Code       string
	OptedOut   bool
	Attempts   int
	// Exhausted is set once the retry budget has been spent. The error is
	// final even when Kind is transient.
	Exhausted bool
	Err       error
}

func (e *AdapterError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s send failed: %s", e.Provider, e.Kind)
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	var details []string
	if e.StatusCode != 0 {
		details = append(details, fmt.Sprintf("status %d", e.StatusCode))
	}
	if e.Code != "" {
		details = append(details, "code "+e.Code)
	}
	if e.Attempts > 0 {
		details = append(details, fmt.Sprintf("attempts %d", e.Attempts))
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, ", "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *AdapterError) Unwrap() error {
	return e.Err
}

// Retryable reports whether another attempt may succeed.
func (e *AdapterError) Retryable() bool {
	return e.Kind == KindTransient && !e.Exhausted
}

// PermanentError builds a non-retryable AdapterError.
func PermanentError(provider ProviderKey, status int, reason string, cause error) *AdapterError {
	return &AdapterError{Provider: provider, Kind: KindPermanent, StatusCode: status, Reason: reason, Err: cause}
}

// TransientError builds a retryable AdapterError.
func TransientError(provider ProviderKey, status int, reason string, cause error) *AdapterError {
	return &AdapterError{Provider: provider, Kind: KindTransient, StatusCode: status, Reason: reason, Err: cause}
}

// AsAdapterError unwraps err into an AdapterError.
func AsAdapterError(err error) (*AdapterError, bool) {
	var ae *AdapterError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

// IsPermanent reports whether err is a permanent AdapterError.
func IsPermanent(err error) bool {
	ae, ok := AsAdapterError(err)
	return ok && ae.Kind == KindPermanent
}

// IsTransient reports whether err is a transient AdapterError.
func IsTransient(err error) bool {
	ae, ok := AsAdapterError(err)
	return ok && ae.Kind == KindTransient
}

// IsOptedOut reports whether the provider refused the send because the
// recipient opted out of messages.
func IsOptedOut(err error) bool {
	ae, ok := AsAdapterError(err)
	return ok && ae.OptedOut
}
