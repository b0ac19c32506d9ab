package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// Verifier checks one webhook request against a shared secret. Adapters pick
// a Verifier from configuration and delegate VerifyWebhook to it.
type Verifier interface {
	Verify(header http.Header, body []byte) error
	// Enabled reports whether verification is performed at all.
	Enabled() bool
}

// BearerVerifier compares a header value with a shared secret in constant
// time. A leading "Bearer " is ignored. An empty secret disables the check.
type BearerVerifier struct {
	Header string
	Secret string
}

func (v BearerVerifier) Enabled() bool { return v.Secret != "" }

func (v BearerVerifier) Verify(header http.Header, _ []byte) error {
	if v.Secret == "" {
		return nil
	}
	name := v.Header
	if name == "" {
		name = "Authorization"
	}
	provided := strings.TrimSpace(header.Get(name))
	if len(provided) > 7 && strings.EqualFold(provided[:7], "bearer ") {
		provided = strings.TrimSpace(provided[7:])
	}
	if provided == "" {
		return fmt.Errorf("%w: missing %s header", ErrUnauthorized, name)
	}
	if subtle.ConstantTimeCompare([]byte(provided), []byte(v.Secret)) != 1 {
		return fmt.Errorf("%w: credential mismatch", ErrUnauthorized)
	}
	return nil
}

// HMACVerifier expects the hex HMAC-SHA256 of the raw body in Header,
// optionally prefixed with "sha256=". An empty secret disables the check.
type HMACVerifier struct {
	Header string
	Secret string
}

func (v HMACVerifier) Enabled() bool { return v.Secret != "" }

func (v HMACVerifier) Verify(header http.Header, body []byte) error {
	if v.Secret == "" {
		return nil
	}
	name := v.Header
	if name == "" {
		name = "X-Signature"
	}
	provided := strings.TrimSpace(header.Get(name))
	provided = strings.TrimPrefix(provided, "sha256=")
	if provided == "" {
		return fmt.Errorf("%w: missing %s header", ErrUnauthorized, name)
	}
	sig, err := hex.DecodeString(provided)
	if err != nil {
		return fmt.Errorf("%w: signature is not hex", ErrUnauthorized)
	}
	if !hmac.Equal(sig, SignHMAC(v.Secret, body)) {
		return fmt.Errorf("%w: signature mismatch", ErrUnauthorized)
	}
	return nil
}

// SignHMAC returns the HMAC-SHA256 of body under secret.
func SignHMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// NewVerifier builds the verifier for a configured scheme ("bearer" or
// "hmac"). An empty scheme means bearer.
func NewVerifier(scheme, header, secret string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "", "bearer":
		return BearerVerifier{Header: header, Secret: secret}, nil
	case "hmac":
		return HMACVerifier{Header: header, Secret: secret}, nil
	default:
		return nil, fmt.Errorf("unsupported webhook scheme: %s", scheme)
	}
}
