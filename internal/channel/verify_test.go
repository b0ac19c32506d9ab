package channel

import (
	"encoding/hex"
	"errors"
	"net/http"
	"testing"
)

func TestBearerVerifier(t *testing.T) {
	t.Parallel()

	v := BearerVerifier{Secret: "inbound-secret"}
	cases := []struct {
		name    string
		value   string
		wantErr bool
	}{
		{name: "bearer prefix", value: "Bearer inbound-secret"},
		{name: "lower-case prefix", value: "bearer inbound-secret"},
		{name: "raw secret", value: "inbound-secret"},
		{name: "wrong secret", value: "Bearer nope", wantErr: true},
		{name: "missing", value: "", wantErr: true},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.value != "" {
			h.Set("Authorization", tc.value)
		}
		err := v.Verify(h, nil)
		if tc.wantErr {
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("%s: expected ErrUnauthorized, got %v", tc.name, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%s: expected no error, got %v", tc.name, err)
		}
	}
}

func TestBearerVerifierDisabledWithoutSecret(t *testing.T) {
	t.Parallel()

	v := BearerVerifier{}
	if v.Enabled() {
		t.Fatalf("expected disabled verifier")
	}
	if err := v.Verify(http.Header{}, nil); err != nil {
		t.Fatalf("expected open verifier, got %v", err)
	}
}

func TestHMACVerifier(t *testing.T) {
	t.Parallel()

	body := []byte(`{"alert_type":"message_inbound"}`)
	v := HMACVerifier{Header: "X-Loop-Signature", Secret: "s3cret"}
	sig := hex.EncodeToString(SignHMAC("s3cret", body))

	h := http.Header{}
	h.Set("X-Loop-Signature", "sha256="+sig)
	if err := v.Verify(h, body); err != nil {
		t.Fatalf("expected valid signature, got %v", err)
	}
	if err := v.Verify(h, []byte(`{}`)); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected mismatch for tampered body, got %v", err)
	}
	h.Set("X-Loop-Signature", "zz")
	if err := v.Verify(h, body); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected error for non-hex signature, got %v", err)
	}
}

func TestNewVerifier(t *testing.T) {
	t.Parallel()

	if v, err := NewVerifier("", "", "x"); err != nil || !v.Enabled() {
		t.Fatalf("expected bearer verifier, got %v %v", v, err)
	}
	if _, ok := mustVerifier(t, "HMAC").(HMACVerifier); !ok {
		t.Fatalf("expected hmac verifier")
	}
	if _, err := NewVerifier("rot13", "", "x"); err == nil {
		t.Fatalf("expected error for unknown scheme")
	}
}

func mustVerifier(t *testing.T, scheme string) Verifier {
	t.Helper()
	v, err := NewVerifier(scheme, "", "secret")
	if err != nil {
		t.Fatalf("NewVerifier(%q): %v", scheme, err)
	}
	return v
}
