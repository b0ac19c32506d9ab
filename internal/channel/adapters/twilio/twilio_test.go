package twilio

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/logger"
)

func newTestAdapter(baseURL string) *TwilioAdapter {
	return NewTwilioAdapter(logger.Discard(), Config{
		BaseURL:    baseURL,
		AccountSID: "AC123",
		AuthToken:  "token-xyz",
		FromNumber: "+15550000000",
		PublicURL:  "https://chip.example.com/webhooks/twilio",
		Policy: channel.OutboundPolicy{
			RetryMax:       2,
			Backoff:        time.Millisecond,
			AttemptTimeout: time.Second,
			Deadline:       5 * time.Second,
		},
	})
}

func TestSendPostsForm(t *testing.T) {
	t.Parallel()

	var form url.Values
	var path, user, pass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		user, pass, _ = r.BasicAuth()
		_ = r.ParseForm()
		form = r.PostForm
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"sid":"SM1","status":"queued"}`))
	}))
	defer srv.Close()

	receipt, err := newTestAdapter(srv.URL).Send(context.Background(), channel.OutboundMessage{Recipient: "+15551230000", Text: "hello"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if receipt.MessageID != "SM1" || receipt.Status != "queued" {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
	if path != "/2010-04-01/Accounts/AC123/Messages.json" {
		t.Fatalf("path = %q", path)
	}
	if user != "AC123" || pass != "token-xyz" {
		t.Fatalf("basic auth = %q/%q", user, pass)
	}
	if form.Get("To") != "+15551230000" || form.Get("From") != "+15550000000" || form.Get("Body") != "hello" {
		t.Fatalf("unexpected form: %v", form)
	}
}

func TestSendClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		status    int
		body      string
		calls     int32
		permanent bool
		optedOut  bool
	}{
		{name: "server error retried", status: 503, body: `{}`, calls: 2},
		{name: "client error", status: 400, body: `{"code":21211,"message":"invalid To"}`, calls: 1, permanent: true},
		{name: "unsubscribed", status: 400, body: `{"code":21610,"message":"unsubscribed"}`, calls: 1, permanent: true, optedOut: true},
		{name: "failed status", status: 201, body: `{"sid":"SM2","status":"failed"}`, calls: 1, permanent: true},
		{name: "missing sid", status: 201, body: `{"status":"queued"}`, calls: 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			_, err := newTestAdapter(srv.URL).Send(context.Background(), channel.OutboundMessage{Recipient: "+15551230000", Text: "hi"})
			if err == nil {
				t.Fatal("expected error")
			}
			if calls.Load() != tc.calls {
				t.Fatalf("calls = %d, want %d", calls.Load(), tc.calls)
			}
			if channel.IsPermanent(err) != tc.permanent {
				t.Fatalf("permanent = %v for %v", channel.IsPermanent(err), err)
			}
			if channel.IsOptedOut(err) != tc.optedOut {
				t.Fatalf("opted out = %v for %v", channel.IsOptedOut(err), err)
			}
		})
	}
}

func TestSendRejectsGroupsAndRichContent(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter("http://127.0.0.1:0")
	for _, msg := range []channel.OutboundMessage{
		{GroupID: "g-1", Text: "hi"},
		{Recipient: "+15551230000", Text: "hi", Attachments: []string{"https://x.test/a.png"}},
	} {
		_, err := adapter.Send(context.Background(), msg)
		if !errors.Is(err, channel.ErrInvalidMessage) || !channel.IsPermanent(err) {
			t.Fatalf("expected invalid message for %+v, got %v", msg, err)
		}
	}
}

func TestVerifyWebhookSignature(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter("http://127.0.0.1:0")
	body := "Body=hi&From=%2B15551230000&MessageSid=SM9&SmsStatus=received"
	params, _ := url.ParseQuery(body)
	sig := Sign("token-xyz", "https://chip.example.com/webhooks/twilio", params)

	h := http.Header{}
	h.Set(signatureHeader, sig)
	if err := adapter.VerifyWebhook(h, []byte(body)); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	h.Set(signatureHeader, "bm9wZQ==")
	if err := adapter.VerifyWebhook(h, []byte(body)); !errors.Is(err, channel.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if err := adapter.VerifyWebhook(http.Header{}, []byte(body)); !errors.Is(err, channel.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for missing header, got %v", err)
	}
}

func TestVerifyWebhookBearerFallback(t *testing.T) {
	t.Parallel()

	adapter := NewTwilioAdapter(logger.Discard(), Config{WebhookSecret: "s3"})
	h := http.Header{}
	h.Set("Authorization", "Bearer s3")
	if err := adapter.VerifyWebhook(h, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	h.Set("Authorization", "Bearer other")
	if err := adapter.VerifyWebhook(h, nil); !errors.Is(err, channel.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter("http://127.0.0.1:0")
	now := time.Now().UTC()
	msg, err := adapter.ParseEvent("application/x-www-form-urlencoded",
		[]byte("Body=challege&From=%2B15551230000&MessageSid=SM9&SmsStatus=received"), now)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !msg.IsInbound() || msg.Text != "challege" || msg.Sender != "+15551230000" || msg.MessageID != "SM9" {
		t.Fatalf("unexpected message: %+v", msg)
	}

	status, err := adapter.ParseEvent("application/x-www-form-urlencoded", []byte("MessageSid=SM9&SmsStatus=delivered"), now)
	if err != nil {
		t.Fatalf("parse status: %v", err)
	}
	if status.AlertType != channel.AlertMessageSent {
		t.Fatalf("alert type = %q", status.AlertType)
	}

	for _, bad := range []string{"From=%2B1&SmsStatus=received&Body=x", "MessageSid=SM1&From=%2B1", "MessageSid=SM1&From=%2B1&SmsStatus=received"} {
		if _, err := adapter.ParseEvent("application/x-www-form-urlencoded", []byte(bad), now); !errors.Is(err, channel.ErrMalformedInput) {
			t.Fatalf("expected ErrMalformedInput for %q, got %v", bad, err)
		}
	}
	if _, err := adapter.ParseEvent("application/json", []byte(`{}`), now); !errors.Is(err, channel.ErrMalformedInput) {
		t.Fatalf("expected ErrMalformedInput for json, got %v", err)
	}
}
