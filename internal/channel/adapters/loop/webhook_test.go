package loop

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

func TestVerifyWebhook(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, "http://127.0.0.1:0")
	cases := []struct {
		name   string
		header string
		ok     bool
	}{
		{name: "raw secret", header: "hook-secret", ok: true},
		{name: "bearer secret", header: "Bearer hook-secret", ok: true},
		{name: "wrong secret", header: "Bearer nope", ok: false},
		{name: "missing", header: "", ok: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			h := http.Header{}
			if tc.header != "" {
				h.Set("Authorization", tc.header)
			}
			err := adapter.VerifyWebhook(h, nil)
			if tc.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tc.ok && !errors.Is(err, channel.ErrUnauthorized) {
				t.Fatalf("expected ErrUnauthorized, got %v", err)
			}
		})
	}
}

func TestParseEvent(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, "http://127.0.0.1:0")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	cases := []struct {
		name string
		body string
		want channel.InboundMessage
	}{
		{
			name: "native inbound",
			body: `{"alert_type":"message_inbound","recipient":"+15551230000","text":"Hello","message_type":"text","message_id":"in-1","api_version":"1.0"}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageInbound, Sender: "+15551230000", Text: "Hello", MessageID: "in-1", MessageType: channel.MessageTypeText},
		},
		{
			name: "native group object",
			body: `{"alert_type":"message_inbound","recipient":"+15551230000","text":"yo","message_id":"in-2","group":{"group_id":"g-1"}}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageInbound, Sender: "+15551230000", Text: "yo", MessageID: "in-2", GroupID: "g-1"},
		},
		{
			name: "native fallbacks",
			body: `{"alert_type":"message_inbound","from":{"address":"a@b.test"},"content":"hi","id":"in-3"}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageInbound, Sender: "a@b.test", Text: "hi", MessageID: "in-3"},
		},
		{
			name: "native reaction",
			body: `{"alert_type":"message_inbound","recipient":"+15551230000","message_type":"REACTION","reaction":"Love","message_id":"in-4"}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageInbound, Sender: "+15551230000", MessageID: "in-4", MessageType: channel.MessageTypeReaction, Reaction: "love"},
		},
		{
			name: "empty text allowed",
			body: `{"alert_type":"message_inbound","recipient":"+15551230000","text":"","message_id":"in-5"}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageInbound, Sender: "+15551230000", MessageID: "in-5"},
		},
		{
			name: "internal created",
			body: `{"event":"message.created","data":{"conversationId":"conv_123","message":{"id":"msg_abc","text":"Hello","from":{"channel":"sms","address":"+15551239999"}}}}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageInbound, Sender: "+15551239999", Text: "Hello", MessageID: "msg_abc"},
		},
		{
			name: "status alert without id",
			body: `{"alert_type":"message_sent","recipient":"+15551230000"}`,
			want: channel.InboundMessage{AlertType: channel.AlertMessageSent, Sender: "+15551230000"},
		},
		{
			name: "unknown alert",
			body: `{"alert_type":"something_new"}`,
			want: channel.InboundMessage{AlertType: "something_new"},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := adapter.ParseEvent("application/json; charset=utf-8", []byte(tc.body), now)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			tc.want.Provider = Type
			tc.want.ReceivedAt = now
			if got != tc.want {
				t.Fatalf("got %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestParseEventMalformed(t *testing.T) {
	t.Parallel()

	adapter := newTestAdapter(t, "http://127.0.0.1:0")
	cases := []struct {
		name        string
		contentType string
		body        string
	}{
		{name: "not json", contentType: "application/json", body: `hello`},
		{name: "array", contentType: "application/json", body: `[1,2]`},
		{name: "null", contentType: "application/json", body: `null`},
		{name: "wrong content type", contentType: "text/plain", body: `{"alert_type":"message_inbound"}`},
		{name: "missing alert", contentType: "application/json", body: `{"text":"hi","message_id":"x"}`},
		{name: "missing message id", contentType: "application/json", body: `{"alert_type":"message_inbound","recipient":"+1555","text":"hi"}`},
		{name: "missing text", contentType: "application/json", body: `{"alert_type":"message_inbound","recipient":"+1555","message_id":"x"}`},
		{name: "missing sender", contentType: "application/json", body: `{"alert_type":"message_inbound","text":"hi","message_id":"x"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := adapter.ParseEvent(tc.contentType, []byte(tc.body), time.Now())
			if !errors.Is(err, channel.ErrMalformedInput) {
				t.Fatalf("expected ErrMalformedInput, got %v", err)
			}
		})
	}
}
