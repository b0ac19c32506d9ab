package loop

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

// internalCreatedEvent is the event name of Loop's internal envelope for a
// new message.
const internalCreatedEvent = "message.created"

// VerifyWebhook checks the request against the configured verifier.
func (a *LoopAdapter) VerifyWebhook(header http.Header, body []byte) error {
	return a.verifier.Verify(header, body)
}

// ParseEvent decodes a Loop webhook body. Both the native alert envelope
// and the internal {event, data} envelope are accepted.
func (a *LoopAdapter) ParseEvent(contentType string, body []byte, receivedAt time.Time) (channel.InboundMessage, error) {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || (mediaType != "application/json" && !strings.HasSuffix(mediaType, "+json")) {
			return channel.InboundMessage{}, fmt.Errorf("%w: unsupported content type", channel.ErrMalformedInput)
		}
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil || envelope == nil {
		return channel.InboundMessage{}, fmt.Errorf("%w: body is not a JSON object", channel.ErrMalformedInput)
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	var (
		msg     channel.InboundMessage
		hasText bool
	)
	if _, native := envelope["alert_type"]; native {
		msg, hasText = parseNative(envelope)
	} else {
		msg, hasText = parseInternal(envelope)
	}
	msg.Provider = Type
	msg.ReceivedAt = receivedAt.UTC()
	if msg.AlertType == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: alert_type is required", channel.ErrMalformedInput)
	}
	if !msg.IsInbound() {
		return msg, nil
	}
	if msg.MessageID == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: message_id is required", channel.ErrMalformedInput)
	}
	if msg.Sender == "" && msg.GroupID == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: sender is required", channel.ErrMalformedInput)
	}
	if msg.MessageType.IsText() && !hasText {
		return channel.InboundMessage{}, fmt.Errorf("%w: text is required", channel.ErrMalformedInput)
	}
	return msg, nil
}

func parseNative(env map[string]json.RawMessage) (channel.InboundMessage, bool) {
	msg := channel.InboundMessage{
		AlertType:   channel.AlertType(strings.TrimSpace(stringField(env, "alert_type"))),
		MessageType: channel.ParseMessageType(stringField(env, "message_type")),
		Reaction:    channel.ParseReaction(stringField(env, "reaction")),
	}
	text, hasText := firstString(env, "text", "content", "message")
	msg.Text = text

	sender := stringField(env, "recipient")
	if sender == "" {
		sender = addressField(env["from"], "address", "recipient")
	}
	msg.Sender = strings.TrimSpace(sender)

	id := stringField(env, "message_id")
	if id == "" {
		id = stringField(env, "id")
	}
	msg.MessageID = strings.TrimSpace(id)
	msg.GroupID = strings.TrimSpace(addressField(env["group"], "group_id"))
	return msg, hasText
}

func parseInternal(env map[string]json.RawMessage) (channel.InboundMessage, bool) {
	event := strings.TrimSpace(stringField(env, "event"))
	if event == "" {
		event = strings.TrimSpace(stringField(env, "alert_type"))
	}
	if event == internalCreatedEvent {
		event = string(channel.AlertMessageInbound)
	}
	data := objectField(env, "data")
	message := objectField(data, "message")

	text, hasText := firstString(message, "text")
	if !hasText {
		text, hasText = firstString(data, "text")
	}
	if !hasText {
		text, hasText = firstString(env, "text")
	}

	sender := addressField(message["from"], "address")
	if sender == "" {
		sender = addressField(data["from"], "address")
	}
	if sender == "" {
		sender = addressField(env["from"], "address")
	}

	id := stringField(message, "id")
	if id == "" {
		id = stringField(data, "id")
	}
	if id == "" {
		id = stringField(env, "id")
	}
	return channel.InboundMessage{
		AlertType:   channel.AlertType(event),
		Text:        text,
		Sender:      strings.TrimSpace(sender),
		MessageID:   strings.TrimSpace(id),
		MessageType: channel.ParseMessageType(stringField(message, "type")),
	}, hasText
}

// stringField returns obj[key] when it is a JSON string or number.
func stringField(obj map[string]json.RawMessage, key string) string {
	raw, ok := obj[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// firstString returns the first of keys holding a string, and whether any did.
func firstString(obj map[string]json.RawMessage, keys ...string) (string, bool) {
	for _, key := range keys {
		raw, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, true
		}
	}
	return "", false
}

func objectField(obj map[string]json.RawMessage, key string) map[string]json.RawMessage {
	raw, ok := obj[key]
	if !ok {
		return nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// addressField reads a value that is either a plain string or an object
// carrying one of keys.
func addressField(raw json.RawMessage, keys ...string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	for _, key := range keys {
		if v := stringField(obj, key); v != "" {
			return v
		}
	}
	return ""
}
