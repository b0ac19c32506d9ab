package channel

import (
	"context"
	"net/http"
	"time"
)

// Adapter is the base interface every provider adapter must implement.
type Adapter interface {
	Type() ProviderKey
	Descriptor() Descriptor
}

// Descriptor holds read-only metadata for a registered provider.
type Descriptor struct {
	Type           ProviderKey
	DisplayName    string
	Capabilities   Capabilities
	OutboundPolicy OutboundPolicy
}

// Capabilities describes what the provider can deliver.
type Capabilities struct {
	Text          bool
	Groups        bool
	Attachments   bool
	Effects       bool
	Subjects      bool
	MaxTextLength int
}

// Sender performs one logical outbound delivery, including the adapter's
// own retry policy. Implementations return *AdapterError on failure.
type Sender interface {
	Send(ctx context.Context, msg OutboundMessage) (DeliveryReceipt, error)
}

// WebhookVerifier checks the authenticity of an inbound webhook request.
// It returns an error wrapping ErrUnauthorized on failure.
type WebhookVerifier interface {
	VerifyWebhook(header http.Header, body []byte) error
}

// EventParser turns a raw webhook body into an InboundMessage. It returns an
// error wrapping ErrMalformedInput when the body is unusable.
type EventParser interface {
	ParseEvent(contentType string, body []byte, receivedAt time.Time) (InboundMessage, error)
}

// SelfIdentifier recognizes events that originate from the bot's own
// sender identity so the pipeline does not answer itself.
type SelfIdentifier interface {
	IsSelf(sender string) bool
}

// MessagingAdapter is the full capability set a provider needs to take part
// in the webhook pipeline.
type MessagingAdapter interface {
	Adapter
	Sender
	WebhookVerifier
	EventParser
}
