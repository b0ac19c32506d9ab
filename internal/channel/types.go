// Package channel defines the canonical message model shared by every
// messaging-provider adapter, the adapter capability interfaces, and the
// registry that maps provider keys to adapter instances.
package channel

import (
	"fmt"
	"strings"
	"time"
)

// ProviderKey identifies a messaging provider (e.g., "loop", "twilio").
type ProviderKey string

// String returns the provider key as a plain string.
func (p ProviderKey) String() string {
	return string(p)
}

// NormalizeProviderKey lower-cases and trims a raw provider identifier.
func NormalizeProviderKey(raw string) ProviderKey {
	return ProviderKey(strings.TrimSpace(strings.ToLower(raw)))
}

// AlertType classifies a provider webhook event.
type AlertType string

const (
	AlertMessageInbound     AlertType = "message_inbound"
	AlertMessageSent        AlertType = "message_sent"
	AlertMessageFailed      AlertType = "message_failed"
	AlertMessageScheduled   AlertType = "message_scheduled"
	AlertMessageReaction    AlertType = "message_reaction"
	AlertMessageTimeout     AlertType = "message_timeout"
	AlertMessageExpired     AlertType = "message_expired"
	AlertGroupCreated       AlertType = "group_created"
	AlertConversationInited AlertType = "conversation_inited"
)

var knownAlertTypes = map[AlertType]struct{}{
	AlertMessageInbound:     {},
	AlertMessageSent:        {},
	AlertMessageFailed:      {},
	AlertMessageScheduled:   {},
	AlertMessageReaction:    {},
	AlertMessageTimeout:     {},
	AlertMessageExpired:     {},
	AlertGroupCreated:       {},
	AlertConversationInited: {},
}

// Known reports whether the alert type is one the gateway recognizes.
func (a AlertType) Known() bool {
	_, ok := knownAlertTypes[a]
	return ok
}

// MessageType is the content kind of an inbound message.
type MessageType string

const (
	MessageTypeText        MessageType = "text"
	MessageTypeReaction    MessageType = "reaction"
	MessageTypeAudio       MessageType = "audio"
	MessageTypeAttachments MessageType = "attachments"
	MessageTypeSticker     MessageType = "sticker"
	MessageTypeLocation    MessageType = "location"
)

// ParseMessageType matches raw case-insensitively; unknown values yield "".
func ParseMessageType(raw string) MessageType {
	switch mt := MessageType(strings.ToLower(strings.TrimSpace(raw))); mt {
	case MessageTypeText, MessageTypeReaction, MessageTypeAudio, MessageTypeAttachments, MessageTypeSticker, MessageTypeLocation:
		return mt
	default:
		return ""
	}
}

// IsText reports whether the message carries text for the model. An
// unspecified type is treated as text.
func (t MessageType) IsText() bool {
	return t == "" || t == MessageTypeText
}

// Reaction is an iMessage tapback.
type Reaction string

var knownReactions = map[Reaction]struct{}{
	"love": {}, "like": {}, "dislike": {}, "laugh": {}, "exclaim": {}, "question": {},
	"-love": {}, "-like": {}, "-dislike": {}, "-laugh": {}, "-exclaim": {}, "-question": {},
	"unknown": {},
}

// ParseReaction matches raw case-insensitively; unknown values yield "".
func ParseReaction(raw string) Reaction {
	r := Reaction(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownReactions[r]; ok {
		return r
	}
	return ""
}

// Service is the delivery transport preference for an outbound message.
type Service string

const (
	ServiceIMessage Service = "imessage"
	ServiceSMS      Service = "sms"
)

// InboundMessage is a provider event parsed into canonical form. It is
// immutable once built by an adapter's EventParser.
type InboundMessage struct {
	Provider    ProviderKey
	AlertType   AlertType
	Text        string
	Sender      string
	GroupID     string
	MessageID   string
	MessageType MessageType
	Reaction    Reaction
	ReceivedAt  time.Time
}

// IsInbound reports whether the event is a user message requiring a reply.
func (m InboundMessage) IsInbound() bool {
	return m.AlertType == AlertMessageInbound
}

// OutboundMessage is a reply addressed to one recipient or one group. It is
// consumed by exactly one adapter Send call.
type OutboundMessage struct {
	Recipient   string   `json:"recipient,omitempty"`
	GroupID     string   `json:"group_id,omitempty"`
	Text        string   `json:"text"`
	InReplyTo   string   `json:"in_reply_to,omitempty"`
	ReplyToID   string   `json:"reply_to_id,omitempty"`
	Service     Service  `json:"service,omitempty"`
	Subject     string   `json:"subject,omitempty"`
	Effect      string   `json:"effect,omitempty"`
	Attachments []string `json:"attachments,omitempty"`
	Passthrough string   `json:"passthrough,omitempty"`
}

// Target returns the group id when set, otherwise the recipient.
func (m OutboundMessage) Target() string {
	if strings.TrimSpace(m.GroupID) != "" {
		return strings.TrimSpace(m.GroupID)
	}
	return strings.TrimSpace(m.Recipient)
}

// Validate performs the provider-independent checks.
func (m OutboundMessage) Validate() error {
	if m.Target() == "" {
		return fmt.Errorf("%w: recipient or group id is required", ErrInvalidMessage)
	}
	if strings.TrimSpace(m.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidMessage)
	}
	return nil
}

// ReplyTo builds the outbound skeleton that answers msg.
func ReplyTo(msg InboundMessage, text string) OutboundMessage {
	return OutboundMessage{
		Recipient: msg.Sender,
		GroupID:   msg.GroupID,
		Text:      text,
		InReplyTo: msg.MessageID,
	}
}

// DeliveryReceipt is the provider's acknowledgement of an accepted send.
type DeliveryReceipt struct {
	Provider  ProviderKey `json:"provider"`
	MessageID string      `json:"message_id"`
	Status    string      `json:"status,omitempty"`
	Attempts  int         `json:"attempts"`
	SentAt    time.Time   `json:"sent_at"`
}
