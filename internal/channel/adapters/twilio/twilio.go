// Package twilio implements the Twilio SMS provider adapter.
package twilio

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Twilio signs webhooks with HMAC-SHA1.
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

// Type is the registry key of the Twilio adapter.
const Type channel.ProviderKey = "twilio"

// DefaultBaseURL is Twilio's REST API root.
const DefaultBaseURL = "https://api.twilio.com"

const (
	signatureHeader  = "X-Twilio-Signature"
	maxTextLength    = 1600
	maxResponseBytes = 64 << 10
	// unsubscribedCode is returned when the recipient replied STOP.
	unsubscribedCode = "21610"
)

var acceptedStatuses = map[string]struct{}{
	"queued": {}, "sending": {}, "sent": {}, "accepted": {},
}

// Config carries the Twilio account settings.
type Config struct {
	BaseURL    string
	AccountSID string
	AuthToken  string
	FromNumber string
	// PublicURL is the externally visible webhook URL Twilio signs.
	PublicURL string
	// WebhookSecret enables bearer verification when request signing is not
	// configured.
	WebhookSecret string

	Policy     channel.OutboundPolicy
	HTTPClient *http.Client
}

// TwilioAdapter implements channel.MessagingAdapter for Twilio SMS.
type TwilioAdapter struct {
	logger   *slog.Logger
	cfg      Config
	policy   channel.OutboundPolicy
	client   *http.Client
	fallback channel.Verifier
	limiter  *rate.Limiter
}

// NewTwilioAdapter builds the adapter.
func NewTwilioAdapter(log *slog.Logger, cfg Config) *TwilioAdapter {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	policy := channel.NormalizeOutboundPolicy(cfg.Policy)
	adapter := &TwilioAdapter{
		logger:   log.With(slog.String("adapter", Type.String())),
		cfg:      cfg,
		policy:   policy,
		client:   client,
		fallback: channel.BearerVerifier{Secret: cfg.WebhookSecret},
		limiter:  channel.NewLimiter(policy),
	}
	if !adapter.signing() && !adapter.fallback.Enabled() {
		adapter.logger.Warn("webhook verification disabled: set a public url with an auth token, or a webhook secret")
	}
	return adapter
}

func (a *TwilioAdapter) Type() channel.ProviderKey {
	return Type
}

func (a *TwilioAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "Twilio SMS",
		Capabilities: channel.Capabilities{
			Text:          true,
			MaxTextLength: maxTextLength,
		},
		OutboundPolicy: a.policy,
	}
}

// IsSelf reports whether sender is the configured from number.
func (a *TwilioAdapter) IsSelf(sender string) bool {
	from := strings.TrimSpace(a.cfg.FromNumber)
	return from != "" && strings.TrimSpace(sender) == from
}

// HasCredentials reports whether the account, token and from number are set.
func (a *TwilioAdapter) HasCredentials() bool {
	return a.cfg.AccountSID != "" && a.cfg.AuthToken != "" && a.cfg.FromNumber != ""
}

func (a *TwilioAdapter) signing() bool {
	return a.cfg.AuthToken != "" && a.cfg.PublicURL != ""
}

// Send posts msg to the Messages resource.
func (a *TwilioAdapter) Send(ctx context.Context, msg channel.OutboundMessage) (channel.DeliveryReceipt, error) {
	if !a.HasCredentials() {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "send credentials not configured", nil)
	}
	if err := msg.Validate(); err != nil {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "invalid message", err)
	}
	if strings.TrimSpace(msg.GroupID) != "" || strings.TrimSpace(msg.Recipient) == "" {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "invalid message",
			fmt.Errorf("%w: sms requires a recipient number", channel.ErrInvalidMessage))
	}
	if len(msg.Attachments) > 0 || msg.Effect != "" || msg.Subject != "" {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "invalid message",
			fmt.Errorf("%w: sms supports text only", channel.ErrInvalidMessage))
	}
	form := url.Values{}
	form.Set("To", strings.TrimSpace(msg.Recipient))
	form.Set("From", a.cfg.FromNumber)
	form.Set("Body", channel.TruncateText(msg.Text, maxTextLength))
	endpoint := a.cfg.BaseURL + "/2010-04-01/Accounts/" + url.PathEscape(a.cfg.AccountSID) + "/Messages.json"
	body := form.Encode()

	return channel.SendWithRetry(ctx, Type, a.policy, a.limiter, a.logger, func(ctx context.Context, _ int) (channel.DeliveryReceipt, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(body))
		if err != nil {
			return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "build request", nil)
		}
		req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.Header.Set("Accept", "application/json")
		resp, err := a.client.Do(req)
		if err != nil {
			return channel.DeliveryReceipt{}, channel.TransientError(Type, 0, "network error", unwrapURLError(err))
		}
		defer resp.Body.Close()
		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
		if err != nil {
			return channel.DeliveryReceipt{}, channel.TransientError(Type, resp.StatusCode, "read response", unwrapURLError(err))
		}
		return classifyResponse(resp.StatusCode, raw)
	})
}

type messageResponse struct {
	SID     string          `json:"sid"`
	Status  string          `json:"status"`
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
}

func classifyResponse(status int, raw []byte) (channel.DeliveryReceipt, error) {
	var parsed messageResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	code := strings.Trim(strings.TrimSpace(string(parsed.Code)), `"`)
	if code == "null" {
		code = ""
	}
	switch {
	case status >= 200 && status < 300:
		if decodeErr != nil || parsed.SID == "" {
			return channel.DeliveryReceipt{}, channel.TransientError(Type, status, "malformed response", nil)
		}
		if _, ok := acceptedStatuses[strings.ToLower(parsed.Status)]; !ok {
			return channel.DeliveryReceipt{}, channel.PermanentError(Type, status, "message "+strings.ToLower(parsed.Status), nil)
		}
		return channel.DeliveryReceipt{
			Provider:  Type,
			MessageID: parsed.SID,
			Status:    strings.ToLower(parsed.Status),
			SentAt:    time.Now().UTC(),
		}, nil
	case status >= 400 && status < 500:
		ae := channel.PermanentError(Type, status, "client error", nil)
		ae.Code = code
		ae.OptedOut = code == unsubscribedCode
		return channel.DeliveryReceipt{}, ae
	case status >= 500:
		return channel.DeliveryReceipt{}, channel.TransientError(Type, status, "server error", nil)
	default:
		return channel.DeliveryReceipt{}, channel.TransientError(Type, status, "malformed response", nil)
	}
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// VerifyWebhook checks X-Twilio-Signature when signing is configured, and
// falls back to the bearer secret otherwise.
func (a *TwilioAdapter) VerifyWebhook(header http.Header, body []byte) error {
	if !a.signing() {
		return a.fallback.Verify(header, body)
	}
	provided := strings.TrimSpace(header.Get(signatureHeader))
	if provided == "" {
		return fmt.Errorf("%w: missing %s header", channel.ErrUnauthorized, signatureHeader)
	}
	params, err := url.ParseQuery(string(body))
	if err != nil {
		return fmt.Errorf("%w: unreadable form body", channel.ErrUnauthorized)
	}
	expected := Sign(a.cfg.AuthToken, a.cfg.PublicURL, params)
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return fmt.Errorf("%w: signature mismatch", channel.ErrUnauthorized)
	}
	return nil
}

// Sign computes Twilio's request signature: base64 HMAC-SHA1 of the URL
// followed by each form key and value in key order.
func Sign(authToken, fullURL string, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		values := append([]string(nil), params[k]...)
		sort.Strings(values)
		for _, v := range values {
			b.WriteString(k)
			b.WriteString(v)
		}
	}
	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseEvent decodes Twilio's form-encoded messaging webhook. Inbound
// messages arrive with SmsStatus "received"; other statuses are delivery
// callbacks.
func (a *TwilioAdapter) ParseEvent(contentType string, body []byte, receivedAt time.Time) (channel.InboundMessage, error) {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/x-www-form-urlencoded" {
			return channel.InboundMessage{}, fmt.Errorf("%w: unsupported content type", channel.ErrMalformedInput)
		}
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return channel.InboundMessage{}, fmt.Errorf("%w: unreadable form body", channel.ErrMalformedInput)
	}
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}
	msg := channel.InboundMessage{
		Provider:   Type,
		AlertType:  alertType(form.Get("SmsStatus")),
		Text:       form.Get("Body"),
		Sender:     strings.TrimSpace(form.Get("From")),
		MessageID:  strings.TrimSpace(form.Get("MessageSid")),
		ReceivedAt: receivedAt.UTC(),
	}
	if msg.MessageID == "" {
		msg.MessageID = strings.TrimSpace(form.Get("SmsSid"))
	}
	if n, err := strconv.Atoi(form.Get("NumMedia")); err == nil && n > 0 && strings.TrimSpace(msg.Text) == "" {
		msg.MessageType = channel.MessageTypeAttachments
	}
	if msg.AlertType == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: SmsStatus is required", channel.ErrMalformedInput)
	}
	if !msg.IsInbound() {
		return msg, nil
	}
	if msg.MessageID == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: MessageSid is required", channel.ErrMalformedInput)
	}
	if msg.Sender == "" {
		return channel.InboundMessage{}, fmt.Errorf("%w: From is required", channel.ErrMalformedInput)
	}
	if _, ok := form["Body"]; !ok && msg.MessageType.IsText() {
		return channel.InboundMessage{}, fmt.Errorf("%w: Body is required", channel.ErrMalformedInput)
	}
	return msg, nil
}

func alertType(status string) channel.AlertType {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "":
		return ""
	case "received", "receiving":
		return channel.AlertMessageInbound
	case "sent", "delivered":
		return channel.AlertMessageSent
	case "failed", "undelivered":
		return channel.AlertMessageFailed
	case "scheduled":
		return channel.AlertMessageScheduled
	default:
		return channel.AlertType(strings.ToLower(strings.TrimSpace(status)))
	}
}
