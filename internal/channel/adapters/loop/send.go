package loop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

const (
	maxTextLength       = 10000
	maxAttachments      = 3
	maxAttachmentURLLen = 256
	maxResponseBytes    = 64 << 10
	optedOutCode        = "280"
)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
}

// sendPayload is the JSON body of Loop's send endpoint.
type sendPayload struct {
	SenderName           string   `json:"sender_name,omitempty"`
	Recipient            string   `json:"recipient,omitempty" validate:"omitempty,e164|email"`
	Group                string   `json:"group,omitempty"`
	Text                 string   `json:"text" validate:"required,max=10000"`
	StatusCallback       string   `json:"status_callback,omitempty" validate:"omitempty,url"`
	StatusCallbackHeader string   `json:"status_callback_header,omitempty"`
	ReplyToID            string   `json:"reply_to_id,omitempty"`
	Passthrough          string   `json:"passthrough,omitempty" validate:"max=1000"`
	Service              string   `json:"service,omitempty" validate:"omitempty,oneof=imessage sms"`
	Timeout              int      `json:"timeout,omitempty" validate:"omitempty,min=5"`
	Attachments          []string `json:"attachments,omitempty" validate:"max=3,dive,image_url"`
	Subject              string   `json:"subject,omitempty"`
	Effect               string   `json:"effect,omitempty" validate:"omitempty,oneof=slam loud gentle invisibleInk echo spotlight balloons confetti love lasers fireworks shootingStar celebration"`
}

// sendResponse is the subset of Loop's reply the adapter reads.
type sendResponse struct {
	Success   *bool           `json:"success"`
	MessageID string          `json:"message_id"`
	Code      json.RawMessage `json:"code"`
	Message   string          `json:"message"`
}

func newPayloadValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("image_url", func(fl validator.FieldLevel) bool {
		return isImageURL(fl.Field().String())
	})
	return v
}

func isImageURL(raw string) bool {
	if len(raw) == 0 || len(raw) > maxAttachmentURLLen {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return false
	}
	_, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]
	return ok
}

// normalizeRecipient strips phone formatting; e-mail addresses are lower-cased.
func normalizeRecipient(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.Contains(raw, "@") {
		return strings.ToLower(raw)
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '(', ')', '.':
			return -1
		}
		return r
	}, raw)
}

// buildPayload maps an OutboundMessage onto Loop's request shape and
// validates it. Errors wrap channel.ErrInvalidMessage.
func (a *LoopAdapter) buildPayload(msg channel.OutboundMessage) (sendPayload, error) {
	if err := msg.Validate(); err != nil {
		return sendPayload{}, err
	}
	service := msg.Service
	if service == "" {
		service = a.cfg.Service
	}
	p := sendPayload{
		SenderName:           a.cfg.SenderName,
		Text:                 msg.Text,
		StatusCallback:       a.cfg.StatusCallbackURL,
		StatusCallbackHeader: a.cfg.StatusCallbackAuth,
		ReplyToID:            msg.ReplyToID,
		Passthrough:          msg.Passthrough,
		Service:              string(service),
		Attachments:          msg.Attachments,
		Subject:              msg.Subject,
		Effect:               msg.Effect,
	}
	if p.Passthrough == "" {
		p.Passthrough = msg.InReplyTo
	}
	if a.cfg.TimeoutSeconds >= 5 {
		p.Timeout = a.cfg.TimeoutSeconds
	}
	if group := strings.TrimSpace(msg.GroupID); group != "" {
		p.Group = group
	} else {
		p.Recipient = normalizeRecipient(msg.Recipient)
	}
	if service == channel.ServiceSMS {
		if p.Subject != "" || p.Effect != "" || len(p.Attachments) > 0 {
			return sendPayload{}, fmt.Errorf("%w: sms does not support subject, effect or attachments", channel.ErrInvalidMessage)
		}
		p.ReplyToID = ""
	}
	if err := a.validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return sendPayload{}, fmt.Errorf("%w: field %s failed %s", channel.ErrInvalidMessage, verrs[0].Field(), verrs[0].Tag())
		}
		return sendPayload{}, fmt.Errorf("%w: %v", channel.ErrInvalidMessage, err)
	}
	return p, nil
}

// Send delivers msg through Loop with the adapter's retry policy.
func (a *LoopAdapter) Send(ctx context.Context, msg channel.OutboundMessage) (channel.DeliveryReceipt, error) {
	if !a.HasCredentials() {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "send credentials not configured", nil)
	}
	payload, err := a.buildPayload(msg)
	if err != nil {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "invalid message", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "encode payload", err)
	}
	return channel.SendWithRetry(ctx, Type, a.policy, a.limiter, a.logger, func(ctx context.Context, attempt int) (channel.DeliveryReceipt, error) {
		return a.sendOnce(ctx, body)
	})
}

func (a *LoopAdapter) sendOnce(ctx context.Context, body []byte) (channel.DeliveryReceipt, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.SendURL, bytes.NewReader(body))
	if err != nil {
		return channel.DeliveryReceipt{}, channel.PermanentError(Type, 0, "build request", nil)
	}
	req.Header.Set("Authorization", a.cfg.Authorization)
	req.Header.Set("Loop-Secret-Key", a.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return channel.DeliveryReceipt{}, transportError(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return channel.DeliveryReceipt{}, channel.TransientError(Type, resp.StatusCode, "read response", transportCause(err))
	}
	return classifyResponse(resp.StatusCode, raw)
}

// classifyResponse maps Loop's reply onto a receipt or a typed AdapterError.
// 2xx with a usable body is success; 4xx is permanent; 5xx and malformed
// bodies are transient.
func classifyResponse(status int, raw []byte) (channel.DeliveryReceipt, error) {
	var parsed sendResponse
	decodeErr := json.Unmarshal(raw, &parsed)
	code := responseCode(parsed.Code)
	optedOut := code == optedOutCode || strings.Contains(strings.ToLower(parsed.Message), "opted out")

	switch {
	case status >= 200 && status < 300:
		if decodeErr != nil {
			return channel.DeliveryReceipt{}, channel.TransientError(Type, status, "malformed response", nil)
		}
		if parsed.Success != nil && !*parsed.Success {
			ae := channel.PermanentError(Type, status, "rejected by provider", nil)
			ae.Code = code
			ae.OptedOut = optedOut
			return channel.DeliveryReceipt{}, ae
		}
		if strings.TrimSpace(parsed.MessageID) == "" {
			return channel.DeliveryReceipt{}, channel.TransientError(Type, status, "malformed response", nil)
		}
		return channel.DeliveryReceipt{
			Provider:  Type,
			MessageID: parsed.MessageID,
			Status:    "sent",
			SentAt:    time.Now().UTC(),
		}, nil
	case status >= 400 && status < 500:
		ae := channel.PermanentError(Type, status, "client error", nil)
		ae.Code = code
		ae.OptedOut = optedOut
		return channel.DeliveryReceipt{}, ae
	case status >= 500:
		ae := channel.TransientError(Type, status, "server error", nil)
		ae.Code = code
		return channel.DeliveryReceipt{}, ae
	default:
		return channel.DeliveryReceipt{}, channel.TransientError(Type, status, "malformed response", nil)
	}
}

func responseCode(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return ""
}

// transportError classifies client.Do failures. All are transient; the
// cause is stripped of the request URL.
func transportError(err error) error {
	reason := "network error"
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		reason = "timeout"
	}
	if errors.Is(err, context.Canceled) {
		reason = "canceled"
	}
	return channel.TransientError(Type, 0, reason, transportCause(err))
}

func transportCause(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
