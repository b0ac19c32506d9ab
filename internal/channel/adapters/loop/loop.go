// Package loop implements the LoopMessage iMessage/SMS provider adapter.
package loop

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"golang.org/x/time/rate"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

// Type is the registry key of the Loop adapter.
const Type channel.ProviderKey = "loop"

// DefaultSendURL is Loop's send endpoint.
const DefaultSendURL = "https://server.loopmessage.com/api/v1/message/send/"

// Config carries everything the adapter needs. Credentials are only ever
// written into request headers.
type Config struct {
	SendURL            string
	Authorization      string
	SecretKey          string
	SenderName         string
	Service            channel.Service
	StatusCallbackURL  string
	StatusCallbackAuth string
	TimeoutSeconds     int

	WebhookScheme string
	WebhookHeader string
	WebhookSecret string

	Policy     channel.OutboundPolicy
	HTTPClient *http.Client
}

// LoopAdapter implements channel.MessagingAdapter for LoopMessage.
type LoopAdapter struct {
	logger   *slog.Logger
	cfg      Config
	policy   channel.OutboundPolicy
	client   *http.Client
	verifier channel.Verifier
	limiter  *rate.Limiter
	validate *validator.Validate
}

// NewLoopAdapter builds the adapter. One instance is shared by all requests.
func NewLoopAdapter(log *slog.Logger, cfg Config) (*LoopAdapter, error) {
	if log == nil {
		log = slog.Default()
	}
	if strings.TrimSpace(cfg.SendURL) == "" {
		cfg.SendURL = DefaultSendURL
	}
	switch cfg.Service {
	case "", channel.ServiceIMessage, channel.ServiceSMS:
	default:
		return nil, fmt.Errorf("loop: unsupported service %q", cfg.Service)
	}
	verifier, err := channel.NewVerifier(cfg.WebhookScheme, cfg.WebhookHeader, cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("loop: %w", err)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	policy := channel.NormalizeOutboundPolicy(cfg.Policy)
	adapter := &LoopAdapter{
		logger:   log.With(slog.String("adapter", Type.String())),
		cfg:      cfg,
		policy:   policy,
		client:   client,
		verifier: verifier,
		limiter:  channel.NewLimiter(policy),
		validate: newPayloadValidator(),
	}
	if !verifier.Enabled() {
		adapter.logger.Warn("webhook verification disabled: no webhook secret configured")
	}
	if !adapter.HasCredentials() {
		adapter.logger.Warn("send credentials missing: outbound sends will be rejected")
	}
	return adapter, nil
}

// Type returns the Loop provider key.
func (a *LoopAdapter) Type() channel.ProviderKey {
	return Type
}

// Descriptor returns the Loop provider metadata.
func (a *LoopAdapter) Descriptor() channel.Descriptor {
	return channel.Descriptor{
		Type:        Type,
		DisplayName: "LoopMessage",
		Capabilities: channel.Capabilities{
			Text:          true,
			Groups:        true,
			Attachments:   a.cfg.Service != channel.ServiceSMS,
			Effects:       a.cfg.Service != channel.ServiceSMS,
			Subjects:      a.cfg.Service != channel.ServiceSMS,
			MaxTextLength: maxTextLength,
		},
		OutboundPolicy: a.policy,
	}
}

// HasCredentials reports whether both Loop send keys are configured.
func (a *LoopAdapter) HasCredentials() bool {
	return a.cfg.Authorization != "" && a.cfg.SecretKey != ""
}

// IsSelf reports whether sender is the bot's own sender name.
func (a *LoopAdapter) IsSelf(sender string) bool {
	name := strings.TrimSpace(a.cfg.SenderName)
	return name != "" && strings.EqualFold(strings.TrimSpace(sender), name)
}
