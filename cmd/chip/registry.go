package main

import (
	"fmt"
	"log/slog"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/channel/adapters/loop"
	"github.com/loubnaelmalali29-code/chip/internal/channel/adapters/twilio"
	"github.com/loubnaelmalali29-code/chip/internal/config"
)

func outboundPolicy(cfg config.MessagingConfig) channel.OutboundPolicy {
	return channel.NormalizeOutboundPolicy(channel.OutboundPolicy{
		RetryMax:       cfg.RetryMax,
		Backoff:        cfg.RetryBackoff,
		BackoffMax:     cfg.RetryBackoffMax,
		AttemptTimeout: cfg.SendTimeout,
		Deadline:       cfg.SendDeadline,
		RateLimit:      cfg.RateLimit,
		RateBurst:      cfg.RateBurst,
	})
}

// buildRegistry registers every configured adapter and freezes the registry
// on the active provider. A registry that fails to freeze is fatal.
func buildRegistry(log *slog.Logger, cfg config.Config) (*channel.Registry, error) {
	registry := channel.NewRegistry()
	policy := outboundPolicy(cfg.Messaging)

	loopAdapter, err := loop.NewLoopAdapter(log, loop.Config{
		SendURL:            cfg.Loop.SendURL,
		Authorization:      cfg.Loop.Authorization,
		SecretKey:          cfg.Loop.SecretKey,
		SenderName:         cfg.Loop.SenderName,
		Service:            channel.Service(cfg.Loop.Service),
		StatusCallbackURL:  cfg.Loop.StatusCallbackURL,
		StatusCallbackAuth: cfg.Loop.StatusCallbackAuth,
		WebhookScheme:      cfg.Loop.WebhookScheme,
		WebhookHeader:      cfg.Loop.WebhookHeader,
		TimeoutSeconds:     cfg.Loop.TimeoutSeconds,
		WebhookSecret:      cfg.Loop.WebhookAuth,
		Policy:             policy,
	})
	if err != nil {
		return nil, err
	}
	if err := registry.Register(loopAdapter); err != nil {
		return nil, err
	}

	if cfg.Twilio.Enabled {
		twilioAdapter := twilio.NewTwilioAdapter(log, twilio.Config{
			BaseURL:       cfg.Twilio.BaseURL,
			AccountSID:    cfg.Twilio.AccountSID,
			AuthToken:     cfg.Twilio.AuthToken,
			FromNumber:    cfg.Twilio.FromNumber,
			PublicURL:     cfg.Twilio.PublicURL,
			WebhookSecret: cfg.Twilio.WebhookSecret,
			Policy:        policy,
		})
		if err := registry.Register(twilioAdapter); err != nil {
			return nil, err
		}
	}

	if err := registry.Freeze(channel.NormalizeProviderKey(cfg.Messaging.Provider)); err != nil {
		return nil, fmt.Errorf("activate provider %q: %w", cfg.Messaging.Provider, err)
	}
	return registry, nil
}
