package channelchecker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/healthcheck"
)

const checkTypeChannelAdapter = "channel.adapter"

// CredentialChecker is implemented by adapters that can tell whether their
// outbound credentials are configured.
type CredentialChecker interface {
	HasCredentials() bool
}

// Checker reports whether the active messaging adapter is registered and
// able to send.
type Checker struct {
	logger   *slog.Logger
	registry *channel.Registry
}

// NewChecker creates a channel adapter health checker.
func NewChecker(log *slog.Logger, registry *channel.Registry) *Checker {
	if log == nil {
		log = slog.Default()
	}
	return &Checker{
		logger:   log.With(slog.String("checker", "healthcheck_channel")),
		registry: registry,
	}
}

// ListChecks evaluates the active adapter.
func (c *Checker) ListChecks(ctx context.Context) []healthcheck.CheckResult {
	if ctx == nil {
		ctx = context.Background()
	}
	// Registry lookups are context-free; best effort early cancellation guard.
	if err := ctx.Err(); err != nil {
		return []healthcheck.CheckResult{}
	}
	if c.registry == nil {
		c.logger.Warn("channel healthcheck dependency is unavailable")
		return []healthcheck.CheckResult{
			{
				ID:      checkTypeChannelAdapter + ".registry",
				Type:    checkTypeChannelAdapter,
				Status:  healthcheck.StatusError,
				Summary: "Adapter registry is not available.",
				Detail:  "registry is nil",
			},
		}
	}

	adapter, err := c.registry.ResolveActive()
	if err != nil {
		return []healthcheck.CheckResult{
			{
				ID:      checkTypeChannelAdapter + ".active",
				Type:    checkTypeChannelAdapter,
				Status:  healthcheck.StatusError,
				Summary: "No active messaging adapter.",
				Detail:  err.Error(),
			},
		}
	}

	desc := adapter.Descriptor()
	providerKey := strings.TrimSpace(desc.Type.String())
	item := healthcheck.CheckResult{
		ID:      checkTypeChannelAdapter + "." + providerKey,
		Type:    checkTypeChannelAdapter,
		Status:  healthcheck.StatusOK,
		Summary: fmt.Sprintf("Adapter %s is registered.", providerKey),
		Metadata: map[string]any{
			"provider":        providerKey,
			"display_name":    desc.DisplayName,
			"registered":      len(c.registry.Types()),
			"max_text_length": desc.Capabilities.MaxTextLength,
		},
	}
	if creds, ok := adapter.(CredentialChecker); ok && !creds.HasCredentials() {
		item.Status = healthcheck.StatusWarn
		item.Summary = fmt.Sprintf("Adapter %s has no outbound credentials.", providerKey)
	}
	return []healthcheck.CheckResult{item}
}
