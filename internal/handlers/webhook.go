package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/channel/inbound"
	"github.com/loubnaelmalali29-code/chip/internal/config"
)

const requestIDHeader = "X-Request-ID"

type inboundProcessor interface {
	HandleInbound(ctx context.Context, msg channel.InboundMessage) (inbound.Result, error)
}

// WebhookResponse is the minimal acknowledgement returned to providers.
type WebhookResponse struct {
	OK        bool   `json:"ok"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id"`
}

// WebhookHandler is the entry point for provider callbacks. It verifies,
// parses, and hands inbound messages to the pipeline processor.
type WebhookHandler struct {
	logger       *slog.Logger
	registry     *channel.Registry
	processor    inboundProcessor
	maxBodyBytes int64
	now          func() time.Time
}

// NewWebhookHandler creates the webhook gateway.
func NewWebhookHandler(log *slog.Logger, cfg config.Config, registry *channel.Registry, processor *inbound.Processor) *WebhookHandler {
	return newWebhookHandler(log, registry, processor, cfg.Messaging.MaxBodyBytes)
}

func newWebhookHandler(log *slog.Logger, registry *channel.Registry, processor inboundProcessor, maxBodyBytes int64) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = config.DefaultMaxBodyBytes
	}
	return &WebhookHandler{
		logger:       log.With(slog.String("handler", "webhook")),
		registry:     registry,
		processor:    processor,
		maxBodyBytes: maxBodyBytes,
		now:          time.Now,
	}
}

// Register registers webhook callback routes.
func (h *WebhookHandler) Register(e *echo.Echo) {
	e.POST("/webhooks/:provider", h.Handle)
}

// Handle godoc
// @Summary Receive a provider webhook
// @Description Verifies the callback, parses it, and replies through the active adapter
// @Tags webhooks
// @Accept json
// @Produce json
// @Param provider path string true "Provider key"
// @Success 202 {object} WebhookResponse
// @Failure 400 {object} echo.HTTPError
// @Failure 401 {object} echo.HTTPError
// @Failure 404 {object} echo.HTTPError
// @Router /webhooks/{provider} [post]
func (h *WebhookHandler) Handle(c echo.Context) error {
	if h.registry == nil || h.processor == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "webhook dependencies not configured")
	}
	requestID := strings.TrimSpace(c.Request().Header.Get(requestIDHeader))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Response().Header().Set(requestIDHeader, requestID)

	provider := channel.NormalizeProviderKey(c.Param("provider"))
	log := h.logger.With(slog.String("request_id", requestID), slog.String("provider", provider.String()))
	if provider == "" || provider != h.registry.Active() {
		return echo.NewHTTPError(http.StatusNotFound, "provider not active")
	}
	adapter, err := h.registry.Resolve(provider)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "provider not active")
	}

	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBodyBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("read body: %v", err))
	}
	if int64(len(payload)) > h.maxBodyBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, fmt.Sprintf("payload too large: max %d bytes", h.maxBodyBytes))
	}

	if err := adapter.VerifyWebhook(c.Request().Header, payload); err != nil {
		log.Warn("webhook rejected", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized webhook")
	}

	msg, err := adapter.ParseEvent(c.Request().Header.Get(echo.HeaderContentType), payload, h.now())
	if err != nil {
		log.Warn("malformed webhook", slog.Any("error", err))
		if errors.Is(err, channel.ErrMalformedInput) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusBadRequest, "malformed webhook payload")
	}
	log = log.With(slog.String("message_id", msg.MessageID), slog.String("alert_type", string(msg.AlertType)))

	if !msg.IsInbound() {
		if !msg.AlertType.Known() {
			log.Warn("unrecognized alert type")
		} else {
			log.Debug("alert acknowledged")
		}
		return c.JSON(http.StatusAccepted, WebhookResponse{
			OK:        true,
			Status:    string(inbound.OutcomeIgnored),
			Reason:    "alert type " + string(msg.AlertType),
			RequestID: requestID,
		})
	}

	res, err := h.processor.HandleInbound(c.Request().Context(), msg)
	if err != nil {
		if res.Outcome == "" || errors.Is(err, channel.ErrUnknownProvider) {
			log.Error("inbound pipeline failed", slog.Any("error", err))
			return echo.NewHTTPError(http.StatusInternalServerError, "inbound processing failed")
		}
		if channel.IsOptedOut(err) {
			log.Debug("inbound pipeline finished with opted-out recipient", slog.String("outcome", string(res.Outcome)))
		} else {
			log.Warn("inbound pipeline finished with error", slog.String("outcome", string(res.Outcome)), slog.Any("error", err))
		}
	}
	return c.JSON(http.StatusAccepted, WebhookResponse{
		OK:        true,
		Status:    string(res.Outcome),
		Reason:    res.Reason,
		RequestID: requestID,
	})
}
