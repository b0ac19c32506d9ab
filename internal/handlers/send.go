package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/loubnaelmalali29-code/chip/internal/auth"
	"github.com/loubnaelmalali29-code/chip/internal/channel"
)

// SendRequest is the operator send body.
type SendRequest struct {
	Provider    string   `json:"provider,omitempty"`
	Recipient   string   `json:"recipient,omitempty" validate:"required_without=GroupID"`
	GroupID     string   `json:"group_id,omitempty"`
	Text        string   `json:"text" validate:"required,max=10000"`
	ReplyToID   string   `json:"reply_to_id,omitempty"`
	Service     string   `json:"service,omitempty" validate:"omitempty,oneof=imessage sms"`
	Subject     string   `json:"subject,omitempty"`
	Effect      string   `json:"effect,omitempty"`
	Attachments []string `json:"attachments,omitempty" validate:"max=3"`
}

// SendResponse wraps the provider's delivery receipt.
type SendResponse struct {
	OK      bool                    `json:"ok"`
	Receipt channel.DeliveryReceipt `json:"receipt"`
}

// Message converts the request to the canonical outbound model.
func (r SendRequest) Message() channel.OutboundMessage {
	return channel.OutboundMessage{
		Recipient:   strings.TrimSpace(r.Recipient),
		GroupID:     strings.TrimSpace(r.GroupID),
		Text:        r.Text,
		ReplyToID:   strings.TrimSpace(r.ReplyToID),
		Service:     channel.Service(strings.ToLower(strings.TrimSpace(r.Service))),
		Subject:     r.Subject,
		Effect:      r.Effect,
		Attachments: r.Attachments,
	}
}

// Dispatcher resolves the adapter for a provider key and sends through it.
type Dispatcher struct {
	registry *channel.Registry
}

// NewDispatcher creates a Dispatcher over registry.
func NewDispatcher(registry *channel.Registry) *Dispatcher {
	return &Dispatcher{registry: registry}
}

// Send delivers msg through provider, or the active provider when empty.
func (d *Dispatcher) Send(ctx context.Context, provider string, msg channel.OutboundMessage) (channel.DeliveryReceipt, error) {
	var (
		adapter channel.MessagingAdapter
		err     error
	)
	if strings.TrimSpace(provider) == "" {
		adapter, err = d.registry.ResolveActive()
	} else {
		adapter, err = d.registry.Resolve(channel.NormalizeProviderKey(provider))
	}
	if err != nil {
		return channel.DeliveryReceipt{}, err
	}
	return adapter.Send(ctx, msg)
}

// SendHandler exposes the operator send API.
type SendHandler struct {
	logger     *slog.Logger
	dispatcher *Dispatcher
	validate   *validator.Validate
}

// NewSendHandler creates a SendHandler.
func NewSendHandler(log *slog.Logger, registry *channel.Registry) *SendHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SendHandler{
		logger:     log.With(slog.String("handler", "send")),
		dispatcher: NewDispatcher(registry),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Register registers the send route. It sits behind the JWT middleware.
func (h *SendHandler) Register(e *echo.Echo) {
	e.POST("/messages/send", h.Send)
}

// Send godoc
// @Summary Send a message through a provider
// @Description Sends one outbound message with the adapter's retry policy
// @Tags messages
// @Accept json
// @Produce json
// @Param payload body SendRequest true "Message"
// @Success 200 {object} SendResponse
// @Failure 400 {object} echo.HTTPError
// @Failure 404 {object} echo.HTTPError
// @Failure 502 {object} echo.HTTPError
// @Router /messages/send [post]
func (h *SendHandler) Send(c echo.Context) error {
	operator, err := auth.OperatorFromContext(c)
	if err != nil {
		return err
	}
	var req SendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	receipt, err := h.dispatcher.Send(c.Request().Context(), req.Provider, req.Message())
	if err != nil {
		h.logger.Warn("operator send failed",
			slog.String("operator", operator),
			slog.String("provider", req.Provider),
			slog.Any("error", err))
		switch {
		case errors.Is(err, channel.ErrUnknownProvider):
			return echo.NewHTTPError(http.StatusNotFound, "unknown provider")
		case errors.Is(err, channel.ErrInvalidMessage):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		default:
			return echo.NewHTTPError(http.StatusBadGateway, err.Error())
		}
	}
	h.logger.Info("operator send",
		slog.String("operator", operator),
		slog.String("provider", receipt.Provider.String()),
		slog.String("provider_message_id", receipt.MessageID))
	return c.JSON(http.StatusOK, SendResponse{OK: true, Receipt: receipt})
}
