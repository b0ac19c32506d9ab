// Package inbound runs a verified, parsed provider event through the reply
// pipeline: normalize, dedup gate, model reply, adapter send.
package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/reply"
)

const tracerName = "github.com/loubnaelmalali29-code/chip/internal/channel/inbound"

// Fixed replies for messages the model is not asked about.
const (
	GreetingText     = "Thanks for your message! I'm Chip, your Alabama tech community AI agent. How can I help you today?"
	AudioNudgeText   = "I received your audio message! Could you send that as text? I'm better at understanding written messages."
	NonTextNudgeText = "I received your message, but I'm best at handling text messages. Could you send that as text?"
	ModelApologyText = "I'm having trouble processing that right now. Could you try rephrasing your message?"
)

// TextNormalizer cleans inbound text before it reaches the model.
type TextNormalizer interface {
	Normalize(text string) string
}

// Gate is the at-most-once check in front of the model.
type Gate interface {
	ShouldProcess(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

// ReplyGenerator produces the outbound reply for normalized text.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, text string, msg channel.InboundMessage) (*channel.OutboundMessage, error)
}

// Outcome is the terminal state of one inbound event.
type Outcome string

const (
	OutcomeReplied   Outcome = "replied"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDropped   Outcome = "dropped"
	OutcomeDeclined  Outcome = "declined"
	OutcomeFailed    Outcome = "failed"
)

// Result describes what the processor did with an event.
type Result struct {
	Outcome Outcome
	Reason  string
	Text    string
	Receipt *channel.DeliveryReceipt
}

// Options configures a Processor.
type Options struct {
	// ModelFailureReply sends ModelApologyText when the model fails. Off
	// means a model failure is logged and nothing is sent.
	ModelFailureReply bool
}

// Processor drives an InboundMessage through the pipeline.
type Processor struct {
	registry   *channel.Registry
	normalizer TextNormalizer
	gate       Gate
	replies    ReplyGenerator
	opts       Options
	logger     *slog.Logger
	tracer     trace.Tracer
}

// NewProcessor creates a Processor. All collaborators are required.
func NewProcessor(log *slog.Logger, registry *channel.Registry, normalizer TextNormalizer, gate Gate, replies ReplyGenerator, opts Options) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		registry:   registry,
		normalizer: normalizer,
		gate:       gate,
		replies:    replies,
		opts:       opts,
		logger:     log.With(slog.String("component", "inbound_processor")),
		tracer:     otel.Tracer(tracerName),
	}
}

// HandleInbound processes one parsed event. Model and send failures are
// reported through Result and a non-nil error so the caller can log them
// while still acknowledging the webhook. Once the dedup gate admits the
// message, the remaining stages run even if ctx is cancelled.
func (p *Processor) HandleInbound(ctx context.Context, msg channel.InboundMessage) (Result, error) {
	if p == nil || p.registry == nil || p.gate == nil || p.replies == nil || p.normalizer == nil {
		return Result{}, fmt.Errorf("inbound processor not configured")
	}
	ctx, span := p.tracer.Start(ctx, "inbound.handle", trace.WithAttributes(
		attribute.String("provider", msg.Provider.String()),
		attribute.String("alert_type", string(msg.AlertType)),
		attribute.String("message_id", msg.MessageID),
	))
	defer span.End()

	res, err := p.handle(ctx, msg)
	span.SetAttributes(attribute.String("outcome", string(res.Outcome)))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(res.Outcome))
	}
	return res, err
}

func (p *Processor) handle(ctx context.Context, msg channel.InboundMessage) (Result, error) {
	if !msg.IsInbound() {
		return Result{Outcome: OutcomeIgnored, Reason: "alert type " + string(msg.AlertType)}, nil
	}
	adapter, err := p.registry.Resolve(msg.Provider)
	if err != nil {
		return Result{Outcome: OutcomeFailed, Reason: "unknown provider"}, err
	}
	if self, ok := adapter.(channel.SelfIdentifier); ok && self.IsSelf(msg.Sender) {
		p.logger.Debug("ignore self message", slog.String("message_id", msg.MessageID))
		return Result{Outcome: OutcomeIgnored, Reason: "self"}, nil
	}

	text := p.normalize(ctx, msg.Text)

	admit, gateErr := p.admit(ctx, msg.MessageID)
	if !admit {
		if gateErr != nil {
			return Result{Outcome: OutcomeDropped, Reason: "dedup store unavailable"}, gateErr
		}
		p.logger.Info("duplicate message", slog.String("message_id", msg.MessageID))
		return Result{Outcome: OutcomeDuplicate}, nil
	}
	if err := ctx.Err(); err != nil {
		// Aborted before handoff; let a redelivery through. A fail-open
		// admission recorded nothing and must not release another
		// delivery's reservation.
		if gateErr == nil {
			if relErr := p.gate.Release(context.WithoutCancel(ctx), msg.MessageID); relErr != nil {
				p.logger.Warn("dedup release failed", slog.String("message_id", msg.MessageID), slog.Any("error", relErr))
			}
		}
		return Result{Outcome: OutcomeDropped, Reason: "cancelled before handoff"}, err
	}
	ctx = context.WithoutCancel(ctx)

	switch {
	case msg.MessageType == channel.MessageTypeReaction:
		return Result{Outcome: OutcomeIgnored, Reason: "reaction"}, nil
	case msg.MessageType == channel.MessageTypeAudio:
		return p.sendFixed(ctx, adapter, msg, AudioNudgeText)
	case !msg.MessageType.IsText():
		if text == "" {
			return p.sendFixed(ctx, adapter, msg, NonTextNudgeText)
		}
		return Result{Outcome: OutcomeIgnored, Reason: "message type " + string(msg.MessageType)}, nil
	case text == "":
		return p.sendFixed(ctx, adapter, msg, GreetingText)
	}

	out, err := p.generate(ctx, text, msg)
	if err != nil {
		p.logger.Error("model reply failed",
			slog.String("message_id", msg.MessageID),
			slog.Any("error", err))
		if !p.opts.ModelFailureReply {
			return Result{Outcome: OutcomeFailed, Reason: "model failure", Text: text}, err
		}
		res, sendErr := p.sendFixed(ctx, adapter, msg, ModelApologyText)
		res.Outcome = OutcomeFailed
		res.Reason = "model failure"
		res.Text = text
		return res, errors.Join(err, sendErr)
	}
	if out == nil {
		return Result{Outcome: OutcomeDeclined, Text: text}, nil
	}
	res, err := p.send(ctx, adapter, *out)
	res.Text = text
	return res, err
}

func (p *Processor) normalize(ctx context.Context, raw string) string {
	_, span := p.tracer.Start(ctx, "inbound.normalize")
	defer span.End()
	return strings.TrimSpace(p.normalizer.Normalize(raw))
}

func (p *Processor) admit(ctx context.Context, id string) (bool, error) {
	ctx, span := p.tracer.Start(ctx, "inbound.dedup")
	defer span.End()
	ok, err := p.gate.ShouldProcess(ctx, id)
	span.SetAttributes(attribute.Bool("admitted", ok))
	if err != nil {
		span.RecordError(err)
	}
	return ok, err
}

func (p *Processor) generate(ctx context.Context, text string, msg channel.InboundMessage) (*channel.OutboundMessage, error) {
	ctx, span := p.tracer.Start(ctx, "inbound.generate")
	defer span.End()
	out, err := p.replies.GenerateReply(ctx, text, msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model failure")
	}
	return out, err
}

func (p *Processor) sendFixed(ctx context.Context, adapter channel.MessagingAdapter, msg channel.InboundMessage, text string) (Result, error) {
	return p.send(ctx, adapter, channel.ReplyTo(msg, text))
}

func (p *Processor) send(ctx context.Context, adapter channel.MessagingAdapter, out channel.OutboundMessage) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "inbound.send", trace.WithAttributes(
		attribute.String("provider", adapter.Type().String()),
	))
	defer span.End()

	receipt, err := adapter.Send(ctx, out)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		if channel.IsOptedOut(err) {
			p.logger.Debug("recipient opted out", slog.String("recipient", out.Target()))
		} else {
			p.logger.Error("reply send failed",
				slog.String("recipient", out.Target()),
				slog.Any("error", err))
		}
		return Result{Outcome: OutcomeFailed, Reason: "send failed"}, err
	}
	p.logger.Info("reply sent",
		slog.String("recipient", out.Target()),
		slog.String("provider_message_id", receipt.MessageID),
		slog.Int("attempts", receipt.Attempts))
	return Result{Outcome: OutcomeReplied, Receipt: &receipt}, nil
}

// IsModelFailure reports whether err came from the reply model.
func IsModelFailure(err error) bool {
	return errors.Is(err, reply.ErrModelFailure)
}
