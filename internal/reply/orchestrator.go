// Package reply turns normalized inbound text into an outbound reply by
// calling the language-model capability.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/chat"
)

// ErrModelFailure marks every failure of the model call.
var ErrModelFailure = errors.New("model failure")

// ModelError is the typed failure returned by GenerateReply.
type ModelError struct {
	Provider string
	Timeout  bool
	Err      error
}

func (e *ModelError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("model failure: %s: timeout", e.Provider)
	}
	return fmt.Sprintf("model failure: %s: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() []error {
	return []error{ErrModelFailure, e.Err}
}

// Options configures an Orchestrator.
type Options struct {
	Timeout       time.Duration
	MaxConcurrent int64
	// ContextTurns is how many history turns are sent with each request.
	ContextTurns int
	History      *History
	// MaxTextLength truncates replies; zero means no limit.
	MaxTextLength int
	Platform      string
	Now           func() time.Time
}

// Orchestrator calls the model for one inbound message and builds the
// reply. It is safe for concurrent use.
type Orchestrator struct {
	logger   *slog.Logger
	provider chat.Provider
	opts     Options
	sem      *semaphore.Weighted
}

func NewOrchestrator(log *slog.Logger, provider chat.Provider, opts Options) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		logger:   log.With(slog.String("component", "reply")),
		provider: provider,
		opts:     opts,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// GenerateReply asks the model to answer text on behalf of msg's sender.
// It returns nil without error when the model declines to reply, and a
// *ModelError when the call fails, times out or produces no text.
func (o *Orchestrator) GenerateReply(ctx context.Context, text string, msg channel.InboundMessage) (*channel.OutboundMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	defer cancel()

	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, o.modelError(ctx, err)
	}
	defer o.sem.Release(1)

	key := conversationKey(msg)
	messages := o.opts.History.Recent(key, o.opts.ContextTurns)
	userTurn := chat.Message{Role: chat.RoleUser, Content: text}
	messages = append(messages, userTurn)

	start := time.Now()
	res, err := o.provider.Chat(ctx, chat.Request{
		System:   chat.SystemPrompt(chat.PromptParams{Date: o.opts.Now(), Platform: o.opts.Platform}),
		Messages: messages,
	})
	if err != nil {
		return nil, o.modelError(ctx, err)
	}
	o.logger.Debug("model reply",
		slog.String("provider", o.provider.Name()),
		slog.String("model", res.Model),
		slog.Duration("latency", time.Since(start)),
		slog.Int("completion_tokens", res.Usage.CompletionTokens))

	reply := strings.TrimSpace(res.Message.Content)
	if reply == "" {
		return nil, &ModelError{Provider: o.provider.Name(), Err: chat.ErrEmptyResponse}
	}
	if isSilentReply(reply) {
		o.logger.Debug("model declined to reply", slog.String("message_id", msg.MessageID))
		return nil, nil
	}
	if o.opts.MaxTextLength > 0 {
		reply = channel.TruncateText(reply, o.opts.MaxTextLength)
	}
	o.opts.History.Append(key, userTurn, chat.Message{Role: chat.RoleAssistant, Content: reply})

	out := channel.ReplyTo(msg, reply)
	return &out, nil
}

func (o *Orchestrator) modelError(ctx context.Context, err error) *ModelError {
	timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
	return &ModelError{Provider: o.provider.Name(), Timeout: timeout, Err: err}
}

// conversationKey groups history by group id, else by sender.
func conversationKey(msg channel.InboundMessage) string {
	if msg.GroupID != "" {
		return msg.Provider.String() + ":group:" + msg.GroupID
	}
	return msg.Provider.String() + ":" + strings.ToLower(msg.Sender)
}
