package channel

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// OutboundPolicy configures how a provider send is timed, throttled and
// retried.
type OutboundPolicy struct {
	RetryMax       int           `json:"retry_max,omitempty"`
	Backoff        time.Duration `json:"backoff,omitempty"`
	BackoffMax     time.Duration `json:"backoff_max,omitempty"`
	AttemptTimeout time.Duration `json:"attempt_timeout,omitempty"`
	Deadline       time.Duration `json:"deadline,omitempty"`
	RateLimit      float64       `json:"rate_limit,omitempty"`
	RateBurst      int           `json:"rate_burst,omitempty"`
}

// NormalizeOutboundPolicy fills zero-value fields with defaults.
func NormalizeOutboundPolicy(policy OutboundPolicy) OutboundPolicy {
	if policy.RetryMax <= 0 {
		policy.RetryMax = 3
	}
	if policy.Backoff <= 0 {
		policy.Backoff = 500 * time.Millisecond
	}
	if policy.BackoffMax < policy.Backoff {
		policy.BackoffMax = 10 * policy.Backoff
	}
	if policy.AttemptTimeout <= 0 {
		policy.AttemptTimeout = 15 * time.Second
	}
	if policy.Deadline <= 0 {
		policy.Deadline = 30 * time.Second
	}
	if policy.RateLimit > 0 && policy.RateBurst <= 0 {
		policy.RateBurst = 1
	}
	return policy
}

// NewLimiter returns the send throttle for the policy, or nil when the
// policy is unthrottled.
func NewLimiter(policy OutboundPolicy) *rate.Limiter {
	if policy.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(policy.RateLimit), policy.RateBurst)
}

// RetryState tracks one send's progress through its retry budget: the
// number of attempts started and the deadline for the whole send.
type RetryState struct {
	policy   OutboundPolicy
	attempt  int
	deadline time.Time
}

// NewRetryState starts a retry budget at now.
func NewRetryState(policy OutboundPolicy, now time.Time) *RetryState {
	policy = NormalizeOutboundPolicy(policy)
	return &RetryState{policy: policy, deadline: now.Add(policy.Deadline)}
}

// Attempt returns the number of attempts started so far.
func (s *RetryState) Attempt() int { return s.attempt }

// Deadline returns the instant the whole send must finish by.
func (s *RetryState) Deadline() time.Time { return s.deadline }

// Begin records the start of a new attempt.
func (s *RetryState) Begin() { s.attempt++ }

// Backoff returns the wait after the current attempt: Backoff doubled per
// completed attempt, capped at BackoffMax.
func (s *RetryState) Backoff() time.Duration {
	wait := s.policy.Backoff
	for i := 1; i < s.attempt; i++ {
		wait *= 2
		if wait >= s.policy.BackoffMax {
			return s.policy.BackoffMax
		}
	}
	return wait
}

// Next decides whether another attempt may follow err. It returns the wait
// before that attempt, or false when err is final or the budget is spent.
func (s *RetryState) Next(err error, now time.Time) (time.Duration, bool) {
	ae, ok := AsAdapterError(err)
	if !ok || !ae.Retryable() {
		return 0, false
	}
	if s.attempt >= s.policy.RetryMax {
		return 0, false
	}
	wait := s.Backoff()
	if !now.Add(wait).Before(s.deadline) {
		return 0, false
	}
	return wait, true
}

// AttemptFunc performs one provider call.
type AttemptFunc func(ctx context.Context, attempt int) (DeliveryReceipt, error)

// SendWithRetry drives fn until it succeeds, fails permanently, or the
// policy's attempt count or deadline is exhausted. Each attempt waits on
// limiter (when non-nil) and runs under AttemptTimeout.
func SendWithRetry(ctx context.Context, provider ProviderKey, policy OutboundPolicy, limiter *rate.Limiter, logger *slog.Logger, fn AttemptFunc) (DeliveryReceipt, error) {
	if logger == nil {
		logger = slog.Default()
	}
	state := NewRetryState(policy, time.Now())
	policy = state.policy
	ctx, cancel := context.WithDeadline(ctx, state.deadline)
	defer cancel()

	for {
		state.Begin()
		receipt, err := runAttempt(ctx, provider, policy, limiter, state.attempt, fn)
		if err == nil {
			receipt.Attempts = state.attempt
			if receipt.Provider == "" {
				receipt.Provider = provider
			}
			return receipt, nil
		}
		wait, again := state.Next(err, time.Now())
		if !again {
			return DeliveryReceipt{}, finalize(provider, err, state.attempt)
		}
		logger.Warn("send outbound retry",
			slog.String("provider", provider.String()),
			slog.Int("attempt", state.attempt),
			slog.Duration("backoff", wait),
			slog.Any("error", err))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return DeliveryReceipt{}, finalize(provider, err, state.attempt)
		case <-timer.C:
		}
	}
}

func runAttempt(ctx context.Context, provider ProviderKey, policy OutboundPolicy, limiter *rate.Limiter, attempt int, fn AttemptFunc) (DeliveryReceipt, error) {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return DeliveryReceipt{}, TransientError(provider, 0, "rate limit wait", err)
		}
	}
	attemptCtx, cancel := context.WithTimeout(ctx, policy.AttemptTimeout)
	defer cancel()
	receipt, err := fn(attemptCtx, attempt)
	if err == nil {
		return receipt, nil
	}
	if _, ok := AsAdapterError(err); ok {
		return DeliveryReceipt{}, err
	}
	if errors.Is(err, ErrInvalidMessage) {
		return DeliveryReceipt{}, PermanentError(provider, 0, "invalid message", err)
	}
	return DeliveryReceipt{}, TransientError(provider, 0, "request failed", err)
}

func finalize(provider ProviderKey, err error, attempts int) error {
	ae, ok := AsAdapterError(err)
	if !ok {
		ae = PermanentError(provider, 0, "request failed", err)
	}
	out := *ae
	out.Attempts = attempts
	out.Exhausted = out.Kind == KindTransient
	return &out
}

// TruncateText shortens text to at most limit runes, marking the cut with an
// ellipsis.
func TruncateText(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if limit == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}
