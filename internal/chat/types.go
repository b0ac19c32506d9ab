// Package chat is the language-model capability: one Provider per backend
// behind a single Chat call.
package chat

import (
	"context"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrEmptyResponse is returned when a backend answers without any text.
var ErrEmptyResponse = errors.New("model returned no text")

// Message is one conversation turn.
type Message struct {
	Role    string `json:"role"` // user, assistant
	Content string `json:"content"`
}

// Request is the provider-independent completion request.
type Request struct {
	System      string
	Messages    []Message
	Model       string   // optional: overrides the provider default
	Temperature *float64 // optional temperature
	MaxTokens   int      // optional max output tokens
}

// Usage is token usage information when the backend reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Result is the provider-independent completion result.
type Result struct {
	Message      Message
	Model        string
	Provider     string
	FinishReason string
	Usage        Usage
}

// Provider produces one assistant reply for a request.
type Provider interface {
	Name() string
	Chat(ctx context.Context, req Request) (Result, error)
}

// providerOptions are the defaults shared by every backend.
type providerOptions struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

func (o providerOptions) model(req Request) string {
	if req.Model != "" {
		return req.Model
	}
	return o.Model
}

func (o providerOptions) temperature(req Request) float64 {
	if req.Temperature != nil {
		return *req.Temperature
	}
	return o.Temperature
}

func (o providerOptions) maxTokens(req Request) int {
	if req.MaxTokens > 0 {
		return req.MaxTokens
	}
	if o.MaxTokens > 0 {
		return o.MaxTokens
	}
	return 512
}
