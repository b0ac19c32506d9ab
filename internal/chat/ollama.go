package chat

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// OllamaProvider calls a local or remote Ollama server.
type OllamaProvider struct {
	client *api.Client
	opts   providerOptions
}

// NewOllamaProvider targets host, or OLLAMA_HOST when host is empty.
func NewOllamaProvider(host string, httpClient *http.Client, opts providerOptions) (*OllamaProvider, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("ollama: model is required")
	}
	var (
		client *api.Client
		err    error
	)
	if host == "" {
		client, err = api.ClientFromEnvironment()
	} else {
		var base *url.URL
		base, err = url.Parse(strings.TrimRight(host, "/"))
		if err == nil {
			if httpClient == nil {
				httpClient = http.DefaultClient
			}
			client = api.NewClient(base, httpClient)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Ollama client: %w", err)
	}
	return &OllamaProvider{client: client, opts: opts}, nil
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Chat(ctx context.Context, req Request) (Result, error) {
	messages := make([]api.Message, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, api.Message{Role: RoleSystem, Content: req.System})
	}
	for _, m := range req.Messages {
		messages = append(messages, api.Message{Role: m.Role, Content: m.Content})
	}
	model := p.opts.model(req)
	stream := false
	chatRequest := &api.ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": p.opts.temperature(req),
			"num_predict": p.opts.maxTokens(req),
		},
	}
	var (
		content strings.Builder
		final   api.ChatResponse
	)
	err := p.client.Chat(ctx, chatRequest, func(resp api.ChatResponse) error {
		content.WriteString(resp.Message.Content)
		if resp.Done {
			final = resp
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("ollama chat error: %w", err)
	}
	if content.Len() == 0 {
		return Result{}, ErrEmptyResponse
	}
	return Result{
		Message:      Message{Role: RoleAssistant, Content: content.String()},
		Model:        model,
		Provider:     p.Name(),
		FinishReason: final.DoneReason,
		Usage: Usage{
			PromptTokens:     final.PromptEvalCount,
			CompletionTokens: final.EvalCount,
			TotalTokens:      final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}
