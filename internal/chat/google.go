package chat

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// GoogleProvider calls the Gemini API.
type GoogleProvider struct {
	client *genai.Client
	opts   providerOptions
}

func NewGoogleProvider(ctx context.Context, apiKey string, opts providerOptions) (*GoogleProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("google: api key is required")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GoogleProvider{client: client, opts: opts}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Chat(ctx context.Context, req Request) (Result, error) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	temperature := float32(p.opts.temperature(req))
	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(p.opts.maxTokens(req)),
		Temperature:     &temperature,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	model := p.opts.model(req)
	resp, err := p.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return Result{}, fmt.Errorf("gemini api error: %w", err)
	}
	if len(resp.Candidates) == 0 {
		return Result{}, ErrEmptyResponse
	}
	text := resp.Text()
	if text == "" {
		return Result{}, ErrEmptyResponse
	}
	out := Result{
		Message:      Message{Role: RoleAssistant, Content: text},
		Model:        model,
		Provider:     p.Name(),
		FinishReason: string(resp.Candidates[0].FinishReason),
	}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}
