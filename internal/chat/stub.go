package chat

import (
	"context"
	"sync"
)

// StubProvider returns a fixed reply and records every request. It is the
// deterministic backend used by tests and by the "stub" model provider.
type StubProvider struct {
	Reply string
	Err   error
	// Respond, when set, computes the reply from the request.
	Respond func(req Request) (string, error)

	mu       sync.Mutex
	requests []Request
}

func NewStubProvider(reply string) *StubProvider {
	return &StubProvider{Reply: reply}
}

func (p *StubProvider) Name() string { return "stub" }

func (p *StubProvider) Chat(ctx context.Context, req Request) (Result, error) {
	p.mu.Lock()
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	reply, err := p.Reply, p.Err
	if p.Respond != nil {
		reply, err = p.Respond(req)
	}
	if err != nil {
		return Result{}, err
	}
	return Result{
		Message:  Message{Role: RoleAssistant, Content: reply},
		Model:    "stub",
		Provider: p.Name(),
	}, nil
}

// Requests returns a copy of the requests seen so far.
func (p *StubProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Request(nil), p.requests...)
}

// LastUserMessage returns the final user turn of the most recent request.
func (p *StubProvider) LastUserMessage() string {
	reqs := p.Requests()
	if len(reqs) == 0 {
		return ""
	}
	msgs := reqs[len(reqs)-1].Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == RoleUser {
			return msgs[i].Content
		}
	}
	return ""
}
