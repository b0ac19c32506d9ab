package reply

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/channel"
	"github.com/loubnaelmalali29-code/chip/internal/chat"
	"github.com/loubnaelmalali29-code/chip/internal/logger"
)

func inbound() channel.InboundMessage {
	return channel.InboundMessage{
		Provider:  "loop",
		AlertType: channel.AlertMessageInbound,
		Sender:    "+15551230000",
		MessageID: "in-1",
		Text:      "hi",
	}
}

func TestGenerateReplyBuildsOutbound(t *testing.T) {
	t.Parallel()

	stub := chat.NewStubProvider("  Hello there!  ")
	o := NewOrchestrator(logger.Discard(), stub, Options{Timeout: time.Second})
	out, err := o.GenerateReply(context.Background(), "challenge community", inbound())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out == nil {
		t.Fatal("expected outbound message")
	}
	if out.Recipient != "+15551230000" || out.Text != "Hello there!" || out.InReplyTo != "in-1" {
		t.Fatalf("unexpected outbound: %+v", out)
	}
	if got := stub.LastUserMessage(); got != "challenge community" {
		t.Fatalf("model saw %q", got)
	}
	if !strings.Contains(stub.Requests()[0].System, "Chip") {
		t.Fatal("system prompt not sent")
	}
}

func TestGenerateReplyGroupTarget(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(logger.Discard(), chat.NewStubProvider("ok"), Options{})
	msg := inbound()
	msg.GroupID = "g-1"
	out, err := o.GenerateReply(context.Background(), "hi", msg)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out.Target() != "g-1" {
		t.Fatalf("target = %q", out.Target())
	}
}

func TestGenerateReplyDeclined(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(logger.Discard(), chat.NewStubProvider("NO_REPLY"), Options{})
	out, err := o.GenerateReply(context.Background(), "ok thanks", inbound())
	if err != nil || out != nil {
		t.Fatalf("expected no reply and no error, got %+v, %v", out, err)
	}
}

func TestGenerateReplyFailures(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream 503")
	cases := []struct {
		name    string
		stub    *chat.StubProvider
		timeout time.Duration
		isTO    bool
	}{
		{name: "provider error", stub: &chat.StubProvider{Err: boom}, timeout: time.Second},
		{name: "empty output", stub: chat.NewStubProvider("   "), timeout: time.Second},
		{name: "timeout", stub: &chat.StubProvider{Respond: func(chat.Request) (string, error) {
			time.Sleep(50 * time.Millisecond)
			return "", context.DeadlineExceeded
		}}, timeout: 10 * time.Millisecond, isTO: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			o := NewOrchestrator(logger.Discard(), tc.stub, Options{Timeout: tc.timeout})
			out, err := o.GenerateReply(context.Background(), "hi", inbound())
			if out != nil {
				t.Fatalf("unexpected reply: %+v", out)
			}
			if !errors.Is(err, ErrModelFailure) {
				t.Fatalf("expected ErrModelFailure, got %v", err)
			}
			var me *ModelError
			if !errors.As(err, &me) {
				t.Fatalf("expected *ModelError, got %T", err)
			}
			if me.Timeout != tc.isTO {
				t.Fatalf("timeout = %v, want %v", me.Timeout, tc.isTO)
			}
		})
	}
}

func TestGenerateReplyBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var inFlight, peak atomic.Int32
	stub := &chat.StubProvider{Respond: func(chat.Request) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}}
	o := NewOrchestrator(logger.Discard(), stub, Options{MaxConcurrent: 2, Timeout: 5 * time.Second})
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = o.GenerateReply(context.Background(), "hi", inbound())
		}()
	}
	wg.Wait()
	if peak.Load() > 2 {
		t.Fatalf("peak concurrency %d exceeds 2", peak.Load())
	}
}

func TestGenerateReplyUsesHistory(t *testing.T) {
	t.Parallel()

	stub := chat.NewStubProvider("answer")
	o := NewOrchestrator(logger.Discard(), stub, Options{History: NewHistory(10, time.Hour), ContextTurns: 5})
	for _, text := range []string{"one", "two", "three"} {
		if _, err := o.GenerateReply(context.Background(), text, inbound()); err != nil {
			t.Fatalf("generate: %v", err)
		}
	}
	reqs := stub.Requests()
	last := reqs[len(reqs)-1].Messages
	// two earlier exchanges plus the new user turn
	if len(last) != 5 {
		t.Fatalf("expected 5 messages, got %d: %+v", len(last), last)
	}
	if last[0].Content != "one" || last[1].Content != "answer" || last[4].Content != "three" {
		t.Fatalf("unexpected context window: %+v", last)
	}
}

func TestHistoryExpiryAndCap(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	h := NewHistory(3, time.Hour)
	h.now = func() time.Time { return now }
	h.Append("k", chat.Message{Role: chat.RoleUser, Content: "a"}, chat.Message{Role: chat.RoleAssistant, Content: "b"})
	h.Append("k", chat.Message{Role: chat.RoleUser, Content: "c"}, chat.Message{Role: chat.RoleAssistant, Content: "d"})
	got := h.Recent("k", 10)
	if len(got) != 3 || got[0].Content != "b" {
		t.Fatalf("cap not applied: %+v", got)
	}
	if got := h.Recent("k", 1); len(got) != 1 || got[0].Content != "d" {
		t.Fatalf("recent(1) = %+v", got)
	}
	now = now.Add(2 * time.Hour)
	if got := h.Recent("k", 10); len(got) != 0 {
		t.Fatalf("expired turns returned: %+v", got)
	}
	if h.Len() != 0 {
		t.Fatalf("expired conversation still tracked")
	}
	var nilHistory *History
	if nilHistory.Recent("k", 5) != nil {
		t.Fatal("nil history should be empty")
	}
}

func TestIsSilentReply(t *testing.T) {
	t.Parallel()

	cases := map[string]bool{
		"NO_REPLY":           true,
		"  NO_REPLY  ":       true,
		"NO_REPLY.":          true,
		"ok. NO_REPLY":       true,
		"NO_REPLYING is fun": false,
		"say no_reply":       false,
		"sure, here you go":  false,
		"":                   false,
	}
	for in, want := range cases {
		if got := isSilentReply(in); got != want {
			t.Fatalf("isSilentReply(%q) = %v, want %v", in, got, want)
		}
	}
}
