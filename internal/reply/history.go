package reply

import (
	"sync"
	"time"

	"github.com/loubnaelmalali29-code/chip/internal/chat"
)

type turn struct {
	msg chat.Message
	at  time.Time
}

// History keeps recent turns per conversation in memory. Turns older than
// the TTL are dropped on read and on append.
type History struct {
	mu       sync.Mutex
	maxTurns int
	ttl      time.Duration
	now      func() time.Time
	turns    map[string][]turn
}

// NewHistory keeps at most maxTurns per conversation for ttl. A zero
// maxTurns disables recording.
func NewHistory(maxTurns int, ttl time.Duration) *History {
	return &History{
		maxTurns: maxTurns,
		ttl:      ttl,
		now:      time.Now,
		turns:    make(map[string][]turn),
	}
}

// Recent returns up to n of the newest live turns for key, oldest first.
func (h *History) Recent(key string, n int) []chat.Message {
	if h == nil || n <= 0 {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	live := h.prune(key)
	if len(live) > n {
		live = live[len(live)-n:]
	}
	out := make([]chat.Message, 0, len(live))
	for _, t := range live {
		out = append(out, t.msg)
	}
	return out
}

// Append records messages for key.
func (h *History) Append(key string, msgs ...chat.Message) {
	if h == nil || h.maxTurns <= 0 || key == "" {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	now := h.now()
	live := h.prune(key)
	for _, m := range msgs {
		live = append(live, turn{msg: m, at: now})
	}
	if len(live) > h.maxTurns {
		live = append([]turn(nil), live[len(live)-h.maxTurns:]...)
	}
	h.turns[key] = live
}

// Len returns the number of conversations currently tracked.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// prune drops expired turns for key. Callers hold mu.
func (h *History) prune(key string) []turn {
	list := h.turns[key]
	if h.ttl <= 0 || len(list) == 0 {
		return list
	}
	cutoff := h.now().Add(-h.ttl)
	i := 0
	for i < len(list) && list[i].at.Before(cutoff) {
		i++
	}
	if i == len(list) {
		delete(h.turns, key)
		return nil
	}
	if i > 0 {
		list = list[i:]
		h.turns[key] = list
	}
	return list
}
