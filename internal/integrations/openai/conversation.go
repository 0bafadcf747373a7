package openai

import (
	"sync"

	"pagepilot/internal/domain"
)

// maxConversationTurns caps stored history per conversation id. The
// oldest non-system turns are evicted first; system turns are always
// retained.
const maxConversationTurns = 20

// conversations is the process-lifetime conversation memory. It is
// destroyed on coordinator restart; there is no persistence.
type conversations struct {
	mu sync.Mutex
	m  map[string][]domain.ChatMessage
}

func newConversations() *conversations {
	return &conversations{m: make(map[string][]domain.ChatMessage)}
}

// turns returns a copy of the stored history for id, oldest first. A
// conversation is created implicitly on first use, so an unknown id
// simply yields an empty history.
func (c *conversations) turns(id string) []domain.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := c.m[id]
	out := make([]domain.ChatMessage, len(stored))
	copy(out, stored)
	return out
}

// record appends turns to the conversation and evicts the oldest
// non-system turns once the cap is exceeded.
func (c *conversations) record(id string, turns ...domain.ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	history := append(c.m[id], turns...)

	excess := countNonSystem(history) - maxConversationTurns
	if excess > 0 {
		trimmed := make([]domain.ChatMessage, 0, len(history)-excess)
		for _, t := range history {
			if t.Role != domain.RoleSystem && excess > 0 {
				excess--
				continue
			}
			trimmed = append(trimmed, t)
		}
		history = trimmed
	}
	c.m[id] = history
}

func (c *conversations) clear(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, id)
}

func (c *conversations) clearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string][]domain.ChatMessage)
}

func countNonSystem(msgs []domain.ChatMessage) int {
	n := 0
	for _, m := range msgs {
		if m.Role != domain.RoleSystem {
			n++
		}
	}
	return n
}

// truncateMessages keeps every system message and the most recent limit
// non-system messages, preserving chronological order within each
// retained group.
func truncateMessages(msgs []domain.ChatMessage, limit int) []domain.ChatMessage {
	excess := countNonSystem(msgs) - limit
	if excess <= 0 {
		return msgs
	}
	out := make([]domain.ChatMessage, 0, len(msgs)-excess)
	for _, m := range msgs {
		if m.Role != domain.RoleSystem && excess > 0 {
			excess--
			continue
		}
		out = append(out, m)
	}
	return out
}
