package openai

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"pagepilot/internal/domain"
)

func TestConversations_ImplicitCreation(t *testing.T) {
	c := newConversations()
	require.Empty(t, c.turns("never-seen"))
}

func TestConversations_CapEvictsOldestFirst(t *testing.T) {
	c := newConversations()
	total := maxConversationTurns + 6
	for i := 0; i < total; i++ {
		c.record("c1", domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	got := c.turns("c1")
	require.Len(t, got, maxConversationTurns)
	require.Equal(t, fmt.Sprintf("turn %d", total-maxConversationTurns), got[0].Content,
		"oldest turns are evicted first")
	require.Equal(t, fmt.Sprintf("turn %d", total-1), got[len(got)-1].Content)
}

func TestConversations_SystemTurnsSurviveEviction(t *testing.T) {
	c := newConversations()
	c.record("c1", domain.ChatMessage{Role: domain.RoleSystem, Content: "rules"})
	for i := 0; i < maxConversationTurns+4; i++ {
		c.record("c1", domain.ChatMessage{Role: domain.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	got := c.turns("c1")
	require.Equal(t, "rules", got[0].Content)
	require.Equal(t, domain.RoleSystem, got[0].Role)
	require.Equal(t, maxConversationTurns, countNonSystem(got))
}

func TestConversations_TurnsReturnsACopy(t *testing.T) {
	c := newConversations()
	c.record("c1", domain.ChatMessage{Role: domain.RoleUser, Content: "original"})

	got := c.turns("c1")
	got[0].Content = "mutated"
	require.Equal(t, "original", c.turns("c1")[0].Content)
}

func TestTruncateMessages(t *testing.T) {
	msgs := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "u1"},
		{Role: domain.RoleAssistant, Content: "a1"},
		{Role: domain.RoleUser, Content: "u2"},
		{Role: domain.RoleAssistant, Content: "a2"},
		{Role: domain.RoleUser, Content: "u3"},
	}

	got := truncateMessages(msgs, 3)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "u2"},
		{Role: domain.RoleAssistant, Content: "a2"},
		{Role: domain.RoleUser, Content: "u3"},
	}, got, "chronological order preserved within retained groups")
}

func TestTruncateMessages_UnderLimitUnchanged(t *testing.T) {
	msgs := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "u1"},
	}
	require.Equal(t, msgs, truncateMessages(msgs, 5))
}
