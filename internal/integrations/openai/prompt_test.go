package openai

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pagepilot/internal/domain"
)

func TestBuildContextPrompt_NilAndEmpty(t *testing.T) {
	require.Empty(t, buildContextPrompt(nil))
	require.Empty(t, buildContextPrompt(&domain.PageContext{}))
}

func TestBuildContextPrompt_ConditionalSections(t *testing.T) {
	got := buildContextPrompt(&domain.PageContext{
		URL:          "https://example.com/docs",
		SelectedText: "a selected passage",
	})
	require.Contains(t, got, "https://example.com/docs")
	require.Contains(t, got, "a selected passage")
	require.NotContains(t, got, "title")
	require.NotContains(t, got, "console")
}

func TestBuildContextPrompt_ConsoleLogsAreBounded(t *testing.T) {
	pc := &domain.PageContext{}
	for i := 0; i < maxContextLogs+10; i++ {
		pc.ConsoleLogs = append(pc.ConsoleLogs, domain.ConsoleEntry{Level: "error", Text: "boom"})
	}
	got := buildContextPrompt(pc)
	require.Contains(t, got, "[error] boom")
}

func TestBuildContextPrompt_Analysis(t *testing.T) {
	got := buildContextPrompt(&domain.PageContext{
		Analysis: &domain.PageAnalysis{
			BrokenImages:     []string{"logo"},
			ImagesMissingAlt: 2,
			Stats:            domain.PageStats{Elements: 40, Images: 3},
		},
	})
	require.Contains(t, got, "broken images: logo")
	require.Contains(t, got, "2 images missing alt text")
}

func TestBuildMessages_Order(t *testing.T) {
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "earlier"},
		{Role: domain.RoleAssistant, Content: "reply"},
	}
	got := buildMessages(&domain.PageContext{URL: "https://e.com"}, history, "now")

	require.Len(t, got, 4)
	require.Equal(t, domain.RoleSystem, got[0].Role)
	require.Equal(t, "earlier", got[1].Content)
	require.Equal(t, "reply", got[2].Content)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "now"}, got[3])
}

func TestBuildMessages_NoContext(t *testing.T) {
	got := buildMessages(nil, nil, "hello")
	require.Equal(t, []domain.ChatMessage{{Role: domain.RoleUser, Content: "hello"}}, got)
}
