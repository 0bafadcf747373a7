package openai

import (
	"fmt"
	"strings"

	"pagepilot/internal/domain"
)

// maxContextLogs bounds how many console entries are folded into the
// context turn.
const maxContextLogs = 20

// buildMessages assembles the ordered upstream message list: one
// optional system turn synthesized from page context, the prior turns,
// then the new user turn.
func buildMessages(pageCtx *domain.PageContext, history []domain.ChatMessage, userMessage string) []domain.ChatMessage {
	var messages []domain.ChatMessage
	if sys := buildContextPrompt(pageCtx); sys != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: sys})
	}
	messages = append(messages, history...)
	messages = append(messages, domain.ChatMessage{Role: domain.RoleUser, Content: userMessage})
	return messages
}

// buildContextPrompt renders the page context as a system prompt. Each
// section is appended only if present; an empty context yields "".
func buildContextPrompt(pageCtx *domain.PageContext) string {
	if pageCtx == nil {
		return ""
	}

	var parts []string
	if pageCtx.URL != "" {
		parts = append(parts, "Current page URL: "+pageCtx.URL)
	}
	if pageCtx.Title != "" {
		parts = append(parts, "Current page title: "+pageCtx.Title)
	}
	if pageCtx.SelectedText != "" {
		parts = append(parts, "Selected text on the page:\n"+pageCtx.SelectedText)
	}
	if len(pageCtx.ConsoleLogs) > 0 {
		logs := pageCtx.ConsoleLogs
		if len(logs) > maxContextLogs {
			logs = logs[len(logs)-maxContextLogs:]
		}
		var b strings.Builder
		b.WriteString("Recent console output:\n")
		for _, entry := range logs {
			fmt.Fprintf(&b, "[%s] %s\n", entry.Level, entry.Text)
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}
	if pageCtx.Analysis != nil {
		parts = append(parts, "Page analysis:\n"+renderAnalysis(pageCtx.Analysis))
	}
	if len(parts) == 0 {
		return ""
	}

	return "You are a browsing assistant. Use the page context below when it is relevant.\n\n" +
		strings.Join(parts, "\n\n")
}

func renderAnalysis(a *domain.PageAnalysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "- %d elements, %d images, %d scripts, %d stylesheets, %d links\n",
		a.Stats.Elements, a.Stats.Images, a.Stats.Scripts, a.Stats.Stylesheets, a.Stats.Links)
	if len(a.BrokenImages) > 0 {
		fmt.Fprintf(&b, "- broken images: %s\n", strings.Join(a.BrokenImages, ", "))
	}
	if a.ImagesMissingAlt > 0 {
		fmt.Fprintf(&b, "- %d images missing alt text\n", a.ImagesMissingAlt)
	}
	if a.InputsMissingLabel > 0 {
		fmt.Fprintf(&b, "- %d form inputs missing labels\n", a.InputsMissingLabel)
	}
	return strings.TrimRight(b.String(), "\n")
}
