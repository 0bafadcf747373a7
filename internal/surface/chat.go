// Package surface holds the short-lived terminal front surfaces: the
// chat window and the popup. A surface keeps no state between runs; it
// loads what it needs at startup and renders whatever arrives, whether
// a direct reply to its own request or a broadcast initiated elsewhere.
package surface

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pagepilot/internal/domain"
)

// Caller is the surface side of the bus. *transport.Client satisfies it.
type Caller interface {
	Call(ctx context.Context, typ domain.MessageType, payload any) (domain.Response, error)
	Notifications() <-chan domain.Message
}

// ConversationID is the chat window's conversation label. It is a
// fixed short label, not a generated id: every chat window instance
// shares one history by design.
const ConversationID = "chat-window"

type chatLine struct {
	role string
	text string
}

type (
	chatReplyMsg     domain.ChatResultPayload
	chatBroadcastMsg domain.Message
	keyStateMsg      bool
	surfaceErrMsg    string
)

// ChatModel is the standalone chat window.
type ChatModel struct {
	client Caller
	input  textinput.Model

	lines     []chatLine
	status    string
	hasKey    bool
	inFlight  bool
	width     int
	height    int
	quitting  bool
}

// NewChat creates the chat window model.
func NewChat(client Caller) ChatModel {
	ti := textinput.New()
	ti.Placeholder = "ask about this page..."
	ti.CharLimit = 2000
	ti.Focus()

	return ChatModel{
		client: client,
		input:  ti,
		width:  100,
		height: 30,
	}
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadKeyState(), m.listen())
}

// loadKeyState fetches the credential state on startup; the surface has
// no memory between openings.
func (m ChatModel) loadKeyState() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Call(context.Background(), domain.TypeGetAPIKey, nil)
		if err != nil || !resp.Success {
			return keyStateMsg(false)
		}
		var key string
		if decodeErr := resp.DecodeData(&key); decodeErr != nil {
			return keyStateMsg(false)
		}
		return keyStateMsg(key != "")
	}
}

// listen waits for the next broadcast this surface accepts.
func (m ChatModel) listen() tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-m.client.Notifications()
		if !ok {
			return surfaceErrMsg("connection to coordinator lost")
		}
		return chatBroadcastMsg(msg)
	}
}

func (m ChatModel) send(text string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Call(context.Background(), domain.TypeChatRequest,
			domain.ChatRequestPayload{Message: text, ConversationID: ConversationID})
		if err != nil {
			return surfaceErrMsg(err.Error())
		}
		if !resp.Success {
			return chatReplyMsg(domain.ChatResultPayload{Error: resp.Error})
		}
		var payload domain.ChatResultPayload
		if decodeErr := resp.DecodeData(&payload); decodeErr != nil {
			return surfaceErrMsg(decodeErr.Error())
		}
		return chatReplyMsg(payload)
	}
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case keyStateMsg:
		m.hasKey = bool(msg)
		if !m.hasKey {
			m.status = "no API key configured — set one in the popup"
		}
		return m, nil

	case chatReplyMsg:
		m.inFlight = false
		if msg.Error != "" {
			m.status = msg.Error
			return m, nil
		}
		m.status = usageLine(msg.Usage)
		m.lines = append(m.lines, chatLine{role: domain.RoleAssistant, text: msg.Content})
		return m, nil

	case chatBroadcastMsg:
		cmd := m.listen()
		switch msg.Type {
		case domain.TypeChatResponse:
			var payload domain.ChatResultPayload
			if err := json.Unmarshal(msg.Payload, &payload); err != nil {
				return m, cmd
			}
			// replies to this window's own request arrive directly;
			// only results initiated elsewhere render from broadcast
			if m.inFlight {
				return m, cmd
			}
			if payload.Error != "" {
				m.status = payload.Error
				return m, cmd
			}
			m.lines = append(m.lines, chatLine{role: domain.RoleAssistant, text: payload.Content})
		case domain.TypeAuditResult:
			var result domain.AuditResult
			if err := json.Unmarshal(msg.Payload, &result); err != nil {
				return m, cmd
			}
			m.lines = append(m.lines, chatLine{role: domain.RoleAssistant, text: renderAudit(result)})
		}
		return m, cmd

	case surfaceErrMsg:
		m.inFlight = false
		m.status = string(msg)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.inFlight {
				return m, nil
			}
			m.lines = append(m.lines, chatLine{role: domain.RoleUser, text: text})
			m.input.SetValue("")
			m.inFlight = true
			m.status = "waiting for reply..."
			return m, m.send(text)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("pagepilot chat"))
	b.WriteString("\n\n")

	for _, line := range m.lines {
		tag := userRoleStyle.Render("you")
		if line.role == domain.RoleAssistant {
			tag = assistantRoleStyle.Render("assistant")
		}
		b.WriteString(tag + " " + wrap(line.text, m.width-12) + "\n\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.status != "" {
		if strings.Contains(m.status, "error") || strings.Contains(m.status, "ERROR") {
			b.WriteString(errorStyle.Render(m.status))
		} else {
			b.WriteString(statusBarStyle.Render(m.status))
		}
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("enter: send · esc: quit"))
	return b.String()
}

func usageLine(u *domain.Usage) string {
	if u == nil {
		return ""
	}
	return fmt.Sprintf("%d prompt + %d completion = %d tokens",
		u.PromptTokens, u.CompletionTokens, u.TotalTokens)
}

func renderAudit(r domain.AuditResult) string {
	style := scoreGoodStyle
	if r.Scores.Overall < 50 {
		style = scoreBadStyle
	}
	header := fmt.Sprintf("audit of %s — overall %s", r.URL,
		style.Render(fmt.Sprintf("%d", r.Scores.Overall)))
	detail := fmt.Sprintf(
		"performance %d · accessibility %d · best practices %d · seo %d\nload %.0fms · FCP %.0fms · LCP %.0fms · CLS %.2f",
		r.Scores.Performance, r.Scores.Accessibility, r.Scores.BestPractices, r.Scores.SEO,
		r.Metrics.LoadTime, r.Metrics.FirstContentfulPaint,
		r.Metrics.LargestContentfulPaint, r.Metrics.CumulativeLayoutShift)
	if r.Mocked {
		detail += "\n" + dimStyle.Render("(estimated — live measurement unavailable)")
	}
	return header + "\n" + detail
}

func wrap(s string, width int) string {
	if width < 20 {
		width = 20
	}
	return lipgloss.NewStyle().Width(width).Render(s)
}
