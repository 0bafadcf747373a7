package surface

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"pagepilot/internal/domain"
)

// popupMode selects what the popup's input line is for.
type popupMode int

const (
	modeIdle popupMode = iota
	modeEnterKey
)

type (
	tabInfoMsg  domain.TabInfoResult
	auditMsg    domain.AuditResult
	keySavedMsg struct{}
	pingMsg     domain.PingResult
)

// PopupModel is the small control surface: credential entry, tab
// summary, one-shot audits.
type PopupModel struct {
	client Caller
	input  textinput.Model
	mode   popupMode

	version  string
	hasKey   bool
	tab      *domain.TabInfoResult
	audit    *domain.AuditResult
	status   string
	auditing bool
	quitting bool
}

// NewPopup creates the popup model.
func NewPopup(client Caller) PopupModel {
	ti := textinput.New()
	ti.Placeholder = "sk-..."
	ti.EchoMode = textinput.EchoPassword
	ti.CharLimit = 200

	return PopupModel{client: client, input: ti}
}

func (m PopupModel) Init() tea.Cmd {
	return tea.Batch(m.ping(), m.loadKeyState(), m.refreshTab())
}

func (m PopupModel) ping() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Call(context.Background(), domain.TypePing, nil)
		if err != nil {
			return surfaceErrMsg("coordinator unreachable: " + err.Error())
		}
		var result domain.PingResult
		if decodeErr := resp.DecodeData(&result); decodeErr != nil {
			return surfaceErrMsg(decodeErr.Error())
		}
		return pingMsg(result)
	}
}

func (m PopupModel) loadKeyState() tea.Cmd {
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

func (m PopupModel) refreshTab() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Call(context.Background(), domain.TypeGetTabInfo,
			domain.TabInfoPayload{IncludeContent: true})
		if err != nil {
			return surfaceErrMsg(err.Error())
		}
		if !resp.Success {
			return surfaceErrMsg(resp.Error)
		}
		var result domain.TabInfoResult
		if decodeErr := resp.DecodeData(&result); decodeErr != nil {
			return surfaceErrMsg(decodeErr.Error())
		}
		return tabInfoMsg(result)
	}
}

func (m PopupModel) runAudit() tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Call(context.Background(), domain.TypeRunAudit,
			domain.RunAuditPayload{})
		if err != nil {
			return surfaceErrMsg(err.Error())
		}
		if !resp.Success {
			return surfaceErrMsg(resp.Error)
		}
		var result domain.AuditResult
		if decodeErr := resp.DecodeData(&result); decodeErr != nil {
			return surfaceErrMsg(decodeErr.Error())
		}
		return auditMsg(result)
	}
}

func (m PopupModel) saveKey(key string) tea.Cmd {
	return func() tea.Msg {
		resp, err := m.client.Call(context.Background(), domain.TypeSetAPIKey,
			domain.SetAPIKeyPayload{APIKey: key})
		if err != nil {
			return surfaceErrMsg(err.Error())
		}
		if !resp.Success {
			return surfaceErrMsg(resp.Error)
		}
		return keySavedMsg{}
	}
}

func (m PopupModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case pingMsg:
		m.version = msg.Version
		return m, nil

	case keyStateMsg:
		m.hasKey = bool(msg)
		return m, nil

	case keySavedMsg:
		m.hasKey = true
		m.mode = modeIdle
		m.input.Blur()
		m.input.SetValue("")
		m.status = "API key saved"
		return m, nil

	case tabInfoMsg:
		result := domain.TabInfoResult(msg)
		m.tab = &result
		m.status = ""
		return m, nil

	case auditMsg:
		result := domain.AuditResult(msg)
		m.audit = &result
		m.auditing = false
		m.status = ""
		return m, nil

	case surfaceErrMsg:
		m.auditing = false
		m.status = string(msg)
		return m, nil

	case tea.KeyMsg:
		if m.mode == modeEnterKey {
			switch msg.String() {
			case "esc":
				m.mode = modeIdle
				m.input.Blur()
				m.input.SetValue("")
				return m, nil
			case "enter":
				key := strings.TrimSpace(m.input.Value())
				if key == "" {
					return m, nil
				}
				return m, m.saveKey(key)
			}
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}

		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "k":
			m.mode = modeEnterKey
			m.input.Focus()
			return m, textinput.Blink
		case "r":
			m.status = "refreshing..."
			return m, m.refreshTab()
		case "a":
			if m.auditing {
				return m, nil
			}
			m.auditing = true
			m.status = "auditing..."
			return m, m.runAudit()
		}
	}
	return m, nil
}

func (m PopupModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	title := "pagepilot"
	if m.version != "" {
		title += " v" + m.version
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	if m.hasKey {
		b.WriteString(scoreGoodStyle.Render("●") + " API key configured\n")
	} else {
		b.WriteString(scoreBadStyle.Render("●") + " no API key — press k to set one\n")
	}
	b.WriteString("\n")

	if m.tab != nil {
		b.WriteString(fmt.Sprintf("current page: %s\n", m.tab.Tab.Title))
		b.WriteString(dimStyle.Render(m.tab.Tab.URL) + "\n")
		if m.tab.Snapshot != nil && m.tab.Snapshot.MetaDescription != "" {
			b.WriteString(dimStyle.Render(m.tab.Snapshot.MetaDescription) + "\n")
		}
	} else {
		b.WriteString(dimStyle.Render("no web page") + "\n")
	}
	b.WriteString("\n")

	if m.audit != nil {
		b.WriteString(renderScores(*m.audit))
		b.WriteString("\n")
	}

	if m.mode == modeEnterKey {
		b.WriteString("API key: " + m.input.View() + "\n")
		b.WriteString(helpStyle.Render("enter: save · esc: cancel"))
	} else {
		if m.status != "" {
			b.WriteString(statusBarStyle.Render(m.status) + "\n")
		}
		b.WriteString(helpStyle.Render("k: set key · r: refresh · a: audit · q: quit"))
	}
	return b.String()
}

func renderScores(r domain.AuditResult) string {
	var b strings.Builder
	b.WriteString("audit scores\n")
	rows := []struct {
		label string
		score int
	}{
		{"performance", r.Scores.Performance},
		{"accessibility", r.Scores.Accessibility},
		{"best practices", r.Scores.BestPractices},
		{"seo", r.Scores.SEO},
		{"overall", r.Scores.Overall},
	}
	for _, row := range rows {
		style := scoreGoodStyle
		if row.score < 50 {
			style = scoreBadStyle
		}
		b.WriteString(fmt.Sprintf("  %-15s %s\n", row.label, style.Render(fmt.Sprintf("%3d", row.score))))
	}
	if r.Mocked {
		b.WriteString("  " + dimStyle.Render("(estimated)") + "\n")
	}
	return b.String()
}
