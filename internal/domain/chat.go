package domain

// Chat roles as used on the wire by the chat-completions endpoint.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the provider-agnostic chat message shape used by the
// coordinator and the LLM integration.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Usage carries the upstream token counters for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// PageContext is the optional page-derived context attached to a chat
// request. Every field is appended to the synthesized system turn only
// if present.
type PageContext struct {
	URL          string         `json:"url,omitempty"`
	Title        string         `json:"title,omitempty"`
	SelectedText string         `json:"selectedText,omitempty"`
	ConsoleLogs  []ConsoleEntry `json:"consoleLogs,omitempty"`
	Analysis     *PageAnalysis  `json:"analysis,omitempty"`
}
