// Package openai is a focused chat-completions client that also owns
// the coordinator's conversation memory: process-lifetime turn history
// keyed by caller-supplied conversation labels.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"pagepilot/internal/domain"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	defaultModel       = "gpt-4o-mini"
	defaultMaxTokens   = 1024
	defaultTemperature = 0.7

	// maxPromptTurns caps how many non-system turns are sent upstream;
	// system turns are always retained.
	maxPromptTurns = 10
)

// ErrNoCredential is the configuration error for any call made before a
// credential is set. No network call is issued in that case.
var ErrNoCredential = errors.New("openai: no API key configured")

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model       string               `json:"model"`
	Messages    []domain.ChatMessage `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature float64              `json:"temperature"`
	Stream      bool                 `json:"stream"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Index   int                `json:"index"`
		Message domain.ChatMessage `json:"message"`
	} `json:"choices"`
	Usage *domain.Usage `json:"usage"`
}

// apiError is the nested error body upstream sends on non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// HTTPStatusError captures non-2xx upstream responses with status-aware context.
type HTTPStatusError struct {
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("openai: %s", e.Message)
	}
	return fmt.Sprintf("openai: unexpected status %d", e.StatusCode)
}

func (e *HTTPStatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Client calls the chat-completions endpoint and keeps per-conversation
// history. The credential is mutable at runtime; the coordinator mirrors
// every credential change into it.
type Client struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client

	keyMu  sync.RWMutex
	apiKey string

	history *conversations
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithModel(model string) Option {
	return func(c *Client) {
		c.model = strings.TrimSpace(model)
	}
}

func WithMaxTokens(n int) Option {
	return func(c *Client) {
		c.maxTokens = n
	}
}

// NewClient creates a Client with no credential set. Calls fail with
// ErrNoCredential until SetCredential is used.
func NewClient(opts ...Option) *Client {
	c := &Client{
		baseURL:     defaultBaseURL,
		model:       defaultModel,
		maxTokens:   defaultMaxTokens,
		temperature: defaultTemperature,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		history:     newConversations(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.baseURL == "" {
		c.baseURL = defaultBaseURL
	}
	if c.model == "" {
		c.model = defaultModel
	}
	if c.maxTokens <= 0 {
		c.maxTokens = defaultMaxTokens
	}
	return c
}

// SetCredential replaces the active credential. No format validation
// beyond non-empty; an empty key clears the credential.
func (c *Client) SetCredential(key string) {
	c.keyMu.Lock()
	c.apiKey = strings.TrimSpace(key)
	c.keyMu.Unlock()
}

// HasCredential reports whether a credential is currently set.
func (c *Client) HasCredential() bool {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	return c.apiKey != ""
}

func (c *Client) credential() (string, error) {
	c.keyMu.RLock()
	defer c.keyMu.RUnlock()
	if c.apiKey == "" {
		return "", ErrNoCredential
	}
	return c.apiKey, nil
}

// SendInput is one relayed prompt.
type SendInput struct {
	Message        string
	ConversationID string
	Context        *domain.PageContext
}

// SendOutput is the normalized completion result.
type SendOutput struct {
	Content string
	Model   string
	Usage   domain.Usage
}

// Send relays one prompt upstream. The outgoing message list is the
// optional context system turn, the conversation's prior turns, then
// the new user turn, truncated to the most recent non-system turns with
// all system turns retained. On success the user/assistant pair is
// recorded into the conversation history.
//
// Conversation ids are caller-chosen short labels; two callers reusing
// a label share (and merge) one history. Concurrent sends against the
// same id are not serialized, so their history writes may interleave.
func (c *Client) Send(ctx context.Context, in SendInput) (SendOutput, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return SendOutput{}, errors.New("openai: message must not be empty")
	}
	apiKey, err := c.credential()
	if err != nil {
		return SendOutput{}, err
	}

	convID := strings.TrimSpace(in.ConversationID)
	if convID == "" {
		convID = "default"
	}

	messages := buildMessages(in.Context, c.history.turns(convID), message)
	messages = truncateMessages(messages, maxPromptTurns)

	reply, err := c.complete(ctx, apiKey, messages)
	if err != nil {
		return SendOutput{}, err
	}

	c.history.record(convID,
		domain.ChatMessage{Role: domain.RoleUser, Content: message},
		domain.ChatMessage{Role: domain.RoleAssistant, Content: reply.content},
	)

	return SendOutput{Content: reply.content, Model: reply.model, Usage: reply.usage}, nil
}

// TestConnection sends a minimal fixed probe and reports success plus
// the raw reply or error text. Conversation state is never touched.
func (c *Client) TestConnection(ctx context.Context) (bool, string) {
	apiKey, err := c.credential()
	if err != nil {
		return false, err.Error()
	}
	reply, err := c.complete(ctx, apiKey, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "ping"},
	})
	if err != nil {
		return false, err.Error()
	}
	return true, reply.content
}

// Clear removes one conversation's history.
func (c *Client) Clear(conversationID string) {
	c.history.clear(conversationID)
}

// ClearAll wipes every conversation.
func (c *Client) ClearAll() {
	c.history.clearAll()
}

type completion struct {
	content string
	model   string
	usage   domain.Usage
}

func (c *Client) complete(ctx context.Context, apiKey string, messages []domain.ChatMessage) (completion, error) {
	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		Stream:      false,
	})
	if err != nil {
		return completion{}, fmt.Errorf("openai: marshal request: %w", err)
	}

	url := chatURL(c.baseURL)
	req, reqErr := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if reqErr != nil {
		return completion{}, fmt.Errorf("openai: create request: %w", reqErr)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	res, doErr := c.httpClient.Do(req)
	if doErr != nil {
		return completion{}, fmt.Errorf("openai: request failed: %w", doErr)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return completion{}, &HTTPStatusError{
			StatusCode: res.StatusCode,
			Message:    upstreamErrorMessage(buf),
		}
	}

	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return completion{}, fmt.Errorf("openai: read response body: %w", err)
	}

	var payload chatResponse
	if decErr := json.Unmarshal(raw, &payload); decErr != nil {
		return completion{}, fmt.Errorf("openai: decode response: %w", decErr)
	}
	if len(payload.Choices) == 0 {
		return completion{}, errors.New("openai: no choices in response")
	}

	out := completion{
		content: payload.Choices[0].Message.Content,
		model:   payload.Model,
	}
	if payload.Usage != nil {
		out.usage = *payload.Usage
	}
	return out, nil
}

// upstreamErrorMessage extracts the nested error message from a non-2xx
// body, or "" if the body carries none.
func upstreamErrorMessage(body []byte) string {
	var e apiError
	if err := json.Unmarshal(body, &e); err != nil {
		return ""
	}
	return strings.TrimSpace(e.Error.Message)
}

func chatURL(baseURL string) string {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	if strings.HasSuffix(base, "/v1") {
		return base + "/chat/completions"
	}
	return base + "/v1/chat/completions"
}
