package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"pagepilot/internal/domain"
)

// upstream is a scripted chat-completions endpoint.
type upstream struct {
	t      *testing.T
	calls  atomic.Int64
	status int
	errMsg string
	reply  string

	lastAuth    string
	lastRequest chatRequest
	replyFunc   func(req chatRequest) string
}

func (u *upstream) handler(w http.ResponseWriter, r *http.Request) {
	u.calls.Add(1)
	u.lastAuth = r.Header.Get("Authorization")
	require.NoError(u.t, json.NewDecoder(r.Body).Decode(&u.lastRequest))

	if u.status != 0 {
		w.WriteHeader(u.status)
		fmt.Fprintf(w, `{"error":{"message":%q}}`, u.errMsg)
		return
	}
	reply := u.reply
	if u.replyFunc != nil {
		reply = u.replyFunc(u.lastRequest)
	}
	fmt.Fprintf(w, `{
		"model": "gpt-4o-mini",
		"choices": [{"index":0,"message":{"role":"assistant","content":%q}}],
		"usage": {"prompt_tokens":12,"completion_tokens":7,"total_tokens":19}
	}`, reply)
}

func newTestClient(t *testing.T, u *upstream, opts ...Option) *Client {
	t.Helper()
	u.t = t
	srv := httptest.NewServer(http.HandlerFunc(u.handler))
	t.Cleanup(srv.Close)
	opts = append([]Option{WithBaseURL(srv.URL), WithHTTPClient(srv.Client())}, opts...)
	return NewClient(opts...)
}

func TestChatURL(t *testing.T) {
	cases := []struct {
		base string
		want string
	}{
		{"https://api.openai.com/v1", "https://api.openai.com/v1/chat/completions"},
		{"https://api.openai.com/v1/", "https://api.openai.com/v1/chat/completions"},
		{"http://localhost:8080", "http://localhost:8080/v1/chat/completions"},
		{"", "https://api.openai.com/v1/chat/completions"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, chatURL(tc.base), "base=%q", tc.base)
	}
}

func TestSend_NoCredentialIssuesNoNetworkCall(t *testing.T) {
	u := &upstream{reply: "never"}
	c := newTestClient(t, u)

	_, err := c.Send(context.Background(), SendInput{Message: "hi"})
	require.ErrorIs(t, err, ErrNoCredential)
	require.Zero(t, u.calls.Load(), "configuration errors must fail before the network")
}

func TestSend_UsesCredentialInAuthHeader(t *testing.T) {
	u := &upstream{reply: "hello"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	out, err := c.Send(context.Background(), SendInput{Message: "hi", ConversationID: "c1"})
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-test", u.lastAuth)
	require.Equal(t, "hello", out.Content)
	require.Equal(t, "gpt-4o-mini", out.Model)
	require.Equal(t, domain.Usage{PromptTokens: 12, CompletionTokens: 7, TotalTokens: 19}, out.Usage)
	require.False(t, u.lastRequest.Stream)
	require.Positive(t, u.lastRequest.MaxTokens)
}

func TestSend_ReplacedCredentialTakesEffect(t *testing.T) {
	u := &upstream{reply: "ok"}
	c := newTestClient(t, u)
	c.SetCredential("sk-old")
	_, err := c.Send(context.Background(), SendInput{Message: "a"})
	require.NoError(t, err)

	c.SetCredential("sk-new")
	_, err = c.Send(context.Background(), SendInput{Message: "b"})
	require.NoError(t, err)
	require.Equal(t, "Bearer sk-new", u.lastAuth)
}

func TestSend_EmptyMessage(t *testing.T) {
	u := &upstream{reply: "x"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	_, err := c.Send(context.Background(), SendInput{Message: "   "})
	require.Error(t, err)
	require.Zero(t, u.calls.Load())
}

func TestSend_UpstreamErrorCarriesNestedMessage(t *testing.T) {
	u := &upstream{status: http.StatusUnauthorized, errMsg: "Incorrect API key provided"}
	c := newTestClient(t, u)
	c.SetCredential("sk-bad")

	_, err := c.Send(context.Background(), SendInput{Message: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "Incorrect API key provided")

	var statusErr *HTTPStatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.HTTPStatusCode())
}

func TestSend_UpstreamErrorWithoutMessageFallsBackToStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	c.SetCredential("sk-test")

	_, err := c.Send(context.Background(), SendInput{Message: "hi"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestSend_RecordsTurnPairIntoHistory(t *testing.T) {
	u := &upstream{reply: "first answer"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	_, err := c.Send(context.Background(), SendInput{Message: "first question", ConversationID: "c1"})
	require.NoError(t, err)

	u.reply = "second answer"
	_, err = c.Send(context.Background(), SendInput{Message: "second question", ConversationID: "c1"})
	require.NoError(t, err)

	// the second request must carry the first turn pair before the new user turn
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "first question"},
		{Role: domain.RoleAssistant, Content: "first answer"},
		{Role: domain.RoleUser, Content: "second question"},
	}, u.lastRequest.Messages)
}

func TestSend_ConversationsAreIndependent(t *testing.T) {
	u := &upstream{reply: "ans"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	_, err := c.Send(context.Background(), SendInput{Message: "q1", ConversationID: "a"})
	require.NoError(t, err)
	_, err = c.Send(context.Background(), SendInput{Message: "q2", ConversationID: "b"})
	require.NoError(t, err)

	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q2"},
	}, u.lastRequest.Messages, "histories must not bleed across ids")
}

func TestSend_FailedCallLeavesHistoryUntouched(t *testing.T) {
	u := &upstream{reply: "ok"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	u.status = http.StatusInternalServerError
	u.errMsg = "boom"
	_, err := c.Send(context.Background(), SendInput{Message: "lost", ConversationID: "c1"})
	require.Error(t, err)

	u.status = 0
	_, err = c.Send(context.Background(), SendInput{Message: "next", ConversationID: "c1"})
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "next"},
	}, u.lastRequest.Messages)
}

func TestSend_ContextBecomesSystemTurn(t *testing.T) {
	u := &upstream{reply: "ok"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	_, err := c.Send(context.Background(), SendInput{
		Message:        "what is this page?",
		ConversationID: "c1",
		Context:        &domain.PageContext{URL: "https://example.com", Title: "Example"},
	})
	require.NoError(t, err)

	require.Len(t, u.lastRequest.Messages, 2)
	require.Equal(t, domain.RoleSystem, u.lastRequest.Messages[0].Role)
	require.Contains(t, u.lastRequest.Messages[0].Content, "https://example.com")
	require.Contains(t, u.lastRequest.Messages[0].Content, "Example")
}

func TestSend_TruncatesToRecentTurnsKeepingSystem(t *testing.T) {
	u := &upstream{replyFunc: func(req chatRequest) string { return "a" }}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	for i := 0; i < maxPromptTurns; i++ {
		_, err := c.Send(context.Background(), SendInput{
			Message:        fmt.Sprintf("question %d", i),
			ConversationID: "c1",
			Context:        &domain.PageContext{URL: "https://example.com"},
		})
		require.NoError(t, err)
	}

	msgs := u.lastRequest.Messages
	nonSystem := 0
	for _, m := range msgs {
		if m.Role != domain.RoleSystem {
			nonSystem++
		}
	}
	require.LessOrEqual(t, nonSystem, maxPromptTurns)
	require.Equal(t, domain.RoleSystem, msgs[0].Role, "system turn survives truncation")
	// the newest user turn is always last
	require.Equal(t, fmt.Sprintf("question %d", maxPromptTurns-1), msgs[len(msgs)-1].Content)
}

func TestTestConnection(t *testing.T) {
	u := &upstream{reply: "pong"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	ok, detail := c.TestConnection(context.Background())
	require.True(t, ok)
	require.Equal(t, "pong", detail)

	// the probe must not leak into conversation state
	u.reply = "ans"
	_, err := c.Send(context.Background(), SendInput{Message: "q", ConversationID: "default"})
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q"},
	}, u.lastRequest.Messages)
}

func TestTestConnection_NoCredential(t *testing.T) {
	u := &upstream{reply: "pong"}
	c := newTestClient(t, u)

	ok, detail := c.TestConnection(context.Background())
	require.False(t, ok)
	require.Contains(t, detail, "no API key")
	require.Zero(t, u.calls.Load())
}

func TestClear(t *testing.T) {
	u := &upstream{reply: "ans"}
	c := newTestClient(t, u)
	c.SetCredential("sk-test")

	_, err := c.Send(context.Background(), SendInput{Message: "q1", ConversationID: "c1"})
	require.NoError(t, err)
	c.Clear("c1")

	_, err = c.Send(context.Background(), SendInput{Message: "q2", ConversationID: "c1"})
	require.NoError(t, err)
	require.Equal(t, []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "q2"},
	}, u.lastRequest.Messages)
}
