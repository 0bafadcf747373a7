package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pagepilot/internal/domain"
)

// echoHandler answers every request with its own type and payload.
type echoHandler struct {
	mu    sync.Mutex
	delay time.Duration
	seen  []domain.MessageType
}

func (h *echoHandler) Handle(_ context.Context, msg domain.Message) domain.Response {
	h.mu.Lock()
	h.seen = append(h.seen, msg.Type)
	h.mu.Unlock()
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	return domain.OK(map[string]any{
		"type":    string(msg.Type),
		"payload": json.RawMessage(msg.Payload),
	})
}

func startServer(t *testing.T, h Handler) (*Server, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pagepilot.sock")
	srv, err := NewServer(path, h, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	require.Eventually(t, func() bool {
		c, err := Dial(path, "probe")
		if err != nil {
			return false
		}
		_ = c.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	return srv, path
}

// awaitRegistration completes one call per client so the accept loop is
// known to have registered each connection before a broadcast is sent;
// Dial returns as soon as the unix connect succeeds, which can be
// earlier.
func awaitRegistration(t *testing.T, clients ...*Client) {
	t.Helper()
	for _, c := range clients {
		_, err := c.Call(context.Background(), domain.TypePing, nil)
		require.NoError(t, err)
	}
}

func dial(t *testing.T, path, name string, opts ...ClientOption) *Client {
	t.Helper()
	c, err := Dial(path, name, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCall_RoundTrip(t *testing.T) {
	_, path := startServer(t, &echoHandler{})
	c := dial(t, path, "popup")

	resp, err := c.Call(context.Background(), domain.TypePing, map[string]string{"hello": "there"})
	require.NoError(t, err)
	require.True(t, resp.Success)

	var data struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	require.NoError(t, resp.DecodeData(&data))
	require.Equal(t, string(domain.TypePing), data.Type)
	require.JSONEq(t, `{"hello":"there"}`, string(data.Payload))
}

func TestCall_ConcurrentCallsCorrelateCorrectly(t *testing.T) {
	_, path := startServer(t, &echoHandler{delay: 10 * time.Millisecond})
	c := dial(t, path, "popup")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := fmt.Sprintf(`{"n":%d}`, i)
			resp, err := c.Call(context.Background(), domain.TypePing, json.RawMessage(want))
			require.NoError(t, err)

			var data struct {
				Payload json.RawMessage `json:"payload"`
			}
			require.NoError(t, resp.DecodeData(&data))
			require.JSONEq(t, want, string(data.Payload), "response must match its own request")
		}(i)
	}
	wg.Wait()
}

func TestCall_Timeout(t *testing.T) {
	_, path := startServer(t, &echoHandler{delay: 500 * time.Millisecond})
	c := dial(t, path, "popup", WithCallTimeout(50*time.Millisecond))

	_, err := c.Call(context.Background(), domain.TypePing, nil)
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestBroadcast_TargetFiltering(t *testing.T) {
	srv, path := startServer(t, &echoHandler{})
	chatWindow := dial(t, path, domain.TargetChatWindow)
	popup := dial(t, path, "popup")
	awaitRegistration(t, chatWindow, popup)

	srv.Broadcast(domain.TargetChatWindow, domain.TypeChatResponse,
		domain.ChatResultPayload{Content: "hi"})

	select {
	case msg := <-chatWindow.Notifications():
		require.Equal(t, domain.TypeChatResponse, msg.Type)
		var payload domain.ChatResultPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &payload))
		require.Equal(t, "hi", payload.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("matching listener never received the broadcast")
	}

	select {
	case msg := <-popup.Notifications():
		t.Fatalf("mismatching listener must ignore targeted broadcast, got %v", msg.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroadcast_UntargetedReachesEveryListener(t *testing.T) {
	srv, path := startServer(t, &echoHandler{})
	a := dial(t, path, "a")
	b := dial(t, path, "b")
	awaitRegistration(t, a, b)

	srv.Broadcast("", domain.TypeAuditResult, domain.AuditResult{URL: "https://example.com"})

	for _, c := range []*Client{a, b} {
		select {
		case msg := <-c.Notifications():
			require.Equal(t, domain.TypeAuditResult, msg.Type)
		case <-time.After(2 * time.Second):
			t.Fatal("untargeted broadcast not delivered")
		}
	}
}

func TestNotifications_ChannelClosesOnConnectionLoss(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pagepilot.sock")
	srv, err := NewServer(path, &echoHandler{}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	var c *Client
	require.Eventually(t, func() bool {
		c, err = Dial(path, "popup")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	t.Cleanup(func() { _ = c.Close() })
	awaitRegistration(t, c)

	// server shutdown severs every connection
	cancel()
	require.NoError(t, <-done)

	select {
	case _, ok := <-c.Notifications():
		require.False(t, ok, "a severed connection must close the channel, not deliver")
	case <-time.After(2 * time.Second):
		t.Fatal("notifications channel never closed after connection loss")
	}
}

func TestBroadcast_NoListenersIsSilentlySwallowed(t *testing.T) {
	srv, _ := startServer(t, &echoHandler{})

	// nothing to assert beyond "does not panic or block"
	srv.Broadcast(domain.TargetChatWindow, domain.TypeChatResponse,
		domain.ChatResultPayload{Error: "nobody home"})
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer("", &echoHandler{}, nil)
	require.Error(t, err)
	_, err = NewServer("/tmp/x.sock", nil, nil)
	require.Error(t, err)
}
