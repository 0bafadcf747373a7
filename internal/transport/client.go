package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"pagepilot/internal/domain"
)

// defaultCallTimeout bounds how long a surface waits for its response
// before giving up with a timeout error.
const defaultCallTimeout = 10 * time.Second

// Client is one surface's end of the socket. It correlates calls with
// responses and surfaces broadcast frames addressed to it (or to
// nobody in particular) on the notification channel.
type Client struct {
	name        string
	conn        net.Conn
	callTimeout time.Duration

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan domain.Response

	notifications chan domain.Message
	done          chan struct{}
	closeOnce     sync.Once
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithCallTimeout overrides the per-call response timeout.
func WithCallTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.callTimeout = d
		}
	}
}

// Dial connects a surface to the coordinator socket. The surface name
// is the logical recipient identity used for broadcast filtering.
func Dial(path, surfaceName string, opts ...ClientOption) (*Client, error) {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return nil, fmt.Errorf("transport: connect to %s: %w", path, err)
	}

	c := &Client{
		name:          surfaceName,
		conn:          conn,
		callTimeout:   defaultCallTimeout,
		pending:       make(map[string]chan domain.Response),
		notifications: make(chan domain.Message, 64),
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.readLoop()
	return c, nil
}

// Call sends one request and waits for its correlated response, bounded
// by ctx and the call timeout. A closed surface mid-call just means the
// response is delivered into the void; there is no cancel path upstream.
func (c *Client) Call(ctx context.Context, typ domain.MessageType, payload any) (domain.Response, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return domain.Response{}, fmt.Errorf("transport: marshal payload: %w", err)
		}
		raw = data
	}

	id := uuid.NewString()
	respChan := make(chan domain.Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = respChan
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	if err := c.writeFrame(frame{Kind: kindRequest, ID: id, Type: typ, Payload: raw}); err != nil {
		return domain.Response{}, fmt.Errorf("transport: send request: %w", err)
	}

	timer := time.NewTimer(c.callTimeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return domain.Response{}, fmt.Errorf("transport: call cancelled: %w", ctx.Err())
	case <-timer.C:
		return domain.Response{}, fmt.Errorf("transport: timed out waiting for %s response", typ)
	case <-c.done:
		return domain.Response{}, fmt.Errorf("transport: connection closed")
	case resp := <-respChan:
		return resp, nil
	}
}

// Notifications is the stream of broadcasts this surface accepts. The
// channel is closed when the connection is lost.
func (c *Client) Notifications() <-chan domain.Message {
	return c.notifications
}

// Close tears the connection down.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.conn.Close()
	})
	return err
}

func (c *Client) writeFrame(f frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = fmt.Fprintf(c.conn, "%s\n", data)
	return err
}

func (c *Client) readLoop() {
	// sole sender on notifications; closing it on exit tells blocked
	// listeners the connection is gone
	defer close(c.notifications)

	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)

	for scanner.Scan() {
		var f frame
		if err := json.Unmarshal(scanner.Bytes(), &f); err != nil {
			continue
		}

		switch f.Kind {
		case kindResponse:
			c.pendingMu.Lock()
			if ch, ok := c.pending[f.ID]; ok {
				var resp domain.Response
				if f.Response != nil {
					resp = *f.Response
				}
				ch <- resp
			}
			c.pendingMu.Unlock()

		case kindBroadcast:
			// A targeted broadcast is ignored by every surface whose
			// name does not match.
			if f.Target != "" && f.Target != c.name {
				continue
			}
			msg := domain.Message{Type: f.Type, Target: f.Target, Payload: f.Payload}
			select {
			case c.notifications <- msg:
			default:
				// best-effort delivery; a surface that stopped
				// draining loses broadcasts, not responses
			}
		}
	}
}
