// Package transport carries messages between the coordinator and its
// front surfaces over a unix socket: newline-framed JSON, one request
// correlated to one response, plus fire-and-forget broadcast frames
// with no delivery guarantee.
package transport

import (
	"encoding/json"

	"pagepilot/internal/domain"
)

// Frame kinds on the wire.
const (
	kindRequest   = "request"
	kindResponse  = "response"
	kindBroadcast = "broadcast"
)

// frame is one newline-delimited JSON message on the socket.
type frame struct {
	Kind     string             `json:"kind"`
	ID       string             `json:"id,omitempty"`
	Type     domain.MessageType `json:"type,omitempty"`
	Target   string             `json:"target,omitempty"`
	Payload  json.RawMessage    `json:"payload,omitempty"`
	Response *domain.Response   `json:"response,omitempty"`
}

// maxFrameSize bounds a single frame; larger frames break the read loop
// for that connection.
const maxFrameSize = 4 << 20
