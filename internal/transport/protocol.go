// Package transport exposes the broker over WebSocket. It implements the
// JSON frame protocol clients speak, owns the socket read/write pumps, and
// adapts each socket to the broker.Connection interface.
package transport

import (
	"encoding/json"
	"fmt"
)

// Frame is the wire message exchanged with clients.
type Frame struct {
	Event   string         `json:"event"`
	Channel string         `json:"channel,omitempty"`
	Name    string         `json:"name,omitempty"` // publish event name
	Auth    string         `json:"auth,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// Client events
const (
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventPublish     = "publish"
	EventPing        = "ping"
)

// Server events
const (
	EventConnected    = "connected"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
	EventError        = "error"
	EventPong         = "pong"
)

// NewConnectedFrame greets a socket with its id after the handshake.
func NewConnectedFrame(socketID string) *Frame {
	return &Frame{
		Event: EventConnected,
		Data:  map[string]any{"socket_id": socketID},
	}
}

// NewSubscribedFrame acknowledges a subscribe.
func NewSubscribedFrame(channel string) *Frame {
	return &Frame{Event: EventSubscribed, Channel: channel}
}

// NewUnsubscribedFrame acknowledges an unsubscribe.
func NewUnsubscribedFrame(channel string) *Frame {
	return &Frame{Event: EventUnsubscribed, Channel: channel}
}

// NewErrorFrame reports a per-request failure.
func NewErrorFrame(channel, code, message string) *Frame {
	return &Frame{
		Event:   EventError,
		Channel: channel,
		Data: map[string]any{
			"code":    code,
			"message": message,
		},
	}
}

// NewPongFrame answers a ping.
func NewPongFrame() *Frame {
	return &Frame{Event: EventPong}
}

// Encode serializes a frame to JSON bytes.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// DecodeFrame parses JSON bytes into a Frame.
func DecodeFrame(data []byte) (*Frame, error) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("invalid frame format: %w", err)
	}
	if frame.Event == "" {
		return nil, fmt.Errorf("frame missing event")
	}
	return &frame, nil
}
