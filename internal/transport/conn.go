package transport

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/log"
)

const (
	// Send buffer size for outbound messages
	sendBufferSize = 256

	// Time allowed to write a message
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message
	pongWait = 30 * time.Second

	// Send pings with this period (must be less than pongWait)
	pingPeriod = 25 * time.Second

	// Maximum message size
	maxMessageSize = 512 * 1024 // 512KB
)

// Conn is one WebSocket client bound to an application tenant. It satisfies
// broker.Connection: Send queues without blocking and drops on overflow.
type Conn struct {
	id        string
	appID     string
	appKey    string
	ws        *websocket.Conn
	svc       *Service
	send      chan []byte   // outbound message queue
	done      chan struct{} // closed when connection ends
	closeOnce sync.Once
}

func newConn(svc *Service, ws *websocket.Conn, appID, appKey string) *Conn {
	return &Conn{
		id:     uuid.NewString(),
		appID:  appID,
		appKey: appKey,
		ws:     ws,
		svc:    svc,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the socket id.
func (c *Conn) ID() string {
	return c.id
}

// Send queues a payload for delivery. It never blocks: a full buffer drops
// the payload, and a closed connection swallows it.
func (c *Conn) Send(payload []byte) error {
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return nil // connection closed
	default:
		log.Warn("transport: send buffer full, dropping payload", "socket_id", c.id)
		return nil
	}
}

// sendFrame encodes and queues a protocol frame.
func (c *Conn) sendFrame(frame *Frame) {
	data, err := frame.Encode()
	if err != nil {
		log.Error("transport: encode frame", "socket_id", c.id, "error", err.Error())
		return
	}
	c.Send(data)
}

// Close tears the socket down and unwinds its broker state exactly once.
func (c *Conn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			c.ws.Close()
		}
		c.svc.subs.Disconnect(c.appKey, c.id)
	})
}

// ReadPump reads frames from the WebSocket connection until it fails.
func (c *Conn) ReadPump() {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug("transport: read error", "socket_id", c.id, "error", err.Error())
			}
			return
		}

		frame, err := DecodeFrame(data)
		if err != nil {
			log.Debug("transport: invalid frame", "socket_id", c.id, "error", err.Error(), "len", len(data))
			c.sendFrame(NewErrorFrame("", "invalid_frame", err.Error()))
			continue
		}

		c.handleFrame(frame)
	}
}

// WritePump writes queued payloads and pings to the WebSocket connection.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}

// handleFrame routes one client frame.
func (c *Conn) handleFrame(frame *Frame) {
	log.Debug("transport: frame", "socket_id", c.id, "event", frame.Event, "channel", frame.Channel)

	switch frame.Event {
	case EventPing:
		c.sendFrame(NewPongFrame())
	case EventSubscribe:
		c.handleSubscribe(frame)
	case EventUnsubscribe:
		c.handleUnsubscribe(frame)
	case EventPublish:
		c.handlePublish(frame)
	default:
		log.Debug("transport: unknown event", "socket_id", c.id, "event", frame.Event)
		c.sendFrame(NewErrorFrame(frame.Channel, "unknown_event", "unknown event "+frame.Event))
	}
}

func (c *Conn) handleSubscribe(frame *Frame) {
	if frame.Channel == "" {
		c.sendFrame(NewErrorFrame("", "missing_channel", "subscribe requires a channel"))
		return
	}

	data, err := broker.ParseChannelData(frame.Data)
	if err != nil {
		c.sendFrame(NewErrorFrame(frame.Channel, "invalid_data", err.Error()))
		return
	}

	if err := c.svc.subs.Subscribe(c.appKey, c.id, frame.Channel, frame.Auth, data); err != nil {
		code := "subscribe_failed"
		if errors.Is(err, broker.ErrAuthentication) {
			code = "unauthorized"
		}
		c.sendFrame(NewErrorFrame(frame.Channel, code, err.Error()))
		return
	}
	c.sendFrame(NewSubscribedFrame(frame.Channel))
}

func (c *Conn) handleUnsubscribe(frame *Frame) {
	if frame.Channel == "" {
		c.sendFrame(NewErrorFrame("", "missing_channel", "unsubscribe requires a channel"))
		return
	}
	if err := c.svc.subs.Unsubscribe(c.appKey, c.id, frame.Channel); err != nil {
		c.sendFrame(NewErrorFrame(frame.Channel, "unsubscribe_failed", err.Error()))
		return
	}
	c.sendFrame(NewUnsubscribedFrame(frame.Channel))
}

// handlePublish lets a socket publish to a channel it is subscribed to.
// Socket publishes are never persisted; Verify keeps stale sockets from
// publishing into channels they already left.
func (c *Conn) handlePublish(frame *Frame) {
	if frame.Channel == "" {
		c.sendFrame(NewErrorFrame("", "missing_channel", "publish requires a channel"))
		return
	}
	name := frame.Name
	if name == "" {
		name = "message"
	}

	err := c.svc.dispatcher.Trigger(c.appID, name, frame.Data, broker.TriggerOptions{
		Channels: []string{frame.Channel},
		OwnerID:  c.id,
		Verify:   true,
	})
	if err != nil {
		c.sendFrame(NewErrorFrame(frame.Channel, "publish_failed", err.Error()))
	}
}
