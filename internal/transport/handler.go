package transport

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins (CORS handled elsewhere)
	},
}

// Service handles WebSocket clients for the broker.
type Service struct {
	registry   *broker.Registry
	subs       *broker.SubscriptionManager
	dispatcher *broker.Dispatcher
}

// NewService creates the WebSocket transport service.
func NewService(registry *broker.Registry, subs *broker.SubscriptionManager, dispatcher *broker.Dispatcher) *Service {
	return &Service{
		registry:   registry,
		subs:       subs,
		dispatcher: dispatcher,
	}
}

// HandleWebSocket upgrades the request and binds the socket to the tenant
// identified by the `app` query parameter (application key).
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	appKey := r.URL.Query().Get("app")
	if appKey == "" {
		appKey = r.Header.Get("X-App-Key")
	}
	if appKey == "" {
		http.Error(w, "missing application key", http.StatusUnauthorized)
		return
	}

	app, err := s.registry.ByKey(appKey)
	if err != nil {
		if broker.IsNotFound(err) {
			http.Error(w, "unknown application key", http.StatusUnauthorized)
			return
		}
		log.Error("transport: resolve app", "error", err.Error())
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("transport: upgrade failed", "error", err.Error())
		return
	}

	conn := newConn(s, ws, app.ID(), appKey)
	if err := s.subs.Connect(appKey, conn); err != nil {
		log.Error("transport: connect failed", "socket_id", conn.id, "error", err.Error())
		ws.Close()
		return
	}
	log.Debug("transport: new connection", "app_id", app.ID(), "socket_id", conn.ID())

	conn.sendFrame(NewConnectedFrame(conn.ID()))

	go conn.WritePump()
	go conn.ReadPump()
}
