// internal/broker/broker_test.go
//
// Shared test fixtures: an in-memory application store, a recording
// connection, and in-memory event/subscription stores.
package broker

import (
	"encoding/json"
	"sync"
	"testing"
)

var testApp = App{ID: "app1", Key: "key1", Secret: []byte("s3cret"), Name: "test"}

// fakeApps is an in-memory AppStore.
type fakeApps struct {
	apps []App
}

func (f *fakeApps) AppByID(id string) (App, error) {
	for _, app := range f.apps {
		if app.ID == id {
			return app, nil
		}
	}
	return App{}, ErrAppNotFound
}

func (f *fakeApps) AppByKey(key string) (App, error) {
	for _, app := range f.apps {
		if app.Key == key {
			return app, nil
		}
	}
	return App{}, ErrAppNotFound
}

// fakeConn records everything sent to it.
type fakeConn struct {
	id      string
	mu      sync.Mutex
	frames  [][]byte
	sendErr error
}

func (c *fakeConn) ID() string { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, payload)
	return nil
}

// events decodes every received frame.
func (c *fakeConn) events(t *testing.T) []map[string]any {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]map[string]any, 0, len(c.frames))
	for _, frame := range c.frames {
		var decoded map[string]any
		if err := json.Unmarshal(frame, &decoded); err != nil {
			t.Fatalf("undecodable frame %q: %v", frame, err)
		}
		out = append(out, decoded)
	}
	return out
}

// eventsNamed returns the received events with the given event name.
func (c *fakeConn) eventsNamed(t *testing.T, name string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, ev := range c.events(t) {
		if ev["event"] == name {
			out = append(out, ev)
		}
	}
	return out
}

// newTestManager wires a registry and manager over the default test app.
func newTestManager(t *testing.T) (*Registry, *SubscriptionManager) {
	t.Helper()
	registry := NewRegistry(&fakeApps{apps: []App{testApp}}, nil)
	manager := NewSubscriptionManager(registry, NewVerifier(registry))
	return registry, manager
}

// connect registers a fake connection with the test app.
func connect(t *testing.T, m *SubscriptionManager, id string) *fakeConn {
	t.Helper()
	conn := &fakeConn{id: id}
	if err := m.Connect(testApp.Key, conn); err != nil {
		t.Fatalf("connect %s: %v", id, err)
	}
	return conn
}

// subscribe performs an authenticated subscribe for a fake connection.
func subscribe(t *testing.T, m *SubscriptionManager, socketID, channel string, data *ChannelData) {
	t.Helper()
	auth := ""
	if RequiresAuth(channel) {
		auth = ChannelSignature(testApp.Secret, socketID, channel)
	}
	if err := m.Subscribe(testApp.Key, socketID, channel, auth, data); err != nil {
		t.Fatalf("subscribe %s to %s: %v", socketID, channel, err)
	}
}

// checkIndexInvariant verifies the bidirectional subscription index.
func checkIndexInvariant(t *testing.T, registry *Registry) {
	t.Helper()
	app, err := registry.ByKey(testApp.Key)
	if err != nil {
		t.Fatalf("resolve app: %v", err)
	}
	app.mu.Lock()
	defer app.mu.Unlock()

	for socketID, channels := range app.socketChannels {
		for channel := range channels {
			if _, ok := app.channelSockets[channel][socketID]; !ok {
				t.Errorf("socket %s has channel %s but channelSockets disagrees", socketID, channel)
			}
		}
	}
	for channel, sockets := range app.channelSockets {
		for socketID := range sockets {
			if _, ok := app.socketChannels[socketID][channel]; !ok {
				t.Errorf("channel %s has socket %s but socketChannels disagrees", channel, socketID)
			}
		}
	}
	for channel, info := range app.channelInfo {
		distinct := 0
		for userID, conns := range info.users {
			if len(conns) > 0 {
				distinct++
			} else {
				t.Errorf("channel %s keeps empty user entry %s", channel, userID)
			}
		}
		if info.userCount != distinct {
			t.Errorf("channel %s userCount=%d, distinct users=%d", channel, info.userCount, distinct)
		}
	}
}

// subscribed reports whether the socket is subscribed to channel.
func subscribed(t *testing.T, m *SubscriptionManager, socketID, channel string) bool {
	t.Helper()
	return m.Presence().IsSubscribed(testApp.Key, socketID, channel)
}
