// internal/server/server_test.go
package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/db"
	"github.com/markb/pushlite/internal/store"
)

var serverTestApp = broker.App{ID: "app1", Key: "key1", Secret: []byte("s3cret"), Name: "test"}

func setupServer(t *testing.T) *Server {
	t.Helper()
	database, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, database.RunMigrations())
	require.NoError(t, store.New(database).CreateApp(serverTestApp))
	return New(database)
}

func appToken(t *testing.T, secret []byte) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(secret)
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := setupServer(t)
	w := doJSON(t, s, "GET", "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAppAuth(t *testing.T) {
	s := setupServer(t)
	body := map[string]any{"name": "ping"}

	// No token.
	w := doJSON(t, s, "POST", "/apps/app1/events", "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Token signed with the wrong secret.
	w = doJSON(t, s, "POST", "/apps/app1/events", appToken(t, []byte("wrong")), body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Unknown application.
	w = doJSON(t, s, "POST", "/apps/ghost/events", appToken(t, serverTestApp.Secret), body)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Valid token.
	w = doJSON(t, s, "POST", "/apps/app1/events", appToken(t, serverTestApp.Secret), body)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTriggerPersistAndReplay(t *testing.T) {
	s := setupServer(t)
	require.NoError(t, s.store.AddSubscription(serverTestApp.ID, "u1", "room"))
	token := appToken(t, serverTestApp.Secret)

	w := doJSON(t, s, "POST", "/apps/app1/events", token, map[string]any{
		"name":     "news",
		"channels": []string{"room"},
		"data":     map[string]any{"headline": "hello"},
		"persist":  true,
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, "GET", "/apps/app1/users/u1/events", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Events []*broker.Event `json:"events"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "news", resp.Events[0].Name)
	assert.Equal(t, "room", resp.Events[0].Channel)
	assert.Equal(t, "hello", resp.Events[0].Payload["headline"])
}

type recordingConn struct {
	id string
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Send(payload []byte) error { return nil }

func TestChannelUsers(t *testing.T) {
	s := setupServer(t)
	token := appToken(t, serverTestApp.Secret)

	require.NoError(t, s.subs.Connect(serverTestApp.Key, &recordingConn{id: "s1"}))
	auth := broker.ChannelSignature(serverTestApp.Secret, "s1", "presence-lobby")
	require.NoError(t, s.subs.Subscribe(serverTestApp.Key, "s1", "presence-lobby", auth,
		&broker.ChannelData{UserID: "u1"}))

	w := doJSON(t, s, "GET", "/apps/app1/channels/presence-lobby/users", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Channel string           `json:"channel"`
		Count   int              `json:"count"`
		Users   []map[string]any `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "presence-lobby", resp.Channel)
	assert.Equal(t, 1, resp.Count)
	require.Len(t, resp.Users, 1)
	assert.Equal(t, "u1", resp.Users[0]["user_id"])
}

func TestStats(t *testing.T) {
	s := setupServer(t)
	require.NoError(t, s.subs.Connect(serverTestApp.Key, &recordingConn{id: "s1"}))

	w := doJSON(t, s, "GET", "/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats broker.RegistryStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Apps)
	assert.Equal(t, 1, stats.Connections)
}
