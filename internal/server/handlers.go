// internal/server/handlers.go
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/log"
)

type contextKey string

const appStateKey contextKey = "app_state"

// appAuthMiddleware authenticates API calls for an application: a bearer
// JWT signed HS256 with that application's secret.
func (s *Server) appAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		appID := chi.URLParam(r, "appID")
		app, err := s.registry.ByID(appID)
		if err != nil {
			if broker.IsNotFound(err) {
				writeError(w, http.StatusNotFound, "unknown application")
				return
			}
			log.Error("server: resolve app", "app_id", appID, "error", err.Error())
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}

		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == "" {
			writeError(w, http.StatusUnauthorized, "bearer token required")
			return
		}

		secret, err := s.registry.SecretFor(app.Key())
		if err != nil {
			writeError(w, http.StatusNotFound, "unknown application")
			return
		}
		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), appStateKey, app)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func appFromContext(ctx context.Context) *broker.AppState {
	app, _ := ctx.Value(appStateKey).(*broker.AppState)
	return app
}

// triggerRequest is the publish body accepted by POST /apps/{appID}/events.
type triggerRequest struct {
	Name     string         `json:"name"`
	Channels []string       `json:"channels"`
	Data     map[string]any `json:"data"`
	Persist  bool           `json:"persist"`
	SocketID string         `json:"socket_id"`
	Verify   bool           `json:"verify"`
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	app := appFromContext(r.Context())

	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" {
		req.Name = "message"
	}

	err := s.dispatcher.Trigger(app.ID(), req.Name, req.Data, broker.TriggerOptions{
		Channels: req.Channels,
		Persist:  req.Persist,
		OwnerID:  req.SocketID,
		Verify:   req.Verify,
	})
	if err != nil {
		log.Error("server: trigger failed", "app_id", app.ID(), "event", req.Name, "error", err.Error())
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// handleChannelUsers returns the presence members of a channel.
func (s *Server) handleChannelUsers(w http.ResponseWriter, r *http.Request) {
	app := appFromContext(r.Context())
	channel := chi.URLParam(r, "channel")

	members := s.subs.Presence().Members(app.Key(), channel)
	users := make([]map[string]any, 0, len(members))
	for _, member := range members {
		users = append(users, member)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"channel": channel,
		"count":   s.subs.Presence().UserCount(app.Key(), channel),
		"users":   users,
	})
}

// handleUserEvents replays a user's persisted event history.
func (s *Server) handleUserEvents(w http.ResponseWriter, r *http.Request) {
	app := appFromContext(r.Context())
	userID := chi.URLParam(r, "userID")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	events, err := s.store.EventsFor(app.ID(), userID, limit)
	if err != nil {
		log.Error("server: load events", "app_id", app.ID(), "user_id", userID, "error", err.Error())
		writeError(w, http.StatusInternalServerError, "failed to load events")
		return
	}
	if events == nil {
		events = []*broker.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Stats())
}

func (s *Server) handleStatsLogs(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))
	if n <= 0 {
		n = 100
	}
	lines := log.GetBufferedLogs(n)
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"lines": lines})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
