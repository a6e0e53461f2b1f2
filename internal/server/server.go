// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"golang.org/x/crypto/acme/autocert"

	"github.com/markb/pushlite/internal/broker"
	"github.com/markb/pushlite/internal/db"
	"github.com/markb/pushlite/internal/log"
	"github.com/markb/pushlite/internal/store"
	"github.com/markb/pushlite/internal/transport"
)

// Server wires the broker, its stores, and the WebSocket transport behind a
// chi router.
type Server struct {
	db     *db.DB
	router *chi.Mux

	store      *store.Store
	registry   *broker.Registry
	verifier   *broker.Verifier
	subs       *broker.SubscriptionManager
	dispatcher *broker.Dispatcher
	transport  *transport.Service

	httpServer   *http.Server
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// New builds a server over an open database. handlers are the external
// delivery paths notified on every publish.
func New(database *db.DB, handlers ...broker.DeliveryHandler) *Server {
	st := store.New(database)
	registry := broker.NewRegistry(st, st)
	verifier := broker.NewVerifier(registry)
	subs := broker.NewSubscriptionManager(registry, verifier)
	dispatcher := broker.NewDispatcher(registry, subs.Presence(), st, st, handlers...)

	s := &Server{
		db:         database,
		router:     chi.NewRouter(),
		store:      st,
		registry:   registry,
		verifier:   verifier,
		subs:       subs,
		dispatcher: dispatcher,
		transport:  transport.NewService(registry, subs, dispatcher),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS middleware for browser-based apps
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Get("/ws", s.transport.HandleWebSocket)

	s.router.Route("/apps/{appID}", func(r chi.Router) {
		r.Use(s.appAuthMiddleware)
		r.Post("/events", s.handleTrigger)
		r.Get("/channels/{channel}/users", s.handleChannelUsers)
		r.Get("/users/{userID}/events", s.handleUserEvents)
	})

	s.router.Get("/stats", s.handleStats)
	s.router.Get("/stats/logs", s.handleStatsLogs)
}

// Router exposes the router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Registry exposes the tenant registry for tests and CLI wiring.
func (s *Server) Registry() *broker.Registry {
	return s.registry
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

// ListenAndServe runs the plain HTTP listener.
func (s *Server) ListenAndServe(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// ListenAndServeHTTPS serves TLS with Let's Encrypt certificates for domain
// and redirects plain HTTP to HTTPS.
func (s *Server) ListenAndServeHTTPS(domain, certDir, httpAddr, httpsAddr string) error {
	if err := ValidateDomain(domain); err != nil {
		return err
	}

	s.autocertMgr = NewAutocertManager(domain, certDir)

	s.httpRedirect = &http.Server{
		Addr:    httpAddr,
		Handler: s.autocertMgr.HTTPHandler(HTTPRedirectHandler(domain)),
	}
	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server: http redirect listener", "error", err.Error())
		}
	}()

	s.httpsServer = &http.Server{
		Addr:      httpsAddr,
		Handler:   s.router,
		TLSConfig: NewTLSConfig(s.autocertMgr),
	}
	return s.httpsServer.ListenAndServeTLS("", "")
}

// Shutdown gracefully shuts down the HTTP server(s).
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpsServer != nil {
		if err := s.httpsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTPS server: %w", err))
		}
	}
	if s.httpRedirect != nil {
		if err := s.httpRedirect.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP redirect server: %w", err))
		}
	}
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("HTTP server: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}
