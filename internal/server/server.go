// Package server exposes the realtime endpoints: one websocket upgrade path
// per game kind, each gated by credential validation for that realm, plus a
// health check. Shutdown drains in-flight hands before closing the listener.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/cardroomlabs/cardroom/internal/auth"
	"github.com/cardroomlabs/cardroom/internal/engine"
	"github.com/cardroomlabs/cardroom/internal/hub"
	"github.com/cardroomlabs/cardroom/internal/protocol"
	"github.com/cardroomlabs/cardroom/internal/registry"
)

const drainTimeout = 30 * time.Second

// Server owns the HTTP listener and the websocket upgrade paths.
type Server struct {
	logger    *log.Logger
	hub       *hub.Hub
	registry  *registry.Registry
	validator auth.Validator
	upgrader  websocket.Upgrader
	httpSrv   *http.Server
}

// New builds the server on addr. The hub and registry must already be wired
// to each other.
func New(addr string, h *hub.Hub, reg *registry.Registry, validator auth.Validator, logger *log.Logger) *Server {
	s := &Server{
		logger:    logger.WithPrefix("server"),
		hub:       h,
		registry:  reg,
		validator: validator,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Browser clients are not a supported surface yet.
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/ws/poker", s.handleWS(engine.KindPoker))
	r.Get("/ws/blackjack", s.handleWS(engine.KindBlackjack))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the router, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpSrv.Handler
}

// Run serves until ctx is cancelled, then drains and shuts down.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("listening", "addr", s.httpSrv.Addr)
		if err := s.httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return s.registry.Run(ctx)
	})
	g.Go(func() error {
		<-ctx.Done()
		s.logger.Info("shutting down, draining tables")
		drainCtx, cancel := context.WithTimeout(context.Background(), drainTimeout)
		defer cancel()
		if err := s.registry.Drain(drainCtx); err != nil {
			s.logger.Warn("drain incomplete", "error", err)
		}
		return s.httpSrv.Shutdown(drainCtx)
	})

	return g.Wait()
}

// handleWS authenticates the bearer credential for the endpoint's realm and
// upgrades the connection.
func (s *Server) handleWS(realm engine.GameKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		identity, err := s.validator.Validate(r.Context(), token, string(realm))
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrInvalidToken):
				http.Error(w, string(engine.KindAuthenticationRequired), http.StatusUnauthorized)
			case errors.Is(err, auth.ErrUnavailable):
				// Fail closed when no verdict is possible.
				http.Error(w, "auth unavailable", http.StatusServiceUnavailable)
			default:
				http.Error(w, "auth error", http.StatusInternalServerError)
			}
			return
		}

		ws, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Error("upgrade failed", "error", err)
			return
		}

		conn := hub.NewConn(s.hub, ws, identity.PlayerID, identity.Name, realm, s.logger)
		if err := s.hub.Bind(conn); err != nil {
			// The pumps never started; write the rejection directly.
			s.logger.Warn("bind rejected", "player", identity.PlayerID, "error", err)
			_ = ws.WriteJSON(protocol.MustMessage(protocol.TypeError, protocol.ErrorData{
				Code:    string(engine.KindOf(err)),
				Message: err.Error(),
			}))
			_ = ws.Close()
			return
		}
		conn.Start()
		s.logger.Info("connected", "player", identity.PlayerID, "realm", realm)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// bearerToken extracts the credential from the Authorization header or the
// token query parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return tok
		}
		return h
	}
	return r.URL.Query().Get("token")
}
