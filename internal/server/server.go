package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/roomchat/internal/chat"
	"github.com/Tyrowin/roomchat/internal/config"
	"github.com/Tyrowin/roomchat/internal/metrics"
)

// Server wires the chat engine to the WebSocket hub and HTTP routes.
type Server struct {
	cfg      *config.Config
	log      *slog.Logger
	engine   *chat.Engine
	hub      *Hub
	metrics  *metrics.Metrics
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// New builds a Server from configuration. The hub is not running until
// Start is called.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	m := metrics.New()
	engine, err := chat.NewEngine(cfg.Rooms,
		chat.WithLogger(logger.With("component", "chat")),
		chat.WithObserver(m),
	)
	if err != nil {
		return nil, fmt.Errorf("build chat engine: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		log:     logger,
		engine:  engine,
		metrics: m,
		origins: newOriginPolicy(cfg.AllowedOrigins, logger),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.hub = NewHub(logger.With("component", "hub"), s.clientRegistered, s.clientRemoved)
	return s, nil
}

// Engine returns the chat engine behind the server.
func (s *Server) Engine() *chat.Engine { return s.engine }

// Hub returns the connection hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start runs the hub in a separate goroutine. It must be called before the
// HTTP server accepts connections.
func (s *Server) Start() {
	go s.hub.Run()
	s.log.Info("hub started and ready to manage websocket connections")
}

// Shutdown closes every client connection and waits for their goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.hub.Shutdown(ctx)
}

func (s *Server) clientRegistered(_ *Client) {
	s.metrics.ConnectionOpened()
}

// clientRemoved tears the chat session down before the client's queue is
// closed, so the remaining members are notified exactly once.
func (s *Server) clientRemoved(c *Client) {
	s.engine.Disconnect(c.id)
	s.metrics.ConnectionClosed()
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              port,
		Handler:           handler,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// StartServer starts the HTTP server and blocks until it stops. A normal
// shutdown is not reported as an error.
func StartServer(server *http.Server, logger *slog.Logger) error {
	logger.Info("server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until ctx expires.
func ShutdownServer(ctx context.Context, server *http.Server, logger *slog.Logger) error {
	logger.Info("shutting down http server")
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown", "err", err)
		return err
	}
	logger.Info("http server shutdown completed")
	return nil
}
