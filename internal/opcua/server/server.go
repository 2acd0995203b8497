// Package server implements Server, the TCP listener and connection
// registry that fuses a net.Listener accept loop with one transport.TcpTransport
// per accepted connection, tracking live connections and driving a graceful
// shutdown across all of them.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/balsa02/opcua/internal/logger"
	"github.com/balsa02/opcua/internal/opcua/securechannel"
	"github.com/balsa02/opcua/internal/opcua/transport"
)

// Config holds server configuration knobs: listen address, the
// per-connection transport options, the secure-channel lifetime ceiling,
// and an optional metrics registerer.
type Config struct {
	ListenAddr           string
	TransportOptions     transport.Options
	SecureChannelMaxLife time.Duration
	MetricsRegisterer    prometheus.Registerer
	LogLevel             string
}

// applyDefaults fills zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":4840" // IANA-assigned OPC UA TCP default port
	}
	if c.SecureChannelMaxLife == 0 {
		c.SecureChannelMaxLife = transport.DefaultSecureChannelMaxLife
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Server encapsulates the listener, the shared secure-channel id allocator,
// and the set of live transports.
type Server struct {
	cfg       Config
	log       *slog.Logger
	scService *securechannel.Service
	metrics   *transport.Metrics

	mu          sync.RWMutex
	l           net.Listener
	transports  map[string]*transport.TcpTransport
	closing     bool
	cancel      context.CancelFunc
	acceptingWg sync.WaitGroup
	connWg      sync.WaitGroup
}

// New creates a new, unstarted Server instance. cfg.TransportOptions.Handler,
// DecodeRequest, EncodeResponse, and MakePublishResp must already be wired
// by the caller (cmd/opcua-server) to the application's service layer.
func New(cfg Config) *Server {
	cfg.applyDefaults()
	return &Server{
		cfg:        cfg,
		log:        logger.Logger().With("component", "opcua_server"),
		scService:  securechannel.NewService(cfg.SecureChannelMaxLife),
		metrics:    transport.NewMetrics(cfg.MetricsRegisterer),
		transports: make(map[string]*transport.TcpTransport),
	}
}

// Start begins listening and launches the accept loop. Safe to call only
// once; repeated calls return an error.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.l = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.log.Info("opcua server listening", "addr", ln.Addr().String())
	s.acceptingWg.Add(1)
	go s.acceptLoop(ctx)
	return nil
}

// acceptLoop runs until the listener is closed or Accept fails, spawning one
// TcpTransport per accepted connection.
func (s *Server) acceptLoop(ctx context.Context) {
	defer s.acceptingWg.Done()
	for {
		s.mu.RLock()
		l := s.l
		s.mu.RUnlock()
		if l == nil {
			return
		}
		conn, err := l.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			return
		}

		tr := transport.New(conn, s.cfg.TransportOptions, s.scService, s.metrics)
		id := fmt.Sprintf("%s", conn.RemoteAddr())
		s.mu.Lock()
		s.transports[id] = tr
		s.mu.Unlock()
		s.log.Info("connection accepted", "remote", id)

		s.connWg.Add(1)
		go func() {
			defer s.connWg.Done()
			if err := tr.Run(ctx); err != nil {
				s.log.Warn("transport finished with error", "remote", id, "error", err)
			}
			s.mu.Lock()
			delete(s.transports, id)
			s.mu.Unlock()
		}()
	}
}

// Stop gracefully shuts down the server: stops accepting new connections,
// cancels every live connection's context (which closes its socket via the
// transport's own abort-watcher goroutine), and waits for all of them to
// finish.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	cancel := s.cancel
	s.l = nil
	s.mu.Unlock()

	_ = l.Close()
	if cancel != nil {
		cancel()
	}

	s.acceptingWg.Wait()
	s.connWg.Wait()
	s.log.Info("opcua server stopped")
	return nil
}

// Addr returns the bound listener address, or nil if not started.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// ConnectionCount returns the number of currently tracked connections.
func (s *Server) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.transports)
}
