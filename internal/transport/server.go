package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Handler processes one decoded request. Returning nil means the route
// produces no reply and the server closes the connection without writing.
type Handler interface {
	Handle(ctx context.Context, peer Peer, req *Request) *Response
}

// ServerConfig carries the server's socket and admission settings.
type ServerConfig struct {
	// SocketPath is where the unix socket is created.
	SocketPath string

	// AllowedPeerUIDs restricts which peer UIDs may issue requests. An
	// empty list admits any local peer the socket mode lets connect; a
	// non-empty list admits exactly the listed UIDs, root included only
	// if listed.
	AllowedPeerUIDs []uint32

	// RequestTimeout bounds one whole request/reply cycle, including the
	// command execution behind it. Zero means a 10 minute default.
	RequestTimeout time.Duration
}

// Server accepts connections on the worker socket and dispatches each
// decoded request to the handler. Connections are handled concurrently,
// one goroutine per connection; the handler owns any serialization its
// routes need.
type Server struct {
	cfg     ServerConfig
	handler Handler
	logger  *slog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	serving  atomic.Bool
}

// NewServer creates a server for the given socket configuration.
func NewServer(cfg ServerConfig, handler Handler, logger *slog.Logger) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Minute
	}
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger.With(slog.String("component", "transport")),
	}
}

// Listen creates the socket, replacing any stale socket file from a
// previous run, and sets its mode to 0660 so group members can connect.
func (s *Server) Listen() error {
	dir := filepath.Dir(s.cfg.SocketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating socket directory %s: %w", dir, err)
	}

	if err := os.Remove(s.cfg.SocketPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing stale socket %s: %w", s.cfg.SocketPath, err)
	}

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.SocketPath, err)
	}

	if err := os.Chmod(s.cfg.SocketPath, 0660); err != nil {
		listener.Close()
		return fmt.Errorf("setting socket permissions: %w", err)
	}

	s.listener = listener
	s.serving.Store(true)
	s.logger.Info("listening", slog.String("socket", s.cfg.SocketPath))
	return nil
}

// Serve accepts connections until the listener is closed by Shutdown or
// the context is cancelled. Call Listen first.
func (s *Server) Serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
			default:
				if s.serving.Load() {
					s.logger.Error("accept error", slog.String("error", err.Error()))
					continue
				}
			}
			return
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}
}

// Healthy reports whether the server is accepting connections. Feeds the
// systemd watchdog.
func (s *Server) Healthy() bool {
	return s.serving.Load()
}

// Shutdown stops accepting connections, waits for in-flight requests to
// drain, and removes the socket file. Respects the context's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.listener == nil {
		return nil
	}
	s.serving.Store(false)
	s.listener.Close()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	defer os.Remove(s.cfg.SocketPath)

	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("connections still in flight: %w", ctx.Err())
	}
}

// handleConnection processes a single request/reply cycle.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	peer, err := peerCredentials(conn)
	if err != nil {
		s.logger.Error("rejecting unidentifiable peer", slog.String("error", err.Error()))
		return
	}

	conn.SetDeadline(time.Now().Add(s.cfg.RequestTimeout))

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	if !s.peerAllowed(peer) {
		s.logger.Warn("rejecting peer outside allow-list",
			slog.Uint64("uid", uint64(peer.UID)),
			slog.Int("pid", int(peer.PID)))
		encoder.Encode(&Response{
			OK:        false,
			ErrorKind: ErrKindPermissionDenied,
			Error:     "peer not permitted",
		})
		return
	}

	var req Request
	if err := decoder.Decode(&req); err != nil {
		s.logger.Error("decoding request", slog.String("error", err.Error()))
		encoder.Encode(&Response{
			OK:        false,
			ErrorKind: ErrKindBadRequest,
			Error:     "invalid request",
		})
		return
	}

	s.logger.Info("request",
		slog.String("route", string(req.Route)),
		slog.Uint64("peer_uid", uint64(peer.UID)),
		slog.Int("peer_pid", int(peer.PID)))

	resp := s.handler.Handle(ctx, peer, &req)
	if resp == nil {
		// No-reply route: the dropped connection is the caller's signal.
		return
	}

	if err := encoder.Encode(resp); err != nil {
		s.logger.Error("encoding response",
			slog.String("route", string(req.Route)),
			slog.String("error", err.Error()))
	}
}

// peerAllowed applies the UID allow-list.
func (s *Server) peerAllowed(peer Peer) bool {
	if len(s.cfg.AllowedPeerUIDs) == 0 {
		return true
	}
	for _, uid := range s.cfg.AllowedPeerUIDs {
		if peer.UID == uid {
			return true
		}
	}
	return false
}
