package transport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func nopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// handlerFunc adapts a function into a Handler.
type handlerFunc func(ctx context.Context, peer Peer, req *Request) *Response

func (f handlerFunc) Handle(ctx context.Context, peer Peer, req *Request) *Response {
	return f(ctx, peer, req)
}

// startServer runs a server on a temp socket and returns its client.
func startServer(t *testing.T, cfg ServerConfig, handler Handler) *Client {
	t.Helper()

	if cfg.SocketPath == "" {
		cfg.SocketPath = filepath.Join(t.TempDir(), "wardend.sock")
	}

	srv := NewServer(cfg, handler, nopLogger())
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve(context.Background())

	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})

	return NewClient(cfg.SocketPath)
}

func TestCallRoundTrip(t *testing.T) {
	type ping struct {
		Text string `json:"text"`
	}

	handler := handlerFunc(func(_ context.Context, peer Peer, req *Request) *Response {
		if req.Route != RouteVersion {
			t.Errorf("route = %s, want %s", req.Route, RouteVersion)
		}
		if peer.PID == 0 {
			t.Error("peer credentials not populated")
		}

		var in ping
		if err := json.Unmarshal(req.Payload, &in); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		out, _ := json.Marshal(ping{Text: in.Text + " pong"})
		return &Response{OK: true, Payload: out}
	})

	client := startServer(t, ServerConfig{}, handler)

	var out ping
	if err := client.Call(context.Background(), RouteVersion, ping{Text: "ping"}, &out); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if out.Text != "ping pong" {
		t.Errorf("reply = %q, want %q", out.Text, "ping pong")
	}
}

func TestCallErrorReconstruction(t *testing.T) {
	handler := handlerFunc(func(context.Context, Peer, *Request) *Response {
		return &Response{OK: false, ErrorKind: ErrKindAuthFailed, Error: "token rejected"}
	})

	client := startServer(t, ServerConfig{}, handler)

	err := client.Call(context.Background(), RouteRunCommand, nil, nil)
	var routeErr *RouteError
	if !errors.As(err, &routeErr) {
		t.Fatalf("expected RouteError, got %T: %v", err, err)
	}
	if routeErr.Kind != ErrKindAuthFailed {
		t.Errorf("kind = %s, want %s", routeErr.Kind, ErrKindAuthFailed)
	}
	if routeErr.Message != "token rejected" {
		t.Errorf("message = %q", routeErr.Message)
	}
}

func TestCallExpectDrop_NoReplyIsSuccess(t *testing.T) {
	handled := make(chan Route, 1)
	handler := handlerFunc(func(_ context.Context, _ Peer, req *Request) *Response {
		handled <- req.Route
		return nil
	})

	client := startServer(t, ServerConfig{}, handler)

	if err := client.CallExpectDrop(context.Background(), RouteUninstall, nil); err != nil {
		t.Fatalf("CallExpectDrop failed: %v", err)
	}

	select {
	case route := <-handled:
		if route != RouteUninstall {
			t.Errorf("handled route = %s, want %s", route, RouteUninstall)
		}
	case <-time.After(time.Second):
		t.Fatal("request never reached the handler")
	}
}

func TestCallExpectDrop_ErrorReplySurfaces(t *testing.T) {
	handler := handlerFunc(func(context.Context, Peer, *Request) *Response {
		return &Response{OK: false, ErrorKind: ErrKindBadRequest, Error: "candidate path must be absolute"}
	})

	client := startServer(t, ServerConfig{}, handler)

	err := client.CallExpectDrop(context.Background(), RouteUpdate, UpdateRequest{CandidatePath: "relative"})
	var routeErr *RouteError
	if !errors.As(err, &routeErr) {
		t.Fatalf("expected RouteError, got %T: %v", err, err)
	}
	if routeErr.Kind != ErrKindBadRequest {
		t.Errorf("kind = %s, want %s", routeErr.Kind, ErrKindBadRequest)
	}
}

func TestCallExpectDrop_DialFailureIsRealError(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "absent.sock"))
	if err := client.CallExpectDrop(context.Background(), RouteUpdate, nil); err == nil {
		t.Fatal("expected dial error for absent socket")
	}
}

func TestPeerAllowList(t *testing.T) {
	self := uint32(os.Getuid())

	tests := []struct {
		name    string
		allowed []uint32
		wantOK  bool
	}{
		{"empty list admits anyone", nil, true},
		{"self listed", []uint32{self}, true},
		{"self not listed", []uint32{self + 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := handlerFunc(func(context.Context, Peer, *Request) *Response {
				return &Response{OK: true}
			})
			client := startServer(t, ServerConfig{AllowedPeerUIDs: tt.allowed}, handler)

			err := client.Call(context.Background(), RouteVersion, nil, nil)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Call failed: %v", err)
				}
				return
			}

			var routeErr *RouteError
			if !errors.As(err, &routeErr) {
				t.Fatalf("expected RouteError, got %T: %v", err, err)
			}
			if routeErr.Kind != ErrKindPermissionDenied {
				t.Errorf("kind = %s, want %s", routeErr.Kind, ErrKindPermissionDenied)
			}
		})
	}
}

func TestMalformedRequestGetsBadRequest(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "wardend.sock")
	handler := handlerFunc(func(context.Context, Peer, *Request) *Response {
		t.Error("handler reached with malformed request")
		return nil
	})
	startServer(t, ServerConfig{SocketPath: socketPath}, handler)

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := conn.Write([]byte("this is not json\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.OK || resp.ErrorKind != ErrKindBadRequest {
		t.Errorf("response = %+v, want bad-request error", resp)
	}
}

func TestAvailable(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "wardend.sock")

	client := NewClient(socketPath)
	if client.Available() {
		t.Error("Available() = true before the server exists")
	}

	handler := handlerFunc(func(context.Context, Peer, *Request) *Response {
		return &Response{OK: true}
	})
	startServer(t, ServerConfig{SocketPath: socketPath}, handler)

	if !client.Available() {
		t.Error("Available() = false while the server is listening")
	}
}

func TestShutdownRemovesSocket(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "wardend.sock")
	srv := NewServer(ServerConfig{SocketPath: socketPath}, handlerFunc(func(context.Context, Peer, *Request) *Response {
		return &Response{OK: true}
	}), nopLogger())

	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	go srv.Serve(context.Background())

	if !srv.Healthy() {
		t.Error("Healthy() = false while serving")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if srv.Healthy() {
		t.Error("Healthy() = true after shutdown")
	}
	if _, err := os.Stat(socketPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("socket file still present after shutdown: %v", err)
	}
}

func TestShutdownNeverListened(t *testing.T) {
	srv := NewServer(ServerConfig{SocketPath: "/nonexistent/wardend.sock"}, nil, nopLogger())
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown on idle server failed: %v", err)
	}
}
