package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"
)

// dialTimeout bounds how long a dial may take before the worker is
// declared unreachable.
const dialTimeout = 5 * time.Second

// defaultCallTimeout bounds a whole call when the caller's context
// carries no deadline of its own.
const defaultCallTimeout = 10 * time.Minute

// Client issues requests to the worker socket. One connection per call.
type Client struct {
	socketPath string
}

// NewClient creates a client for the worker socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// Available reports whether the worker socket accepts connections.
func (c *Client) Available() bool {
	conn, err := net.DialTimeout("unix", c.socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Call sends one request and decodes the reply. A failed Response comes
// back as a *RouteError carrying the worker's error kind. When out is
// non-nil the reply payload is decoded into it.
func (c *Client) Call(ctx context.Context, route Route, payload any, out any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := writeRequest(conn, route, payload); err != nil {
		return err
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return fmt.Errorf("reading reply: %w", err)
	}

	if !resp.OK {
		return &RouteError{Kind: resp.ErrorKind, Message: resp.Error}
	}
	if out != nil && len(resp.Payload) > 0 {
		if err := json.Unmarshal(resp.Payload, out); err != nil {
			return fmt.Errorf("decoding reply payload: %w", err)
		}
	}
	return nil
}

// CallExpectDrop sends one request on a route that never replies. The
// connection dropping after the request was fully written is the expected
// success signal (the worker exited or deliberately closed without
// answering); dial and write failures remain real errors. A Response
// arriving anyway is surfaced: the server only answers these routes to
// refuse them before handling.
func (c *Client) CallExpectDrop(ctx context.Context, route Route, payload any) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := writeRequest(conn, route, payload); err != nil {
		return err
	}

	var resp Response
	err = json.NewDecoder(conn).Decode(&resp)
	if err == nil {
		if !resp.OK {
			return &RouteError{Kind: resp.ErrorKind, Message: resp.Error}
		}
		return fmt.Errorf("unexpected reply on no-reply route %s", route)
	}
	if isExpectedDrop(err) {
		return nil
	}
	return fmt.Errorf("reading connection close: %w", err)
}

// dial opens a connection and applies the context's deadline to it.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("worker not reachable at %s: %w", c.socketPath, err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultCallTimeout)
	}
	conn.SetDeadline(deadline)

	return conn, nil
}

// writeRequest encodes the request envelope onto the connection.
func writeRequest(conn net.Conn, route Route, payload any) error {
	req := Request{Route: route}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encoding payload: %w", err)
		}
		req.Payload = raw
	}
	if err := json.NewEncoder(conn).Encode(&req); err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	return nil
}

// isExpectedDrop reports whether a read error is the connection ending
// without data: EOF or a reset, both normal when the worker exits after
// accepting an update or uninstall request.
func isExpectedDrop(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE)
}
