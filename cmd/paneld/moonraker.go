package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	moonrakerConnectAttempts = 10
	moonrakerRetryDelay      = 500 * time.Millisecond
)

// MoonrakerClient drives a Klipper printer through Moonraker's JSON-RPC
// websocket API.
type MoonrakerClient struct {
	mu          sync.Mutex
	conn        *websocket.Conn
	url         string
	nextID      int
	logger      *slog.Logger
	readTimeout time.Duration
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      int    `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"` // set on notifications
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
	ID      *int            `json:"id,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("moonraker error %d: %s", e.Code, e.Message)
}

// NewMoonrakerClient creates a new Moonraker client and establishes the initial connection.
func NewMoonrakerClient(wsURL string, logger *slog.Logger, readTimeout time.Duration) (*MoonrakerClient, error) {
	if _, err := url.Parse(wsURL); err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}

	c := &MoonrakerClient{
		url:         wsURL,
		logger:      logger,
		readTimeout: readTimeout,
	}

	if err := c.connectWithRetry(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

// connect establishes a WebSocket connection to Moonraker
func (c *MoonrakerClient) connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	d := websocket.Dialer{
		HandshakeTimeout: 2 * time.Second,
	}
	conn, _, err := d.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}

	c.conn = conn
	return nil
}

// connectWithRetry attempts to connect a fixed number of times.
func (c *MoonrakerClient) connectWithRetry(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt < moonrakerConnectAttempts; attempt++ {
		err := c.connect(ctx)
		if err == nil {
			c.logger.Info("connected to Moonraker", "url", c.url)
			return nil
		}
		lastErr = err
		c.logger.Warn("connection failed; retrying...", "error", err, "attempt", attempt+1)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(moonrakerRetryDelay):
		}
	}
	return fmt.Errorf("failed to connect after %d attempts: %w", moonrakerConnectAttempts, lastErr)
}

// ensureConnected checks connection and reconnects if necessary
func (c *MoonrakerClient) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost; reconnecting...")
	return c.connectWithRetry(ctx)
}

// call sends one JSON-RPC request and waits for the response with the same id.
// Notifications that arrive in between are skipped.
func (c *MoonrakerClient) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, errors.New("no websocket connection")
	}

	c.nextID++
	req := rpcRequest{JSONRPC: "2.0", Method: method, Params: params, ID: c.nextID}

	if err := c.conn.WriteJSON(req); err != nil {
		c.conn = nil // Mark connection as broken
		return nil, err
	}

	deadline := time.Now().Add(c.readTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)
	defer func() {
		if c.conn != nil {
			c.conn.SetReadDeadline(time.Time{})
		}
	}()

	for {
		var resp rpcResponse
		if err := c.conn.ReadJSON(&resp); err != nil {
			c.conn.Close()
			c.conn = nil // Mark connection as broken
			return nil, err
		}
		if resp.ID == nil || *resp.ID != req.ID {
			continue
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *MoonrakerClient) gcode(ctx context.Context, lines ...string) error {
	script := strings.Join(lines, "\n")
	if _, err := c.call(ctx, "printer.gcode.script", map[string]string{"script": script}); err != nil {
		return err
	}
	c.logger.Debug("moonraker gcode", "script", script)
	return nil
}

// Jog moves one axis relative to its current position.
func (c *MoonrakerClient) Jog(ctx context.Context, axis string, distance float64) error {
	if err := validAxis(axis); err != nil {
		return err
	}
	if err := c.gcode(ctx, jogGCode(axis, distance)...); err != nil {
		return fmt.Errorf("jog %s: %w", axis, err)
	}
	return nil
}

// Home homes the given axes.
func (c *MoonrakerClient) Home(ctx context.Context, axes ...string) error {
	for _, a := range axes {
		if err := validAxis(a); err != nil {
			return err
		}
	}
	if err := c.gcode(ctx, homeGCode(axes...)); err != nil {
		return fmt.Errorf("home %v: %w", axes, err)
	}
	return nil
}

// Cancel aborts the active print.
func (c *MoonrakerClient) Cancel(ctx context.Context) error {
	if _, err := c.call(ctx, "printer.print.cancel", nil); err != nil {
		return fmt.Errorf("cancel print: %w", err)
	}
	c.logger.Debug("moonraker cancel")
	return nil
}

// Close closes the WebSocket connection
func (c *MoonrakerClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	return nil
}
