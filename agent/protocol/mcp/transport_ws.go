package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/BaSui01/agentgraph/internal/tlsutil"
)

// WSState represents the connection state of a WebSocket transport.
type WSState string

const (
	WSStateDisconnected WSState = "disconnected"
	WSStateConnecting   WSState = "connecting"
	WSStateConnected    WSState = "connected"
	WSStateReconnecting WSState = "reconnecting"
	WSStateFailed       WSState = "failed"
	WSStateClosed       WSState = "closed"
)

// ErrTransportClosed is returned by a transport after Close.
var ErrTransportClosed = errors.New("mcp: transport is closed")

// WSTransportConfig configures the WebSocket transport behavior.
type WSTransportConfig struct {
	HeartbeatInterval time.Duration // Interval between WebSocket pings (default 30s)
	HeartbeatTimeout  time.Duration // Max wait for a pong (default 10s)
	MaxReconnects     int           // Maximum reconnection attempts (default 5, 0 = no reconnect)
	ReconnectDelay    time.Duration // Base delay for exponential backoff (default 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default 30s)
	BackoffMultiplier float64       // Backoff multiplier (default 2.0)
	EnableHeartbeat   bool          // Whether to enable heartbeat (default true)
	Subprotocols      []string      // WebSocket subprotocols (default ["mcp"])
	ReadLimit         int64         // Max message size in bytes (default 16 MiB)
}

// DefaultWSTransportConfig returns a WSTransportConfig with sensible defaults.
func DefaultWSTransportConfig() WSTransportConfig {
	return WSTransportConfig{
		HeartbeatInterval: 30 * time.Second,
		HeartbeatTimeout:  10 * time.Second,
		MaxReconnects:     5,
		ReconnectDelay:    time.Second,
		MaxBackoff:        30 * time.Second,
		BackoffMultiplier: 2.0,
		EnableHeartbeat:   true,
		Subprotocols:      []string{"mcp"},
		ReadLimit:         maxMessageSize,
	}
}

// WebSocketTransport implements MCP Transport over WebSocket with heartbeat,
// exponential-backoff reconnection, and connection state callbacks.
//
// A WebSocketTransport is either dialed (NewWebSocketTransport + Connect) or
// wraps an accepted server-side connection (NewServerWebSocketTransport).
// Only dialed transports reconnect.
type WebSocketTransport struct {
	url    string
	logger *zap.Logger
	config WSTransportConfig

	mu             sync.Mutex
	conn           *websocket.Conn
	closed         bool
	state          WSState
	onStateChange  func(state WSState)
	reconnectCount int
	reconnecting   bool
	done           chan struct{}
}

// NewWebSocketTransport creates a WebSocket transport with default configuration.
func NewWebSocketTransport(url string, logger *zap.Logger) *WebSocketTransport {
	return NewWebSocketTransportWithConfig(url, DefaultWSTransportConfig(), logger)
}

// NewWebSocketTransportWithConfig creates a WebSocket transport with custom configuration.
func NewWebSocketTransportWithConfig(url string, config WSTransportConfig, logger *zap.Logger) *WebSocketTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Apply defaults for zero-value fields so callers can set only what they care about.
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 30 * time.Second
	}
	if config.BackoffMultiplier == 0 {
		config.BackoffMultiplier = 2.0
	}
	if config.HeartbeatTimeout == 0 {
		config.HeartbeatTimeout = 10 * time.Second
	}
	if config.ReadLimit == 0 {
		config.ReadLimit = maxMessageSize
	}
	return &WebSocketTransport{
		url:    url,
		logger: logger.With(zap.String("component", "mcp_ws_transport")),
		config: config,
		state:  WSStateDisconnected,
		done:   make(chan struct{}),
	}
}

// NewServerWebSocketTransport wraps an accepted connection.
func NewServerWebSocketTransport(conn *websocket.Conn, logger *zap.Logger) *WebSocketTransport {
	cfg := DefaultWSTransportConfig()
	cfg.MaxReconnects = 0
	cfg.EnableHeartbeat = false
	t := NewWebSocketTransportWithConfig("", cfg, logger)
	conn.SetReadLimit(t.config.ReadLimit)
	t.conn = conn
	t.state = WSStateConnected
	return t
}

// OnStateChange registers a callback invoked whenever the connection state changes.
func (t *WebSocketTransport) OnStateChange(fn func(WSState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onStateChange = fn
}

// setState updates the internal state and fires the callback (if registered).
// Caller must NOT hold t.mu.
func (t *WebSocketTransport) setState(s WSState) {
	t.mu.Lock()
	t.state = s
	fn := t.onStateChange
	t.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// IsConnected returns true when the transport has an active connection.
func (t *WebSocketTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == WSStateConnected && !t.closed
}

// State returns the current connection state.
func (t *WebSocketTransport) State() WSState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *WebSocketTransport) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, _, err := websocket.Dial(ctx, t.url, &websocket.DialOptions{
		HTTPClient:   tlsutil.WebSocketHTTPClient(),
		Subprotocols: t.config.Subprotocols,
	})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(t.config.ReadLimit)
	return conn, nil
}

// Connect establishes the WebSocket connection and starts the heartbeat
// goroutine. The heartbeat lives until Close.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	t.setState(WSStateConnecting)

	conn, err := t.dial(ctx)
	if err != nil {
		t.setState(WSStateDisconnected)
		return fmt.Errorf("websocket connect: %w", err)
	}

	t.mu.Lock()
	t.conn = conn
	t.mu.Unlock()

	t.setState(WSStateConnected)

	if t.config.EnableHeartbeat && t.config.HeartbeatInterval > 0 {
		go t.heartbeat()
	}
	return nil
}

func (t *WebSocketTransport) current() (*websocket.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrTransportClosed
	}
	if t.conn == nil {
		return nil, fmt.Errorf("websocket: not connected")
	}
	return t.conn, nil
}

// Send writes a JSON-RPC message as one text frame. Writes are serialized by
// the underlying connection. A failed write triggers one reconnect and retry.
func (t *WebSocketTransport) Send(ctx context.Context, msg *MCPMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	conn, err := t.current()
	if err != nil {
		return err
	}
	writeErr := conn.Write(ctx, websocket.MessageText, body)
	if writeErr == nil || ctx.Err() != nil || t.config.MaxReconnects == 0 {
		return writeErr
	}

	t.logger.Warn("send failed, attempting reconnect", zap.Error(writeErr))
	if err := t.tryReconnect(ctx); err != nil {
		return fmt.Errorf("send failed and reconnect failed: %w", writeErr)
	}
	if conn, err = t.current(); err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, body)
}

// Receive reads the next JSON-RPC message. On read errors it attempts
// reconnection if enabled before returning the error.
//
// Cancelling ctx closes the underlying connection (a property of the
// websocket library), so callers pass a context scoped to the transport's
// lifetime.
func (t *WebSocketTransport) Receive(ctx context.Context) (*MCPMessage, error) {
	for {
		conn, err := t.current()
		if err != nil {
			return nil, err
		}

		_, data, err := conn.Read(ctx)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-t.done:
				return nil, ErrTransportClosed
			default:
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure || t.config.MaxReconnects == 0 {
				return nil, err
			}

			t.logger.Warn("receive failed, attempting reconnect", zap.Error(err))
			if reconnErr := t.tryReconnect(ctx); reconnErr != nil {
				return nil, fmt.Errorf("receive failed and reconnect failed: %w", err)
			}
			continue
		}

		var msg MCPMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, &MCPError{Code: ErrorCodeParseError, Message: err.Error()}
		}
		return &msg, nil
	}
}

// Close shuts down the transport, stopping the heartbeat goroutine and
// closing the underlying WebSocket connection.
func (t *WebSocketTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.done)
	conn := t.conn
	t.mu.Unlock()

	t.setState(WSStateClosed)

	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

// heartbeat sends WebSocket pings. A ping that is not answered within
// HeartbeatTimeout forces a reconnect. Pongs are only processed while a
// Receive is in progress.
func (t *WebSocketTransport) heartbeat() {
	ticker := time.NewTicker(t.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
		}

		conn, err := t.current()
		if err != nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), t.config.HeartbeatTimeout)
		err = conn.Ping(ctx)
		cancel()
		if err == nil {
			continue
		}

		t.logger.Warn("heartbeat ping failed", zap.Error(err))
		if t.config.MaxReconnects == 0 {
			continue
		}
		if err := t.tryReconnect(context.Background()); err != nil {
			return
		}
	}
}

// tryReconnect re-establishes the connection with exponential backoff, up to
// MaxReconnects attempts. Concurrent callers wait for the attempt in flight.
func (t *WebSocketTransport) tryReconnect(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrTransportClosed
	}
	if t.reconnecting {
		t.mu.Unlock()
		return t.waitForReconnect(ctx)
	}
	t.reconnecting = true
	oldConn := t.conn
	t.conn = nil
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.reconnecting = false
		t.mu.Unlock()
	}()

	t.setState(WSStateReconnecting)
	if oldConn != nil {
		_ = oldConn.Close(websocket.StatusGoingAway, "reconnecting")
	}

	delay := t.config.ReconnectDelay
	for attempt := 1; ; attempt++ {
		t.mu.Lock()
		if t.reconnectCount >= t.config.MaxReconnects {
			t.mu.Unlock()
			t.setState(WSStateFailed)
			return fmt.Errorf("max reconnect attempts (%d) reached", t.config.MaxReconnects)
		}
		t.reconnectCount++
		t.mu.Unlock()

		t.logger.Info("attempting reconnect",
			zap.Int("attempt", attempt),
			zap.Int("max", t.config.MaxReconnects),
			zap.Duration("delay", delay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return ErrTransportClosed
		case <-time.After(delay):
		}

		conn, err := t.dial(ctx)
		if err != nil {
			t.logger.Warn("reconnect dial failed", zap.Error(err), zap.Int("attempt", attempt))
			delay = time.Duration(float64(delay) * t.config.BackoffMultiplier)
			if delay > t.config.MaxBackoff {
				delay = t.config.MaxBackoff
			}
			continue
		}

		t.mu.Lock()
		t.conn = conn
		t.reconnectCount = 0
		t.mu.Unlock()

		t.setState(WSStateConnected)
		t.logger.Info("reconnected", zap.Int("attempt", attempt))
		return nil
	}
}

// waitForReconnect blocks until the in-progress reconnect finishes.
func (t *WebSocketTransport) waitForReconnect(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.done:
			return ErrTransportClosed
		case <-ticker.C:
			t.mu.Lock()
			reconnecting, state := t.reconnecting, t.state
			t.mu.Unlock()
			if !reconnecting {
				if state == WSStateConnected {
					return nil
				}
				return fmt.Errorf("reconnect finished in state %s", state)
			}
		}
	}
}
