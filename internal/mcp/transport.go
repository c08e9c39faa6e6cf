package mcp

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/qwen-tui/qwen-tui/internal/errdefs"
)

// Transport carries JSON-RPC frames to one server. It is behind an
// interface so the client and discovery service can be tested against
// a scripted fake.
type Transport interface {
	// Connect establishes the connection.
	Connect(ctx context.Context) error

	// Close tears the connection down and fails all pending calls.
	Close() error

	// Call sends a request and waits for its correlated response.
	Call(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a notification; no response is expected.
	Notify(ctx context.Context, method string, params any) error

	// Connected reports whether the transport is usable.
	Connected() bool
}

// NotificationHandler receives server-initiated notifications.
type NotificationHandler func(method string, params json.RawMessage)

// wsTransport is the WebSocket transport. A single background reader
// routes responses into per-request futures and dispatches
// notifications; any transport error cancels every outstanding future.
type wsTransport struct {
	url     string
	headers http.Header
	onNote  NotificationHandler

	mu      sync.Mutex
	conn    *websocket.Conn
	pending map[int64]chan *JSONRPCResponse
	closed  bool

	writeMu sync.Mutex
	nextID  atomic.Int64
}

// NewWebSocketTransport creates a transport for the given ws:// or
// wss:// URL.
func NewWebSocketTransport(url string, headers map[string]string, onNote NotificationHandler) Transport {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &wsTransport{
		url:     url,
		headers: h,
		onNote:  onNote,
		pending: make(map[int64]chan *JSONRPCResponse),
	}
}

func (t *wsTransport) Connect(ctx context.Context) error {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, t.url, t.headers)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		return errdefs.Wrap(errdefs.KindMCP, errdefs.MCPConnection,
			"connecting to "+t.url, err).
			WithTip("check that the MCP server is running and the url is correct")
	}

	t.mu.Lock()
	t.conn = conn
	t.closed = false
	t.mu.Unlock()

	go t.readLoop(conn)
	return nil
}

func (t *wsTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.conn != nil && !t.closed
}

func (t *wsTransport) Close() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.closed = true
	t.failPendingLocked()
	t.mu.Unlock()

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (t *wsTransport) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	id := t.nextID.Add(1)
	future := make(chan *JSONRPCResponse, 1)

	t.mu.Lock()
	if t.conn == nil || t.closed {
		t.mu.Unlock()
		return nil, errdefs.New(errdefs.KindMCP, errdefs.MCPConnection, "transport is not connected")
	}
	t.pending[id] = future
	t.mu.Unlock()

	if err := t.write(JSONRPCRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: marshalParams(params)}); err != nil {
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, err
	}

	select {
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errdefs.Wrap(errdefs.KindMCP, errdefs.MCPTimeout,
				method+" timed out", ctx.Err())
		}
		return nil, ctx.Err()
	case resp := <-future:
		if resp == nil {
			return nil, errdefs.New(errdefs.KindMCP, errdefs.MCPConnection,
				"connection lost while waiting for "+method)
		}
		if resp.Error != nil {
			return nil, errdefs.Wrap(errdefs.KindMCP, errdefs.MCPServer,
				method+" failed", resp.Error)
		}
		return resp.Result, nil
	}
}

func (t *wsTransport) Notify(ctx context.Context, method string, params any) error {
	t.mu.Lock()
	if t.conn == nil || t.closed {
		t.mu.Unlock()
		return errdefs.New(errdefs.KindMCP, errdefs.MCPConnection, "transport is not connected")
	}
	t.mu.Unlock()
	return t.write(JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: marshalParams(params)})
}

func (t *wsTransport) write(req JSONRPCRequest) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errdefs.New(errdefs.KindMCP, errdefs.MCPConnection, "transport is not connected")
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := conn.WriteJSON(req); err != nil {
		return errdefs.Wrap(errdefs.KindMCP, errdefs.MCPConnection, "writing frame", err)
	}
	return nil
}

// readLoop routes incoming frames until the connection fails.
func (t *wsTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.mu.Lock()
			if t.conn == conn {
				t.conn = nil
				t.closed = true
			}
			t.failPendingLocked()
			t.mu.Unlock()
			return
		}

		var resp JSONRPCResponse
		if jsonErr := json.Unmarshal(data, &resp); jsonErr == nil && resp.ID != nil {
			t.mu.Lock()
			future, ok := t.pending[*resp.ID]
			delete(t.pending, *resp.ID)
			t.mu.Unlock()
			if ok {
				future <- &resp
			}
			continue
		}

		var note JSONRPCRequest
		if jsonErr := json.Unmarshal(data, &note); jsonErr == nil && note.Method != "" && t.onNote != nil {
			t.onNote(note.Method, note.Params)
		}
	}
}

// failPendingLocked delivers a nil response to every outstanding call,
// which callers surface as a connection-lost error. Callers must hold
// t.mu.
func (t *wsTransport) failPendingLocked() {
	for id, future := range t.pending {
		delete(t.pending, id)
		future <- nil
	}
}

func marshalParams(params any) json.RawMessage {
	if params == nil {
		return nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	return data
}
