package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketAdapter is the default outbound Adapter, backed by
// gorilla/websocket -- the same library the teacher's wetsock package
// wraps, generalized here from a server-side codec into a full
// client-side dial+send+recv+close adapter (the teacher had no client
// dialer of its own; this is grounded in wetsock's read/write-mutex
// discipline plus the original's WebSocketsClientHandler).
type WebSocketAdapter struct {
	conn *websocket.Conn

	// gorilla/websocket allows exactly one concurrent reader and one
	// concurrent writer; see its "Concurrency" doc comment.
	readMu  sync.Mutex
	writeMu sync.Mutex

	dialer *websocket.Dialer
}

// NewWebSocketAdapter constructs an unconnected adapter. Call Connect
// before Send/Recv.
func NewWebSocketAdapter() *WebSocketAdapter {
	return &WebSocketAdapter{dialer: websocket.DefaultDialer}
}

// dialOption keys recognized in the opts map passed to Connect. Unknown
// keys are ignored, matching the spec's "opts is opaque" contract.
const (
	OptHeader         = "header"          // http.Header
	OptHandshakeTimeo = "handshake_timeout" // time.Duration
)

func (a *WebSocketAdapter) Connect(ctx context.Context, uri string, opts map[string]any) error {
	dialer := *a.dialer
	var header http.Header
	if opts != nil {
		if h, ok := opts[OptHeader].(http.Header); ok {
			header = h
		}
		if t, ok := opts[OptHandshakeTimeo].(time.Duration); ok {
			dialer.HandshakeTimeout = t
		}
	}

	conn, resp, err := dialer.DialContext(ctx, uri, header)
	if err != nil {
		if resp != nil && IsForbidden(resp.StatusCode) {
			return &ForbiddenError{StatusCode: resp.StatusCode, Cause: err}
		}
		return &TransientError{Cause: err}
	}
	a.conn = conn
	return nil
}

func (a *WebSocketAdapter) Send(ctx context.Context, data []byte) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return a.conn.WriteMessage(websocket.TextMessage, data)
}

func (a *WebSocketAdapter) Recv(ctx context.Context) ([]byte, error) {
	a.readMu.Lock()
	defer a.readMu.Unlock()
	_, data, err := a.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, nil
		}
		if _, ok := err.(*websocket.CloseError); ok {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}

func (a *WebSocketAdapter) Close(code int) error {
	if a.conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	msg := websocket.FormatCloseMessage(code, "")
	_ = a.conn.WriteControl(websocket.CloseMessage, msg, deadline)
	return a.conn.Close()
}
