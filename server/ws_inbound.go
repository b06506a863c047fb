package server

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WSInboundSocket adapts a gorilla/websocket server connection to the
// InboundSocket contract. It is the inbound counterpart of
// transport.WebSocketAdapter, and is what RegisterRoute installs for
// callers who don't supply their own InboundSocket.
type WSInboundSocket struct {
	upgrader websocket.Upgrader
	w        http.ResponseWriter
	r        *http.Request

	conn *websocket.Conn

	readMu  sync.Mutex
	writeMu sync.Mutex
}

// NewWSInboundSocket prepares an adapter around an not-yet-upgraded HTTP
// request; call Accept to perform the upgrade.
func NewWSInboundSocket(w http.ResponseWriter, r *http.Request, upgrader websocket.Upgrader) *WSInboundSocket {
	return &WSInboundSocket{upgrader: upgrader, w: w, r: r}
}

func (s *WSInboundSocket) Accept(ctx context.Context) error {
	conn, err := s.upgrader.Upgrade(s.w, s.r, nil)
	if err != nil {
		return err
	}
	s.conn = conn
	return nil
}

func (s *WSInboundSocket) SendText(ctx context.Context, msg string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, []byte(msg))
}

func (s *WSInboundSocket) SendBytes(ctx context.Context, msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(websocket.BinaryMessage, msg)
}

func (s *WSInboundSocket) ReceiveText(ctx context.Context) (string, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if isCloseErr(err) {
			return "", ErrDisconnected
		}
		return "", err
	}
	return string(data), nil
}

func (s *WSInboundSocket) ReceiveBytes(ctx context.Context) ([]byte, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	_, data, err := s.conn.ReadMessage()
	if err != nil {
		if isCloseErr(err) {
			return nil, ErrDisconnected
		}
		return nil, err
	}
	return data, nil
}

func (s *WSInboundSocket) Close(code int) error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func isCloseErr(err error) bool {
	_, ok := err.(*websocket.CloseError)
	return ok || websocket.IsUnexpectedCloseError(err)
}
