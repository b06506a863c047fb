package server

import (
	"context"
	"errors"
)

// ErrDisconnected is returned by ReceiveText/ReceiveBytes when the peer
// has closed the connection. Endpoint.Serve treats it as a normal
// disconnect, not a dispatch error.
var ErrDisconnected = errors.New("server: client disconnected")

// InboundSocket is the contract an HTTP-framework integration must
// satisfy for Endpoint to drive it: accept the handshake, send/receive
// either frame type, and close. Concrete adapters (see WSInboundSocket)
// wrap whatever upgrade mechanism the router provides.
type InboundSocket interface {
	Accept(ctx context.Context) error
	SendText(ctx context.Context, msg string) error
	SendBytes(ctx context.Context, msg []byte) error
	// ReceiveText/ReceiveBytes return ErrDisconnected when the peer has
	// closed the connection.
	ReceiveText(ctx context.Context) (string, error)
	ReceiveBytes(ctx context.Context) ([]byte, error)
	Close(code int) error
}

// FrameType selects which WebSocket frame kind the endpoint sends/reads.
type FrameType int

const (
	FrameText FrameType = iota
	FrameBinary
)

// frameAdapter adapts an InboundSocket plus a configured FrameType into
// a codec.Transport, the same role the original's WebSocketSimplifier
// plays between WebSocketFrameType and FastAPI's WebSocket object.
type frameAdapter struct {
	ws        InboundSocket
	frameType FrameType
}

func newFrameAdapter(ws InboundSocket, frameType FrameType) *frameAdapter {
	return &frameAdapter{ws: ws, frameType: frameType}
}

// Connect is a no-op: an inbound adapter is already connected by the time
// Endpoint.Serve receives it (the HTTP framework did the handshake).
func (a *frameAdapter) Connect(ctx context.Context, uri string, opts map[string]any) error {
	return nil
}

func (a *frameAdapter) Send(ctx context.Context, data []byte) error {
	if a.frameType == FrameBinary {
		return a.ws.SendBytes(ctx, data)
	}
	return a.ws.SendText(ctx, string(data))
}

func (a *frameAdapter) Recv(ctx context.Context) ([]byte, error) {
	if a.frameType == FrameBinary {
		data, err := a.ws.ReceiveBytes(ctx)
		if errors.Is(err, ErrDisconnected) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return data, nil
	}
	text, err := a.ws.ReceiveText(ctx)
	if errors.Is(err, ErrDisconnected) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(text), nil
}

func (a *frameAdapter) Close(code int) error {
	return a.ws.Close(code)
}
