// Package codec implements the serializing-socket layer: it sits between
// an RPC channel and a raw Transport, turning envelopes into wire bytes
// and back. It is deliberately a thin, overridable layer so callers can
// plug in a different wire encoding (see WithCodec) the way the original's JsonSerializingWebSocket subclasses did.
package codec

import (
	"context"
	"encoding/json"

	"github.com/birpc-go/birpc"
)

// Marshaler turns an envelope into wire bytes.
type Marshaler func(env *birpc.Envelope) ([]byte, error)

// Unmarshaler decodes wire bytes into an envelope.
type Unmarshaler func(data []byte, env *birpc.Envelope) error

// Transport is the narrow duplex-byte-stream capability a Socket needs.
// birpc/transport.Adapter satisfies this.
type Transport interface {
	Connect(ctx context.Context, uri string, opts map[string]any) error
	Send(ctx context.Context, data []byte) error
	// Recv returns (nil, nil) when the peer closed the connection cleanly.
	Recv(ctx context.Context) ([]byte, error)
	Close(code int) error
}

// Socket serializes envelopes over a Transport. The zero value is not
// usable; construct with New.
type Socket struct {
	transport Transport
	marshal   Marshaler
	unmarshal Unmarshaler
}

// Option customizes a Socket at construction.
type Option func(*Socket)

// WithCodec overrides the marshal/unmarshal pair, e.g. to round-trip a
// different wire encoding than plain JSON.
func WithCodec(marshal Marshaler, unmarshal Unmarshaler) Option {
	return func(s *Socket) {
		s.marshal = marshal
		s.unmarshal = unmarshal
	}
}

func defaultMarshal(env *birpc.Envelope) ([]byte, error) { return json.Marshal(env) }
func defaultUnmarshal(data []byte, env *birpc.Envelope) error { return json.Unmarshal(data, env) }

// New wraps transport in a JSON-serializing Socket, applying any opts.
func New(transport Transport, opts ...Option) *Socket {
	s := &Socket{
		transport: transport,
		marshal:   defaultMarshal,
		unmarshal: defaultUnmarshal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect delegates to the underlying transport.
func (s *Socket) Connect(ctx context.Context, uri string, opts map[string]any) error {
	return s.transport.Connect(ctx, uri, opts)
}

// Send serializes env and hands the bytes to the transport.
func (s *Socket) Send(ctx context.Context, env *birpc.Envelope) error {
	data, err := s.marshal(env)
	if err != nil {
		return err
	}
	return s.transport.Send(ctx, data)
}

// Recv reads one frame and deserializes it into an Envelope. It returns
// (nil, nil) when the transport closed cleanly (no frame to decode).
func (s *Socket) Recv(ctx context.Context) (*birpc.Envelope, error) {
	data, err := s.transport.Recv(ctx)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var env birpc.Envelope
	if err := s.unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Close delegates to the underlying transport.
func (s *Socket) Close(code int) error {
	return s.transport.Close(code)
}
