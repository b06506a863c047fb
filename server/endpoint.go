// Package server implements the inbound half of birpc: it accepts a
// connection handed to it by an HTTP framework/router, wraps it as a
// transport, builds a Channel, and runs the read loop until disconnect.
// This is the Go counterpart of the original's WebsocketRPCEndpoint.
package server

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/birpc-go/birpc"
	"github.com/birpc-go/birpc/codec"
	"github.com/birpc-go/birpc/logging"
)

// OnChannelCreated fires right after a Channel is constructed for a new
// connection, before connect handlers run -- useful for stashing the
// channel somewhere (a registry of connected peers, say) before any
// calls can race it.
type OnChannelCreated func(ctx context.Context, ch *birpc.Channel) error

// Endpoint serves inbound connections against a shared method registry.
type Endpoint struct {
	registry *birpc.Registry
	manager  *ConnectionManager

	onConnect        []birpc.OnConnect
	onDisconnect     []birpc.OnDisconnect
	onChannelCreated []OnChannelCreated

	frameType     FrameType
	socketOpts    []codec.Option
	syncChannelID bool

	log *zap.SugaredLogger
}

// EndpointOption customizes an Endpoint at construction.
type EndpointOption func(*Endpoint)

// WithRegistry sets the methods this endpoint exposes to connecting peers.
func WithRegistry(reg *birpc.Registry) EndpointOption {
	return func(e *Endpoint) { e.registry = reg }
}

// WithConnectionManager overrides the default ConnectionManager.
func WithConnectionManager(m *ConnectionManager) EndpointOption {
	return func(e *Endpoint) { e.manager = m }
}

// WithFrameType selects text (default) or binary WebSocket frames.
func WithFrameType(ft FrameType) EndpointOption {
	return func(e *Endpoint) { e.frameType = ft }
}

// WithSyncChannelID causes each channel to fetch the remote peer's
// channel id right after connecting.
func WithSyncChannelID(sync bool) EndpointOption {
	return func(e *Endpoint) { e.syncChannelID = sync }
}

// WithSocketOptions forwards codec.Option(s) to every connection's socket.
func WithSocketOptions(opts ...codec.Option) EndpointOption {
	return func(e *Endpoint) { e.socketOpts = append(e.socketOpts, opts...) }
}

// WithOnConnect registers a connect callback fired on every channel.
func WithOnConnect(cb birpc.OnConnect) EndpointOption {
	return func(e *Endpoint) { e.onConnect = append(e.onConnect, cb) }
}

// WithOnDisconnect registers a disconnect callback fired on every channel.
func WithOnDisconnect(cb birpc.OnDisconnect) EndpointOption {
	return func(e *Endpoint) { e.onDisconnect = append(e.onDisconnect, cb) }
}

// WithOnChannelCreated registers a callback fired once a channel is built
// for a new connection, before connect handlers run.
func WithOnChannelCreated(cb OnChannelCreated) EndpointOption {
	return func(e *Endpoint) { e.onChannelCreated = append(e.onChannelCreated, cb) }
}

// NewEndpoint constructs an Endpoint, applying opts.
func NewEndpoint(opts ...EndpointOption) *Endpoint {
	e := &Endpoint{
		registry: birpc.NewRegistry(),
		manager:  NewConnectionManager(),
		log:      logging.Sugared("RPC_ENDPOINT"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Serve drives one inbound connection end to end: register with the
// manager, wrap as a transport, build a channel, fire lifecycle
// callbacks, and loop reading frames until disconnect or error. It
// returns once the connection is done; callers typically run it in its
// own goroutine per accepted connection.
func (e *Endpoint) Serve(ctx context.Context, ws InboundSocket, channelOpts ...birpc.ChannelOption) error {
	if err := e.manager.Connect(ctx, ws); err != nil {
		return err
	}
	e.log.Infow("client connected")

	adapter := newFrameAdapter(ws, e.frameType)
	socket := codec.New(adapter, e.socketOpts...)

	opts := append([]birpc.ChannelOption{birpc.WithSyncChannelID(e.syncChannelID)}, channelOpts...)
	channel := birpc.NewChannel(e.registry, socket, opts...)

	for _, cb := range e.onChannelCreated {
		if err := cb(ctx, channel); err != nil {
			e.log.Warnw("on_channel_created callback failed", "error", err)
		}
	}

	channel.RegisterConnectHandler(e.onConnect...)
	channel.RegisterDisconnectHandler(e.onDisconnect...)

	if err := channel.OnConnectEvent(ctx); err != nil {
		e.log.Warnw("on_connect callback failed", "error", err)
	}

	err := e.readLoop(ctx, channel, socket)
	e.handleDisconnect(ctx, ws, channel)
	return err
}

func (e *Endpoint) readLoop(ctx context.Context, channel *birpc.Channel, socket *codec.Socket) error {
	for {
		env, err := socket.Recv(ctx)
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				return nil
			}
			return err
		}
		if env == nil {
			return nil
		}
		if err := channel.Dispatch(ctx, env); err != nil {
			return err
		}
	}
}

func (e *Endpoint) handleDisconnect(ctx context.Context, ws InboundSocket, channel *birpc.Channel) {
	e.manager.Disconnect(ws)
	if !channel.IsClosed() {
		_ = channel.Close(ctx)
	}
}
