// Package client implements the reconnecting client wrapper around a
// birpc.Channel: it owns the transport dial, the serializing socket, the
// read loop, the keep-alive loop, and retries the initial connect with
// randomized exponential backoff, mirroring the original's
// WebSocketRpcClient and its DEFAULT_RETRY_CONFIG.
package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/birpc-go/birpc"
	"github.com/birpc-go/birpc/codec"
	"github.com/birpc-go/birpc/logging"
	"github.com/birpc-go/birpc/transport"
)

// DialerFactory builds a fresh transport.Adapter for each connection
// attempt -- the client never reuses a failed adapter.
type DialerFactory func() transport.Adapter

// RetryPredicate decides whether a dial error should be retried. The
// default rejects retrying transport.ForbiddenError (401/403), retrying
// everything else -- see isNotForbidden in the original.
type RetryPredicate func(err error) bool

// DefaultRetryPredicate retries everything except a ForbiddenError
// anywhere in err's chain.
func DefaultRetryPredicate(err error) bool {
	var forbidden *transport.ForbiddenError
	return !errors.As(err, &forbidden)
}

// Client owns one channel at a time. Connect retries the initial dial per
// the configured retry policy; a connection lost after that closes the
// channel and is not re-established.
type Client struct {
	uri      string
	registry *birpc.Registry

	dialerFactory DialerFactory
	dialOpts      map[string]any

	retryDisabled  bool
	backOff        backoff.BackOff
	retryPredicate RetryPredicate

	defaultTimeout time.Duration
	keepAlive      time.Duration

	onConnect    []birpc.OnConnect
	onDisconnect []birpc.OnDisconnect

	socketOpts []codec.Option

	mu      sync.Mutex
	channel *birpc.Channel
	socket  *codec.Socket

	readCancel      context.CancelFunc
	keepAliveCancel context.CancelFunc
	wg              sync.WaitGroup

	log *zap.SugaredLogger
}

// Option customizes a Client at construction.
type Option func(*Client)

// WithRegistry sets the methods this client exposes to the server.
func WithRegistry(reg *birpc.Registry) Option {
	return func(c *Client) { c.registry = reg }
}

// WithDialer overrides the default gorilla/websocket dialer factory.
func WithDialer(factory DialerFactory) Option {
	return func(c *Client) { c.dialerFactory = factory }
}

// WithDialOptions forwards opaque options (headers, TLS config, ...) to
// the transport adapter's Connect.
func WithDialOptions(opts map[string]any) Option {
	return func(c *Client) { c.dialOpts = opts }
}

// WithoutRetry disables the reconnect-with-backoff wrapper entirely:
// Connect either succeeds once or returns the raw dial error.
func WithoutRetry() Option {
	return func(c *Client) { c.retryDisabled = true }
}

// WithBackOff overrides the retry backoff strategy. Defaults to
// exponential backoff randomized between 100ms and 120s, matching the
// original's wait_random_exponential(min=0.1, max=120).
func WithBackOff(b backoff.BackOff) Option {
	return func(c *Client) { c.backOff = b }
}

// WithRetryPredicate overrides which errors are retried.
func WithRetryPredicate(p RetryPredicate) Option {
	return func(c *Client) { c.retryPredicate = p }
}

// WithDefaultTimeout sets the default per-call response timeout.
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

// WithKeepAlive enables periodic _ping_ keep-alives every interval. A
// zero interval (the default) disables the keep-alive task entirely.
func WithKeepAlive(interval time.Duration) Option {
	return func(c *Client) { c.keepAlive = interval }
}

// WithOnConnect registers a connect callback.
func WithOnConnect(cb birpc.OnConnect) Option {
	return func(c *Client) { c.onConnect = append(c.onConnect, cb) }
}

// WithOnDisconnect registers a disconnect callback.
func WithOnDisconnect(cb birpc.OnDisconnect) Option {
	return func(c *Client) { c.onDisconnect = append(c.onDisconnect, cb) }
}

// WithSocketOptions forwards codec.Option(s) to the serializing socket,
// e.g. to install a custom marshaler/unmarshaler.
func WithSocketOptions(opts ...codec.Option) Option {
	return func(c *Client) { c.socketOpts = append(c.socketOpts, opts...) }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.MaxInterval = 120 * time.Second
	b.MaxElapsedTime = 0 // retry forever; only a non-retryable error stops us
	b.RandomizationFactor = 0.5
	return b
}

// New constructs a Client for uri, applying opts.
func New(uri string, opts ...Option) *Client {
	c := &Client{
		uri:            uri,
		registry:       birpc.NewRegistry(),
		dialerFactory:  func() transport.Adapter { return transport.NewWebSocketAdapter() },
		backOff:        defaultBackOff(),
		retryPredicate: DefaultRetryPredicate,
		log:            logging.Sugared("RPC_CLIENT"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Channel returns the currently connected channel, or nil before Connect
// or after Close.
func (c *Client) Channel() *birpc.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Other is a convenience accessor equivalent to Channel().Other().
func (c *Client) Other() *birpc.Caller {
	ch := c.Channel()
	if ch == nil {
		return nil
	}
	return ch.Other()
}

// dialOnce performs exactly one connection attempt: dial transport, wrap
// in serializing socket, construct the channel, register handlers, spawn
// reader/keep-alive, fire on_connect.
func (c *Client) dialOnce(ctx context.Context) error {
	ws := c.dialerFactory()
	socket := codec.New(ws, c.socketOpts...)
	if err := socket.Connect(ctx, c.uri, c.dialOpts); err != nil {
		return err
	}

	channel := birpc.NewChannel(c.registry, socket,
		birpc.WithDefaultTimeout(c.defaultTimeout),
	)
	channel.RegisterConnectHandler(c.onConnect...)
	channel.RegisterDisconnectHandler(c.onDisconnect...)

	c.mu.Lock()
	c.socket = socket
	c.channel = channel
	c.mu.Unlock()

	readCtx, cancelRead := context.WithCancel(context.Background())
	c.readCancel = cancelRead
	c.wg.Add(1)
	go c.readLoop(readCtx, channel, socket)

	if c.keepAlive > 0 {
		kaCtx, cancelKA := context.WithCancel(context.Background())
		c.keepAliveCancel = cancelKA
		c.wg.Add(1)
		go c.keepAliveLoop(kaCtx, channel)
	}

	return channel.OnConnectEvent(ctx)
}

// Connect establishes the connection, retrying per the configured
// backoff unless retry is disabled or the dial error is non-retryable
// (ForbiddenError).
func (c *Client) Connect(ctx context.Context) (*Client, error) {
	if c.retryDisabled {
		if err := c.dialOnce(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	operation := func() error {
		err := c.dialOnce(ctx)
		if err == nil {
			return nil
		}
		if !c.retryPredicate(err) {
			return backoff.Permanent(err)
		}
		c.log.Warnw("connect attempt failed, retrying", "uri", c.uri, "error", err)
		return err
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.backOff, ctx)); err != nil {
		c.log.Errorw("giving up connecting", "uri", c.uri, "error", err)
		return nil, err
	}
	return c, nil
}

// Run is the Go analogue of the original's "async with WebSocketRpcClient(...)"
// scoped-acquisition body: it connects, invokes fn with the connected
// client, and closes unconditionally afterward.
func (c *Client) Run(ctx context.Context, fn func(ctx context.Context, c *Client) error) error {
	if _, err := c.Connect(ctx); err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// Close tears down the channel, cancels the reader and keep-alive
// goroutines, and fires on_disconnect exactly once.
func (c *Client) Close() error {
	c.mu.Lock()
	channel := c.channel
	c.mu.Unlock()

	if c.readCancel != nil {
		c.readCancel()
	}
	if c.keepAliveCancel != nil {
		c.keepAliveCancel()
	}

	var err error
	if channel != nil && !channel.IsClosed() {
		err = channel.Close(context.Background())
	}
	c.wg.Wait()
	return err
}

// readLoop is the reader task: Recv, then dispatch; a nil envelope means
// the transport closed cleanly, which closes the channel and exits.
// Cancellation exits silently, matching the original's
// `except asyncio.CancelledError: pass`.
func (c *Client) readLoop(ctx context.Context, channel *birpc.Channel, socket *codec.Socket) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		env, err := socket.Recv(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Warnw("read error, closing channel", "error", err)
			_ = channel.Close(ctx)
			return
		}
		if env == nil {
			_ = channel.Close(ctx)
			return
		}
		_ = channel.Dispatch(ctx, env)
	}
}

// keepAliveLoop pings the remote every interval; a mismatched or failed
// ping lets the error surface naturally via the reader's next Recv
// returning an error/close, per the original's design.
func (c *Client) keepAliveLoop(ctx context.Context, channel *birpc.Channel) {
	defer c.wg.Done()
	ticker := time.NewTicker(c.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := channel.Other().Ping(ctx, c.defaultTimeout)
			if err != nil || !ok {
				c.log.Warnw("keep-alive ping failed", "error", err, "ok", ok)
				return
			}
		}
	}
}
