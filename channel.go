package birpc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Socket is the narrow capability Channel needs from the serializing
// socket layer (birpc/codec.Socket satisfies this structurally).
type Socket interface {
	Send(ctx context.Context, env *Envelope) error
	Close(code int) error
}

// OnConnect and OnDisconnect are lifecycle callbacks fired exactly once
// each, in that order, over the life of a Channel.
type OnConnect func(ctx context.Context, ch *Channel) error
type OnDisconnect func(ctx context.Context, ch *Channel) error
type OnError func(ctx context.Context, ch *Channel, err error)

type pending struct {
	request  *Request
	done     chan struct{}
	response *Response
}

// Channel owns one serializing socket, pairs outbound requests with
// inbound responses, dispatches inbound requests to its Registry, and
// fires connect/disconnect/error callbacks. It is the core RPC state
// machine: one Channel exists per connection.
type Channel struct {
	id      string
	otherID string
	hasOtherID bool
	otherIDmu  sync.RWMutex

	registry *Registry
	socket   Socket

	defaultTimeout time.Duration
	syncChannelID  bool

	pendingMu sync.Mutex
	pending   map[string]*pending

	connectHandlers    []OnConnect
	disconnectHandlers []OnDisconnect
	errorHandlers      []OnError

	closed     chan struct{}
	closeOnce  sync.Once
	disconnectOnce sync.Once

	context map[string]any
}

// ChannelOption customizes a Channel at construction.
type ChannelOption func(*Channel)

// WithChannelID pins the channel's local id instead of generating one.
func WithChannelID(id string) ChannelOption {
	return func(c *Channel) { c.id = id }
}

// WithDefaultTimeout sets the timeout Call uses when none is given
// per-call.
func WithDefaultTimeout(d time.Duration) ChannelOption {
	return func(c *Channel) { c.defaultTimeout = d }
}

// WithSyncChannelID causes the channel to ask the remote peer for its
// channel id (via the built-in _get_channel_id_) immediately after connect.
func WithSyncChannelID(sync bool) ChannelOption {
	return func(c *Channel) { c.syncChannelID = sync }
}

// WithContext seeds the channel's user context bag, readable by handlers
// via Channel.Context().
func WithContext(ctx map[string]any) ChannelOption {
	return func(c *Channel) {
		for k, v := range ctx {
			c.context[k] = v
		}
	}
}

func genID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// NewChannel constructs a Channel bound to socket, cloning registry for
// this connection (so the registry's channel back-reference is private
// to this Channel).
func NewChannel(registry *Registry, socket Socket, opts ...ChannelOption) *Channel {
	if registry == nil {
		registry = NewRegistry()
	}
	clone := registry.Clone()
	c := &Channel{
		id:      genID(),
		registry: clone,
		socket:   socket,
		pending:  make(map[string]*pending),
		closed:   make(chan struct{}),
		context:  make(map[string]any),
	}
	for _, opt := range opts {
		opt(c)
	}
	clone.bind(c)
	return c
}

// ID returns the channel's stable local id.
func (c *Channel) ID() string { return c.id }

// OtherID returns the remote peer's channel id, if it has been learned
// (only populated when constructed with WithSyncChannelID(true) and only
// after the exchange completes).
func (c *Channel) OtherID() (string, bool) {
	c.otherIDmu.RLock()
	defer c.otherIDmu.RUnlock()
	return c.otherID, c.hasOtherID
}

func (c *Channel) setOtherID(id string) {
	c.otherIDmu.Lock()
	defer c.otherIDmu.Unlock()
	c.otherID = id
	c.hasOtherID = true
}

// Context returns the per-channel user-supplied context bag.
func (c *Channel) Context() map[string]any { return c.context }

// Registry returns the channel's private registry clone.
func (c *Channel) Registry() *Registry { return c.registry }

// RegisterConnectHandler appends callbacks fired once, on connect.
func (c *Channel) RegisterConnectHandler(cbs ...OnConnect) {
	c.connectHandlers = append(c.connectHandlers, cbs...)
}

// RegisterDisconnectHandler appends callbacks fired once, on close.
func (c *Channel) RegisterDisconnectHandler(cbs ...OnDisconnect) {
	c.disconnectHandlers = append(c.disconnectHandlers, cbs...)
}

// RegisterErrorHandler appends callbacks fired whenever OnMessage fails
// to parse or dispatch a frame.
func (c *Channel) RegisterErrorHandler(cbs ...OnError) {
	c.errorHandlers = append(c.errorHandlers, cbs...)
}

// Closed returns a channel that's closed once this Channel has closed.
func (c *Channel) Closed() <-chan struct{} { return c.closed }

// IsClosed reports whether Close has been called.
func (c *Channel) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// Send hands env to the serializing socket.
func (c *Channel) Send(ctx context.Context, env *Envelope) error {
	return c.socket.Send(ctx, env)
}

// Close tears down the channel: closes the socket, sets the terminal
// closed signal (releasing every WaitForResponse), and fires disconnect
// handlers exactly once.
func (c *Channel) Close(ctx context.Context) error {
	var sockErr error
	c.closeOnce.Do(func() {
		sockErr = c.socket.Close(1000)
		close(c.closed)
	})
	c.fireDisconnect(ctx)
	return sockErr
}

func (c *Channel) fireDisconnect(ctx context.Context) {
	c.disconnectOnce.Do(func() {
		runCallbacks(len(c.disconnectHandlers), func(i int) error {
			return c.disconnectHandlers[i](ctx, c)
		}, func(err error) { c.fireError(ctx, err) })
	})
}

// runCallbacks fires n callbacks fan-out style: one failing callback
// must not prevent the others from running (gather-style semantics).
func runCallbacks(n int, call func(i int) error, onErr func(error)) {
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			if err := call(i); err != nil && onErr != nil {
				onErr(err)
			}
		}(i)
	}
	wg.Wait()
}

func (c *Channel) fireError(ctx context.Context, err error) {
	runCallbacks(len(c.errorHandlers), func(i int) error {
		c.errorHandlers[i](ctx, c, err)
		return nil
	}, nil)
}

// OnConnectEvent runs registered connect handlers exactly once, and
// kicks off the channel-id exchange if configured. on_connect callbacks
// complete before any user-level call is allowed to observe the channel
// as connected.
func (c *Channel) OnConnectEvent(ctx context.Context) error {
	if c.syncChannelID {
		go func() {
			_ = c.fetchOtherChannelID(context.Background())
		}()
	}
	var firstErr error
	runCallbacks(len(c.connectHandlers), func(i int) error {
		return c.connectHandlers[i](ctx, c)
	}, func(err error) {
		if firstErr == nil {
			firstErr = err
		}
		c.fireError(ctx, err)
	})
	return firstErr
}

func (c *Channel) fetchOtherChannelID(ctx context.Context) error {
	if _, ok := c.OtherID(); ok {
		return nil
	}
	resp, err := c.Call(ctx, "_get_channel_id_", nil, 0)
	if err != nil {
		return err
	}
	var id string
	if err := json.Unmarshal(resp.Result, &id); err != nil {
		return err
	}
	c.setOtherID(id)
	return nil
}

// OnMessage parses data as an Envelope and dispatches it. A parse
// failure fires the error callbacks and is returned to the caller (the
// read loop is expected to close the channel on error). Callers that
// already have a parsed *Envelope (e.g. from codec.Socket.Recv) should
// call Dispatch directly instead, to avoid a redundant re-parse.
func (c *Channel) OnMessage(ctx context.Context, data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.fireError(ctx, err)
		return err
	}
	return c.Dispatch(ctx, &env)
}

// Dispatch routes an already-parsed Envelope: a Request is handed to
// OnRequest, a Response to OnResponse.
func (c *Channel) Dispatch(ctx context.Context, env *Envelope) error {
	if env.Request != nil {
		if err := c.OnRequest(ctx, env.Request); err != nil {
			c.fireError(ctx, err)
			return err
		}
	}
	if env.Response != nil {
		c.OnResponse(env.Response)
	}
	return nil
}

// OnRequest dispatches an inbound request to the registry and sends a
// response, unless the method starts with "_" and is not a built-in, or
// the handler returns Suppress().
func (c *Channel) OnRequest(ctx context.Context, req *Request) error {
	if !Callable(req.Method) {
		// Unknown/forbidden method: no response is sent; the caller
		// eventually times out (spec section 7).
		return nil
	}
	entry, ok := c.registry.lookup(req.Method)
	if !ok {
		return nil
	}
	reply, err := entry.fn(ctx, req.Arguments)
	if err != nil {
		// Handler exception: no response sent, caller times out.
		return fmt.Errorf("birpc: handler %q failed: %w", req.Method, err)
	}
	if reply.IsSuppressed() {
		return nil
	}
	result, err := json.Marshal(reply.value)
	if err != nil {
		return fmt.Errorf("birpc: marshaling result of %q: %w", req.Method, err)
	}
	resultType := reply.typeName
	if resultType == "" {
		resultType = unknownTypeName
	}
	resp := &Envelope{Response: &Response{
		CallID:     req.CallID,
		Result:     result,
		ResultType: resultType,
	}}
	return c.Send(ctx, resp)
}

// OnResponse routes an inbound response to its waiting caller, if any.
// A response for an unknown (already-timed-out, or foreign) call_id is
// dropped silently.
func (c *Channel) OnResponse(resp *Response) {
	c.pendingMu.Lock()
	p, ok := c.pending[resp.CallID]
	if !ok {
		c.pendingMu.Unlock()
		return
	}
	p.response = resp
	c.pendingMu.Unlock()
	close(p.done)
}

// Pending is a single in-flight outbound call, returned by AsyncCall.
type Pending struct {
	channel *Channel
	entry   *pending
}

// CallID returns the id of the originating request.
func (p *Pending) CallID() string { return p.entry.request.CallID }

// AsyncCall mints a call_id, sends the request, and returns immediately
// with a Pending the caller can later await with WaitForResponse.
func (c *Channel) AsyncCall(ctx context.Context, method string, args any) (*Pending, error) {
	callID := genID()
	var raw json.RawMessage
	if args != nil {
		encoded, err := json.Marshal(args)
		if err != nil {
			return nil, err
		}
		raw = encoded
	}
	req := &Request{CallID: callID, Method: method, Arguments: raw}

	entry := &pending{request: req, done: make(chan struct{})}
	c.pendingMu.Lock()
	c.pending[callID] = entry
	c.pendingMu.Unlock()

	if err := c.Send(ctx, &Envelope{Request: req}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, callID)
		c.pendingMu.Unlock()
		return nil, err
	}
	return &Pending{channel: c, entry: entry}, nil
}

// WaitForResponse blocks until p's response arrives, the channel closes,
// ctx is cancelled, or timeout elapses (timeout <= 0 means "no timeout,
// rely on ctx / channel close only"). In every exit path the Pending's
// call_id is removed from the pending map.
func (c *Channel) WaitForResponse(ctx context.Context, p *Pending, timeout time.Duration) (*Response, error) {
	// A Pending whose call_id was already removed has had its response
	// delivered (or abandoned); it is never delivered a second time.
	c.pendingMu.Lock()
	_, live := c.pending[p.CallID()]
	c.pendingMu.Unlock()
	done := p.entry.done
	if !live {
		done = nil
	}

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, p.CallID())
		c.pendingMu.Unlock()
	}()

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-done:
		return p.entry.response, nil
	case <-c.closed:
		return nil, ErrChannelClosed
	case <-timeoutCh:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Call performs AsyncCall followed by WaitForResponse. timeout <= 0 uses
// the channel's configured default (0 if none was set, meaning wait
// indefinitely for close/ctx cancellation).
func (c *Channel) Call(ctx context.Context, method string, args any, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = c.defaultTimeout
	}
	p, err := c.AsyncCall(ctx, method, args)
	if err != nil {
		return nil, err
	}
	return c.WaitForResponse(ctx, p, timeout)
}
