package birpc

import (
	"context"
	"time"
)

// Caller is the remote-proxy accessor: Channel.Other().Call(ctx, name,
// args, timeout) turns a named call into a round trip to the peer, applying the same
// underscore-exposure rule the registry enforces on inbound dispatch, plus
// an optional whitelist narrowing which names may be called at all.
type Caller struct {
	channel   *Channel
	whitelist map[string]bool // nil means "no restriction"
}

// Other returns a Caller bound to this channel with no whitelist.
func (c *Channel) Other() *Caller {
	return &Caller{channel: c}
}

// Restrict returns a copy of this Caller that only allows the given
// method names (in addition to the always-exposed built-ins).
func (r *Caller) Restrict(names ...string) *Caller {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return &Caller{channel: r.channel, whitelist: allowed}
}

// RestrictToRegistry is a convenience Restrict that narrows the allowed
// set to exactly the names exposed by a reference registry.
func (r *Caller) RestrictToRegistry(reg *Registry) *Caller {
	return r.Restrict(reg.Names()...)
}

// Call invokes method on the remote peer with args, waiting up to timeout
// (<=0 uses the channel default) for the response.
func (r *Caller) Call(ctx context.Context, method string, args any, timeout time.Duration) (*Response, error) {
	if !Callable(method) {
		return nil, ErrUnknownMethod
	}
	if r.whitelist != nil && !r.whitelist[method] && !exposedBuiltins[method] {
		return nil, ErrUnknownMethod
	}
	return r.channel.Call(ctx, method, args, timeout)
}

// AsyncCall is the non-blocking counterpart of Call.
func (r *Caller) AsyncCall(ctx context.Context, method string, args any) (*Pending, error) {
	if !Callable(method) {
		return nil, ErrUnknownMethod
	}
	if r.whitelist != nil && !r.whitelist[method] && !exposedBuiltins[method] {
		return nil, ErrUnknownMethod
	}
	return r.channel.AsyncCall(ctx, method, args)
}

// Ping calls the built-in _ping_ method and reports whether the remote
// replied with the expected "pong".
func (r *Caller) Ping(ctx context.Context, timeout time.Duration) (bool, error) {
	resp, err := r.Call(ctx, "_ping_", nil, timeout)
	if err != nil {
		return false, err
	}
	var result string
	if err := unmarshalResult(resp, &result); err != nil {
		return false, err
	}
	return result == PingResponse, nil
}
