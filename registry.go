package birpc

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// PingResponse is the result of calling the built-in _ping_ method.
const PingResponse = "pong"

// exposedBuiltins are underscore-prefixed names callable anyway.
var exposedBuiltins = map[string]bool{
	"_ping_":            true,
	"_get_channel_id_":  true,
}

// HandlerFunc is the low-level shape every registered method reduces to:
// it receives the raw JSON object of named arguments and returns a Reply.
type HandlerFunc func(ctx context.Context, args json.RawMessage) (Reply, error)

type handlerEntry struct {
	fn       HandlerFunc
	typeName string
}

// Registry holds named handlers a channel exposes to its peer, plus the
// always-exposed built-ins _ping_ and _get_channel_id_. A single Registry
// is meant to be built once (a "prototype") and then Cloned once per
// channel, since each clone needs its own back-reference to the channel
// that owns it.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]handlerEntry

	// channel is nil on the prototype; set by Channel on the clone it
	// constructs for itself.
	channel *Channel
}

// NewRegistry creates an empty registry with the built-in methods installed.
func NewRegistry() *Registry {
	r := &Registry{handlers: make(map[string]handlerEntry)}
	r.installBuiltins()
	return r
}

func (r *Registry) installBuiltins() {
	r.handlers["_ping_"] = handlerEntry{
		fn: func(ctx context.Context, args json.RawMessage) (Reply, error) {
			return Value(PingResponse, "str"), nil
		},
		typeName: "str",
	}
	r.handlers["_get_channel_id_"] = handlerEntry{
		fn: func(ctx context.Context, args json.RawMessage) (Reply, error) {
			if r.channel == nil {
				return Value("", "str"), fmt.Errorf("birpc: registry not bound to a channel")
			}
			return Value(r.channel.ID(), "str"), nil
		},
		typeName: "str",
	}
}

// RegisterOption customizes a single Register call.
type RegisterOption func(*handlerEntry)

// WithResultTypeName overrides the informational result_type tag sent on
// the wire for this handler's responses. Defaults to "unknown-type" when
// not given and RegisterTyped cannot infer a name.
func WithResultTypeName(name string) RegisterOption {
	return func(h *handlerEntry) { h.typeName = name }
}

// Register exposes fn under name. Names starting with "_" are rejected
// unless they are one of the built-in names (those are pre-installed by
// NewRegistry and cannot be overridden via Register).
func (r *Registry) Register(name string, fn HandlerFunc, opts ...RegisterOption) error {
	if strings.HasPrefix(name, "_") && !exposedBuiltins[name] {
		return fmt.Errorf("birpc: cannot register underscore-prefixed method %q", name)
	}
	if exposedBuiltins[name] {
		return fmt.Errorf("birpc: %q is a reserved built-in method name", name)
	}
	entry := handlerEntry{fn: fn, typeName: unknownTypeName}
	for _, opt := range opts {
		opt(&entry)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = entry
	return nil
}

// RegisterTyped registers a strongly-typed handler: JSON arguments decode
// into A, and the handler's return value R round-trips to JSON for the
// wire. It is the generic counterpart of the teacher's reflection-based
// service registration, without needing a struct receiver.
func RegisterTyped[A any, R any](r *Registry, name string, fn func(ctx context.Context, args A) (R, error), opts ...RegisterOption) error {
	inferred := reflect.TypeOf(*new(R)).Name()
	if inferred == "" {
		inferred = unknownTypeName
	}
	entry := handlerEntry{typeName: inferred}
	for _, opt := range opts {
		opt(&entry)
	}
	typeName := entry.typeName

	wrapped := func(ctx context.Context, raw json.RawMessage) (Reply, error) {
		var args A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &args); err != nil {
				return Reply{}, &RemoteValueError{Err: err}
			}
		}
		result, err := fn(ctx, args)
		if err != nil {
			return Reply{}, err
		}
		return Value(result, typeName), nil
	}
	return r.Register(name, wrapped, opts...)
}

// RegisterService registers every exported method of object whose
// signature is func(context.Context, A) (R, error), keyed by method
// name lower-cased at the first letter (so Echo becomes "echo"). This is
// the struct-receiver analogue of the teacher's RegisterServiceWithName,
// adapted so grouped handlers (one struct, many RPC methods) don't need
// a generic call site per method.
func (r *Registry) RegisterService(object any) error {
	value := reflect.ValueOf(object)
	methodType := value.Type()

	ctxType := reflect.TypeOf((*context.Context)(nil)).Elem()
	errType := reflect.TypeOf((*error)(nil)).Elem()

	registered := 0
	for i := 0; i < methodType.NumMethod(); i++ {
		method := methodType.Method(i)
		if method.PkgPath != "" {
			continue // unexported
		}
		fn := method.Func
		sig := fn.Type()
		// receiver, ctx, args -> result, error
		if sig.NumIn() != 3 || sig.NumOut() != 2 {
			continue
		}
		if !sig.In(1).Implements(ctxType) {
			continue
		}
		if !sig.Out(1).Implements(errType) {
			continue
		}
		argType := sig.In(2)
		resultType := sig.Out(0)
		name := lowerFirst(method.Name)
		typeName := resultType.Name()
		if typeName == "" {
			typeName = unknownTypeName
		}

		boundMethod := value.Method(i)
		handler := func(ctx context.Context, raw json.RawMessage) (Reply, error) {
			argPtr := reflect.New(argType)
			if len(raw) > 0 {
				if err := json.Unmarshal(raw, argPtr.Interface()); err != nil {
					return Reply{}, &RemoteValueError{Err: err}
				}
			}
			out := boundMethod.Call([]reflect.Value{reflect.ValueOf(ctx), argPtr.Elem()})
			if errVal := out[1].Interface(); errVal != nil {
				return Reply{}, errVal.(error)
			}
			return Value(out[0].Interface(), typeName), nil
		}
		if err := r.Register(name, handler, WithResultTypeName(typeName)); err != nil {
			return err
		}
		registered++
	}
	if registered == 0 {
		return fmt.Errorf("birpc.RegisterService: type %T has no exported methods of shape func(context.Context, A) (R, error)", object)
	}
	return nil
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}

// Clone returns a shallow copy with its own (initially unbound) channel
// back-reference, so one prototype Registry can be safely reused across
// many connections. See Design Note 9 ("back-reference registry<->channel").
func (r *Registry) Clone() *Registry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handlers := make(map[string]handlerEntry, len(r.handlers))
	for k, v := range r.handlers {
		handlers[k] = v
	}
	return &Registry{handlers: handlers}
}

func (r *Registry) bind(ch *Channel) {
	r.channel = ch
	r.handlers["_get_channel_id_"] = handlerEntry{
		fn: func(ctx context.Context, args json.RawMessage) (Reply, error) {
			return Value(ch.ID(), "str"), nil
		},
		typeName: "str",
	}
}

// Callable reports whether name may be invoked by the remote peer:
// exposed iff it does not start with "_", or is a built-in.
func Callable(name string) bool {
	return !strings.HasPrefix(name, "_") || exposedBuiltins[name]
}

func (r *Registry) lookup(name string) (handlerEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// Names returns the registered method names, used by a whitelist-style
// Caller restriction.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	return names
}
