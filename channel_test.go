package birpc_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/birpc-go/birpc"
)

func TestChannelCallRoundTrip(t *testing.T) {
	serverReg := birpc.NewRegistry()
	if err := birpc.RegisterTyped(serverReg, "echo", func(ctx context.Context, args struct {
		Text string `json:"text"`
	}) (string, error) {
		return args.Text, nil
	}, birpc.WithResultTypeName("str")); err != nil {
		t.Fatalf("register echo: %v", err)
	}

	pair := newLinkedChannels(t, birpc.NewRegistry(), serverReg, nil, nil)
	defer pair.Close()

	resp, err := pair.A.Call(context.Background(), "echo", map[string]string{"text": "hello"}, 2*time.Second)
	if err != nil {
		t.Fatalf("call failed: %v", err)
	}
	var result string
	if err := birpc.UnmarshalResult(resp, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result != "hello" {
		t.Fatalf("got %q, want %q", result, "hello")
	}
	if resp.ResultType != "str" {
		t.Fatalf("got result_type %q, want %q", resp.ResultType, "str")
	}
}

func TestChannelBuiltinPing(t *testing.T) {
	pair := newLinkedChannels(t, birpc.NewRegistry(), birpc.NewRegistry(), nil, nil)
	defer pair.Close()

	ok, err := pair.A.Other().Ping(context.Background(), 2*time.Second)
	if err != nil {
		t.Fatalf("ping failed: %v", err)
	}
	if !ok {
		t.Fatalf("ping did not report ok")
	}
}

func TestChannelUnknownMethodTimesOut(t *testing.T) {
	pair := newLinkedChannels(t, birpc.NewRegistry(), birpc.NewRegistry(), nil, nil)
	defer pair.Close()

	_, err := pair.A.Call(context.Background(), "no_such_method", nil, 100*time.Millisecond)
	if err != birpc.ErrTimeout {
		t.Fatalf("got err %v, want ErrTimeout", err)
	}
}

func TestChannelUnderscoreMethodNotCallableRemotely(t *testing.T) {
	pair := newLinkedChannels(t, birpc.NewRegistry(), birpc.NewRegistry(), nil, nil)
	defer pair.Close()

	_, err := pair.A.Other().Call(context.Background(), "_secret_internal_", nil, 0)
	if err != birpc.ErrUnknownMethod {
		t.Fatalf("got err %v, want ErrUnknownMethod", err)
	}
}

func TestChannelRepeatedCallsThenAsyncCallSucceed(t *testing.T) {
	serverReg := birpc.NewRegistry()
	if err := birpc.RegisterTyped(serverReg, "noop", func(ctx context.Context, _ struct{}) (string, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("register noop: %v", err)
	}
	pair := newLinkedChannels(t, birpc.NewRegistry(), serverReg, nil, nil)
	defer pair.Close()

	for i := 0; i < 5; i++ {
		if _, err := pair.A.Call(context.Background(), "noop", nil, 2*time.Second); err != nil {
			t.Fatalf("call %d failed: %v", i, err)
		}
	}

	// After the sequential calls have completed, a further AsyncCall on the
	// same channel is still accepted. The pending map itself is not
	// exported, so its size is not inspected here.
	_, err := pair.A.AsyncCall(context.Background(), "noop", nil)
	if err != nil {
		t.Fatalf("async call failed: %v", err)
	}
}

func TestChannelResponseDeliveredAtMostOnce(t *testing.T) {
	serverReg := birpc.NewRegistry()
	if err := birpc.RegisterTyped(serverReg, "noop", func(ctx context.Context, _ struct{}) (string, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("register noop: %v", err)
	}
	pair := newLinkedChannels(t, birpc.NewRegistry(), serverReg, nil, nil)
	defer pair.Close()

	p, err := pair.A.AsyncCall(context.Background(), "noop", nil)
	if err != nil {
		t.Fatalf("async call failed: %v", err)
	}
	resp1, err := pair.A.WaitForResponse(context.Background(), p, 2*time.Second)
	if err != nil {
		t.Fatalf("first wait failed: %v", err)
	}
	if resp1.CallID != p.CallID() {
		t.Fatalf("call id mismatch")
	}

	// A second wait on the same Pending after it has already been
	// delivered and evicted blocks until the close/timeout path, since
	// there is no second delivery for an already-consumed call id.
	_, err = pair.A.WaitForResponse(context.Background(), p, 50*time.Millisecond)
	if err != birpc.ErrTimeout {
		t.Fatalf("got err %v, want ErrTimeout (no second delivery)", err)
	}
}

func TestChannelSuppressedReplySendsNothing(t *testing.T) {
	serverReg := birpc.NewRegistry()
	if err := serverReg.Register("fire_and_forget", func(ctx context.Context, args json.RawMessage) (birpc.Reply, error) {
		return birpc.Suppress(), nil
	}); err != nil {
		t.Fatalf("register: %v", err)
	}
	pair := newLinkedChannels(t, birpc.NewRegistry(), serverReg, nil, nil)
	defer pair.Close()

	_, err := pair.A.Call(context.Background(), "fire_and_forget", nil, 100*time.Millisecond)
	if err != birpc.ErrTimeout {
		t.Fatalf("got err %v, want ErrTimeout (suppressed reply)", err)
	}
}

func TestChannelDisconnectFiresOnceAndReleasesWaiters(t *testing.T) {
	var disconnects int
	pair := newLinkedChannels(t, birpc.NewRegistry(), birpc.NewRegistry(), nil, nil)
	pair.A.RegisterDisconnectHandler(func(ctx context.Context, ch *birpc.Channel) error {
		disconnects++
		return nil
	})

	done := make(chan error, 1)
	go func() {
		_, err := pair.A.Call(context.Background(), "never_answered", nil, 5*time.Second)
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	if err := pair.A.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := pair.A.Close(context.Background()); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	select {
	case err := <-done:
		if err != birpc.ErrChannelClosed {
			t.Fatalf("got err %v, want ErrChannelClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("call did not unblock after close")
	}

	if disconnects != 1 {
		t.Fatalf("got %d disconnect callbacks, want exactly 1", disconnects)
	}
	pair.cancel()
}

func TestChannelCallIDsAreUnique(t *testing.T) {
	serverReg := birpc.NewRegistry()
	if err := birpc.RegisterTyped(serverReg, "noop", func(ctx context.Context, _ struct{}) (string, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("register noop: %v", err)
	}
	pair := newLinkedChannels(t, birpc.NewRegistry(), serverReg, nil, nil)
	defer pair.Close()

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		p, err := pair.A.AsyncCall(context.Background(), "noop", nil)
		if err != nil {
			t.Fatalf("async call %d failed: %v", i, err)
		}
		if seen[p.CallID()] {
			t.Fatalf("duplicate call id %q", p.CallID())
		}
		seen[p.CallID()] = true
		if _, err := pair.A.WaitForResponse(context.Background(), p, 2*time.Second); err != nil {
			t.Fatalf("wait %d failed: %v", i, err)
		}
	}
}

func TestChannelSyncChannelIDExchange(t *testing.T) {
	regA := birpc.NewRegistry()
	regB := birpc.NewRegistry()
	optsA := []birpc.ChannelOption{birpc.WithSyncChannelID(true)}
	optsB := []birpc.ChannelOption{birpc.WithSyncChannelID(true)}
	pair := newLinkedChannels(t, regA, regB, optsA, optsB)
	defer pair.Close()

	if err := pair.A.OnConnectEvent(context.Background()); err != nil {
		t.Fatalf("on connect A: %v", err)
	}
	if err := pair.B.OnConnectEvent(context.Background()); err != nil {
		t.Fatalf("on connect B: %v", err)
	}

	require.Eventually(t, func() bool {
		id, ok := pair.A.OtherID()
		return ok && id == pair.B.ID()
	}, 2*time.Second, 10*time.Millisecond, "A never learned B's channel id")
}
