package methods_test

import (
	"context"
	"errors"
	"sync"

	"github.com/birpc-go/birpc"
)

type loopbackSocket struct {
	out       chan *birpc.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newLoopback() (*loopbackSocket, *loopbackSocket) {
	return &loopbackSocket{out: make(chan *birpc.Envelope, 16), closed: make(chan struct{})},
		&loopbackSocket{out: make(chan *birpc.Envelope, 16), closed: make(chan struct{})}
}

func (s *loopbackSocket) Send(ctx context.Context, env *birpc.Envelope) error {
	select {
	case s.out <- env:
		return nil
	case <-s.closed:
		return errors.New("loopbackSocket: closed")
	}
}

func (s *loopbackSocket) Close(code int) error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// pump wires clientSocket's outbound frames into server.Dispatch and vice
// versa, simulating a connected duplex stream between two in-process
// channels. The returned func stops the pumps.
func pump(client *birpc.Channel, clientSocket *loopbackSocket, server *birpc.Channel, serverSocket *loopbackSocket) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case env := <-clientSocket.out:
				_ = server.Dispatch(ctx, env)
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case env := <-serverSocket.out:
				_ = client.Dispatch(ctx, env)
			case <-ctx.Done():
				return
			}
		}
	}()
	return cancel
}
