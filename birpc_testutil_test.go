package birpc_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/birpc-go/birpc"
)

// pipeSocket is a birpc.Socket backed by an in-process channel, used to
// link two birpc.Channel values directly without any real transport.
type pipeSocket struct {
	out       chan *birpc.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newPipeSocket() *pipeSocket {
	return &pipeSocket{out: make(chan *birpc.Envelope, 16), closed: make(chan struct{})}
}

func (p *pipeSocket) Send(ctx context.Context, env *birpc.Envelope) error {
	select {
	case p.out <- env:
		return nil
	case <-p.closed:
		return errors.New("pipeSocket: closed")
	}
}

func (p *pipeSocket) Close(code int) error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// linkedPair wires two channels together so that sending on one delivers
// (via Dispatch) to the other, simulating a connected duplex stream.
type linkedPair struct {
	A, B   *birpc.Channel
	cancel func()
}

func newLinkedChannels(t *testing.T, regA, regB *birpc.Registry, optsA, optsB []birpc.ChannelOption) *linkedPair {
	t.Helper()
	sockA := newPipeSocket()
	sockB := newPipeSocket()

	chA := birpc.NewChannel(regA, sockA, optsA...)
	chB := birpc.NewChannel(regB, sockB, optsB...)

	ctx, cancel := context.WithCancel(context.Background())

	pump := func(from *pipeSocket, to *birpc.Channel) {
		for {
			select {
			case env := <-from.out:
				_ = to.Dispatch(ctx, env)
			case <-ctx.Done():
				return
			}
		}
	}
	go pump(sockA, chB)
	go pump(sockB, chA)

	return &linkedPair{A: chA, B: chB, cancel: cancel}
}

func (p *linkedPair) Close() {
	p.cancel()
	_ = p.A.Close(context.Background())
	_ = p.B.Close(context.Background())
}
