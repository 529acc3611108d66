// Package memchan connects two in-process frames with postMessage semantics.
//
// Deliveries are asynchronous and ordered per receiving frame. The receiver sees the sender's
// real origin; a send addressed to a specific origin only reaches a peer with that origin.
package memchan

import (
	"sync"

	"github.com/danmuck/blocksdk/internal/channel"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/protocol"
)

const inboxSize = 256

// Frame is one end of an in-process pair.
type Frame struct {
	origin    string
	peer      *Frame
	listeners *channel.Listeners

	inbox     chan protocol.Message
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ channel.Channel = (*Frame)(nil)

// NewPair returns connected frames for a block and its editor.
func NewPair(blockOrigin, editorOrigin string) (*Frame, *Frame) {
	block := newFrame(blockOrigin)
	editor := newFrame(editorOrigin)
	block.peer = editor
	editor.peer = block
	block.start()
	editor.start()
	return block, editor
}

func newFrame(origin string) *Frame {
	return &Frame{
		origin:    origin,
		listeners: channel.NewListeners(),
		inbox:     make(chan protocol.Message, inboxSize),
		done:      make(chan struct{}),
	}
}

func (f *Frame) start() {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		for {
			select {
			case <-f.done:
				return
			case msg := <-f.inbox:
				f.listeners.Dispatch(msg)
			}
		}
	}()
}

func (f *Frame) Origin() string {
	return f.origin
}

func (f *Frame) Listen(fn channel.Listener) func() {
	return f.listeners.Add(fn)
}

func (f *Frame) Post(env protocol.Envelope, targetOrigin string) error {
	if f.isClosed() {
		return channel.ErrClosed
	}
	if !channel.TargetAllows(targetOrigin, f.peer.origin) {
		logs.Debugf("memchan.Post drop method=%q target=%q peer=%q", env.Method, targetOrigin, f.peer.origin)
		return channel.ErrTargetMismatch
	}
	msg, err := protocol.NewMessage(env, f.origin)
	if err != nil {
		return err
	}
	return f.peer.enqueue(msg)
}

// Deliver injects msg as if some other context had posted it to this frame. The sender origin
// is taken from msg as given.
func (f *Frame) Deliver(msg protocol.Message) error {
	return f.enqueue(msg)
}

func (f *Frame) enqueue(msg protocol.Message) error {
	select {
	case <-f.done:
		return channel.ErrClosed
	default:
	}
	select {
	case f.inbox <- msg:
		return nil
	case <-f.done:
		return channel.ErrClosed
	}
}

func (f *Frame) isClosed() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Close stops delivery to this frame. Pending deliveries are discarded. Close waits for the
// delivery goroutine unless a listener is running, so a listener may close its own frame.
func (f *Frame) Close() error {
	f.closeOnce.Do(func() {
		close(f.done)
	})
	if !f.listeners.Dispatching() {
		f.wg.Wait()
	}
	return nil
}
