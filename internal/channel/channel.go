// Package channel defines the message-passing transport between a block and its editor.
//
// A channel delivers structured data plus the sender origin it can vouch for, and can send
// either to a specific origin or to any destination (protocol.TargetAny). Concrete channels
// live in subpackages: memchan for in-process frames, wschan for websockets.
package channel

import (
	"errors"

	"github.com/danmuck/blocksdk/internal/protocol"
)

var (
	ErrClosed         = errors.New("channel: closed")
	ErrTargetMismatch = errors.New("channel: target origin mismatch")
)

// Listener receives every delivery on a channel.
type Listener func(protocol.Message)

// Channel is the transport seen by a session.
type Channel interface {
	// Post sends env to the peer. A target other than protocol.TargetAny must equal the peer
	// origin or the message is dropped with ErrTargetMismatch.
	Post(env protocol.Envelope, targetOrigin string) error
	// Listen registers fn for inbound deliveries; the returned func removes it.
	Listen(fn Listener) (cancel func())
	// Origin is this end's own origin.
	Origin() string
}

// TargetAllows reports whether a send addressed to target may reach peer.
func TargetAllows(target, peer string) bool {
	return target == protocol.TargetAny || target == peer
}
