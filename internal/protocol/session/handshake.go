package session

import "github.com/danmuck/blocksdk/internal/origin"

// HandshakeState is one-way: Unestablished until a valid handshake, then Established forever.
type HandshakeState int

const (
	Unestablished HandshakeState = iota
	Established
)

func (s HandshakeState) String() string {
	switch s {
	case Established:
		return "established"
	default:
		return "unestablished"
	}
}

type handshakeResult int

const (
	handshakeAccepted handshakeResult = iota
	handshakeRejected
	handshakeIgnored
)

// handshake holds the trusted parent origin. Callers serialise access.
type handshake struct {
	validator *origin.Validator
	state     HandshakeState
	parent    string
}

func (h *handshake) receive(advertised string) handshakeResult {
	if h.state == Established {
		return handshakeIgnored
	}
	if !h.validator.IsTrusted(advertised) {
		return handshakeRejected
	}
	h.parent = advertised
	h.state = Established
	return handshakeAccepted
}

// trusts reports whether sender is the established parent.
func (h *handshake) trusts(sender string) bool {
	return h.state == Established && sender == h.parent
}
