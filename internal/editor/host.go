package editor

import (
	"errors"
	"strings"
	"sync"

	"github.com/danmuck/blocksdk/internal/channel"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/observability"
	"github.com/danmuck/blocksdk/internal/origin"
	"github.com/danmuck/blocksdk/internal/protocol"
)

var (
	ErrNilChannel     = errors.New("editor: channel required")
	ErrNilPolicy      = errors.New("editor: block origin policy required")
	ErrNoBlock        = errors.New("editor: no block accepted yet")
	ErrReservedMethod = errors.New("editor: handShake is reserved")
)

// Policy decides which block origins the editor talks to.
type Policy interface {
	IsTrusted(blockOrigin string) bool
}

var _ Policy = (*origin.Validator)(nil)

// HostConfig configures the editor end of one channel.
type HostConfig struct {
	// BlockKey selects the block's state in the store.
	BlockKey string
	Policy   Policy
	Handlers Handlers
}

// Host is the editor's counterpart to a block session: it accepts the block's handshake,
// answers with its own, then answers calls by echoing their ids.
type Host struct {
	ch       channel.Channel
	key      string
	policy   Policy
	handlers Handlers

	mu       sync.RWMutex
	block    string
	unlisten func()
}

// Attach starts serving ch.
func Attach(ch channel.Channel, cfg HostConfig) (*Host, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	if cfg.Policy == nil {
		return nil, ErrNilPolicy
	}
	if cfg.Handlers == nil {
		cfg.Handlers = Handlers{}
	}
	h := &Host{
		ch:       ch,
		key:      strings.TrimSpace(cfg.BlockKey),
		policy:   cfg.Policy,
		handlers: cfg.Handlers,
	}
	h.unlisten = ch.Listen(h.receive)
	return h, nil
}

// BlockOrigin is the accepted block origin, empty until a handshake is accepted.
func (h *Host) BlockOrigin() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.block
}

func (h *Host) BlockKey() string {
	return h.key
}

func (h *Host) receive(msg protocol.Message) {
	env, err := protocol.Decode(msg.Data)
	if err != nil {
		logs.Debugf("editor.Host drop undecodable sender=%q err=%v", msg.Origin, err)
		return
	}
	if env.IsHandShake() {
		h.receiveHandShake(env, msg.Origin)
		return
	}
	block := h.BlockOrigin()
	if block == "" || msg.Origin != block {
		logs.Debugf("editor.Host drop untrusted sender=%q method=%q", msg.Origin, env.Method)
		return
	}
	h.answer(env, block)
}

// receiveHandShake accepts a block whose advertised origin matches what the transport saw and
// passes the policy. The editor replies with its own handshake so the block can trust it.
func (h *Host) receiveHandShake(env protocol.Envelope, sender string) {
	if env.Origin != sender || !h.policy.IsTrusted(env.Origin) {
		observability.RecordHandshake("editor", observability.HandshakeRejected)
		logs.Warnf("editor.Host handshake rejected advertised=%q sender=%q", env.Origin, sender)
		return
	}
	h.mu.Lock()
	h.block = sender
	h.mu.Unlock()
	observability.RecordHandshake("editor", observability.HandshakeAccepted)

	if err := h.ch.Post(protocol.HandShakeEnvelope(h.ch.Origin()), sender); err != nil {
		logs.Warnf("editor.Host handshake reply failed block=%q err=%v", sender, err)
		return
	}
	logs.Infof("editor.Host block accepted block=%q key=%q", sender, h.key)
}

func (h *Host) answer(call protocol.Envelope, block string) {
	handler, known := h.handlers[call.Method]
	observability.RecordEditorCall(call.Method, known)

	var payload any
	if known {
		out, err := handler(Call{
			BlockKey:    h.key,
			BlockOrigin: block,
			Method:      call.Method,
			Payload:     call.Payload,
		})
		if err != nil {
			logs.Warnf("editor.Host handler failed method=%q id=%d err=%v", call.Method, call.ID, err)
		} else {
			payload = out
		}
	} else {
		logs.Warnf("editor.Host unknown method=%q id=%d", call.Method, call.ID)
	}

	reply, err := protocol.Reply(call, payload)
	if err != nil {
		logs.Errf("editor.Host encode reply failed method=%q id=%d err=%v", call.Method, call.ID, err)
		return
	}
	if err := h.ch.Post(reply, block); err != nil {
		logs.Warnf("editor.Host reply failed method=%q id=%d err=%v", call.Method, call.ID, err)
	}
}

// Notify sends an uncorrelated message to the accepted block.
func (h *Host) Notify(method string, payload any) error {
	block := h.BlockOrigin()
	if block == "" {
		return ErrNoBlock
	}
	env, err := protocol.NewEnvelope(method, payload)
	if err != nil {
		return err
	}
	if env.IsHandShake() {
		return ErrReservedMethod
	}
	return h.ch.Post(env, block)
}

func (h *Host) Close() {
	if h.unlisten != nil {
		h.unlisten()
	}
}
