package wschan

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danmuck/blocksdk/internal/channel"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/origin"
	"github.com/danmuck/blocksdk/internal/protocol"
)

// AcceptConfig configures the editor end of one block connection.
type AcceptConfig struct {
	// Origin is the editor's own origin.
	Origin string
	// CheckOrigin decides whether a block origin may open a socket at all. Nil accepts any
	// parseable origin and leaves the decision to the handshake.
	CheckOrigin  func(blockOrigin string) bool
	WriteTimeout time.Duration
	// MaxMessageBytes bounds frames read and written; zero means DefaultMaxMessageBytes.
	MaxMessageBytes int64
}

// Peer is the editor end of one accepted block socket.
type Peer struct {
	own       string
	peer      string
	conn      *wsConn
	listeners *channel.Listeners

	startOnce sync.Once
	done      chan struct{}
	closeOnce sync.Once
	errMu     sync.Mutex
	err       error
}

var _ channel.Channel = (*Peer)(nil)

// Accept upgrades r. Reading starts with the first Listen, so frames the block sends before
// the editor attaches are held by the socket instead of being dispatched to nobody. Requests
// without a usable Origin header are refused.
func Accept(w http.ResponseWriter, r *http.Request, cfg AcceptConfig) (*Peer, error) {
	own := strings.TrimSpace(cfg.Origin)
	if own == "" {
		http.Error(w, "editor origin not configured", http.StatusInternalServerError)
		return nil, ErrOriginMissing
	}
	blockOrigin, err := origin.Canonical(r.Header.Get("Origin"))
	if err != nil {
		http.Error(w, "origin required", http.StatusForbidden)
		return nil, err
	}
	upgrader := websocket.Upgrader{
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
		CheckOrigin: func(*http.Request) bool {
			return cfg.CheckOrigin == nil || cfg.CheckOrigin(blockOrigin)
		},
	}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logs.Debugf("wschan.Accept refused origin=%q remote=%q err=%v", blockOrigin, r.RemoteAddr, err)
		return nil, err
	}
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	p := &Peer{
		own:       own,
		peer:      blockOrigin,
		conn:      newWSConn(ws, writeTimeout, cfg.MaxMessageBytes),
		listeners: channel.NewListeners(),
		done:      make(chan struct{}),
	}
	return p, nil
}

func (p *Peer) run() {
	err := p.conn.readLoop(p.peer, p.listeners)
	if err != nil && !isNormalClose(err) {
		logs.Debugf("wschan.Peer read ended peer=%q err=%v", p.peer, err)
	}
	p.finish(err)
}

func (p *Peer) finish(err error) {
	p.closeOnce.Do(func() {
		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
		_ = p.conn.close()
		close(p.done)
	})
}

func (p *Peer) Origin() string {
	return p.own
}

// PeerOrigin is the block origin taken from the upgrade request.
func (p *Peer) PeerOrigin() string {
	return p.peer
}

func (p *Peer) Listen(fn channel.Listener) func() {
	cancel := p.listeners.Add(fn)
	if fn != nil {
		p.startOnce.Do(func() {
			go p.run()
		})
	}
	return cancel
}

func (p *Peer) Post(env protocol.Envelope, targetOrigin string) error {
	select {
	case <-p.done:
		return channel.ErrClosed
	default:
	}
	if !channel.TargetAllows(targetOrigin, p.peer) {
		return channel.ErrTargetMismatch
	}
	return p.conn.writeEnvelope(env)
}

// Done is closed when the socket ends. A disconnect is only noticed once reading has started.
func (p *Peer) Done() <-chan struct{} {
	return p.done
}

// Err is the read error that ended the socket, if any.
func (p *Peer) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Peer) Close() error {
	p.finish(nil)
	return nil
}
