package wschan

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/danmuck/blocksdk/internal/channel"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/origin"
	"github.com/danmuck/blocksdk/internal/protocol"
)

// DialConfig configures the block end of a socket to an editor.
type DialConfig struct {
	// URL is the editor endpoint, ws:// or wss://.
	URL string
	// Origin is the block's own origin, sent as the Origin header.
	Origin           string
	Header           http.Header
	TLSConfig        *tls.Config
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	MinRetryInterval time.Duration
	MaxRetryInterval time.Duration
	// MaxAttempts bounds each connect cycle. Zero retries until the context or client ends.
	MaxAttempts int
	// MaxMessageBytes bounds frames read and written; zero means DefaultMaxMessageBytes.
	MaxMessageBytes int64
}

func (c DialConfig) withDefaults() DialConfig {
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	if c.MinRetryInterval <= 0 {
		c.MinRetryInterval = 100 * time.Millisecond
	}
	if c.MaxRetryInterval <= 0 {
		c.MaxRetryInterval = 5 * time.Second
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = DefaultMaxMessageBytes
	}
	return c
}

// Client is the block end of an editor socket. It reconnects after the socket drops and
// replays the last handshake so the editor learns the block again; calls posted while
// disconnected are lost.
type Client struct {
	cfg       DialConfig
	own       string
	peer      string
	listeners *channel.Listeners

	mu        sync.Mutex
	conn      *wsConn
	handShake *protocol.Envelope
	closed    bool

	done chan struct{}
	wg   sync.WaitGroup
}

var _ channel.Channel = (*Client)(nil)

// Dial connects to the editor, retrying with backoff per cfg.
func Dial(ctx context.Context, cfg DialConfig) (*Client, error) {
	cfg = cfg.withDefaults()
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrURLRequired
	}
	peer, err := origin.Canonical(cfg.URL)
	if err != nil {
		return nil, err
	}
	own, err := origin.Canonical(cfg.Origin)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOriginMissing, err)
	}
	c := &Client{
		cfg:       cfg,
		own:       own,
		peer:      peer,
		listeners: channel.NewListeners(),
		done:      make(chan struct{}),
	}
	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.wg.Add(1)
	go c.run(conn)
	return c, nil
}

func (c *Client) connect(ctx context.Context) (*wsConn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		TLSClientConfig:  c.cfg.TLSConfig,
		ReadBufferSize:   4096,
		WriteBufferSize:  4096,
	}
	header := http.Header{}
	for k, v := range c.cfg.Header {
		header[k] = append([]string(nil), v...)
	}
	header.Set("Origin", c.own)

	b := &backoff.Backoff{
		Min:    c.cfg.MinRetryInterval,
		Max:    c.cfg.MaxRetryInterval,
		Factor: 2,
		Jitter: true,
	}
	for {
		ws, resp, err := dialer.DialContext(ctx, c.cfg.URL, header)
		if err == nil {
			return newWSConn(ws, c.cfg.WriteTimeout, c.cfg.MaxMessageBytes), nil
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		attempt := int(b.Attempt()) + 1
		logs.Warnf("wschan.Client dial attempt=%d url=%q status=%d err=%v", attempt, c.cfg.URL, status, err)
		if c.cfg.MaxAttempts > 0 && attempt >= c.cfg.MaxAttempts {
			return nil, err
		}
		timer := time.NewTimer(b.Duration())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-c.done:
			timer.Stop()
			return nil, channel.ErrClosed
		case <-timer.C:
		}
	}
}

func (c *Client) run(conn *wsConn) {
	defer c.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		err := conn.readLoop(c.peer, c.listeners)
		if c.isClosed() {
			return
		}
		logs.Warnf("wschan.Client socket lost url=%q err=%v", c.cfg.URL, err)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		_ = conn.ws.Close()

		next, err := c.connect(ctx)
		if err != nil {
			if !c.isClosed() {
				logs.Errf("wschan.Client reconnect gave up url=%q err=%v", c.cfg.URL, err)
			}
			return
		}
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			_ = next.close()
			return
		}
		c.conn = next
		hs := c.handShake
		c.mu.Unlock()
		if hs != nil {
			if err := next.writeEnvelope(*hs); err != nil {
				logs.Warnf("wschan.Client handshake replay failed url=%q err=%v", c.cfg.URL, err)
			}
		}
		logs.Infof("wschan.Client reconnected url=%q", c.cfg.URL)
		conn = next
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) Origin() string {
	return c.own
}

// PeerOrigin is the editor origin derived from the dialled URL.
func (c *Client) PeerOrigin() string {
	return c.peer
}

func (c *Client) Listen(fn channel.Listener) func() {
	return c.listeners.Add(fn)
}

func (c *Client) Post(env protocol.Envelope, targetOrigin string) error {
	if !channel.TargetAllows(targetOrigin, c.peer) {
		return channel.ErrTargetMismatch
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return channel.ErrClosed
	}
	if env.IsHandShake() {
		hs := env
		c.handShake = &hs
	}
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.writeEnvelope(env)
}

// Close ends the socket and stops reconnecting. It waits for the read goroutine unless called
// while a listener is running.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.close()
	}
	// A listener closing the client runs on the read goroutine itself.
	if !c.listeners.Dispatching() {
		c.wg.Wait()
	}
	return err
}
