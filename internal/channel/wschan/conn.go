// Package wschan carries block<->editor envelopes over websockets.
//
// The editor side accepts upgrades and takes the block's origin from the request Origin
// header; the block side takes the editor's origin from the URL it dialled. Each text frame is
// one JSON envelope. Neither side trusts an origin found inside a frame.
package wschan

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/danmuck/blocksdk/internal/channel"
	"github.com/danmuck/blocksdk/internal/protocol"
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	// DefaultMaxMessageBytes bounds one frame in either direction.
	DefaultMaxMessageBytes = 1 << 20
	closeGracePeriod       = time.Second
)

var (
	ErrNotConnected  = errors.New("wschan: not connected")
	ErrURLRequired   = errors.New("wschan: url required")
	ErrOriginMissing = errors.New("wschan: origin required")
	ErrFrameTooLarge = errors.New("wschan: frame exceeds size limit")
)

// wsConn serialises writes on one websocket.
type wsConn struct {
	ws           *websocket.Conn
	writeMu      sync.Mutex
	writeTimeout time.Duration
	maxBytes     int64
}

func newWSConn(ws *websocket.Conn, writeTimeout time.Duration, maxBytes int64) *wsConn {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxMessageBytes
	}
	ws.SetReadLimit(maxBytes)
	return &wsConn{ws: ws, writeTimeout: writeTimeout, maxBytes: maxBytes}
}

// writeEnvelope refuses frames the peer would reject at its read limit, which would otherwise
// tear down the whole socket.
func (c *wsConn) writeEnvelope(env protocol.Envelope) error {
	data, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	if int64(len(data)) > c.maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(data), c.maxBytes)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// readLoop delivers every text frame attributed to peer until the socket fails.
func (c *wsConn) readLoop(peer string, listeners *channel.Listeners) error {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.TextMessage {
			continue
		}
		listeners.Dispatch(protocol.Message{Data: data, Origin: peer})
	}
}

func (c *wsConn) close() error {
	c.writeMu.Lock()
	_ = c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	c.writeMu.Unlock()
	return c.ws.Close()
}

func isNormalClose(err error) bool {
	return websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
