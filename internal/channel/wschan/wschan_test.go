package wschan

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/blocksdk/internal/channel"
	"github.com/danmuck/blocksdk/internal/protocol"
	"github.com/danmuck/blocksdk/internal/testutil/testlog"
	"github.com/danmuck/blocksdk/internal/testutil/tlstest"
)

const testBlockOrigin = "https://block.example"

// echoEditor answers every call with its own envelope and records the sender origin it saw.
type echoEditor struct {
	origin  string
	check   func(string) bool
	senders chan string
	peers   chan *Peer
	// listenDelay holds off Listen, as an editor doing setup work after the upgrade would.
	listenDelay time.Duration
	maxBytes    int64
}

func newEchoEditor() *echoEditor {
	return &echoEditor{
		senders: make(chan string, 16),
		peers:   make(chan *Peer, 4),
	}
}

func (e *echoEditor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p, err := Accept(w, r, AcceptConfig{Origin: e.origin, CheckOrigin: e.check, MaxMessageBytes: e.maxBytes})
	if err != nil {
		return
	}
	e.peers <- p
	time.Sleep(e.listenDelay)
	p.Listen(func(msg protocol.Message) {
		e.senders <- msg.Origin
		env, err := protocol.Decode(msg.Data)
		if err != nil || env.IsHandShake() {
			return
		}
		_ = p.Post(env, p.PeerOrigin())
	})
	<-p.Done()
}

func startEditor(t *testing.T, e *echoEditor) (*httptest.Server, string) {
	t.Helper()
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	e.origin = srv.URL
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http") + "/block"
}

func TestDialRoundTripCarriesTransportOrigins(t *testing.T) {
	testlog.Start(t)

	editor := newEchoEditor()
	srv, wsURL := startEditor(t, editor)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.NoError(t, err)
	defer c.Close()

	require.Equal(t, testBlockOrigin, c.Origin())
	require.Equal(t, srv.URL, c.PeerOrigin())

	got := make(chan protocol.Message, 1)
	c.Listen(func(msg protocol.Message) { got <- msg })

	require.NoError(t, c.Post(protocol.Envelope{Method: "getContent", ID: 3}, c.PeerOrigin()))

	select {
	case sender := <-editor.senders:
		require.Equal(t, testBlockOrigin, sender)
	case <-time.After(2 * time.Second):
		t.Fatalf("editor never received the call")
	}
	select {
	case msg := <-got:
		require.Equal(t, srv.URL, msg.Origin)
		resp, ok := protocol.Classify(msg).(protocol.Response)
		require.True(t, ok)
		require.Equal(t, uint64(3), resp.ID)
	case <-time.After(2 * time.Second):
		t.Fatalf("block never received the echo")
	}
}

func TestHandShakeBeforeListenIsNotLost(t *testing.T) {
	testlog.Start(t)

	editor := newEchoEditor()
	editor.listenDelay = 20 * time.Millisecond
	_, wsURL := startEditor(t, editor)

	c, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Post(protocol.HandShakeEnvelope(testBlockOrigin), protocol.TargetAny))

	select {
	case sender := <-editor.senders:
		require.Equal(t, testBlockOrigin, sender)
	case <-time.After(2 * time.Second):
		t.Fatalf("handshake sent before Listen was dropped")
	}
}

func TestFrameSizeLimit(t *testing.T) {
	testlog.Start(t)

	editor := newEchoEditor()
	editor.maxBytes = 4 << 20
	_, wsURL := startEditor(t, editor)

	c, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1, MaxMessageBytes: 4 << 20})
	require.NoError(t, err)
	defer c.Close()
	got := make(chan protocol.Message, 1)
	c.Listen(func(msg protocol.Message) { got <- msg })

	big := json.RawMessage(`"` + strings.Repeat("a", 2<<20) + `"`)
	require.NoError(t, c.Post(protocol.Envelope{Method: "getContent", ID: 1, Payload: big}, c.PeerOrigin()))
	select {
	case msg := <-got:
		resp, ok := protocol.Classify(msg).(protocol.Response)
		require.True(t, ok)
		require.Len(t, resp.Payload, len(big))
	case <-time.After(5 * time.Second):
		t.Fatalf("large frame never echoed")
	}

	huge := json.RawMessage(`"` + strings.Repeat("a", 4<<20) + `"`)
	err = c.Post(protocol.Envelope{Method: "setContent", ID: 2, Payload: huge}, c.PeerOrigin())
	require.ErrorIs(t, err, ErrFrameTooLarge)
	require.NoError(t, c.Post(protocol.Envelope{Method: "getContent", ID: 3}, c.PeerOrigin()))
	select {
	case <-got:
	case <-time.After(2 * time.Second):
		t.Fatalf("socket unusable after a refused frame")
	}
}

func TestListenerMayCloseClient(t *testing.T) {
	testlog.Start(t)

	_, wsURL := startEditor(t, newEchoEditor())
	c, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.NoError(t, err)

	closed := make(chan error, 1)
	c.Listen(func(protocol.Message) { closed <- c.Close() })
	require.NoError(t, c.Post(protocol.Envelope{Method: "getData", ID: 1}, c.PeerOrigin()))

	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatalf("Close from a listener deadlocked")
	}
	require.ErrorIs(t, c.Post(protocol.Envelope{Method: "getData", ID: 2}, protocol.TargetAny), channel.ErrClosed)
}

func TestPostRejectsForeignTarget(t *testing.T) {
	testlog.Start(t)

	_, wsURL := startEditor(t, newEchoEditor())
	c, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.NoError(t, err)
	defer c.Close()

	err = c.Post(protocol.Envelope{Method: "getData", ID: 1}, "https://other.example")
	require.ErrorIs(t, err, channel.ErrTargetMismatch)
	require.NoError(t, c.Post(protocol.HandShakeEnvelope(testBlockOrigin), protocol.TargetAny))
}

func TestAcceptRefusesCheckedOrigin(t *testing.T) {
	testlog.Start(t)

	editor := newEchoEditor()
	editor.check = func(blockOrigin string) bool { return blockOrigin == "https://allowed.example" }
	_, wsURL := startEditor(t, editor)

	_, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.ErrorIs(t, err, websocket.ErrBadHandshake)

	c, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: "https://allowed.example", MaxAttempts: 1})
	require.NoError(t, err)
	require.NoError(t, c.Close())
}

func TestAcceptRequiresOriginHeader(t *testing.T) {
	testlog.Start(t)

	editor := newEchoEditor()
	_, wsURL := startEditor(t, editor)

	ws, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if ws != nil {
		_ = ws.Close()
	}
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestClientReconnectsAndReplaysHandShake(t *testing.T) {
	testlog.Start(t)

	editor := newEchoEditor()
	_, wsURL := startEditor(t, editor)

	c, err := Dial(context.Background(), DialConfig{
		URL:              wsURL,
		Origin:           testBlockOrigin,
		MinRetryInterval: 10 * time.Millisecond,
		MaxRetryInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer c.Close()

	first := <-editor.peers
	require.NoError(t, c.Post(protocol.HandShakeEnvelope(testBlockOrigin), protocol.TargetAny))
	<-editor.senders

	require.NoError(t, first.Close())

	select {
	case second := <-editor.peers:
		require.NotSame(t, first, second)
	case <-time.After(3 * time.Second):
		t.Fatalf("client never reconnected")
	}
	select {
	case sender := <-editor.senders:
		require.Equal(t, testBlockOrigin, sender)
	case <-time.After(3 * time.Second):
		t.Fatalf("handshake was not replayed")
	}
}

func TestClosedClientRejectsPosts(t *testing.T) {
	testlog.Start(t)

	_, wsURL := startEditor(t, newEchoEditor())
	c, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.NoError(t, err)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	require.ErrorIs(t, c.Post(protocol.Envelope{Method: "getData", ID: 1}, protocol.TargetAny), channel.ErrClosed)
}

func TestDialValidation(t *testing.T) {
	testlog.Start(t)

	_, err := Dial(context.Background(), DialConfig{Origin: testBlockOrigin})
	require.ErrorIs(t, err, ErrURLRequired)
	_, err = Dial(context.Background(), DialConfig{URL: "ws://127.0.0.1:1/block"})
	require.ErrorIs(t, err, ErrOriginMissing)
}

func TestDialOverTLS(t *testing.T) {
	testlog.Start(t)

	ca := tlstest.NewAuthority(t, t.TempDir(), "blocksdk-test-ca")

	editor := newEchoEditor()
	srv := httptest.NewUnstartedServer(editor)
	srv.TLS = ca.ServerConfig(t, "editor")
	srv.StartTLS()
	t.Cleanup(srv.Close)
	editor.origin = srv.URL

	wsURL := "wss" + strings.TrimPrefix(srv.URL, "https") + "/block"
	_, err := Dial(context.Background(), DialConfig{URL: wsURL, Origin: testBlockOrigin, MaxAttempts: 1})
	require.Error(t, err)

	c, err := Dial(context.Background(), DialConfig{
		URL:         wsURL,
		Origin:      testBlockOrigin,
		TLSConfig:   ca.ClientConfig(),
		MaxAttempts: 1,
	})
	require.NoError(t, err)
	defer c.Close()
	require.Equal(t, srv.URL, c.PeerOrigin())
	require.True(t, strings.HasPrefix(c.PeerOrigin(), "https://"))
}
