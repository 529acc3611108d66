package editor

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/blocksdk/internal/channel/memchan"
	"github.com/danmuck/blocksdk/internal/origin"
	"github.com/danmuck/blocksdk/internal/protocol"
	"github.com/danmuck/blocksdk/internal/protocol/session"
	"github.com/danmuck/blocksdk/internal/testutil/testlog"
)

const (
	blockOrigin  = "https://block.example"
	editorOrigin = "https://app.marketingcloudapps.com"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvRaw(t *testing.T, ch <-chan json.RawMessage) json.RawMessage {
	t.Helper()
	select {
	case raw := <-ch:
		return raw
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for callback")
		return nil
	}
}

type pair struct {
	block  *memchan.Frame
	editor *memchan.Frame
	host   *Host
	store  *Store
	sess   *session.Session
}

func newPair(t *testing.T, policy Policy) *pair {
	t.Helper()
	block, editor := memchan.NewPair(blockOrigin, editorOrigin)
	t.Cleanup(func() {
		_ = block.Close()
		_ = editor.Close()
	})
	store := NewStore(json.RawMessage(`{"name":"ada"}`))
	host, err := Attach(editor, HostConfig{BlockKey: "b1", Policy: policy, Handlers: DefaultHandlers(store)})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	t.Cleanup(host.Close)
	sess, err := session.New(block, session.Config{})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	t.Cleanup(func() { _ = sess.Close() })
	return &pair{block: block, editor: editor, host: host, store: store, sess: sess}
}

func TestAttachValidation(t *testing.T) {
	testlog.Start(t)

	if _, err := Attach(nil, HostConfig{Policy: origin.New(nil, false)}); !errors.Is(err, ErrNilChannel) {
		t.Fatalf("expected ErrNilChannel, got %v", err)
	}
	_, editor := memchan.NewPair(blockOrigin, editorOrigin)
	defer editor.Close()
	if _, err := Attach(editor, HostConfig{}); !errors.Is(err, ErrNilPolicy) {
		t.Fatalf("expected ErrNilPolicy, got %v", err)
	}
}

func TestHandshakeEstablishesBothEnds(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"block.example"}, false))
	waitFor(t, "session established", p.sess.Established)
	if got := p.host.BlockOrigin(); got != blockOrigin {
		t.Fatalf("unexpected block origin: %q", got)
	}
	parent, ok := p.sess.ParentOrigin()
	if !ok || parent != editorOrigin {
		t.Fatalf("unexpected parent: %q ok=%v", parent, ok)
	}
}

func TestHandshakeRejectedByPolicy(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"other.example"}, false))
	time.Sleep(50 * time.Millisecond)
	if p.host.BlockOrigin() != "" {
		t.Fatalf("block should not be accepted")
	}
	if p.sess.Established() {
		t.Fatalf("session should stay unestablished")
	}
	if err := p.host.Notify("refresh", nil); !errors.Is(err, ErrNoBlock) {
		t.Fatalf("expected ErrNoBlock, got %v", err)
	}
}

func TestHandshakeRejectsSpoofedAdvertisedOrigin(t *testing.T) {
	testlog.Start(t)

	_, editor := memchan.NewPair(blockOrigin, editorOrigin)
	defer editor.Close()
	host, err := Attach(editor, HostConfig{Policy: origin.New([]string{"example"}, false)})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer host.Close()

	msg, err := protocol.NewMessage(protocol.HandShakeEnvelope("https://trusted.example"), blockOrigin)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := editor.Deliver(msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if host.BlockOrigin() != "" {
		t.Fatalf("advertised origin differing from the sender must be rejected")
	}
}

func TestVerbsRoundTrip(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"block.example"}, false))
	got := make(chan json.RawMessage, 8)
	cb := func(raw json.RawMessage) { got <- raw }

	if err := p.sess.Send(MethodSetContent, "<p>hi</p>", cb); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); string(raw) != `"<p>hi</p>"` {
		t.Fatalf("setContent echoed %s", raw)
	}
	if err := p.sess.Send(MethodGetContent, nil, cb); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); string(raw) != `"<p>hi</p>"` {
		t.Fatalf("getContent returned %s", raw)
	}

	if err := p.sess.Send(MethodSetData, map[string]int{"n": 1}, cb); err != nil {
		t.Fatalf("send: %v", err)
	}
	recvRaw(t, got)
	if err := p.sess.Send(MethodGetData, nil, cb); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); string(raw) != `{"n":1}` {
		t.Fatalf("getData returned %s", raw)
	}

	if err := p.sess.Send(MethodGetUserData, nil, cb); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); string(raw) != `{"name":"ada"}` {
		t.Fatalf("getUserData returned %s", raw)
	}

	if state := p.store.Block("b1"); state.Content != "<p>hi</p>" {
		t.Fatalf("store not updated: %+v", state)
	}
}

func TestUnknownMethodAnsweredWithEmptyPayload(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"block.example"}, false))
	got := make(chan json.RawMessage, 1)
	if err := p.sess.Send("noSuchVerb", nil, func(raw json.RawMessage) { got <- raw }); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); len(raw) != 0 {
		t.Fatalf("expected empty payload, got %s", raw)
	}
	waitFor(t, "pending drained", func() bool { return len(p.sess.Pending()) == 0 })
}

func TestBadPayloadStillAnswered(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"block.example"}, false))
	got := make(chan json.RawMessage, 1)
	if err := p.sess.Send(MethodSetContent, 42, func(raw json.RawMessage) { got <- raw }); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); len(raw) != 0 {
		t.Fatalf("expected empty payload, got %s", raw)
	}
	if p.store.Block("b1").Content != "" {
		t.Fatalf("bad payload must not change content")
	}
}

func TestSetTabsStoresArrayOnly(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"block.example"}, false))
	waitFor(t, "session established", p.sess.Established)
	got := make(chan json.RawMessage, 2)
	if err := p.sess.Send(MethodSetTabs, "htmlblock", func(raw json.RawMessage) { got <- raw }); err != nil {
		t.Fatalf("send: %v", err)
	}
	recvRaw(t, got)
	if tabs := p.store.Block("b1").Tabs; tabs != nil {
		t.Fatalf("non-array tabs must not be stored, got %s", tabs)
	}
	if err := p.sess.Send(MethodSetTabs, []string{"htmlblock"}, func(raw json.RawMessage) { got <- raw }); err != nil {
		t.Fatalf("send: %v", err)
	}
	if raw := recvRaw(t, got); string(raw) != "1" {
		t.Fatalf("expected tab count, got %s", raw)
	}
	if tabs := string(p.store.Block("b1").Tabs); tabs != `["htmlblock"]` {
		t.Fatalf("unexpected stored tabs: %s", tabs)
	}
}

func TestNotifyReachesBlockAsUnmatched(t *testing.T) {
	testlog.Start(t)

	p := newPair(t, origin.New([]string{"block.example"}, false))
	waitFor(t, "host accepted block", func() bool { return p.host.BlockOrigin() != "" })
	waitFor(t, "session established", p.sess.Established)

	if err := p.host.Notify(protocol.MethodHandShake, nil); !errors.Is(err, ErrReservedMethod) {
		t.Fatalf("expected ErrReservedMethod, got %v", err)
	}
	if err := p.host.Notify("contentChanged", "x"); err != nil {
		t.Fatalf("notify: %v", err)
	}
	waitFor(t, "unmatched response counted", func() bool { return p.sess.Stats().Unmatched == 1 })
}

func TestCallsFromUnacceptedSenderIgnored(t *testing.T) {
	testlog.Start(t)

	_, editor := memchan.NewPair(blockOrigin, editorOrigin)
	defer editor.Close()
	store := NewStore(nil)
	host, err := Attach(editor, HostConfig{BlockKey: "b1", Policy: origin.New(nil, false), Handlers: DefaultHandlers(store)})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	defer host.Close()

	msg, err := protocol.NewMessage(protocol.Envelope{Method: MethodSetContent, ID: 1, Payload: json.RawMessage(`"x"`)}, blockOrigin)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if err := editor.Deliver(msg); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	time.Sleep(30 * time.Millisecond)
	if len(store.Keys()) != 0 {
		t.Fatalf("call before handshake must not reach the store")
	}
}

func TestStoreCentralShared(t *testing.T) {
	testlog.Start(t)

	store := NewStore(nil)
	h := DefaultHandlers(store)
	if _, err := h[MethodSetCentralData](Call{BlockKey: "a", Method: MethodSetCentralData, Payload: json.RawMessage(`{"k":1}`)}); err != nil {
		t.Fatalf("set central: %v", err)
	}
	out, err := h[MethodGetCentralData](Call{BlockKey: "b", Method: MethodGetCentralData})
	if err != nil {
		t.Fatalf("get central: %v", err)
	}
	if string(out.(json.RawMessage)) != `{"k":1}` {
		t.Fatalf("central not shared: %s", out)
	}
	if string(store.UserData()) != `{}` {
		t.Fatalf("default user data: %s", store.UserData())
	}
	if _, err := h[MethodSetBlockEditorWidth](Call{BlockKey: "a", Method: MethodSetBlockEditorWidth, Payload: json.RawMessage(`400`)}); err != nil {
		t.Fatalf("set width: %v", err)
	}
	if string(store.Block("a").Width) != `400` {
		t.Fatalf("width not stored: %s", store.Block("a").Width)
	}
}
