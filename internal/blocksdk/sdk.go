// Package blocksdk is the block-facing API: one method per editor verb, each riding a
// session that waits for the editor handshake before anything leaves the block.
package blocksdk

import (
	"encoding/json"
	"errors"

	"github.com/danmuck/blocksdk/internal/channel"
	logs "github.com/danmuck/blocksdk/internal/logging"
	"github.com/danmuck/blocksdk/internal/protocol/session"
)

const (
	MethodGetContent          = "getContent"
	MethodSetContent          = "setContent"
	MethodSetSuperContent     = "setSuperContent"
	MethodGetData             = "getData"
	MethodSetData             = "setData"
	MethodGetCentralData      = "getCentralData"
	MethodSetCentralData      = "setCentralData"
	MethodGetUserData         = "getUserData"
	MethodSetBlockEditorWidth = "setBlockEditorWidth"
	MethodSetTabs             = "setTabs"

	// MethodEditClose is sent by the editor, without an id, when the user closes the block.
	MethodEditClose = "editClose"
)

var ErrNilChannel = errors.New("blocksdk: channel required")

// ContentCallback receives content as a string.
type ContentCallback func(content string)

// DataCallback receives the raw JSON payload the editor answered with.
type DataCallback func(data json.RawMessage)

// Config defines SDK construction options.
type Config struct {
	// Whitelist overrides the trusted editor host suffixes. Nil keeps the default.
	Whitelist []string
	// AllowInsecure accepts http:// editors.
	AllowInsecure bool
	// BlockEditorWidth, when set, is sent to the editor on construction.
	BlockEditorWidth any
	// Tabs, when non-nil, is sent to the editor on construction. An empty slice leaves only
	// the content tab.
	Tabs []Tab
	// OnEditClose runs when the editor reports that the block editor was closed.
	OnEditClose func()
	// Opener receives the auth URLs built by TriggerAuth and TriggerAuth2.
	Opener Opener
	// Session tunes retries, call timeouts and the clock. Its whitelist fields are ignored.
	Session session.Config
}

// SDK is a block's handle to its editor.
type SDK struct {
	sess   *session.Session
	opener Opener
}

// New starts a session on ch. The handshake is posted immediately.
func New(ch channel.Channel, cfg Config) (*SDK, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}
	scfg := cfg.Session
	scfg.Whitelist = cfg.Whitelist
	scfg.AllowInsecure = cfg.AllowInsecure
	scfg.OnNotify = notifyHook(cfg.OnEditClose, cfg.Session.OnNotify)
	sess, err := session.New(ch, scfg)
	if err != nil {
		return nil, err
	}
	sdk := &SDK{sess: sess, opener: cfg.Opener}
	if cfg.BlockEditorWidth != nil {
		if err := sdk.SetBlockEditorWidth(cfg.BlockEditorWidth, nil); err != nil {
			logs.Warnf("blocksdk.New set width failed width=%v err=%v", cfg.BlockEditorWidth, err)
		}
	}
	if cfg.Tabs != nil {
		if err := sdk.SetTabs(cfg.Tabs, nil); err != nil {
			logs.Warnf("blocksdk.New set tabs failed tabs=%d err=%v", len(cfg.Tabs), err)
		}
	}
	return sdk, nil
}

func notifyHook(onEditClose func(), next session.NotifyFunc) session.NotifyFunc {
	if onEditClose == nil {
		return next
	}
	return func(method string, payload json.RawMessage) {
		if method == MethodEditClose {
			onEditClose()
		}
		if next != nil {
			next(method, payload)
		}
	}
}

// Session exposes the underlying session for state and stats.
func (s *SDK) Session() *session.Session {
	return s.sess
}

func (s *SDK) Close() error {
	return s.sess.Close()
}

func (s *SDK) GetContent(cb ContentCallback) error {
	return s.sess.Send(MethodGetContent, nil, contentCallback(MethodGetContent, cb))
}

func (s *SDK) SetContent(content string, cb ContentCallback) error {
	return s.sess.Send(MethodSetContent, content, contentCallback(MethodSetContent, cb))
}

func (s *SDK) SetSuperContent(content string, cb ContentCallback) error {
	return s.sess.Send(MethodSetSuperContent, content, contentCallback(MethodSetSuperContent, cb))
}

func (s *SDK) GetData(cb DataCallback) error {
	return s.sess.Send(MethodGetData, nil, dataCallback(cb))
}

func (s *SDK) SetData(data any, cb DataCallback) error {
	return s.sess.Send(MethodSetData, data, dataCallback(cb))
}

func (s *SDK) GetCentralData(cb DataCallback) error {
	return s.sess.Send(MethodGetCentralData, nil, dataCallback(cb))
}

func (s *SDK) SetCentralData(data any, cb DataCallback) error {
	return s.sess.Send(MethodSetCentralData, data, dataCallback(cb))
}

func (s *SDK) GetUserData(cb DataCallback) error {
	return s.sess.Send(MethodGetUserData, nil, dataCallback(cb))
}

// SetBlockEditorWidth asks the editor for a width, a number of pixels or a CSS string.
func (s *SDK) SetBlockEditorWidth(width any, cb DataCallback) error {
	return s.sess.Send(MethodSetBlockEditorWidth, width, dataCallback(cb))
}

// SetTabs selects the editor tabs shown next to the content tab.
func (s *SDK) SetTabs(tabs []Tab, cb DataCallback) error {
	if tabs == nil {
		tabs = []Tab{}
	}
	return s.sess.Send(MethodSetTabs, tabs, dataCallback(cb))
}

// Call sends an arbitrary verb. It exists for editors that extend the verb table.
func (s *SDK) Call(method string, payload any, cb DataCallback) error {
	return s.sess.Send(method, payload, dataCallback(cb))
}

func contentCallback(method string, cb ContentCallback) session.Callback {
	if cb == nil {
		return nil
	}
	return func(raw json.RawMessage) {
		cb(decodeContent(method, raw))
	}
}

func dataCallback(cb DataCallback) session.Callback {
	if cb == nil {
		return nil
	}
	return session.Callback(cb)
}

// decodeContent unwraps a JSON string. Anything else is handed over as its JSON text.
func decodeContent(method string, raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		logs.Debugf("blocksdk.decodeContent non-string payload method=%q err=%v", method, err)
		return string(raw)
	}
	return out
}
