package editor

import (
	"encoding/json"
	"errors"
	"fmt"
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

	// MethodEditClose is a notification to the block, posted without an id.
	MethodEditClose = "editClose"
)

var ErrBadPayload = errors.New("editor: bad payload")

// Call is one block request as seen by a handler.
type Call struct {
	BlockKey    string
	BlockOrigin string
	Method      string
	Payload     json.RawMessage
}

// Handler answers one call. The returned value becomes the response payload.
type Handler func(call Call) (any, error)

// Handlers is the editor's verb table.
type Handlers map[string]Handler

// DefaultHandlers serves every verb the block SDK issues from store.
func DefaultHandlers(store *Store) Handlers {
	return Handlers{
		MethodGetContent: func(call Call) (any, error) {
			return store.Block(call.BlockKey).Content, nil
		},
		MethodSetContent: func(call Call) (any, error) {
			content, err := decodeString(call)
			if err != nil {
				return nil, err
			}
			return store.Update(call.BlockKey, func(s *BlockState) { s.Content = content }).Content, nil
		},
		MethodSetSuperContent: func(call Call) (any, error) {
			content, err := decodeString(call)
			if err != nil {
				return nil, err
			}
			return store.Update(call.BlockKey, func(s *BlockState) { s.SuperContent = content }).SuperContent, nil
		},
		MethodGetData: func(call Call) (any, error) {
			return store.Block(call.BlockKey).Data, nil
		},
		MethodSetData: func(call Call) (any, error) {
			data := rawOrNull(call.Payload)
			return store.Update(call.BlockKey, func(s *BlockState) { s.Data = data }).Data, nil
		},
		MethodGetCentralData: func(call Call) (any, error) {
			return store.Central(), nil
		},
		MethodSetCentralData: func(call Call) (any, error) {
			return store.SetCentral(rawOrNull(call.Payload)), nil
		},
		MethodGetUserData: func(call Call) (any, error) {
			return store.UserData(), nil
		},
		MethodSetBlockEditorWidth: func(call Call) (any, error) {
			width := rawOrNull(call.Payload)
			store.Update(call.BlockKey, func(s *BlockState) { s.Width = width })
			return nil, nil
		},
		MethodSetTabs: func(call Call) (any, error) {
			var tabs []json.RawMessage
			if err := json.Unmarshal(rawOrNull(call.Payload), &tabs); err != nil {
				return nil, fmt.Errorf("%w: %s expects an array: %v", ErrBadPayload, call.Method, err)
			}
			raw := rawOrNull(call.Payload)
			store.Update(call.BlockKey, func(s *BlockState) { s.Tabs = raw })
			return len(tabs), nil
		},
	}
}

func decodeString(call Call) (string, error) {
	if len(call.Payload) == 0 {
		return "", nil
	}
	var out string
	if err := json.Unmarshal(call.Payload, &out); err != nil {
		return "", fmt.Errorf("%w: %s expects a string: %v", ErrBadPayload, call.Method, err)
	}
	return out, nil
}

func rawOrNull(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`null`)
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out
}
