package editor

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// BlockState is what the editor persists for one block instance.
type BlockState struct {
	Content      string          `json:"content"`
	SuperContent string          `json:"superContent"`
	Data         json.RawMessage `json:"data"`
	Width        json.RawMessage `json:"width,omitempty"`
	Tabs         json.RawMessage `json:"tabs,omitempty"`
}

// Store holds block state keyed by block key, central data shared by every block, and the
// user context handed out by getUserData.
type Store struct {
	mu       sync.RWMutex
	blocks   map[string]BlockState
	central  json.RawMessage
	userData json.RawMessage
}

func NewStore(userData json.RawMessage) *Store {
	if len(userData) == 0 {
		userData = json.RawMessage(`{}`)
	}
	return &Store{
		blocks:   make(map[string]BlockState),
		central:  json.RawMessage(`{}`),
		userData: userData,
	}
}

func (s *Store) Block(key string) BlockState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.blocks[strings.TrimSpace(key)]
	if !ok {
		return BlockState{Data: json.RawMessage(`{}`)}
	}
	return state
}

// Update applies fn to the state for key and returns the result.
func (s *Store) Update(key string, fn func(*BlockState)) BlockState {
	key = strings.TrimSpace(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	state, ok := s.blocks[key]
	if !ok {
		state = BlockState{Data: json.RawMessage(`{}`)}
	}
	fn(&state)
	s.blocks[key] = state
	return state
}

func (s *Store) Central() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.central
}

func (s *Store) SetCentral(data json.RawMessage) json.RawMessage {
	if len(data) == 0 {
		data = json.RawMessage(`null`)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.central = data
	return data
}

func (s *Store) UserData() json.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userData
}

func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.blocks))
	for k := range s.blocks {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
