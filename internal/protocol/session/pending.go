package session

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	logs "github.com/danmuck/blocksdk/internal/logging"
)

// Callback receives the payload of the response to one call.
type Callback func(payload json.RawMessage)

// nullCallback handles responses without an identifier and duplicates of resolved ids.
func nullCallback(json.RawMessage) {}

// PendingCall is a snapshot of one call awaiting its response.
type PendingCall struct {
	ID           uint64
	Method       string
	RegisteredAt time.Time
}

type pendingEntry struct {
	call   PendingCall
	cb     Callback
	expiry *clock.Timer
}

// PendingCalls maps outgoing call ids to their callbacks. Ids start at 1 and are never reused.
type PendingCalls struct {
	mu    sync.Mutex
	next  uint64
	items map[uint64]pendingEntry
}

func NewPendingCalls() *PendingCalls {
	return &PendingCalls{
		next:  1,
		items: make(map[uint64]pendingEntry),
	}
}

// Register stores cb under the next id and returns it. A nil cb is stored as the null handler.
func (p *PendingCalls) Register(method string, cb Callback, at time.Time) uint64 {
	if cb == nil {
		cb = nullCallback
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	p.items[id] = pendingEntry{
		call: PendingCall{ID: id, Method: method, RegisteredAt: at},
		cb:   cb,
	}
	return id
}

// SetExpiry attaches a timer that is stopped when id resolves. Returns false if id is gone.
func (p *PendingCalls) SetExpiry(id uint64, timer *clock.Timer) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.items[id]
	if !ok {
		return false
	}
	entry.expiry = timer
	p.items[id] = entry
	return true
}

// Take removes id and returns its callback.
func (p *PendingCalls) Take(id uint64) (Callback, bool) {
	p.mu.Lock()
	entry, ok := p.items[id]
	if ok {
		delete(p.items, id)
	}
	p.mu.Unlock()
	if !ok {
		return nil, false
	}
	if entry.expiry != nil {
		entry.expiry.Stop()
	}
	return entry.cb, true
}

// Resolve invokes the callback registered for id with payload, at most once per id. Unknown ids
// and id 0 go to the null handler. The entry is removed before invocation, so a panicking
// callback still leaves the table consistent.
func (p *PendingCalls) Resolve(id uint64, payload json.RawMessage) bool {
	cb, ok := p.Take(id)
	if !ok {
		cb = nullCallback
	}
	invoke(id, cb, payload)
	return ok
}

func invoke(id uint64, cb Callback, payload json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			logs.Errf("session.PendingCalls callback panic id=%d err=%v", id, r)
		}
	}()
	cb(payload)
}

// NextID is the id the next Register will return.
func (p *PendingCalls) NextID() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

func (p *PendingCalls) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

func (p *PendingCalls) List() []PendingCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PendingCall, 0, len(p.items))
	for _, entry := range p.items {
		out = append(out, entry.call)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Clear drops every entry without invoking callbacks.
func (p *PendingCalls) Clear() {
	p.mu.Lock()
	items := p.items
	p.items = make(map[uint64]pendingEntry)
	p.mu.Unlock()
	for _, entry := range items {
		if entry.expiry != nil {
			entry.expiry.Stop()
		}
	}
}
