package channel

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/danmuck/blocksdk/internal/protocol"
)

// Listeners is a concurrency-safe listener set shared by channel implementations.
type Listeners struct {
	mu     sync.RWMutex
	next   uint64
	items  map[uint64]Listener
	active atomic.Int32
}

func NewListeners() *Listeners {
	return &Listeners{items: make(map[uint64]Listener)}
}

func (l *Listeners) Add(fn Listener) (cancel func()) {
	if fn == nil {
		return func() {}
	}
	l.mu.Lock()
	l.next++
	key := l.next
	l.items[key] = fn
	l.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.items, key)
			l.mu.Unlock()
		})
	}
}

func (l *Listeners) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.items)
}

// Dispatch hands msg to every listener in registration order.
func (l *Listeners) Dispatch(msg protocol.Message) {
	l.mu.RLock()
	keys := make([]uint64, 0, len(l.items))
	for k := range l.items {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	fns := make([]Listener, 0, len(keys))
	for _, k := range keys {
		fns = append(fns, l.items[k])
	}
	l.mu.RUnlock()

	l.active.Add(1)
	defer l.active.Add(-1)
	for _, fn := range fns {
		fn(msg)
	}
}

// Dispatching reports whether a listener is running. Channels use it so that Close called
// from inside a listener does not wait on the goroutine that is running it.
func (l *Listeners) Dispatching() bool {
	return l.active.Load() > 0
}
