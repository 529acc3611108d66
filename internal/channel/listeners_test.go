package channel

import (
	"testing"

	"github.com/danmuck/blocksdk/internal/protocol"
	"github.com/danmuck/blocksdk/internal/testutil/testlog"
)

func TestListenersDispatchInOrderAndReportActivity(t *testing.T) {
	testlog.Start(t)

	l := NewListeners()
	var order []int
	var during bool
	l.Add(func(protocol.Message) {
		order = append(order, 1)
		during = l.Dispatching()
	})
	cancel := l.Add(func(protocol.Message) { order = append(order, 2) })

	l.Dispatch(protocol.Message{})
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected dispatch order: %v", order)
	}
	if !during || l.Dispatching() {
		t.Fatalf("Dispatching should hold only while listeners run, during=%v after=%v", during, l.Dispatching())
	}

	cancel()
	cancel()
	if l.Len() != 1 {
		t.Fatalf("expected one listener after cancel, got %d", l.Len())
	}
}
