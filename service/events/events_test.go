package events

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingSink struct {
	mu     sync.Mutex
	kinds  map[Kind]bool
	got    []Event
	failOn Kind
}

func (s *recordingSink) Name() string { return "recording" }

func (s *recordingSink) Accepts(k Kind) bool { return s.kinds == nil || s.kinds[k] }

func (s *recordingSink) Deliver(_ context.Context, ev Event) error {
	if ev.Kind == s.failOn {
		return errors.New("sink down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, ev)
	return nil
}

func (s *recordingSink) events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event(nil), s.got...)
}

func TestBusPreservesPerWorkspaceOrder(t *testing.T) {
	sink := &recordingSink{}
	bus := NewBus(Config{Workers: 4, Queue: 1024, NodeID: "n1"}, sink)

	for i := uint64(1); i <= 200; i++ {
		bus.Publish(Event{Kind: EditApplied, WorkspaceID: "w1", Sequence: i})
		bus.Publish(Event{Kind: EditApplied, WorkspaceID: "w2", Sequence: i})
	}
	bus.Close()

	last := map[string]uint64{}
	for _, ev := range sink.events() {
		if ev.Sequence <= last[ev.WorkspaceID] {
			t.Fatalf("out of order for %s: %d after %d", ev.WorkspaceID, ev.Sequence, last[ev.WorkspaceID])
		}
		last[ev.WorkspaceID] = ev.Sequence
		if ev.ID == "" || ev.At.IsZero() || ev.NodeID != "n1" {
			t.Fatalf("event not stamped: %+v", ev)
		}
	}
	if last["w1"] != 200 || last["w2"] != 200 {
		t.Fatalf("missing events: %v", last)
	}
}

func TestBusFiltersKindsAndIsolatesFailures(t *testing.T) {
	failing := &recordingSink{failOn: RoomOpened}
	edits := &recordingSink{kinds: map[Kind]bool{EditApplied: true}}
	bus := NewBus(Config{Workers: 1}, failing, edits)

	bus.Publish(Event{Kind: RoomOpened, WorkspaceID: "w"})
	bus.Publish(Event{Kind: EditApplied, WorkspaceID: "w", Sequence: 1})
	bus.Close()

	if got := edits.events(); len(got) != 1 || got[0].Kind != EditApplied {
		t.Fatalf("edits sink got %+v", got)
	}
	if got := failing.events(); len(got) != 1 || got[0].Kind != EditApplied {
		t.Fatalf("failing sink got %+v", got)
	}
}

func TestBusDropsWhenFullAndIgnoresAfterClose(t *testing.T) {
	block := make(chan struct{})
	slow := &blockingSink{release: block}
	bus := NewBus(Config{Workers: 1, Queue: 1, SinkTimeout: time.Second}, slow)

	for i := 0; i < 10; i++ {
		bus.Publish(Event{Kind: EditApplied, WorkspaceID: "w"})
	}
	if bus.Dropped() == 0 {
		t.Fatal("expected drops with a full queue")
	}
	close(block)
	bus.Close()
	bus.Publish(Event{Kind: EditApplied, WorkspaceID: "w"})
	bus.Close()
}

type blockingSink struct{ release chan struct{} }

func (s *blockingSink) Name() string      { return "blocking" }
func (s *blockingSink) Accepts(Kind) bool { return true }
func (s *blockingSink) Deliver(ctx context.Context, _ Event) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}
