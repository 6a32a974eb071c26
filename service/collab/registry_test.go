package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"PNotepad/service/events"
	"PNotepad/tools/errs"
)

// recordingDir collects relayed edit sequences per session.
type recordingDir struct {
	mu  sync.Mutex
	got map[string][]EditFrame
}

func newRecordingDir() *recordingDir { return &recordingDir{got: map[string][]EditFrame{}} }

func (d *recordingDir) Deliver(sessionID string, payload []byte) bool {
	var f EditFrame
	if err := json.Unmarshal(payload, &f); err != nil {
		panic(err)
	}
	d.mu.Lock()
	d.got[sessionID] = append(d.got[sessionID], f)
	d.mu.Unlock()
	return true
}

func (d *recordingDir) frames(sessionID string) []EditFrame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]EditFrame(nil), d.got[sessionID]...)
}

type recordingLive struct {
	mu    sync.Mutex
	calls []liveCall
}

func (r *recordingLive) SetLive(id string, live bool) {
	r.mu.Lock()
	r.calls = append(r.calls, liveCall{id, live})
	r.mu.Unlock()
}

func newTestRegistry(st *fakeStore) (*Registry, *recordingDir, *recordingLive) {
	dir := newRecordingDir()
	live := &recordingLive{}
	coord := NewCoordinator(CoordinatorConf{}, st, nil)
	return NewRegistry(coord, live, NewRelay(dir), nil), dir, live
}

func TestJoinSeedsOnceAndStartsAtZero(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": "hello"})
	reg, _, live := newTestRegistry(st)
	ctx := context.Background()

	snap, err := reg.Join(ctx, "w1", "s1", "u")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if snap.Text != "hello" || snap.Sequence != 0 || !snap.Live || snap.Members != 1 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	snap, err = reg.Join(ctx, "w1", "s2", "u")
	if err != nil || snap.Members != 2 {
		t.Fatalf("second join: %+v %v", snap, err)
	}
	// joining twice changes nothing
	if snap, _ = reg.Join(ctx, "w1", "s2", "u"); snap.Members != 2 {
		t.Fatalf("rejoin grew the room: %+v", snap)
	}
	if st.gets != 1 {
		t.Fatalf("store read %d times, want 1", st.gets)
	}
	if len(live.calls) != 1 || live.calls[0] != (liveCall{"w1", true}) {
		t.Fatalf("live calls %+v", live.calls)
	}
}

func TestJoinUnknownWorkspaceCreatesNothing(t *testing.T) {
	st := newFakeStore(nil)
	reg, _, live := newTestRegistry(st)

	_, err := reg.Join(context.Background(), "nope", "s1", "u")
	if !errs.ErrNotFound.Is(err) {
		t.Fatalf("want not found, got %v", err)
	}
	if len(reg.Rooms()) != 0 || len(live.calls) != 0 {
		t.Fatalf("side effects after failed join: rooms=%v live=%v", reg.Rooms(), live.calls)
	}
}

func TestEditsAreLastWriterWinsWithDenseSequence(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": ""})
	reg, dir, _ := newTestRegistry(st)
	ctx := context.Background()
	_, _ = reg.Join(ctx, "w1", "a", "u")
	_, _ = reg.Join(ctx, "w1", "b", "u")

	ev, err := reg.ApplyEdit("w1", "a", "abc")
	if err != nil || ev.Sequence != 1 {
		t.Fatalf("edit a: %+v %v", ev, err)
	}
	ev, err = reg.ApplyEdit("w1", "b", "abcd")
	if err != nil || ev.Sequence != 2 {
		t.Fatalf("edit b: %+v %v", ev, err)
	}
	snap, _ := reg.Snapshot("w1")
	if snap.Text != "abcd" || snap.Sequence != 2 {
		t.Fatalf("snapshot %+v", snap)
	}

	// no echo
	if got := dir.frames("a"); len(got) != 1 || got[0].Sequence != 2 || got[0].Text != "abcd" {
		t.Fatalf("a received %+v", got)
	}
	if got := dir.frames("b"); len(got) != 1 || got[0].Sequence != 1 || got[0].Text != "abc" {
		t.Fatalf("b received %+v", got)
	}
}

func TestApplyEditRequiresMembership(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": "x"})
	reg, _, _ := newTestRegistry(st)
	_, _ = reg.Join(context.Background(), "w1", "a", "u")

	if _, err := reg.ApplyEdit("w1", "stranger", "y"); !errs.ErrNotJoined.Is(err) {
		t.Fatalf("want not joined, got %v", err)
	}
	if _, err := reg.ApplyEdit("w2", "a", "y"); !errs.ErrNotJoined.Is(err) {
		t.Fatalf("want not joined for absent room, got %v", err)
	}
	if snap, _ := reg.Snapshot("w1"); snap.Text != "x" || snap.Sequence != 0 {
		t.Fatalf("rejected edit changed the room: %+v", snap)
	}
}

func TestLastLeaveDestroysRoomAndUnsavedTextIsLost(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": "stored"})
	reg, _, live := newTestRegistry(st)
	ctx := context.Background()
	_, _ = reg.Join(ctx, "w1", "a", "u")
	_, _ = reg.Join(ctx, "w1", "b", "u")
	_, _ = reg.ApplyEdit("w1", "a", "draft")

	if n := reg.Leave("w1", "a"); n != 1 {
		t.Fatalf("remaining %d, want 1", n)
	}
	if n := reg.Leave("w1", "a"); n != 1 {
		t.Fatalf("second leave changed count: %d", n)
	}
	if n := reg.Leave("w1", "b"); n != 0 {
		t.Fatalf("remaining %d, want 0", n)
	}
	if _, ok := reg.Snapshot("w1"); ok {
		t.Fatal("room still live after last leave")
	}
	if n := reg.Leave("w1", "b"); n != 0 {
		t.Fatalf("leave on absent room: %d", n)
	}

	snap, err := reg.Join(ctx, "w1", "c", "u")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if snap.Text != "stored" || snap.Sequence != 0 {
		t.Fatalf("new room should start from the store at 0: %+v", snap)
	}
	want := []liveCall{{"w1", true}, {"w1", false}, {"w1", true}}
	if fmt.Sprint(live.calls) != fmt.Sprint(want) {
		t.Fatalf("live calls %+v, want %+v", live.calls, want)
	}
}

func TestConcurrentEditsReachEveryoneInOneOrder(t *testing.T) {
	const members, edits = 6, 100
	st := newFakeStore(map[string]string{"w1": ""})
	reg, dir, _ := newTestRegistry(st)
	ctx := context.Background()
	for i := 0; i < members; i++ {
		if _, err := reg.Join(ctx, "w1", fmt.Sprintf("s%d", i), "u"); err != nil {
			t.Fatal(err)
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < members; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for n := 0; n < edits; n++ {
				if _, err := reg.ApplyEdit("w1", id, fmt.Sprintf("%s-%d", id, n)); err != nil {
					t.Error(err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	snap, _ := reg.Snapshot("w1")
	if snap.Sequence != members*edits {
		t.Fatalf("final seq %d", snap.Sequence)
	}
	for i := 0; i < members; i++ {
		got := dir.frames(fmt.Sprintf("s%d", i))
		if len(got) != (members-1)*edits {
			t.Fatalf("s%d got %d edits", i, len(got))
		}
		for k := 1; k < len(got); k++ {
			if got[k].Sequence <= got[k-1].Sequence {
				t.Fatalf("s%d out of order at %d: %d after %d", i, k, got[k].Sequence, got[k-1].Sequence)
			}
		}
	}
}

func TestRoomsListsLiveRoomsSorted(t *testing.T) {
	st := newFakeStore(map[string]string{"b": "", "a": "", "c": ""})
	reg, _, _ := newTestRegistry(st)
	ctx := context.Background()
	_, _ = reg.Join(ctx, "b", "1", "u")
	_, _ = reg.Join(ctx, "a", "2", "u")
	_, _ = reg.Join(ctx, "c", "3", "u")
	reg.Leave("c", "3")

	rooms := reg.Rooms()
	if len(rooms) != 2 || rooms[0].WorkspaceID != "a" || rooms[1].WorkspaceID != "b" {
		t.Fatalf("rooms %+v", rooms)
	}
}

func TestEditsInOneRoomNeverReachAnother(t *testing.T) {
	st := newFakeStore(map[string]string{"x": "", "y": ""})
	reg, dir, _ := newTestRegistry(st)
	ctx := context.Background()
	_, _ = reg.Join(ctx, "x", "x1", "u")
	_, _ = reg.Join(ctx, "x", "x2", "u")
	_, _ = reg.Join(ctx, "y", "y1", "u")

	if _, err := reg.ApplyEdit("x", "x1", "only for x"); err != nil {
		t.Fatal(err)
	}
	if got := dir.frames("y1"); len(got) != 0 {
		t.Fatalf("y member received %+v", got)
	}
	if got := dir.frames("x2"); len(got) != 1 || got[0].WorkspaceID != "x" {
		t.Fatalf("x member received %+v", got)
	}
	if snap, _ := reg.Snapshot("y"); snap.Text != "" || snap.Sequence != 0 {
		t.Fatalf("y room changed: %+v", snap)
	}
}

func TestJoinRetriesWhenRoomIsClosing(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": "stored"})
	pub := &recordingPub{}
	live := &recordingLive{}
	reg := NewRegistry(NewCoordinator(CoordinatorConf{}, st, nil), live, NewRelay(newRecordingDir()), pub)
	ctx := context.Background()

	first, _ := reg.Join(ctx, "w1", "a", "u")
	_, _ = reg.ApplyEdit("w1", "a", "unsaved")

	// the last member left and marked the room closed, but it is still mapped
	old := reg.lookup("w1")
	old.mu.Lock()
	delete(old.members, "a")
	old.closed = true
	old.mu.Unlock()

	snap, err := reg.Join(ctx, "w1", "b", "u")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if reg.lookup("w1") == old {
		t.Fatal("closed room was reused")
	}
	if snap.Text != "stored" || snap.Sequence != 0 || snap.Members != 1 {
		t.Fatalf("new room %+v", snap)
	}
	if !snap.Revision().After(first.Revision()) {
		t.Fatalf("revision %+v not after %+v", snap.Revision(), first.Revision())
	}
	want := []liveCall{{"w1", true}, {"w1", false}, {"w1", true}}
	if fmt.Sprint(live.calls) != fmt.Sprint(want) {
		t.Fatalf("live calls %+v", live.calls)
	}
	kinds := fmt.Sprint(pub.kinds("w1"))
	if kinds != "[room.opened member.joined edit.applied room.closed room.opened member.joined]" {
		t.Fatalf("events %s", kinds)
	}
	// the late Leave of the old room is a no-op
	if n := reg.Leave("w1", "a"); n != 1 {
		t.Fatalf("leave returned %d", n)
	}
}

func TestConcurrentJoinLeaveKeepsMembershipInvariant(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": ""})
	pub := &recordingPub{}
	live := &recordingLive{}
	reg := NewRegistry(NewCoordinator(CoordinatorConf{}, st, nil), live, NewRelay(newRecordingDir()), pub)
	ctx := context.Background()

	const workers, rounds = 8, 200
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("s%d", i)
			for n := 0; n < rounds; n++ {
				if _, err := reg.Join(ctx, "w1", id, "u"); err != nil {
					t.Error(err)
					return
				}
				_, _ = reg.ApplyEdit("w1", id, id)
				reg.Leave("w1", id)
			}
		}(i)
	}
	wg.Wait()

	if len(reg.Rooms()) != 0 || reg.lookup("w1") != nil {
		t.Fatalf("room left behind: %+v", reg.Rooms())
	}
	live.mu.Lock()
	last := live.calls[len(live.calls)-1]
	live.mu.Unlock()
	if last.live {
		t.Fatal("last live flag is true with no members")
	}

	// every room's events form open, members, close in that order
	open := false
	members := 0
	pub.mu.Lock()
	defer pub.mu.Unlock()
	for i, ev := range pub.got {
		switch ev.Kind {
		case events.RoomOpened:
			if open {
				t.Fatalf("event %d: room opened twice", i)
			}
			open = true
		case events.MemberJoined:
			members++
		case events.MemberLeft:
			members--
			if members != ev.Members {
				t.Fatalf("event %d: member.left reports %d, counted %d", i, ev.Members, members)
			}
		case events.RoomClosed:
			if !open || members != 0 {
				t.Fatalf("event %d: room closed with open=%v members=%d", i, open, members)
			}
			open = false
		}
		if ev.Kind != events.RoomClosed && ev.Kind != events.RoomOpened && !open {
			t.Fatalf("event %d: %s outside an open room", i, ev.Kind)
		}
	}
	if open {
		t.Fatal("no room.closed after the last leave")
	}
}

func TestEditEventsArePublishedInSequenceOrder(t *testing.T) {
	st := newFakeStore(map[string]string{"w1": ""})
	pub := &recordingPub{}
	reg := NewRegistry(NewCoordinator(CoordinatorConf{}, st, nil), &recordingLive{}, NewRelay(newRecordingDir()), pub)
	ctx := context.Background()

	const writers, edits = 8, 500
	for i := 0; i < writers; i++ {
		_, _ = reg.Join(ctx, "w1", fmt.Sprintf("s%d", i), "u")
	}
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for n := 0; n < edits; n++ {
				_, _ = reg.ApplyEdit("w1", id, id)
			}
		}(fmt.Sprintf("s%d", i))
	}
	wg.Wait()

	got := pub.events(events.EditApplied)
	if len(got) != writers*edits {
		t.Fatalf("%d edit events", len(got))
	}
	for i, ev := range got {
		if ev.Sequence != uint64(i+1) {
			t.Fatalf("event %d carries seq %d", i, ev.Sequence)
		}
	}
}
