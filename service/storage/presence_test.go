package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"PNotepad/service/events"
	rds "PNotepad/service/storage/redis"
)

func TestPresenceAcceptsLifecycleOnly(t *testing.T) {
	p := NewPresence(nil, "gw-1", 0)
	for _, k := range []events.Kind{events.RoomOpened, events.RoomClosed, events.MemberJoined, events.MemberLeft} {
		if !p.Accepts(k) {
			t.Errorf("expected %s accepted", k)
		}
	}
	for _, k := range []events.Kind{events.EditApplied, events.SnapshotSaved} {
		if p.Accepts(k) {
			t.Errorf("expected %s ignored", k)
		}
	}
}

func TestFieldsParseBack(t *testing.T) {
	at := time.UnixMilli(1_700_000_000_123)
	f := fieldsFor("gw-1", events.Event{Kind: events.RoomOpened, WorkspaceID: "w1", Members: 2, Sequence: 7, At: at})

	// what HGETALL hands back
	m := make(map[string]string, len(f))
	for k, v := range f {
		m[k] = fmt.Sprint(v)
	}
	e := parseEntry("w1", m)
	if e.NodeID != "gw-1" || e.Members != 2 || e.Sequence != 7 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if !e.OpenedAt.Equal(at) || !e.UpdatedAt.Equal(at) {
		t.Fatalf("times not kept: %+v", e)
	}

	f = fieldsFor("gw-1", events.Event{Kind: events.MemberJoined, WorkspaceID: "w1", Members: 3, At: at})
	if _, ok := f[fieldOpenedAt]; ok {
		t.Fatal("only room.opened sets opened_at")
	}
}

func TestEmptyRoomEventsNeverRecreateRecord(t *testing.T) {
	cases := []struct {
		ev   events.Event
		want presenceOp
	}{
		{events.Event{Kind: events.RoomOpened, Members: 1}, opUpsert},
		{events.Event{Kind: events.MemberJoined, Members: 2}, opUpsert},
		{events.Event{Kind: events.MemberLeft, Members: 1}, opUpsert},
		{events.Event{Kind: events.MemberLeft, Members: 0}, opSkip},
		{events.Event{Kind: events.RoomClosed}, opDelete},
	}
	for _, tc := range cases {
		if got := opFor(tc.ev); got != tc.want {
			t.Errorf("%s members=%d: op %d, want %d", tc.ev.Kind, tc.ev.Members, got, tc.want)
		}
	}
}

// Needs a disposable Redis: PNOTEPAD_TEST_REDIS=127.0.0.1:6379
func TestPresenceAgainstRedis(t *testing.T) {
	addr := os.Getenv("PNOTEPAD_TEST_REDIS")
	if addr == "" {
		t.Skip("PNOTEPAD_TEST_REDIS not set")
	}
	rdb, err := rds.NewClient(rds.Config{Addr: addr})
	if err != nil {
		t.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	ws := fmt.Sprintf("presence-test-%d", time.Now().UnixNano())
	p := NewPresence(rdb, "gw-test", time.Minute)

	if err := p.Deliver(ctx, events.Event{Kind: events.RoomOpened, WorkspaceID: ws, Members: 1, At: time.Now()}); err != nil {
		t.Fatalf("deliver opened: %v", err)
	}
	e, ok, err := p.Lookup(ctx, ws)
	if err != nil || !ok || e.Members != 1 || e.NodeID != "gw-test" {
		t.Fatalf("lookup after open: %+v %v %v", e, ok, err)
	}
	list, err := p.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	found := false
	for _, x := range list {
		found = found || x.WorkspaceID == ws
	}
	if !found {
		t.Fatalf("%s missing from %+v", ws, list)
	}

	if err := p.Deliver(ctx, events.Event{Kind: events.RoomClosed, WorkspaceID: ws}); err != nil {
		t.Fatalf("deliver closed: %v", err)
	}
	if _, ok, _ := p.Lookup(ctx, ws); ok {
		t.Fatal("record should be gone after room.closed")
	}
	// a late member.left of the closed room does not bring it back
	if err := p.Deliver(ctx, events.Event{Kind: events.MemberLeft, WorkspaceID: ws, Members: 0}); err != nil {
		t.Fatalf("deliver left: %v", err)
	}
	if _, ok, _ := p.Lookup(ctx, ws); ok {
		t.Fatal("member.left recreated a closed room")
	}
}
