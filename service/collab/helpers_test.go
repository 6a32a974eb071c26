package collab

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"PNotepad/service/account"
	"PNotepad/service/events"
	"PNotepad/service/store"
	"PNotepad/tools/errs"
)

type liveCall struct {
	id   string
	live bool
}

type fakeStore struct {
	mu        sync.Mutex
	docs      map[string]string
	live      map[string]bool
	liveCalls []liveCall
	gets      int
	getErr    error
	saveErr   error
	liveErrs  []error       // consumed one per SetLive call
	liveGate  chan struct{} // SetLive waits for it when set
	saveSeen  chan string   // receives the content of every SaveContent call when set
	saveGate  chan struct{} // SaveContent waits for it when set
	saves     int
}

func newFakeStore(docs map[string]string) *fakeStore {
	if docs == nil {
		docs = map[string]string{}
	}
	return &fakeStore{docs: docs, live: map[string]bool{}}
}

func (f *fakeStore) Get(_ context.Context, id string) (*store.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, errs.ErrNotFound.WrapMsg("no such workspace", "id", id)
	}
	return &store.Snapshot{ID: id, Content: doc, Live: f.live[id]}, nil
}

func (f *fakeStore) SaveContent(_ context.Context, id, content string) error {
	if f.saveSeen != nil {
		f.saveSeen <- content
	}
	if f.saveGate != nil {
		<-f.saveGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.docs[id]; !ok {
		return errs.ErrNotFound.WrapMsg("no such workspace", "id", id)
	}
	f.docs[id] = content
	return nil
}

func (f *fakeStore) SetLive(_ context.Context, id string, live bool) error {
	if f.liveGate != nil {
		<-f.liveGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.liveCalls = append(f.liveCalls, liveCall{id, live})
	if len(f.liveErrs) > 0 {
		err := f.liveErrs[0]
		f.liveErrs = f.liveErrs[1:]
		if err != nil {
			return err
		}
	}
	f.live[id] = live
	return nil
}

func (f *fakeStore) doc(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs[id]
}

func (f *fakeStore) liveOf(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[id]
}

func (f *fakeStore) setGetErr(err error) {
	f.mu.Lock()
	f.getErr = err
	f.mu.Unlock()
}

// tokens are user ids; "" and "bad" are rejected
var testVerifier = account.VerifierFunc(func(_ context.Context, token string) (account.Identity, error) {
	if token == "" || token == "bad" {
		return account.Identity{}, errs.ErrAuth.WrapMsg("invalid token")
	}
	return account.Identity{UserID: token}, nil
})

func flush(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Flush(ctx); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

// nextFrame reads one queued frame from c as a generic map.
func nextFrame(t *testing.T, c *Conn) map[string]any {
	t.Helper()
	select {
	case p := <-c.Outbound():
		var m map[string]any
		if err := json.Unmarshal(p, &m); err != nil {
			t.Fatalf("bad frame %q: %v", p, err)
		}
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("no frame queued")
		return nil
	}
}

func expectNoFrame(t *testing.T, c *Conn) {
	t.Helper()
	select {
	case p := <-c.Outbound():
		t.Fatalf("unexpected frame %s", p)
	case <-time.After(50 * time.Millisecond):
	}
}

// recordingPub keeps every published event in publish order.
type recordingPub struct {
	mu  sync.Mutex
	got []events.Event
}

func (p *recordingPub) Publish(ev events.Event) {
	p.mu.Lock()
	p.got = append(p.got, ev)
	p.mu.Unlock()
}

func (p *recordingPub) kinds(workspaceID string) []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Kind
	for _, ev := range p.got {
		if ev.WorkspaceID == workspaceID {
			out = append(out, ev.Kind)
		}
	}
	return out
}

func (p *recordingPub) events(kind events.Kind) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, ev := range p.got {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}
