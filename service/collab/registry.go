package collab

import (
	"context"
	"sort"
	"sync"
	"time"

	"PNotepad/logger"
	"PNotepad/service/events"
	"PNotepad/tools/errs"

	"go.uber.org/zap"
)

// Seeder supplies the initial text of a room that is being created.
type Seeder interface {
	SeedFromStore(ctx context.Context, workspaceID string) (string, error)
}

// LiveSetter records the live flag of a workspace. It must not block.
type LiveSetter interface {
	SetLive(workspaceID string, live bool)
}

// EditEvent is one accepted edit. Values are never mutated after ApplyEdit
// returns them.
type EditEvent struct {
	WorkspaceID string
	SessionID   string
	Text        string
	Sequence    uint64
}

// Revision orders the texts of one workspace on this node. Epoch grows with
// every room opened, Sequence with every edit inside that room.
type Revision struct {
	Epoch    uint64
	Sequence uint64
}

// After reports whether v is newer than o.
func (v Revision) After(o Revision) bool {
	if v.Epoch != o.Epoch {
		return v.Epoch > o.Epoch
	}
	return v.Sequence > o.Sequence
}

// Snapshot is a copy of a room's state at one sequence.
type Snapshot struct {
	Epoch       uint64    `json:"-"`
	WorkspaceID string    `json:"workspace_id"`
	Text        string    `json:"text"`
	Sequence    uint64    `json:"sequence"`
	Live        bool      `json:"live"`
	Members     int       `json:"members"`
	OpenedAt    time.Time `json:"opened_at"`
}

type room struct {
	id       string
	epoch    uint64
	openedAt time.Time

	mu      sync.Mutex
	text    string
	seq     uint64
	members map[string]string // session id => user id
	closed  bool // set when the last member leaves; a closed room is never reused
}

func (r *room) snapshotLocked() Snapshot {
	return Snapshot{
		Epoch:       r.epoch,
		WorkspaceID: r.id,
		Text:        r.text,
		Sequence:    r.seq,
		Live:        !r.closed,
		Members:     len(r.members),
		OpenedAt:    r.openedAt,
	}
}

// Revision returns the position of the snapshot's text.
func (s Snapshot) Revision() Revision { return Revision{Epoch: s.Epoch, Sequence: s.Sequence} }

func memberEvent(kind events.Kind, r *room, sessionID, userID string) events.Event {
	return events.Event{
		Kind:        kind,
		WorkspaceID: r.id,
		SessionID:   sessionID,
		UserID:      userID,
		Sequence:    r.seq,
		Members:     len(r.members),
	}
}

// admit adds sessionID unless the room was closed in the meantime. The
// member.joined event is published under the room lock so it precedes the
// room.closed of the same room.
func (g *Registry) admit(r *room, sessionID, userID string) (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Snapshot{}, false
	}
	if _, ok := r.members[sessionID]; !ok {
		r.members[sessionID] = userID
		g.events.Publish(memberEvent(events.MemberJoined, r, sessionID, userID))
	}
	return r.snapshotLocked(), true
}

// Registry owns every live room of this node. Each room is guarded by its own
// mutex; the registry lock only protects the map.
type Registry struct {
	seeder Seeder
	live   LiveSetter
	relay  *Relay
	events events.Publisher
	now    func() time.Time
	log    *zap.Logger

	mu    sync.RWMutex
	rooms map[string]*room
	epoch uint64
}

func NewRegistry(seeder Seeder, live LiveSetter, relay *Relay, pub events.Publisher) *Registry {
	if pub == nil {
		pub = events.Discard
	}
	return &Registry{
		seeder: seeder,
		live:   live,
		relay:  relay,
		events: pub,
		now:    time.Now,
		log:    logger.Named("registry"),
		rooms:  make(map[string]*room),
	}
}

func (g *Registry) lookup(workspaceID string) *room {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.rooms[workspaceID]
}

// Join adds sessionID, owned by userID, to the room of workspaceID, creating
// and seeding the room when it is absent. Joining twice is a no-op that
// returns the current state.
func (g *Registry) Join(ctx context.Context, workspaceID, sessionID, userID string) (Snapshot, error) {
	if workspaceID == "" || sessionID == "" {
		return Snapshot{}, errs.ErrBadRequest.WrapMsg("join needs workspace and session", "workspace", workspaceID, "session", sessionID)
	}
	for {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, errs.ErrTransport.WrapCause(err, true, "join abandoned", "workspace", workspaceID)
		}
		if r := g.lookup(workspaceID); r != nil {
			if snap, ok := g.admit(r, sessionID, userID); ok {
				return snap, nil
			}
			// lost the race against the last Leave
			g.drop(r)
			continue
		}

		// seeding is slow I/O; no lock is held across it
		text, err := g.seeder.SeedFromStore(ctx, workspaceID)
		if err != nil {
			return Snapshot{}, err
		}
		if snap, ok := g.open(workspaceID, sessionID, userID, text); ok {
			g.log.Info("room opened", zap.String("workspace", workspaceID), zap.String("session", sessionID))
			return snap, nil
		}
	}
}

// open inserts a fresh room holding sessionID. It reports false when another
// Join created the room first; the seeded text is then discarded.
func (g *Registry) open(workspaceID, sessionID, userID, text string) (Snapshot, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.rooms[workspaceID]; ok {
		return Snapshot{}, false
	}
	g.epoch++
	r := &room{
		id:       workspaceID,
		epoch:    g.epoch,
		openedAt: g.now(),
		text:     text,
		members:  map[string]string{sessionID: userID},
	}
	g.rooms[workspaceID] = r

	// under g.mu so open/close notifications of one workspace stay ordered
	if g.live != nil {
		g.live.SetLive(workspaceID, true)
	}
	g.events.Publish(events.Event{Kind: events.RoomOpened, WorkspaceID: workspaceID, SessionID: sessionID, UserID: userID, Members: 1})
	g.events.Publish(memberEvent(events.MemberJoined, r, sessionID, userID))

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked(), true
}

// drop removes r from the map if it is still the registered room.
func (g *Registry) drop(r *room) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.rooms[r.id] != r {
		return false
	}
	delete(g.rooms, r.id)
	if g.live != nil {
		g.live.SetLive(r.id, false)
	}
	g.events.Publish(events.Event{Kind: events.RoomClosed, WorkspaceID: r.id, Sequence: r.seq})
	return true
}

// Leave removes sessionID from the room and returns how many members remain.
// The room is destroyed with its last member. Leaving a room one is not in
// changes nothing.
func (g *Registry) Leave(workspaceID, sessionID string) int {
	r := g.lookup(workspaceID)
	if r == nil {
		return 0
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return 0
	}
	userID, ok := r.members[sessionID]
	if !ok {
		n := len(r.members)
		r.mu.Unlock()
		return n
	}
	delete(r.members, sessionID)
	n := len(r.members)
	if n == 0 {
		r.closed = true
	}
	// before drop publishes room.closed
	g.events.Publish(memberEvent(events.MemberLeft, r, sessionID, userID))
	r.mu.Unlock()

	if n == 0 && g.drop(r) {
		g.log.Info("room closed", zap.String("workspace", workspaceID), zap.Uint64("seq", r.seq))
	}
	return n
}

// ApplyEdit replaces the room text with text, bumps the sequence and hands
// the event to the relay and the event bus before the room lock is released,
// so every member and every sink observes edits in sequence order.
func (g *Registry) ApplyEdit(workspaceID, sessionID, text string) (EditEvent, error) {
	r := g.lookup(workspaceID)
	if r == nil {
		return EditEvent{}, errs.ErrNotJoined.WrapMsg("no live room", "workspace", workspaceID, "session", sessionID)
	}
	r.mu.Lock()
	if _, ok := r.members[sessionID]; r.closed || !ok {
		r.mu.Unlock()
		return EditEvent{}, errs.ErrNotJoined.WrapMsg("session not in room", "workspace", workspaceID, "session", sessionID)
	}
	r.text = text
	r.seq++
	ev := EditEvent{WorkspaceID: workspaceID, SessionID: sessionID, Text: text, Sequence: r.seq}
	if g.relay != nil {
		recipients := make([]string, 0, len(r.members))
		for id := range r.members {
			recipients = append(recipients, id)
		}
		g.relay.Publish(ev, recipients)
	}
	g.events.Publish(events.Event{
		Kind:        events.EditApplied,
		WorkspaceID: workspaceID,
		SessionID:   sessionID,
		UserID:      r.members[sessionID],
		Sequence:    ev.Sequence,
		Members:     len(r.members),
		Text:        text,
	})
	r.mu.Unlock()
	return ev, nil
}

// Snapshot returns the current state of a live room.
func (g *Registry) Snapshot(workspaceID string) (Snapshot, bool) {
	r := g.lookup(workspaceID)
	if r == nil {
		return Snapshot{}, false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return Snapshot{}, false
	}
	return r.snapshotLocked(), true
}

// MemberSnapshot is Snapshot restricted to rooms sessionID belongs to.
func (g *Registry) MemberSnapshot(workspaceID, sessionID string) (Snapshot, error) {
	r := g.lookup(workspaceID)
	if r == nil {
		return Snapshot{}, errs.ErrNotJoined.WrapMsg("no live room", "workspace", workspaceID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.members[sessionID]; r.closed || !ok {
		return Snapshot{}, errs.ErrNotJoined.WrapMsg("session not in room", "workspace", workspaceID, "session", sessionID)
	}
	return r.snapshotLocked(), nil
}

// Rooms lists every live room ordered by workspace id.
func (g *Registry) Rooms() []Snapshot {
	g.mu.RLock()
	rooms := make([]*room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.mu.RUnlock()

	out := make([]Snapshot, 0, len(rooms))
	for _, r := range rooms {
		r.mu.Lock()
		if !r.closed {
			out = append(out, r.snapshotLocked())
		}
		r.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out
}
