// Package storage keeps a cluster-wide view of which workspaces are open on
// which gateway node, in Redis.
package storage

import (
	"context"
	"sort"
	"strconv"
	"time"

	"PNotepad/global"
	"PNotepad/logger"
	"PNotepad/service/events"
	"PNotepad/tools/errs"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Entry is the presence record of one open workspace.
// key: notepad:presence:<workspace>  (hash, TTL renewed by Refresh)
type Entry struct {
	WorkspaceID string    `json:"workspace_id"`
	NodeID      string    `json:"node_id"`
	Members     int       `json:"members"`
	Sequence    uint64    `json:"sequence"`
	OpenedAt    time.Time `json:"opened_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

const (
	fieldNode     = "node"
	fieldMembers  = "members"
	fieldSequence = "sequence"
	fieldOpenedAt = "opened_at"
	fieldUpdated  = "updated_at"
)

// Presence is an events.Sink that mirrors room lifecycle into Redis.
type Presence struct {
	rdb    redis.Cmdable
	nodeID string
	ttl    time.Duration
	log    *zap.Logger
}

func NewPresence(rdb redis.Cmdable, nodeID string, ttl time.Duration) *Presence {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &Presence{rdb: rdb, nodeID: nodeID, ttl: ttl, log: logger.Named("presence")}
}

func (p *Presence) Name() string { return "redis-presence" }

func (p *Presence) Accepts(k events.Kind) bool {
	switch k {
	case events.RoomOpened, events.RoomClosed, events.MemberJoined, events.MemberLeft:
		return true
	}
	return false
}

type presenceOp int

const (
	opSkip presenceOp = iota
	opUpsert
	opDelete
)

// opFor decides what ev does to the record. A member event that leaves the
// room empty is followed by room.closed and must not recreate the record.
func opFor(ev events.Event) presenceOp {
	switch ev.Kind {
	case events.RoomClosed:
		return opDelete
	case events.MemberLeft, events.MemberJoined:
		if ev.Members == 0 {
			return opSkip
		}
	}
	return opUpsert
}

func (p *Presence) Deliver(ctx context.Context, ev events.Event) error {
	key := global.PresenceKey(ev.WorkspaceID)
	pipe := p.rdb.TxPipeline()
	switch opFor(ev) {
	case opSkip:
		return nil
	case opDelete:
		pipe.Del(ctx, key)
		pipe.SRem(ctx, global.PresenceIndexKey(), ev.WorkspaceID)
	default:
		pipe.HSet(ctx, key, fieldsFor(p.nodeID, ev))
		pipe.Expire(ctx, key, p.ttl)
		pipe.SAdd(ctx, global.PresenceIndexKey(), ev.WorkspaceID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.WrapMsg(err, "presence update", "workspace", ev.WorkspaceID, "kind", ev.Kind)
	}
	return nil
}

func fieldsFor(nodeID string, ev events.Event) map[string]interface{} {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	f := map[string]interface{}{
		fieldNode:     nodeID,
		fieldMembers:  ev.Members,
		fieldSequence: ev.Sequence,
		fieldUpdated:  at.UnixMilli(),
	}
	if ev.Kind == events.RoomOpened {
		f[fieldOpenedAt] = at.UnixMilli()
	}
	return f
}

// Refresh rewrites the records of rooms still open on this node and renews
// their TTL. Records of a crashed node simply expire.
func (p *Presence) Refresh(ctx context.Context, rooms []Entry) error {
	if len(rooms) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	pipe := p.rdb.Pipeline()
	for _, r := range rooms {
		key := global.PresenceKey(r.WorkspaceID)
		pipe.HSet(ctx, key,
			fieldNode, p.nodeID,
			fieldMembers, r.Members,
			fieldSequence, r.Sequence,
			fieldOpenedAt, r.OpenedAt.UnixMilli(),
			fieldUpdated, now)
		pipe.Expire(ctx, key, p.ttl)
		pipe.SAdd(ctx, global.PresenceIndexKey(), r.WorkspaceID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.WrapMsg(err, "presence refresh", "rooms", len(rooms))
	}
	return nil
}

// Run calls Refresh every period until ctx is done.
func (p *Presence) Run(ctx context.Context, every time.Duration, rooms func() []Entry) {
	if every <= 0 {
		every = p.ttl / 3
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := p.Refresh(ctx, rooms()); err != nil {
				p.log.Warn("presence refresh failed", zap.Error(err))
			}
		}
	}
}

// Lookup returns the presence record of one workspace.
func (p *Presence) Lookup(ctx context.Context, workspaceID string) (Entry, bool, error) {
	m, err := p.rdb.HGetAll(ctx, global.PresenceKey(workspaceID)).Result()
	if err != nil {
		return Entry{}, false, errs.WrapMsg(err, "presence lookup", "workspace", workspaceID)
	}
	if len(m) == 0 {
		return Entry{}, false, nil
	}
	return parseEntry(workspaceID, m), true, nil
}

// List returns every open workspace in the cluster. Index members whose
// record already expired are pruned on the way.
func (p *Presence) List(ctx context.Context) ([]Entry, error) {
	ids, err := p.rdb.SMembers(ctx, global.PresenceIndexKey()).Result()
	if err != nil {
		return nil, errs.WrapMsg(err, "presence index")
	}
	out := make([]Entry, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		e, ok, err := p.Lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		if !ok {
			stale = append(stale, id)
			continue
		}
		out = append(out, e)
	}
	if len(stale) > 0 {
		if err := p.rdb.SRem(ctx, global.PresenceIndexKey(), stale...).Err(); err != nil {
			p.log.Debug("prune presence index failed", zap.Error(err))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkspaceID < out[j].WorkspaceID })
	return out, nil
}

func parseEntry(workspaceID string, m map[string]string) Entry {
	e := Entry{WorkspaceID: workspaceID, NodeID: m[fieldNode]}
	e.Members, _ = strconv.Atoi(m[fieldMembers])
	e.Sequence, _ = strconv.ParseUint(m[fieldSequence], 10, 64)
	if ms, err := strconv.ParseInt(m[fieldOpenedAt], 10, 64); err == nil {
		e.OpenedAt = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(m[fieldUpdated], 10, 64); err == nil {
		e.UpdatedAt = time.UnixMilli(ms)
	}
	return e
}
