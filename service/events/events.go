// Package events carries room lifecycle and edit notifications from the sync
// gateway to external sinks (NATS feed, Kafka journal, Redis presence).
// Delivery is asynchronous and best-effort: publishing never blocks a room.
package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"PNotepad/global"
	"PNotepad/logger"
	"PNotepad/tools/safe"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Kind string

const (
	RoomOpened    Kind = "room.opened"
	RoomClosed    Kind = "room.closed"
	MemberJoined  Kind = "member.joined"
	MemberLeft    Kind = "member.left"
	EditApplied   Kind = "edit.applied"
	SnapshotSaved Kind = "snapshot.saved"
)

type Event struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	WorkspaceID string    `json:"workspace_id"`
	SessionID   string    `json:"session_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	Sequence    uint64    `json:"sequence"`
	Members     int       `json:"members"`
	Text        string    `json:"text,omitempty"`
	NodeID      string    `json:"node_id,omitempty"`
	At          time.Time `json:"at"`
}

// Sink receives events for the kinds it accepts.
type Sink interface {
	Name() string
	Accepts(k Kind) bool
	Deliver(ctx context.Context, ev Event) error
}

type Publisher interface {
	Publish(ev Event)
}

// Discard drops every event.
var Discard Publisher = discard{}

type discard struct{}

func (discard) Publish(Event) {}

type Config struct {
	Queue       int // per worker
	Workers     int
	NodeID      string
	SinkTimeout time.Duration // per delivery
}

// Bus fans events out to sinks on a fixed set of workers. Events of one
// workspace always land on the same worker, so each sink sees them in
// publish order.
type Bus struct {
	conf   Config
	sinks  []Sink
	shards []chan Event
	log    *zap.Logger

	mu      sync.RWMutex
	closed  bool
	wg      sync.WaitGroup
	dropped atomic.Int64
}

func NewBus(conf Config, sinks ...Sink) *Bus {
	if conf.Workers <= 0 {
		conf.Workers = 1
	}
	if conf.Queue <= 0 {
		conf.Queue = 1024
	}
	if conf.SinkTimeout <= 0 {
		conf.SinkTimeout = 3 * time.Second
	}
	b := &Bus{
		conf:   conf,
		sinks:  sinks,
		shards: make([]chan Event, conf.Workers),
		log:    logger.Named("events"),
	}
	for i := range b.shards {
		ch := make(chan Event, conf.Queue)
		b.shards[i] = ch
		b.wg.Add(1)
		safe.Go("events-worker", func() {
			defer b.wg.Done()
			for ev := range ch {
				b.deliver(ev)
			}
		})
	}
	return b
}

// Publish enqueues ev without blocking. A full queue drops the event.
func (b *Bus) Publish(ev Event) {
	if len(b.sinks) == 0 {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if ev.NodeID == "" {
		ev.NodeID = b.conf.NodeID
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	shard := b.shards[global.HashPartition(ev.WorkspaceID, len(b.shards))]
	select {
	case shard <- ev:
	default:
		b.dropped.Add(1)
		b.log.Warn("event queue full, dropped",
			zap.String("kind", string(ev.Kind)), zap.String("workspace", ev.WorkspaceID))
	}
}

func (b *Bus) deliver(ev Event) {
	for _, s := range b.sinks {
		if !s.Accepts(ev.Kind) {
			continue
		}
		sink := s
		safe.Run("events-sink-"+sink.Name(), func() {
			ctx, cancel := context.WithTimeout(context.Background(), b.conf.SinkTimeout)
			defer cancel()
			if err := sink.Deliver(ctx, ev); err != nil {
				b.log.Warn("sink delivery failed",
					zap.String("sink", sink.Name()),
					zap.String("kind", string(ev.Kind)),
					zap.String("workspace", ev.WorkspaceID),
					zap.Error(err))
			}
		})
	}
}

func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// Close stops accepting events and waits for queued ones to be delivered.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.shards {
		close(ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
