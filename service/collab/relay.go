package collab

import (
	"sync/atomic"

	"PNotepad/logger"

	"go.uber.org/zap"
)

// Directory resolves a session id to its outbound queue. Deliver must not
// block; a full queue is the directory's problem (it kicks the session).
type Directory interface {
	Deliver(sessionID string, payload []byte) bool
}

// Relay fans an accepted edit out to every other member of the room. It is
// called with the room lock held, which gives per-room FIFO for free.
type Relay struct {
	dir Directory
	log *zap.Logger

	delivered atomic.Int64
	missed    atomic.Int64
}

func NewRelay(dir Directory) *Relay {
	return &Relay{dir: dir, log: logger.Named("relay")}
}

// Publish encodes ev once and queues it for every recipient except the
// author. It returns how many recipients accepted the frame.
func (r *Relay) Publish(ev EditEvent, recipients []string) int {
	if len(recipients) <= 1 {
		return 0
	}
	payload := BuildEdit(ev)
	n := 0
	for _, id := range recipients {
		if id == ev.SessionID {
			continue
		}
		if r.dir.Deliver(id, payload) {
			n++
			continue
		}
		r.missed.Add(1)
		r.log.Debug("edit not delivered",
			zap.String("workspace", ev.WorkspaceID),
			zap.String("session", id),
			zap.Uint64("seq", ev.Sequence))
	}
	r.delivered.Add(int64(n))
	return n
}

// Stats returns delivered and missed frame counts since start.
func (r *Relay) Stats() (delivered, missed int64) {
	return r.delivered.Load(), r.missed.Load()
}
