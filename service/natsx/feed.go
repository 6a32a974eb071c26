package natsx

import (
	"context"
	"encoding/json"

	"PNotepad/service/events"
	"PNotepad/tools/errs"

	"github.com/nats-io/nats.go"
)

// MsgPublisher is what Feed needs from a NATS connection.
type MsgPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg) error
}

// Feed publishes every event as JSON on <prefix>.<kind>, e.g.
// notepad.edit.applied. Subscribers filter with wildcards (notepad.room.>).
type Feed struct {
	pub    MsgPublisher
	prefix string
}

func NewFeed(pub MsgPublisher, prefix string) *Feed {
	if prefix == "" {
		prefix = "notepad"
	}
	return &Feed{pub: pub, prefix: prefix}
}

func (f *Feed) Name() string { return "nats-feed" }

func (f *Feed) Accepts(events.Kind) bool { return true }

func (f *Feed) Subject(k events.Kind) string { return f.prefix + "." + string(k) }

func (f *Feed) Deliver(ctx context.Context, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return errs.WrapMsg(err, "encode event", "kind", ev.Kind)
	}
	msg := nats.NewMsg(f.Subject(ev.Kind))
	msg.Data = data
	// JetStream drops duplicates with the same id inside its window
	msg.Header.Set(nats.MsgIdHdr, ev.ID)
	msg.Header.Set("Workspace-Id", ev.WorkspaceID)
	return f.pub.PublishMsg(ctx, msg)
}
