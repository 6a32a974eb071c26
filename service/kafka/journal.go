// Package kafka appends accepted edits and saves to a Kafka topic keyed by
// workspace, so a consumer can replay a workspace's history in order.
package kafka

import (
	"context"
	"encoding/json"

	"PNotepad/service/events"
	"PNotepad/tools/errs"

	"github.com/Shopify/sarama"
)

const headerKind = "kind"

// NewSyncProducer dials the brokers.
func NewSyncProducer(c JournalConfig) (sarama.SyncProducer, error) {
	p, err := sarama.NewSyncProducer(c.Brokers, BuildBaseConfig(c))
	if err != nil {
		return nil, errs.WrapMsg(err, "kafka producer", "brokers", c.Brokers)
	}
	return p, nil
}

// Journal is an events.Sink writing edit.applied and snapshot.saved.
type Journal struct {
	prod  sarama.SyncProducer
	topic string
}

func NewJournal(prod sarama.SyncProducer, topic string) *Journal {
	return &Journal{prod: prod, topic: topic}
}

func (j *Journal) Name() string { return "kafka-journal" }

func (j *Journal) Accepts(k events.Kind) bool {
	return k == events.EditApplied || k == events.SnapshotSaved
}

// Deliver blocks until the brokers ack; the bus bounds it with a timeout but
// sarama itself cannot be cancelled mid-send.
func (j *Journal) Deliver(_ context.Context, ev events.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return errs.WrapMsg(err, "encode event", "kind", ev.Kind)
	}
	msg := &sarama.ProducerMessage{
		Topic: j.topic,
		Key:   sarama.StringEncoder(ev.WorkspaceID),
		Value: sarama.ByteEncoder(value),
		Headers: []sarama.RecordHeader{
			{Key: []byte(headerKind), Value: []byte(ev.Kind)},
		},
	}
	if _, _, err := j.prod.SendMessage(msg); err != nil {
		return errs.WrapMsg(err, "journal append", "workspace", ev.WorkspaceID, "seq", ev.Sequence)
	}
	return nil
}

func (j *Journal) Close() error { return j.prod.Close() }
