package eventbus

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PartitionedBus fans a topic out across a fixed set of watermill Go
// Channel pub/subs, one per partition, so that messages sharing a key
// (the transaction id) always land on the same channel and are
// therefore delivered in publish order relative to each other. A
// single partition is itself strictly ordered because gochannel
// delivers to one subscriber at a time per topic.
type PartitionedBus struct {
	partitions []*gochannel.GoChannel
	log        *zap.Logger
	closed     chan struct{}
}

// NewPartitionedBus builds a bus with n partitions. n should be fixed
// for the lifetime of a deployment: changing it changes which
// partition a given transaction id hashes to.
func NewPartitionedBus(n int, log *zap.Logger) *PartitionedBus {
	if n < 1 {
		n = 1
	}
	adapter := NewZapAdapter(log)
	partitions := make([]*gochannel.GoChannel, n)
	for i := range partitions {
		partitions[i] = gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer:            256,
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		}, adapter)
	}
	return &PartitionedBus{partitions: partitions, log: log, closed: make(chan struct{})}
}

func (b *PartitionedBus) partitionFor(key string) *gochannel.GoChannel {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return b.partitions[int(h.Sum32())%len(b.partitions)]
}

func (b *PartitionedBus) Publish(ctx context.Context, topic, key string, event PaymentEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	msg := message.NewMessage(uuid.NewString(), payload)
	msg.Metadata.Set("key", key)
	return b.partitionFor(key).Publish(topic, msg)
}

// Subscribe starts one consumer goroutine per partition. groupID is
// accepted for interface parity with a real broker (Kafka's consumer
// groups) but this in-process transport has exactly one logical
// subscriber per topic by construction, so a single consumer group
// owns state advancement and groupID is used only for logging, not
// for partition assignment.
func (b *PartitionedBus) Subscribe(ctx context.Context, topic, groupID string, handler Handler) error {
	for i, p := range b.partitions {
		messages, err := p.Subscribe(ctx, topic)
		if err != nil {
			return err
		}
		go b.consume(ctx, topic, groupID, i, messages, handler)
	}
	return nil
}

func (b *PartitionedBus) consume(ctx context.Context, topic, groupID string, partition int, messages <-chan *message.Message, handler Handler) {
	for {
		select {
		case <-b.closed:
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			b.handle(ctx, topic, groupID, partition, msg, handler)
		}
	}
}

func (b *PartitionedBus) handle(ctx context.Context, topic, groupID string, partition int, msg *message.Message, handler Handler) {
	var event PaymentEvent
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		b.log.Error("eventbus: dropping undecodable message",
			zap.String("topic", topic), zap.Error(err))
		msg.Ack()
		return
	}
	if err := handler(event); err != nil {
		b.log.Warn("eventbus: handler failed, redelivering",
			zap.String("topic", topic), zap.String("group", groupID),
			zap.String("transaction_id", event.TransactionID), zap.Error(err))
		msg.Nack()
		b.redeliver(topic, msg, event.TransactionID)
		return
	}
	msg.Ack()
}

// redeliver requeues a failed message onto its own partition after a
// short delay. gochannel has no native retry/backoff middleware, so
// the bus implements the at-least-once contract itself rather than
// silently dropping messages whose handler returned an error.
func (b *PartitionedBus) redeliver(topic string, msg *message.Message, key string) {
	go func() {
		select {
		case <-b.closed:
			return
		case <-time.After(2 * time.Second):
		}
		retry := message.NewMessage(uuid.NewString(), msg.Payload)
		retry.Metadata = msg.Metadata
		if err := b.partitionFor(key).Publish(topic, retry); err != nil {
			b.log.Error("eventbus: redelivery publish failed", zap.Error(err))
		}
	}()
}

func (b *PartitionedBus) Close() error {
	close(b.closed)
	for _, p := range b.partitions {
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
