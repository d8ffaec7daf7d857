// Package eventbus wraps a partitioned, at-least-once message bus
// behind a narrow interface so the orchestrator and the dispatcher
// never import watermill directly. The concrete implementation in
// watermill_bus.go uses watermill's Go Channel pub/sub as the
// transport and layers partition-preserving ordering and nack-driven
// redelivery on top.
package eventbus

import "context"

// Bus publishes and consumes PaymentEvent messages on a named topic.
// key determines partition placement: two Publish calls with the same
// key are delivered to the same partition and therefore never
// reordered relative to each other.
type Bus interface {
	Publish(ctx context.Context, topic, key string, event PaymentEvent) error
	Subscribe(ctx context.Context, topic, groupID string, handler Handler) error
	Close() error
}
