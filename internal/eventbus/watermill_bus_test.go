package eventbus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestPartitionedBus_PublishSubscribeRoundTrip(t *testing.T) {
	bus := NewPartitionedBus(4, zap.NewNop())
	defer bus.Close()

	received := make(chan PaymentEvent, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Subscribe(ctx, "payment.events", "processor", func(event PaymentEvent) error {
		received <- event
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	want := PaymentEvent{TransactionID: "tx-1", EventType: "PAYMENT_INITIATED"}
	if err := bus.Publish(ctx, "payment.events", want.TransactionID, want); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case got := <-received:
		if got.TransactionID != want.TransactionID || got.EventType != want.EventType {
			t.Fatalf("unexpected event: %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}
}

func TestPartitionedBus_SameKeyAlwaysSamePartition(t *testing.T) {
	bus := NewPartitionedBus(8, zap.NewNop())
	defer bus.Close()

	first := bus.partitionFor("tx-abc")
	for i := 0; i < 10; i++ {
		if bus.partitionFor("tx-abc") != first {
			t.Fatal("expected the same key to hash to the same partition every time")
		}
	}
}

func TestPartitionedBus_RedeliversOnHandlerError(t *testing.T) {
	bus := NewPartitionedBus(2, zap.NewNop())
	defer bus.Close()

	var calls atomic.Int32
	done := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := bus.Subscribe(ctx, "payment.events", "processor", func(event PaymentEvent) error {
		n := calls.Add(1)
		if n == 1 {
			return errFirstAttempt
		}
		close(done)
		return nil
	}); err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	evt := PaymentEvent{TransactionID: "tx-redeliver", EventType: "PAYMENT_INITIATED"}
	if err := bus.Publish(ctx, "payment.events", evt.TransactionID, evt); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case <-done:
		if calls.Load() != 2 {
			t.Fatalf("expected exactly 2 deliveries, got %d", calls.Load())
		}
	case <-time.After(4 * time.Second):
		t.Fatal("timed out waiting for redelivery")
	}
}

type sentinelError struct{ msg string }

func (e *sentinelError) Error() string { return e.msg }

var errFirstAttempt = &sentinelError{msg: "simulated transient failure"}
