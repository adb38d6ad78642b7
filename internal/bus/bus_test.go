package bus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for condition")
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		_, err := bus.Subscribe(ctx, domain.TopicSnapshotInvalidate, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicSnapshotInvalidate, []byte(`{"reason":"test"}`)); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		select {
		case msg := <-got:
			if string(msg.Payload) != `{"reason":"test"}` {
				t.Errorf("unexpected payload %q", msg.Payload)
			}
			if msg.ID == "" || msg.Topic != domain.TopicSnapshotInvalidate {
				t.Errorf("envelope not populated: %+v", msg)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for message")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var count atomic.Int32
		_, _ = bus.Subscribe(ctx, "topic.a", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		_ = bus.Publish(ctx, "topic.b", []byte("x"))
		_ = bus.Publish(ctx, "topic.a", []byte("y"))

		waitFor(t, func() bool { return count.Load() == 1 })
		time.Sleep(20 * time.Millisecond)
		if count.Load() != 1 {
			t.Errorf("expected 1 message, got %d", count.Load())
		}
	})

	t.Run("RequiresTopic", func(t *testing.T) {
		if err := bus.Publish(ctx, "", nil); !errors.Is(err, domain.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
		if _, err := bus.Subscribe(ctx, "", nil); err == nil {
			t.Error("expected error for empty topic")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32
		sub, err := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		_ = bus.Publish(ctx, "unsub.topic", []byte("1"))
		waitFor(t, func() bool { return count.Load() == 1 })

		if err := sub.Unsubscribe(); err != nil {
			t.Fatalf("unsubscribe failed: %v", err)
		}
		// Second call is a no-op.
		_ = sub.Unsubscribe()

		_ = bus.Publish(ctx, "unsub.topic", []byte("2"))
		time.Sleep(20 * time.Millisecond)
		if count.Load() != 1 {
			t.Errorf("expected no delivery after unsubscribe, got %d", count.Load())
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(3)
		for range 3 {
			_, _ = bus.Subscribe(ctx, "fanout", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
		}

		_ = bus.Publish(ctx, "fanout", []byte("all"))

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("not every subscriber received the message")
		}
	})

	t.Run("HandlerErrorKeepsSubscription", func(t *testing.T) {
		var count atomic.Int32
		_, _ = bus.Subscribe(ctx, "failing", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return errors.New("boom")
		})

		_ = bus.Publish(ctx, "failing", nil)
		_ = bus.Publish(ctx, "failing", nil)
		waitFor(t, func() bool { return count.Load() == 2 })
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, "named", func(ctx context.Context, msg *domain.Message) error { return nil })
		if sub.Topic() != "named" {
			t.Errorf("expected topic 'named', got %q", sub.Topic())
		}
	})
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	_, _ = bus.Subscribe(ctx, "slow", func(ctx context.Context, msg *domain.Message) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	// First message occupies the handler, second fills the buffer.
	_ = bus.Publish(ctx, "slow", nil)
	<-started
	_ = bus.Publish(ctx, "slow", nil)
	_ = bus.Publish(ctx, "slow", nil)
	close(release)

	if bus.Dropped() != 1 {
		t.Errorf("expected 1 dropped delivery, got %d", bus.Dropped())
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(10)
	ctx := context.Background()

	_, _ = bus.Subscribe(ctx, "t", func(ctx context.Context, msg *domain.Message) error { return nil })

	if err := bus.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Fatalf("second close failed: %v", err)
	}

	if err := bus.Publish(ctx, "t", nil); err == nil {
		t.Error("expected publish to fail after close")
	}
	if _, err := bus.Subscribe(ctx, "t", nil); err == nil {
		t.Error("expected subscribe to fail after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping to fail after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 8})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()
		if _, ok := b.(*ChannelBus); !ok {
			t.Error("expected ChannelBus")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestEnvelope(t *testing.T) {
	data, err := encodeEnvelope(domain.TopicSnapshotInvalidate, []byte(`{"warm":true}`), "replica-1")
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	msg, err := decodeEnvelope(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if msg.Metadata[MetadataOrigin] != "replica-1" || string(msg.Payload) != `{"warm":true}` {
		t.Errorf("unexpected envelope %+v", msg)
	}

	if _, err := decodeEnvelope([]byte("not json")); err == nil {
		t.Error("expected decode error")
	}
}
