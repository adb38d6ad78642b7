// Package worker consumes snapshot invalidation events from the EventBus.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	"github.com/opensource-finance/ledgerlens/internal/ledger"
	"github.com/opensource-finance/ledgerlens/internal/stats"
)

// Dataset is the part of ledger.DatasetCache the worker drives.
type Dataset interface {
	Invalidate()
	Reload(ctx context.Context) (*ledger.Snapshot, error)
}

// Worker drops (or reloads) the local ledger snapshot whenever an
// invalidation event arrives, and purges cached aggregations.
type Worker struct {
	bus     domain.EventBus
	dataset Dataset
	cache   domain.Cache

	mu            sync.Mutex
	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	processed atomic.Int64
	failed    atomic.Int64
	lastEvent atomic.Int64
}

// NewWorker creates an invalidation worker. cache may be nil.
func NewWorker(bus domain.EventBus, dataset Dataset, cache domain.Cache) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:     bus,
		dataset: dataset,
		cache:   cache,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start subscribes to the invalidation topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicSnapshotInvalidate, w.handleMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", domain.TopicSnapshotInvalidate, err)
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("invalidation worker started", "topic", domain.TopicSnapshotInvalidate)
	return nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var event domain.InvalidateEvent
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			w.failed.Add(1)
			slog.Error("failed to parse invalidation event",
				"message_id", msg.ID,
				"error", err,
			)
			return err
		}
	}

	if err := w.apply(ctx, event); err != nil {
		w.failed.Add(1)
		slog.Error("invalidation failed",
			"message_id", msg.ID,
			"reason", event.Reason,
			"error", err,
		)
		return err
	}

	w.processed.Add(1)
	w.lastEvent.Store(time.Now().UnixNano())
	slog.Info("snapshot invalidated",
		"message_id", msg.ID,
		"reason", event.Reason,
		"requested_by", event.RequestedBy,
		"warm", event.Warm,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) apply(ctx context.Context, event domain.InvalidateEvent) error {
	if w.cache != nil {
		if err := w.cache.Purge(ctx, stats.CacheNamespace); err != nil {
			// Stale entries are unreachable once the fingerprint changes.
			slog.Warn("stats cache purge failed", "error", err)
		}
	}

	if event.Warm {
		_, err := w.dataset.Reload(ctx)
		return err
	}
	w.dataset.Invalidate()
	return nil
}

// Stop unsubscribes and cancels in-flight handlers.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("invalidation worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int       `json:"subscriptionCount"`
	Topics            []string  `json:"topics"`
	Processed         int64     `json:"processed"`
	Failed            int64     `json:"failed"`
	LastEvent         time.Time `json:"lastEvent,omitzero"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	w.mu.Unlock()

	s := Stats{
		SubscriptionCount: len(topics),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
	if ns := w.lastEvent.Load(); ns > 0 {
		s.LastEvent = time.Unix(0, ns)
	}
	return s
}

// PublishInvalidate announces an invalidation to every replica, this one included.
func PublishInvalidate(ctx context.Context, bus domain.EventBus, event domain.InvalidateEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal invalidate event: %w", err)
	}
	return bus.Publish(ctx, domain.TopicSnapshotInvalidate, payload)
}
