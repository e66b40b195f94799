package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/metrics"
)

// OutboxDispatcher forwards persisted audit logs to a publisher, retrying
// with backoff until maxRetry attempts have failed.
type OutboxDispatcher struct {
	repo      ports.OutboxRepository
	publisher ports.EventPublisher
	interval  time.Duration
	batchSize int
	maxRetry  int
	log       *logrus.Logger
	metrics   *metrics.Metrics
	now       func() time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type DispatcherOption func(*OutboxDispatcher)

func WithDispatcherLogger(log *logrus.Logger) DispatcherOption {
	return func(d *OutboxDispatcher) { d.log = log }
}

func WithDispatcherMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *OutboxDispatcher) { d.metrics = m }
}

func WithMaxRetry(n int) DispatcherOption {
	return func(d *OutboxDispatcher) {
		if n > 0 {
			d.maxRetry = n
		}
	}
}

func NewOutboxDispatcher(repo ports.OutboxRepository, publisher ports.EventPublisher, interval time.Duration, batchSize int, opts ...DispatcherOption) *OutboxDispatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	d := &OutboxDispatcher{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: batchSize,
		maxRetry:  5,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = logrus.New()
	}
	return d
}

func (d *OutboxDispatcher) Start(parent context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	d.cancel = cancel
	d.wg.Add(1)
	go d.loop(ctx)
}

func (d *OutboxDispatcher) Close() error {
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	d.wg.Wait()
	return nil
}

func (d *OutboxDispatcher) loop(ctx context.Context) {
	defer d.wg.Done()
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.DispatchBatch(ctx); err != nil && ctx.Err() == nil {
			d.log.WithError(err).Warn("outbox dispatch batch failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// DispatchBatch delivers one batch of due events. A publish failure is
// recorded on the event and does not stop the batch.
func (d *OutboxDispatcher) DispatchBatch(ctx context.Context) error {
	events, err := d.repo.FetchPending(ctx, d.batchSize)
	if err != nil {
		return err
	}

	for _, event := range events {
		var record domain.AuditLog
		if err := json.Unmarshal(event.PayloadJSON, &record); err != nil {
			if markErr := d.markFailure(ctx, event, fmt.Sprintf("decode payload: %v", err)); markErr != nil {
				return markErr
			}
			continue
		}

		if err := d.publisher.Publish(ctx, event.Topic, record); err != nil {
			if markErr := d.markFailure(ctx, event, err.Error()); markErr != nil {
				return markErr
			}
			continue
		}

		if err := d.repo.MarkDispatched(ctx, event.ID); err != nil {
			return err
		}
		d.metrics.IncOutbox("success")
	}

	return nil
}

func (d *OutboxDispatcher) markFailure(ctx context.Context, event domain.OutboxEvent, errMsg string) error {
	attempts := event.Attempts + 1
	fields := logrus.Fields{"outbox_id": event.ID, "event_id": event.EventID, "attempts": attempts}
	if attempts >= d.maxRetry {
		if err := d.repo.MarkDead(ctx, event.ID, attempts, errMsg); err != nil {
			return err
		}
		d.log.WithFields(fields).Error("outbox event dead-lettered: " + errMsg)
		d.metrics.IncOutbox("dead")
		return nil
	}
	d.log.WithFields(fields).Warn("outbox publish failed: " + errMsg)
	d.metrics.IncOutbox("failure")
	return d.repo.MarkFailed(ctx, event.ID, attempts, d.now().UTC().Add(backoffDuration(attempts)), errMsg)
}

func backoffDuration(attempt int) time.Duration {
	if attempt <= 1 {
		return 1 * time.Second
	}
	d := time.Duration(attempt*attempt) * time.Second
	if d > 5*time.Minute {
		return 5 * time.Minute
	}
	return d
}
