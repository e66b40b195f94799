package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/audittrail/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

type OutboxRepository struct {
	db  *gormsqlite.DB
	now func() time.Time
}

func NewOutboxRepository(db *gormsqlite.DB) *OutboxRepository {
	return &OutboxRepository{db: db, now: time.Now}
}

func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]domain.OutboxEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []outboxEventModel
	now := r.now().UTC()
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("status = ? AND next_attempt_at <= ?", string(domain.OutboxPending), now).
			Order("id ASC").
			Limit(limit).
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox: %w", err)
	}

	result := make([]domain.OutboxEvent, 0, len(rows))
	for _, row := range rows {
		result = append(result, domain.OutboxEvent{
			ID:            row.ID,
			EventID:       row.EventID,
			Topic:         row.Topic,
			PayloadJSON:   json.RawMessage(row.PayloadJSON),
			Status:        domain.OutboxStatus(row.Status),
			Attempts:      row.Attempts,
			NextAttemptAt: row.NextAttemptAt,
			LastError:     row.LastError,
			CreatedAt:     row.CreatedAt,
			DispatchedAt:  row.DispatchedAt,
		})
	}
	return result, nil
}

func (r *OutboxRepository) MarkDispatched(ctx context.Context, id int64) error {
	now := r.now().UTC()
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&outboxEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": string(domain.OutboxDispatched), "dispatched_at": &now, "last_error": ""}).Error
	})
	if err != nil {
		return fmt.Errorf("mark outbox dispatched: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkFailed(ctx context.Context, id int64, attempts int, nextAttemptAt time.Time, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&outboxEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"attempts": attempts, "next_attempt_at": nextAttemptAt.UTC(), "last_error": errMsg}).Error
	})
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}

func (r *OutboxRepository) MarkDead(ctx context.Context, id int64, attempts int, errMsg string) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&outboxEventModel{}).
			Where("id = ?", id).
			Updates(map[string]any{"status": string(domain.OutboxDead), "attempts": attempts, "last_error": errMsg}).Error
	})
	if err != nil {
		return fmt.Errorf("mark outbox dead: %w", err)
	}
	return nil
}
