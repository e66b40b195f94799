package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/audittrail/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

type auditLogModel struct {
	ID           int64                 `gorm:"column:id;primaryKey;autoIncrement"`
	EventID      string                `gorm:"column:event_id;not null"`
	TypeFullName string                `gorm:"column:type_full_name;not null"`
	BaseTypeName string                `gorm:"column:base_type_name;not null"`
	RecordID     string                `gorm:"column:record_id;not null"`
	EventType    string                `gorm:"column:event_type;not null"`
	Actor        string                `gorm:"column:actor;not null"`
	EventDate    time.Time             `gorm:"column:event_date;not null"`
	Metadata     datatypes.JSON        `gorm:"column:metadata"`
	Details      []auditLogDetailModel `gorm:"foreignKey:AuditLogID"`
}

func (auditLogModel) TableName() string {
	return "audit_logs"
}

type auditLogDetailModel struct {
	ID            int64  `gorm:"column:id;primaryKey;autoIncrement"`
	AuditLogID    int64  `gorm:"column:audit_log_id;not null"`
	Position      int    `gorm:"column:position;not null"`
	PropertyName  string `gorm:"column:property_name;not null"`
	OriginalValue string `gorm:"column:original_value;not null"`
	NewValue      string `gorm:"column:new_value;not null"`
}

func (auditLogDetailModel) TableName() string {
	return "audit_log_details"
}

// AuditLogRepository persists audit logs together with their outbox rows.
type AuditLogRepository struct {
	db *gormsqlite.DB
}

func NewAuditLogRepository(db *gormsqlite.DB) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

func (r *AuditLogRepository) Append(ctx context.Context, logs []domain.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}
	return r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return appendLogs(tx.DB, logs)
	})
}

// appendLogs inserts logs inside tx and writes the assigned ids back into
// the slice. Each log also gets a pending outbox row.
func appendLogs(tx *gorm.DB, logs []domain.AuditLog) error {
	now := time.Now().UTC()
	for i := range logs {
		l := &logs[i]
		var meta datatypes.JSON
		if len(l.Metadata) > 0 {
			raw, err := json.Marshal(l.Metadata)
			if err != nil {
				return fmt.Errorf("encode audit metadata: %w", err)
			}
			meta = raw
		}

		row := auditLogModel{
			EventID:      l.EventID,
			TypeFullName: l.TypeFullName,
			BaseTypeName: baseTypeName(*l),
			RecordID:     l.RecordID,
			EventType:    string(l.EventType),
			Actor:        l.Actor,
			EventDate:    l.EventDate.UTC(),
			Metadata:     meta,
		}
		if err := tx.Omit("Details").Create(&row).Error; err != nil {
			return fmt.Errorf("insert audit log: %w", err)
		}
		l.ID = row.ID

		if len(l.Details) > 0 {
			details := make([]auditLogDetailModel, 0, len(l.Details))
			for pos, d := range l.Details {
				details = append(details, auditLogDetailModel{
					AuditLogID:    row.ID,
					Position:      pos,
					PropertyName:  d.PropertyName,
					OriginalValue: d.OriginalValue,
					NewValue:      d.NewValue,
				})
			}
			if err := tx.CreateInBatches(&details, 100).Error; err != nil {
				return fmt.Errorf("insert audit log details: %w", err)
			}
		}

		payload, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("encode outbox payload: %w", err)
		}
		outbox := outboxEventModel{
			EventID:       l.EventID,
			Topic:         domain.OutboxTopic(l.EventType),
			PayloadJSON:   string(payload),
			Status:        string(domain.OutboxPending),
			NextAttemptAt: now,
			CreatedAt:     now,
		}
		if err := tx.Create(&outbox).Error; err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
	}
	return nil
}

func (r *AuditLogRepository) List(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	if len(filter.TypeNames) == 0 && filter.BaseTypeName == "" {
		return []domain.AuditLog{}, nil
	}
	var rows []auditLogModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&auditLogModel{})
		if filter.BaseTypeName != "" {
			query = query.Where("base_type_name = ?", filter.BaseTypeName)
		} else {
			query = query.Where("type_full_name IN ?", filter.TypeNames)
		}
		query = query.Preload("Details", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC")
		})
		if filter.RecordID != nil {
			query = query.Where("record_id = ?", *filter.RecordID)
		}
		if filter.AfterID > 0 {
			query = query.Where("id > ?", filter.AfterID)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		return query.Order("id ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}

	result := make([]domain.AuditLog, 0, len(rows))
	for _, row := range rows {
		l, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, l)
	}
	return result, nil
}

func (row auditLogModel) toDomain() (domain.AuditLog, error) {
	l := domain.AuditLog{
		ID:           row.ID,
		EventID:      row.EventID,
		TypeFullName: row.TypeFullName,
		BaseTypeName: row.BaseTypeName,
		RecordID:     row.RecordID,
		EventType:    domain.EventType(row.EventType),
		Actor:        row.Actor,
		EventDate:    row.EventDate.UTC(),
		Details:      make([]domain.LogDetail, 0, len(row.Details)),
	}
	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &l.Metadata); err != nil {
			return domain.AuditLog{}, fmt.Errorf("decode metadata of audit log %d: %w", row.ID, err)
		}
	}
	for _, d := range row.Details {
		l.Details = append(l.Details, domain.LogDetail{
			PropertyName:  d.PropertyName,
			OriginalValue: d.OriginalValue,
			NewValue:      d.NewValue,
		})
	}
	return l, nil
}

// baseTypeName falls back to the log's own type for entities without a
// declared base.
func baseTypeName(l domain.AuditLog) string {
	if l.BaseTypeName != "" {
		return l.BaseTypeName
	}
	return l.TypeFullName
}
