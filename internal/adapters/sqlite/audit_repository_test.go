package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

func auditLog(typeName, recordID string, eventType domain.EventType, details ...domain.LogDetail) domain.AuditLog {
	return domain.AuditLog{
		EventID:      uuid.NewString(),
		TypeFullName: typeName,
		RecordID:     recordID,
		EventType:    eventType,
		Actor:        "tester",
		EventDate:    time.Date(2025, 6, 1, 10, 30, 0, 123000000, time.UTC),
		Details:      details,
	}
}

func TestAuditLogRepositoryAppendAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(openTestDB(t))

	logs := []domain.AuditLog{
		auditLog("shop.Order", "1", domain.EventAdded,
			domain.LogDetail{PropertyName: "Total", NewValue: "10"},
			domain.LogDetail{PropertyName: "Currency", NewValue: "EUR"},
			domain.LogDetail{PropertyName: "Buyer", NewValue: "ann"},
		),
		auditLog("shop.Order", "2", domain.EventAdded),
		auditLog("shop.Invoice", "1", domain.EventAdded),
		auditLog("shop.Order", "1", domain.EventModified, domain.LogDetail{PropertyName: "Total", OriginalValue: "10", NewValue: "12"}),
	}
	logs[0].Metadata = domain.Metadata{}.With("z", "last").With("a", float64(1))
	require.NoError(t, repo.Append(ctx, logs))
	for i, l := range logs {
		require.Equal(t, int64(i+1), l.ID)
	}

	orders, err := repo.List(ctx, domain.AuditLogFilter{TypeNames: []string{"shop.Order"}})
	require.NoError(t, err)
	require.Len(t, orders, 3)
	require.Equal(t, []int64{1, 2, 4}, []int64{orders[0].ID, orders[1].ID, orders[2].ID})
	require.Equal(t, logs[0].Details, orders[0].Details, "details keep their order")
	require.Equal(t, logs[0].Metadata, orders[0].Metadata, "metadata keeps insertion order")
	require.True(t, logs[0].EventDate.Equal(orders[0].EventDate))
	require.Equal(t, logs[0].EventID, orders[0].EventID)
	require.Empty(t, orders[1].Details)
	require.Nil(t, orders[1].Metadata)

	record := "1"
	history, err := repo.List(ctx, domain.AuditLogFilter{TypeNames: []string{"shop.Order", "shop.Invoice"}, RecordID: &record})
	require.NoError(t, err)
	require.Len(t, history, 3)
	require.Equal(t, domain.EventModified, history[2].EventType)

	page, err := repo.List(ctx, domain.AuditLogFilter{TypeNames: []string{"shop.Order"}, AfterID: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, int64(2), page[0].ID)

	none, err := repo.List(ctx, domain.AuditLogFilter{})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestAuditLogRepositoryListByBaseType(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(openTestDB(t))

	car := auditLog("fleet.Car", "1", domain.EventAdded)
	car.BaseTypeName = "fleet.Vehicle"
	truck := auditLog("fleet.Truck", "1", domain.EventAdded)
	truck.BaseTypeName = "fleet.Vehicle"
	order := auditLog("shop.Order", "1", domain.EventAdded)
	require.NoError(t, repo.Append(ctx, []domain.AuditLog{car, truck, order}))

	vehicles, err := repo.List(ctx, domain.AuditLogFilter{BaseTypeName: "fleet.Vehicle"})
	require.NoError(t, err)
	require.Len(t, vehicles, 2)
	require.Equal(t, "fleet.Car", vehicles[0].TypeFullName)
	require.Equal(t, "fleet.Truck", vehicles[1].TypeFullName)
	require.Equal(t, "fleet.Vehicle", vehicles[1].BaseTypeName)

	orders, err := repo.List(ctx, domain.AuditLogFilter{BaseTypeName: "shop.Order"})
	require.NoError(t, err)
	require.Len(t, orders, 1, "logs without a declared base are their own base")
	require.Equal(t, "shop.Order", orders[0].BaseTypeName)

	record := "2"
	none, err := repo.List(ctx, domain.AuditLogFilter{BaseTypeName: "fleet.Vehicle", RecordID: &record})
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestAuditLogRepositoryAppendIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditLogRepository(openTestDB(t))

	dup := auditLog("shop.Order", "1", domain.EventAdded)
	second := dup
	err := repo.Append(ctx, []domain.AuditLog{dup, second})
	require.Error(t, err, "event ids are unique")

	logs, err := repo.List(ctx, domain.AuditLogFilter{TypeNames: []string{"shop.Order"}})
	require.NoError(t, err)
	require.Empty(t, logs)
}

func TestOutboxRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	logs := NewAuditLogRepository(db)
	outbox := NewOutboxRepository(db)
	outbox.now = func() time.Time { return time.Now().Add(time.Minute) }

	batch := make([]domain.AuditLog, 0, 3)
	for i := 1; i <= 3; i++ {
		batch = append(batch, auditLog("shop.Order", fmt.Sprint(i), domain.EventDeleted))
	}
	require.NoError(t, logs.Append(ctx, batch))

	pending, err := outbox.FetchPending(ctx, 2)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "audit.deleted", pending[0].Topic)
	require.Equal(t, domain.OutboxPending, pending[0].Status)
	require.Equal(t, batch[0].EventID, pending[0].EventID)

	var payload domain.AuditLog
	require.NoError(t, json.Unmarshal(pending[0].PayloadJSON, &payload))
	require.Equal(t, batch[0].ID, payload.ID)
	require.Equal(t, "1", payload.RecordID)

	require.NoError(t, outbox.MarkDispatched(ctx, pending[0].ID))
	require.NoError(t, outbox.MarkFailed(ctx, pending[1].ID, 1, time.Now().Add(time.Hour), "timeout"))

	pending, err = outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, batch[2].EventID, pending[0].EventID)

	require.NoError(t, outbox.MarkDead(ctx, pending[0].ID, 5, "gone"))
	pending, err = outbox.FetchPending(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)

	var failed, dispatched outboxEventModel
	require.NoError(t, db.R.Where("event_id = ?", batch[1].EventID).Take(&failed).Error)
	require.Equal(t, 1, failed.Attempts)
	require.Equal(t, "timeout", failed.LastError)
	require.NoError(t, db.R.Where("event_id = ?", batch[0].EventID).Take(&dispatched).Error)
	require.Equal(t, "dispatched", dispatched.Status)
	require.NotNil(t, dispatched.DispatchedAt)
}
