package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

func seededRepo(t *testing.T, logs ...domain.AuditLog) *memoryAuditRepo {
	t.Helper()
	repo := &memoryAuditRepo{}
	require.NoError(t, repo.Append(context.Background(), logs))
	return repo
}

func TestReplayHistoryProjection(t *testing.T) {
	repo := seededRepo(t,
		domain.AuditLog{EventID: "e1", TypeFullName: "shop.User", RecordID: "u1", EventType: domain.EventAdded,
			Details: []domain.LogDetail{{PropertyName: "Name", NewValue: "A"}}},
		domain.AuditLog{EventID: "e2", TypeFullName: "shop.User", RecordID: "u2", EventType: domain.EventAdded,
			Details: []domain.LogDetail{{PropertyName: "Name", NewValue: "B"}}},
		domain.AuditLog{EventID: "e3", TypeFullName: "shop.Order", RecordID: "o1", EventType: domain.EventAdded},
		domain.AuditLog{EventID: "e4", TypeFullName: "shop.User", RecordID: "u1", EventType: domain.EventModified,
			Details: []domain.LogDetail{{PropertyName: "Name", OriginalValue: "A", NewValue: "A2"}}},
		domain.AuditLog{EventID: "e5", TypeFullName: "shop.User", RecordID: "u2", EventType: domain.EventDeleted},
	)

	projection := map[string]string{}
	var seen []string
	err := ReplayHistory(context.Background(), NewAuditService(repo), []string{"shop.User"}, nil, 2, func(l domain.AuditLog) error {
		seen = append(seen, l.EventID)
		switch l.EventType {
		case domain.EventAdded, domain.EventModified:
			for _, d := range l.Details {
				if d.PropertyName == "Name" {
					projection[l.RecordID] = d.NewValue
				}
			}
		case domain.EventDeleted, domain.EventSoftDeleted:
			delete(projection, l.RecordID)
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e2", "e4", "e5"}, seen)
	require.Equal(t, map[string]string{"u1": "A2"}, projection)
}

func TestReplayHistorySingleRecord(t *testing.T) {
	repo := seededRepo(t,
		domain.AuditLog{EventID: "e1", TypeFullName: "shop.User", RecordID: "u1"},
		domain.AuditLog{EventID: "e2", TypeFullName: "shop.User", RecordID: "u2"},
		domain.AuditLog{EventID: "e3", TypeFullName: "shop.User", RecordID: "u1"},
	)
	id := "u1"
	var seen []string
	err := ReplayHistory(context.Background(), NewAuditService(repo), []string{"shop.User"}, &id, 1, func(l domain.AuditLog) error {
		seen = append(seen, l.EventID)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, []string{"e1", "e3"}, seen)
}

func TestReplayHistoryStopsOnApplyError(t *testing.T) {
	repo := seededRepo(t, domain.AuditLog{EventID: "e1", TypeFullName: "shop.User", RecordID: "u1"})
	boom := errors.New("projection failed")
	err := ReplayHistory(context.Background(), NewAuditService(repo), []string{"shop.User"}, nil, 10, func(domain.AuditLog) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestAuditServiceListValidation(t *testing.T) {
	svc := NewAuditService(&memoryAuditRepo{})
	_, err := svc.List(context.Background(), domain.AuditLogFilter{})
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = svc.List(context.Background(), domain.AuditLogFilter{TypeNames: []string{""}})
	require.ErrorIs(t, err, ErrInvalidFilter)

	_, err = svc.List(context.Background(), domain.AuditLogFilter{TypeNames: []string{"a"}, AfterID: -1})
	require.ErrorIs(t, err, ErrInvalidFilter)
}

type limitRecorder struct {
	memoryAuditRepo
	limits []int
}

func (r *limitRecorder) List(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	r.limits = append(r.limits, filter.Limit)
	return r.memoryAuditRepo.List(ctx, filter)
}

func TestAuditServiceListClampsLimit(t *testing.T) {
	repo := &limitRecorder{}
	svc := NewAuditService(repo)
	for _, limit := range []int{0, 5000, 50} {
		_, err := svc.List(context.Background(), domain.AuditLogFilter{TypeNames: []string{"a"}, Limit: limit})
		require.NoError(t, err)
	}
	require.Equal(t, []int{100, 1000, 50}, repo.limits)
}

func TestPageSize(t *testing.T) {
	require.Equal(t, DefaultListLimit, PageSize(0))
	require.Equal(t, DefaultListLimit, PageSize(-1))
	require.Equal(t, 7, PageSize(7))
	require.Equal(t, MaxListLimit, PageSize(MaxListLimit+1))
}
