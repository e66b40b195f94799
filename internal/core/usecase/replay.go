package usecase

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

// ReplayHistory feeds every stored log matching typeNames (and recordID when
// set) to applyFn in ascending id order, fetching batchSize logs at a time.
func ReplayHistory(ctx context.Context, audit *AuditService, typeNames []string, recordID *string, batchSize int, applyFn func(domain.AuditLog) error) error {
	afterID := int64(0)
	for {
		logs, err := audit.List(ctx, domain.AuditLogFilter{
			TypeNames: typeNames,
			RecordID:  recordID,
			AfterID:   afterID,
			Limit:     batchSize,
		})
		if err != nil {
			return fmt.Errorf("list audit logs: %w", err)
		}
		if len(logs) == 0 {
			return nil
		}

		for _, l := range logs {
			if err := applyFn(l); err != nil {
				return fmt.Errorf("apply audit log %s: %w", l.EventID, err)
			}
			afterID = l.ID
		}
	}
}
