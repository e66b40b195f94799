package usecase

import (
	"context"
	"fmt"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/core/tracking"
)

// EventClassifier resolves the semantic event type of a modified or deleted
// entity, detecting soft deletes and restores.
type EventClassifier struct {
	cfg *tracking.Config
}

func NewEventClassifier(cfg *tracking.Config) *EventClassifier {
	return &EventClassifier{cfg: cfg}
}

func (c *EventClassifier) Classify(ctx context.Context, entry ports.EntityEntry) (domain.EventType, error) {
	switch entry.State() {
	case domain.StateDeleted:
		return domain.EventDeleted, nil
	case domain.StateModified:
	default:
		return "", fmt.Errorf("classify %s entry: %w", entry.State(), domain.ErrInvalidEntityState)
	}

	sd, ok := c.cfg.SoftDeletable()
	if !ok || !c.cfg.IsSoftDeletable(entry.EntityType()) {
		return domain.EventModified, nil
	}

	var previous domain.PropertyValues
	var err error
	if c.cfg.DisconnectedContext() {
		previous, err = entry.DatabaseValues(ctx)
	} else {
		previous, err = entry.OriginalValues(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("load original values: %w", err)
	}
	current, err := entry.CurrentValues(ctx)
	if err != nil {
		return "", fmt.Errorf("load current values: %w", err)
	}

	wasDeleted, ok1 := asBool(previous[sd.PropertyName])
	isDeleted, ok2 := asBool(current[sd.PropertyName])
	if !ok1 || !ok2 {
		return domain.EventModified, nil
	}
	switch {
	case wasDeleted && !isDeleted:
		return domain.EventUnDeleted, nil
	case !wasDeleted && isDeleted:
		return domain.EventSoftDeleted, nil
	}
	return domain.EventModified, nil
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case *bool:
		if b == nil {
			return false, true
		}
		return *b, true
	}
	return false, false
}
