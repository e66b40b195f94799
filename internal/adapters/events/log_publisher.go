package events

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

// LogPublisher writes each audit log to the application log. It is the
// fallback when no webhook is configured.
type LogPublisher struct {
	log *logrus.Logger
}

func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, topic string, event domain.AuditLog) error {
	p.log.WithContext(ctx).WithFields(logrus.Fields{
		"topic":      topic,
		"event_id":   event.EventID,
		"event_type": event.EventType,
		"type":       event.TypeFullName,
		"record_id":  event.RecordID,
		"actor":      event.Actor,
		"details":    len(event.Details),
	}).Info("audit log published")
	return nil
}
