package domain

import (
	"encoding/json"
	"time"
)

type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxDispatched OutboxStatus = "dispatched"
	OutboxDead       OutboxStatus = "dead"
)

// OutboxEvent is a persisted audit log awaiting delivery to subscribers
// outside the process. PayloadJSON holds the encoded AuditLog.
type OutboxEvent struct {
	ID            int64
	EventID       string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

// OutboxTopic is the topic an audit log of eventType is published under.
func OutboxTopic(eventType EventType) string {
	return "audit." + string(eventType)
}
