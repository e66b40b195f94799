package domain

import "time"

// EventType is the semantic kind of change an audit log describes.
type EventType string

const (
	EventAdded       EventType = "added"
	EventModified    EventType = "modified"
	EventDeleted     EventType = "deleted"
	EventSoftDeleted EventType = "soft_deleted"
	EventUnDeleted   EventType = "undeleted"
)

func (e EventType) Valid() bool {
	switch e {
	case EventAdded, EventModified, EventDeleted, EventSoftDeleted, EventUnDeleted:
		return true
	}
	return false
}

// LogDetail is one property change inside an audit log.
type LogDetail struct {
	PropertyName  string `json:"property_name"`
	OriginalValue string `json:"original_value"`
	NewValue      string `json:"new_value"`
}

// AuditLog records a single change to one entity. BaseTypeName is the
// declaring base type shared by sibling entity types.
type AuditLog struct {
	ID           int64       `json:"id"`
	EventID      string      `json:"event_id"`
	TypeFullName string      `json:"type_full_name"`
	BaseTypeName string      `json:"base_type_name"`
	RecordID     string      `json:"record_id"`
	EventType    EventType   `json:"event_type"`
	Actor        string      `json:"actor"`
	EventDate    time.Time   `json:"event_date"`
	Metadata     Metadata    `json:"metadata,omitempty"`
	Details      []LogDetail `json:"details"`
}

// AuditLogFilter selects logs stored under any of TypeNames. When
// BaseTypeName is set it selects every log whose declaring base type is
// BaseTypeName instead.
type AuditLogFilter struct {
	TypeNames    []string
	BaseTypeName string
	// RecordID restricts the result to one stringified primary key when set.
	RecordID *string
	AfterID  int64
	Limit    int
}
