package domain

// Priority decides which of two tracking registrations for the same property
// wins. Higher wins; equal priority means the newer registration wins.
type Priority int

const (
	PriorityDefault Priority = iota
	PriorityHigh
)

func (p Priority) String() string {
	if p == PriorityHigh {
		return "high"
	}
	return "default"
}

// PropertyConfigurationKey identifies a property on the declaring base type.
// An empty PropertyName addresses the whole type.
type PropertyConfigurationKey struct {
	PropertyName string
	OwnerType    string
}

type TrackingConfigurationValue struct {
	Enabled  bool
	Priority Priority
}
