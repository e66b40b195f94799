package domain

// EntityState is the persistence state of an entity relative to the last
// known stored state.
type EntityState int

const (
	StateDetached EntityState = iota
	StateUnchanged
	StateAdded
	StateModified
	StateDeleted
)

func (s EntityState) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateUnchanged:
		return "unchanged"
	case StateAdded:
		return "added"
	case StateModified:
		return "modified"
	case StateDeleted:
		return "deleted"
	}
	return "unknown"
}

// PropertyValues maps property names to raw Go values.
type PropertyValues map[string]any
