package domain

import "errors"

var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidEntityState    = errors.New("invalid entity state")
	ErrUnknownProperty       = errors.New("unknown property")
	ErrNotStruct             = errors.New("entity type must be a struct")
	ErrNoPrimaryKey          = errors.New("entity has no primary key")
	ErrInvalidTrackingConfig = errors.New("invalid tracking config")
)
