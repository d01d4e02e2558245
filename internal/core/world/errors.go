package world

import "github.com/pkg/errors"

var (
	ErrEntityExists       = errors.New("entity already exists")
	ErrEntityNotFound     = errors.New("entity not found")
	ErrComponentNotFound  = errors.New("component not found")
	ErrInvalidComponent   = errors.New("invalid component")
	ErrDuplicateComponent = errors.New("duplicate component type")
)
