package docsync

import (
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/models"
)

// Target is what a patch path addresses in the document shape
// { entityId: { typeName: componentJSON } }.
type Target interface {
	depth() int
}

type WholeDocument struct{}

type EntityTarget struct {
	ID models.EntityID
}

type ComponentTarget struct {
	ID       models.EntityID
	TypeName string
}

// FieldTarget addresses a top-level key of a component's state. Rest holds
// the path below that key, if any.
type FieldTarget struct {
	ID       models.EntityID
	TypeName string
	Field    string
	Rest     document.Path
}

func (WholeDocument) depth() int   { return 0 }
func (EntityTarget) depth() int    { return 1 }
func (ComponentTarget) depth() int { return 2 }
func (FieldTarget) depth() int     { return 3 }

// ParseTarget classifies a patch path by depth.
func ParseTarget(path document.Path) (Target, error) {
	if len(path) == 0 {
		return WholeDocument{}, nil
	}
	id, ok := path.Key(0)
	if !ok || id == "" {
		return nil, errors.Wrapf(ErrMalformedPatchPath, "entity id %v at %s", path[0], path)
	}
	if len(path) == 1 {
		return EntityTarget{ID: models.EntityID(id)}, nil
	}
	typeName, ok := path.Key(1)
	if !ok || typeName == "" {
		return nil, errors.Wrapf(ErrMalformedPatchPath, "component type %v at %s", path[1], path)
	}
	if len(path) == 2 {
		return ComponentTarget{ID: models.EntityID(id), TypeName: typeName}, nil
	}
	field, ok := path.Key(2)
	if !ok {
		return nil, errors.Wrapf(ErrMalformedPatchPath, "field %v at %s", path[2], path)
	}
	return FieldTarget{
		ID:       models.EntityID(id),
		TypeName: typeName,
		Field:    field,
		Rest:     append(document.Path(nil), path[3:]...),
	}, nil
}
