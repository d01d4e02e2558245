package world

import (
	"github.com/zeusync/worldsync/internal/core/events/bus"
	"github.com/zeusync/worldsync/internal/core/models"
)

const (
	EventEntityCreated   = "world.entity.created"
	EventEntityDestroyed = "world.entity.destroyed"
	EventComponentSet    = "world.component.set"
	EventComponentUnset  = "world.component.unset"
	EventFieldsChanged   = "world.component.fields"

	eventSource = "world"
)

type EntityCreated struct {
	ID         models.EntityID
	Components []*models.Component
}

type EntityDestroyed struct {
	ID models.EntityID
}

type ComponentSet struct {
	ID        models.EntityID
	Component *models.Component
}

type ComponentUnset struct {
	ID       models.EntityID
	TypeName string
}

// FieldsChanged carries a field-level update of an existing component:
// Changed holds the new value of every modified top-level key, Removed the
// keys that disappeared and State the whole state after the update.
type FieldsChanged struct {
	ID       models.EntityID
	TypeName string
	Type     *models.ComponentType
	Changed  map[string]any
	Removed  []string
	State    models.State
}

// Observer receives world mutations in the order they happened. Inside a
// Batch the notifications arrive together once the batch completes. They are
// delivered while the World holds its writer lock: an observer may read the
// World but must not mutate it.
type Observer interface {
	OnEntityCreated(EntityCreated)
	OnEntityDestroyed(EntityDestroyed)
	OnComponentSet(ComponentSet)
	OnComponentUnset(ComponentUnset)
	OnFieldsChanged(FieldsChanged)
}

// ObserverFuncs adapts plain functions to Observer. Nil funcs are skipped.
type ObserverFuncs struct {
	EntityCreated   func(EntityCreated)
	EntityDestroyed func(EntityDestroyed)
	ComponentSet    func(ComponentSet)
	ComponentUnset  func(ComponentUnset)
	FieldsChanged   func(FieldsChanged)
}

func (o ObserverFuncs) OnEntityCreated(e EntityCreated) {
	if o.EntityCreated != nil {
		o.EntityCreated(e)
	}
}

func (o ObserverFuncs) OnEntityDestroyed(e EntityDestroyed) {
	if o.EntityDestroyed != nil {
		o.EntityDestroyed(e)
	}
}

func (o ObserverFuncs) OnComponentSet(e ComponentSet) {
	if o.ComponentSet != nil {
		o.ComponentSet(e)
	}
}

func (o ObserverFuncs) OnComponentUnset(e ComponentUnset) {
	if o.ComponentUnset != nil {
		o.ComponentUnset(e)
	}
}

func (o ObserverFuncs) OnFieldsChanged(e FieldsChanged) {
	if o.FieldsChanged != nil {
		o.FieldsChanged(e)
	}
}

func dispatch(obs Observer, ignore map[string]struct{}) bus.EventHandler {
	return func(ev bus.Event) error {
		if _, skip := ignore[ev.Source()]; skip {
			return nil
		}
		switch data := ev.Data().(type) {
		case EntityCreated:
			obs.OnEntityCreated(data)
		case EntityDestroyed:
			obs.OnEntityDestroyed(data)
		case ComponentSet:
			obs.OnComponentSet(data)
		case ComponentUnset:
			obs.OnComponentUnset(data)
		case FieldsChanged:
			obs.OnFieldsChanged(data)
		}
		return nil
	}
}
