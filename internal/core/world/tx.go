package world

import (
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/events/bus"
	"github.com/zeusync/worldsync/internal/core/models"
)

// ErrTxClosed is returned when a Tx is used after its batch returned.
var ErrTxClosed = errors.New("world: batch already finished")

// Tx is the mutation surface of a Batch. Mutations take effect immediately
// and are visible to readers; their notifications wait for the batch end.
type Tx struct {
	w       *World
	source  string
	pending []bus.Event
	closed  bool
}

func (tx *Tx) emit(data any, eventType string) {
	tx.pending = append(tx.pending, bus.NewEvent(eventType, tx.source, data))
}

func (tx *Tx) CreateEntity(components ...*models.Component) (models.EntityID, error) {
	if tx.closed {
		return "", ErrTxClosed
	}
	set, err := componentSet(components)
	if err != nil {
		return "", err
	}

	w := tx.w
	w.mu.Lock()
	id := w.ids.Next(func(candidate models.EntityID) bool {
		_, taken := w.entities[candidate]
		return taken
	})
	w.insertLocked(id, set)
	w.mu.Unlock()

	tx.emit(EntityCreated{ID: id, Components: sortedClones(set)}, EventEntityCreated)
	return id, nil
}

func (tx *Tx) CreateEntityWithID(id models.EntityID, components ...*models.Component) error {
	if tx.closed {
		return ErrTxClosed
	}
	set, err := componentSet(components)
	if err != nil {
		return err
	}

	w := tx.w
	w.mu.Lock()
	if _, exists := w.entities[id]; exists {
		w.mu.Unlock()
		return errors.Wrapf(ErrEntityExists, "entity %q", id)
	}
	w.insertLocked(id, set)
	w.mu.Unlock()

	tx.emit(EntityCreated{ID: id, Components: sortedClones(set)}, EventEntityCreated)
	return nil
}

func (tx *Tx) DestroyEntity(id models.EntityID) bool {
	if tx.closed {
		return false
	}
	w := tx.w
	w.mu.Lock()
	set, exists := w.entities[id]
	if !exists {
		w.mu.Unlock()
		return false
	}
	for typeName := range set {
		w.unindexLocked(typeName, id)
	}
	delete(w.entities, id)
	w.mu.Unlock()

	tx.emit(EntityDestroyed{ID: id}, EventEntityDestroyed)
	return true
}

func (tx *Tx) SetComponent(id models.EntityID, c *models.Component) error {
	if tx.closed {
		return ErrTxClosed
	}
	stored, err := validate(c)
	if err != nil {
		return err
	}

	w := tx.w
	w.mu.Lock()
	set, exists := w.entities[id]
	if !exists {
		w.mu.Unlock()
		return errors.Wrapf(ErrEntityNotFound, "entity %q", id)
	}
	set[stored.TypeName()] = stored
	w.indexLocked(stored.TypeName(), id)
	w.mu.Unlock()

	tx.emit(ComponentSet{ID: id, Component: stored.Clone()}, EventComponentSet)
	return nil
}

func (tx *Tx) UnsetComponent(id models.EntityID, typeName string) error {
	if tx.closed {
		return ErrTxClosed
	}
	w := tx.w
	w.mu.Lock()
	set, exists := w.entities[id]
	if !exists {
		w.mu.Unlock()
		return errors.Wrapf(ErrEntityNotFound, "entity %q", id)
	}
	if _, has := set[typeName]; !has {
		w.mu.Unlock()
		return nil
	}
	delete(set, typeName)
	w.unindexLocked(typeName, id)
	w.mu.Unlock()

	tx.emit(ComponentUnset{ID: id, TypeName: typeName}, EventComponentUnset)
	return nil
}

// UpdateComponent runs fn on a copy of the state. The result must still fit
// the component schema; only the top-level keys that differ are written.
func (tx *Tx) UpdateComponent(id models.EntityID, typeName string, fn func(models.State)) error {
	if tx.closed {
		return ErrTxClosed
	}
	w := tx.w
	w.mu.RLock()
	current, err := w.componentLocked(id, typeName)
	if err != nil {
		w.mu.RUnlock()
		return err
	}
	ct, before := current.Type, current.State.Clone()
	w.mu.RUnlock()

	after := before.Clone()
	fn(after)
	after, err = validState(ct, after)
	if err != nil {
		return err
	}

	changed, removed, err := diffKeys(before, after)
	if err != nil {
		return err
	}
	if len(changed) == 0 && len(removed) == 0 {
		return nil
	}

	w.mu.Lock()
	c, err := w.componentLocked(id, typeName)
	if err != nil {
		w.mu.Unlock()
		return err
	}
	for k, v := range changed {
		c.State[k] = models.CloneValue(v)
	}
	for _, k := range removed {
		delete(c.State, k)
	}
	state := c.State.Clone()
	w.mu.Unlock()

	tx.emit(FieldsChanged{ID: id, TypeName: typeName, Type: ct, Changed: changed, Removed: removed, State: state}, EventFieldsChanged)
	return nil
}
