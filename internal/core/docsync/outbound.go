package docsync

import (
	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/models"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/world"
)

var _ world.Observer = (*mirror)(nil)

// mirror projects world mutations into the document. It is subscribed with
// the session origin ignored, so inbound batches never reach it. Commits wait
// for the guard, so none starts while an inbound batch is applied.
type mirror struct {
	s *Session
}

func (m *mirror) OnEntityCreated(e world.EntityCreated) {
	if m.silenced() {
		return
	}
	value := make(map[string]any, len(e.Components))
	for _, c := range e.Components {
		serialized, err := c.Type.Schema().Serialize(c.State)
		if err != nil {
			m.s.commitFailed("entity created", err, log.String("entity", e.ID.String()), log.String("type", c.TypeName()))
			return
		}
		value[c.TypeName()] = serialized
	}
	m.commit("entity created", func(tx document.Tx) error {
		return tx.Put(document.Path{e.ID.String()}, value)
	}, log.String("entity", e.ID.String()))
}

func (m *mirror) OnEntityDestroyed(e world.EntityDestroyed) {
	if m.silenced() {
		return
	}
	m.commit("entity destroyed", func(tx document.Tx) error {
		return tx.Delete(document.Path{e.ID.String()})
	}, log.String("entity", e.ID.String()))
}

func (m *mirror) OnComponentSet(e world.ComponentSet) {
	if m.silenced() {
		return
	}
	serialized, err := e.Component.Type.Schema().Serialize(e.Component.State)
	if err != nil {
		m.s.commitFailed("component set", err, log.String("entity", e.ID.String()), log.String("type", e.Component.TypeName()))
		return
	}
	m.commit("component set", func(tx document.Tx) error {
		return tx.Put(document.Path{e.ID.String(), e.Component.TypeName()}, serialized)
	}, log.String("entity", e.ID.String()), log.String("type", e.Component.TypeName()))
}

func (m *mirror) OnComponentUnset(e world.ComponentUnset) {
	if m.silenced() {
		return
	}
	m.commit("component unset", func(tx document.Tx) error {
		return tx.Delete(document.Path{e.ID.String(), e.TypeName})
	}, log.String("entity", e.ID.String()), log.String("type", e.TypeName))
}

// OnFieldsChanged merges only the changed keys so concurrent remote edits
// to sibling fields survive. Values are taken from the serialized state.
func (m *mirror) OnFieldsChanged(e world.FieldsChanged) {
	if m.silenced() {
		return
	}
	serialized := map[string]any(e.State)
	if sch := e.Type.Schema(); sch != nil {
		var err error
		if serialized, err = sch.Serialize(e.State); err != nil {
			m.s.commitFailed("fields changed", err, log.String("entity", e.ID.String()), log.String("type", e.TypeName))
			return
		}
	}
	m.commit("fields changed", func(tx document.Tx) error {
		for key := range e.Changed {
			path := document.Path{e.ID.String(), e.TypeName, key}
			v, present := serialized[key]
			if !present {
				if err := tx.Delete(path); err != nil {
					return err
				}
				continue
			}
			if err := tx.Put(path, models.CloneValue(v)); err != nil {
				return err
			}
		}
		for _, key := range e.Removed {
			if err := tx.Delete(document.Path{e.ID.String(), e.TypeName, key}); err != nil {
				return err
			}
		}
		return nil
	}, log.String("entity", e.ID.String()), log.String("type", e.TypeName))
}

func (m *mirror) silenced() bool {
	return m.s.disposed.Load()
}

func (m *mirror) commit(op string, fn func(tx document.Tx) error, fields ...log.Field) {
	defer m.s.guard.enter(ApplyingOutbound)()
	if m.silenced() {
		return
	}
	if err := m.s.handle.Commit(fn, document.WithOrigin(m.s.origin)); err != nil {
		m.s.commitFailed(op, err, fields...)
		return
	}
	m.s.stats.outboundCommits.Add(1)
}
