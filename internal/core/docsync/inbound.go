package docsync

import (
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/models"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/world"
)

// interpreter turns one change batch into world mutations. It lives for a
// single batch so the document snapshot is read at most once.
type interpreter struct {
	registry Registry
	world    *world.World
	tx       *world.Tx
	log      log.Log

	snapshot map[string]any
	load     func() (any, error)
}

func (in *interpreter) apply(p document.Patch) error {
	if !p.Action.Supported() {
		return errors.Wrapf(ErrUnsupportedPatchAction, "%s at %s", p.Action, p.Path)
	}
	target, err := ParseTarget(p.Path)
	if err != nil {
		return err
	}
	if p.Action == document.ActionSplice && target.depth() < 3 {
		return errors.Wrapf(ErrUnsupportedPatchAction, "splice at %s", p.Path)
	}

	switch t := target.(type) {
	case WholeDocument:
		return in.applyDocument(p)
	case EntityTarget:
		return in.applyEntity(t, p)
	case ComponentTarget:
		return in.applyComponent(t, p)
	case FieldTarget:
		return in.applyField(t)
	default:
		return errors.Wrapf(ErrMalformedPatchPath, "unhandled target %T", target)
	}
}

func (in *interpreter) applyDocument(p document.Patch) error {
	if p.Action == document.ActionDelete {
		for _, id := range in.world.Entities() {
			in.tx.DestroyEntity(id)
		}
		return nil
	}

	value, err := singleValue(p.Value, p.Values)
	if err != nil {
		return err
	}
	entities, err := decodeDocument(in.registry, value)
	if err != nil {
		return err
	}

	keep := make(map[models.EntityID]struct{}, len(entities))
	for _, e := range entities {
		keep[e.id] = struct{}{}
	}
	for _, id := range in.world.Entities() {
		if _, ok := keep[id]; !ok {
			in.tx.DestroyEntity(id)
		}
	}
	for _, e := range entities {
		if err = in.replaceEntity(e.id, e.components); err != nil {
			return err
		}
	}
	return nil
}

func (in *interpreter) applyEntity(t EntityTarget, p document.Patch) error {
	if p.Action == document.ActionDelete {
		in.tx.DestroyEntity(t.ID)
		return nil
	}

	value, err := singleValue(p.Value, p.Values)
	if err != nil {
		return err
	}
	components, err := decodeEntity(in.registry, t.ID, value)
	if err != nil {
		return err
	}
	return in.replaceEntity(t.ID, components)
}

// replaceEntity creates id with exactly the given components. A put over an
// existing entity replaces it.
func (in *interpreter) replaceEntity(id models.EntityID, components []*models.Component) error {
	in.tx.DestroyEntity(id)
	return in.tx.CreateEntityWithID(id, components...)
}

func (in *interpreter) applyComponent(t ComponentTarget, p document.Patch) error {
	if p.Action == document.ActionDelete {
		ct, err := in.registry.Lookup(t.TypeName)
		if err != nil {
			return err
		}
		return in.tx.UnsetComponent(t.ID, ct.Name())
	}

	value, err := singleValue(p.Value, p.Values)
	if err != nil {
		return err
	}
	c, err := decodeComponent(in.registry, t.TypeName, value)
	if err != nil {
		return errors.Wrapf(err, "entity %q", t.ID)
	}
	return in.tx.SetComponent(t.ID, c)
}

// applyField re-derives the addressed top-level field from the document
// snapshot and writes just that key into the component. The snapshot
// already holds the outcome of the whole batch, so repeated patches on one
// field all assign the same final value.
func (in *interpreter) applyField(t FieldTarget) error {
	current, ok := in.world.GetComponent(t.ID, t.TypeName)
	if !ok {
		return errors.Wrapf(world.ErrComponentNotFound, "entity %q type %q", t.ID, t.TypeName)
	}

	doc, err := in.documentSnapshot()
	if err != nil {
		return err
	}
	component, found := componentIn(doc, t.ID, t.TypeName)
	if !found {
		in.log.Debug("field patch target gone from document, skipping",
			log.String("entity", t.ID.String()),
			log.String("type", t.TypeName),
			log.String("field", t.Field))
		return nil
	}

	next := current.State.Clone()
	if v, present := component[t.Field]; present {
		next[t.Field] = models.CloneValue(v)
	} else {
		delete(next, t.Field)
	}
	validated, err := current.Type.Schema().Deserialize(map[string]any(next))
	if err != nil {
		return errors.Wrapf(err, "entity %q field %q", t.ID, t.Field)
	}

	return in.tx.UpdateComponent(t.ID, t.TypeName, func(s models.State) {
		if v, present := validated[t.Field]; present {
			s[t.Field] = v
		} else {
			delete(s, t.Field)
		}
	})
}

func (in *interpreter) documentSnapshot() (map[string]any, error) {
	if in.snapshot != nil {
		return in.snapshot, nil
	}
	raw, err := in.load()
	if err != nil {
		return nil, errors.Wrap(err, "read document snapshot")
	}
	doc, err := asObject(raw)
	if err != nil {
		return nil, err
	}
	in.snapshot = doc
	return doc, nil
}

func componentIn(doc map[string]any, id models.EntityID, typeName string) (map[string]any, bool) {
	entity, ok := doc[id.String()].(map[string]any)
	if !ok {
		return nil, false
	}
	component, ok := entity[typeName].(map[string]any)
	return component, ok
}
