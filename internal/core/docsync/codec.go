package docsync

import (
	"sort"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/models"
)

// Registry resolves component type names.
type Registry interface {
	Lookup(name string) (*models.ComponentType, error)
}

type entityValue struct {
	id         models.EntityID
	components []*models.Component
}

// decodeDocument parses a whole-document value into entities ordered by id.
func decodeDocument(reg Registry, value any) ([]entityValue, error) {
	doc, err := asObject(value)
	if err != nil {
		return nil, errors.Wrap(err, "document")
	}
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	out := make([]entityValue, 0, len(ids))
	for _, id := range ids {
		components, err := decodeEntity(reg, models.EntityID(id), doc[id])
		if err != nil {
			return nil, err
		}
		out = append(out, entityValue{id: models.EntityID(id), components: components})
	}
	return out, nil
}

func decodeEntity(reg Registry, id models.EntityID, value any) ([]*models.Component, error) {
	entity, err := asObject(value)
	if err != nil {
		return nil, errors.Wrapf(err, "entity %q", id)
	}
	names := make([]string, 0, len(entity))
	for name := range entity {
		names = append(names, name)
	}
	sort.Strings(names)

	components := make([]*models.Component, 0, len(names))
	for _, name := range names {
		c, err := decodeComponent(reg, name, entity[name])
		if err != nil {
			return nil, errors.Wrapf(err, "entity %q", id)
		}
		components = append(components, c)
	}
	return components, nil
}

func decodeComponent(reg Registry, typeName string, value any) (*models.Component, error) {
	ct, err := reg.Lookup(typeName)
	if err != nil {
		return nil, err
	}
	state, err := ct.Schema().Deserialize(value)
	if err != nil {
		return nil, errors.Wrapf(err, "component %q", typeName)
	}
	return ct.New(state), nil
}

func asObject(value any) (map[string]any, error) {
	switch v := value.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return v, nil
	case models.State:
		return v, nil
	case []byte:
		var out map[string]any
		if err := json.Unmarshal(v, &out); err != nil {
			return nil, errors.Wrap(ErrMalformedDocument, err.Error())
		}
		if out == nil {
			out = map[string]any{}
		}
		return out, nil
	}
	return nil, errors.Wrapf(ErrMalformedDocument, "expected object, got %T", value)
}

// singleValue picks the value carried by a Put or a one-element Insert.
func singleValue(value any, values []any) (any, error) {
	switch {
	case len(values) == 1:
		return values[0], nil
	case len(values) > 1:
		return nil, errors.Wrapf(ErrMalformedDocument, "expected one value, got %d", len(values))
	}
	return value, nil
}
