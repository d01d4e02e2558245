package docsync

import (
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/world"
)

// Project renders w in the document shape { entityId: { typeName: json } }.
func Project(w *world.World) (map[string]any, error) {
	out := make(map[string]any, w.Len())
	for _, id := range w.Entities() {
		components, ok := w.GetComponents(id)
		if !ok {
			continue
		}
		entity := make(map[string]any, len(components))
		for _, c := range components {
			serialized, err := c.Type.Schema().Serialize(c.State)
			if err != nil {
				return nil, errors.Wrapf(err, "entity %q component %q", id, c.TypeName())
			}
			entity[c.TypeName()] = serialized
		}
		out[id.String()] = entity
	}
	return out, nil
}
