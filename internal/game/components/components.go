// Package components holds the component types shipped with worldsync.
package components

import (
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/models"
	"github.com/zeusync/worldsync/internal/core/schema"
)

type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Velocity struct {
	DX float64 `json:"dx"`
	DY float64 `json:"dy"`
}

type Label struct {
	Name string   `json:"name"`
	Tags []string `json:"tags,omitempty"`
}

var (
	PositionType = models.NewComponentType("Position", schema.Reflect[Position]())
	VelocityType = models.NewComponentType("Velocity", schema.Reflect[Velocity]())
	LabelType    = models.NewComponentType("Label", schema.Reflect[Label]())
)

// Registrar is satisfied by the component type registry.
type Registrar interface {
	Register(t *models.ComponentType) error
}

// Register adds the built-in types plus one free-form type per name in
// dynamic.
func Register(reg Registrar, dynamic ...string) error {
	types := []*models.ComponentType{PositionType, VelocityType, LabelType}
	for _, name := range dynamic {
		types = append(types, models.NewComponentType(name, schema.Dynamic()))
	}
	for _, t := range types {
		if err := reg.Register(t); err != nil {
			return errors.Wrapf(err, "register %s", t.Name())
		}
	}
	return nil
}
