package models

// Schema converts component state to and from plain JSON values.
type Schema interface {
	// Serialize renders the state as a JSON object.
	Serialize(state State) (map[string]any, error)
	// Deserialize validates a JSON value and turns it into state.
	Deserialize(value any) (State, error)
}

// ComponentType is an immutable, registered description of a component kind.
type ComponentType struct {
	name   string
	schema Schema
}

func NewComponentType(name string, schema Schema) *ComponentType {
	return &ComponentType{name: name, schema: schema}
}

func (t *ComponentType) Name() string   { return t.name }
func (t *ComponentType) Schema() Schema { return t.schema }
func (t *ComponentType) String() string { return t.name }

// New builds an instance of this type holding a copy of state.
func (t *ComponentType) New(state State) *Component {
	if state == nil {
		state = State{}
	}
	return &Component{Type: t, State: state.Clone()}
}

// Component is one component instance attached to an entity.
type Component struct {
	Type  *ComponentType
	State State
}

func (c *Component) TypeName() string {
	return c.Type.Name()
}

func (c *Component) Clone() *Component {
	return &Component{Type: c.Type, State: c.State.Clone()}
}
