package models

// EntityID identifies an entity across every replica of a document.
type EntityID string

func (id EntityID) String() string { return string(id) }

// State is the JSON-shaped state of one component instance.
type State map[string]any

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	if s == nil {
		return nil
	}
	return CloneValue(map[string]any(s)).(map[string]any)
}

// CloneValue deep-copies a JSON-shaped value (objects, arrays, scalars).
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = CloneValue(val)
		}
		return out
	case State:
		out := make(State, len(t))
		for k, val := range t {
			out[k] = CloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = CloneValue(val)
		}
		return out
	default:
		return v
	}
}
