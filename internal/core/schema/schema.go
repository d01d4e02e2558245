package schema

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/models"
)

var _ models.Schema = (*Schema)(nil)

// SchemaError reports a value that does not fit a component schema.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema %s: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// Schema is the serialization contract of one component type. Typed schemas
// are reflected from a Go struct; dynamic schemas accept any JSON object.
type Schema struct {
	name      string
	typ       reflect.Type
	reflected *jsonschema.Schema
}

// Reflect builds a schema from struct T. Field names follow T's json tags.
func Reflect[T any]() *Schema {
	var zero T
	t := reflect.TypeOf(zero)
	if t == nil || t.Kind() != reflect.Struct {
		panic(fmt.Sprintf("schema: %T is not a struct", zero))
	}
	return &Schema{
		name:      t.Name(),
		typ:       t,
		reflected: jsonschema.Reflect(zero),
	}
}

// Dynamic returns a schema accepting any JSON object as state.
func Dynamic() *Schema {
	return &Schema{name: "object"}
}

func (s *Schema) Name() string { return s.name }

// IsDynamic reports whether the schema has no backing struct.
func (s *Schema) IsDynamic() bool { return s.typ == nil }

// JSONSchema renders the JSON Schema document for this component.
func (s *Schema) JSONSchema() ([]byte, error) {
	if s.reflected == nil {
		return []byte(`{"type":"object"}`), nil
	}
	bz, err := s.reflected.MarshalJSON()
	if err != nil {
		return nil, errors.Wrap(err, "marshal json schema")
	}
	return bz, nil
}

func (s *Schema) Serialize(state models.State) (map[string]any, error) {
	if state == nil {
		state = models.State{}
	}
	out, err := s.normalize(map[string]any(state))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Schema) Deserialize(value any) (models.State, error) {
	out, err := s.normalize(value)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// normalize pushes a value through the schema and back into plain JSON
// values: objects become map[string]any and numbers float64.
func (s *Schema) normalize(value any) (map[string]any, error) {
	if value == nil {
		return nil, s.fail(errors.New("null is not an object"))
	}

	raw, err := toRaw(value)
	if err != nil {
		return nil, s.fail(err)
	}

	if s.typ != nil {
		ptr := reflect.New(s.typ)
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err = dec.Decode(ptr.Interface()); err != nil {
			return nil, s.fail(err)
		}
		if raw, err = json.Marshal(ptr.Interface()); err != nil {
			return nil, s.fail(err)
		}
	}

	var out map[string]any
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, s.fail(err)
	}
	if out == nil {
		return nil, s.fail(errors.New("null is not an object"))
	}
	return out, nil
}

func (s *Schema) fail(err error) error {
	return &SchemaError{Schema: s.name, Err: err}
}

func toRaw(value any) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	default:
		return json.Marshal(v)
	}
}
