package registry

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/models"
)

var (
	ErrTypeAlreadyRegistered = errors.New("component type already registered")
	ErrUnknownComponentType  = errors.New("component type not found")
	ErrInvalidType           = errors.New("invalid component type")
)

// Registry maps stable component type names to their descriptors.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*models.ComponentType
}

func New() *Registry {
	return &Registry{types: make(map[string]*models.ComponentType)}
}

// Register adds a type. Names are unique for the lifetime of the registry.
func (r *Registry) Register(t *models.ComponentType) error {
	if t == nil || t.Name() == "" || t.Schema() == nil {
		return ErrInvalidType
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[t.Name()]; exists {
		return errors.Wrapf(ErrTypeAlreadyRegistered, "type %q", t.Name())
	}
	r.types[t.Name()] = t
	return nil
}

// MustRegister registers every type and panics on the first failure.
func (r *Registry) MustRegister(types ...*models.ComponentType) {
	for _, t := range types {
		if err := r.Register(t); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(name string) (*models.ComponentType, error) {
	r.mu.RLock()
	t, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrUnknownComponentType, "type %q", name)
	}
	return t, nil
}

// List returns the registered names in lexical order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
