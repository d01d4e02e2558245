package world

import (
	"sort"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/wI2L/jsondiff"

	"github.com/zeusync/worldsync/internal/core/events/bus"
	"github.com/zeusync/worldsync/internal/core/models"
)

// World indexes entities and their components. The entity index is the
// primary store; the type index is derived from it and both are updated
// under one write lock, so readers never see them disagree.
//
// Writers are serialized: every mutation, and every Batch as a whole, runs
// under writeMu together with the delivery of its notifications. Observers
// therefore see notifications in mutation order and must not mutate the
// World from inside a notification.
type World struct {
	mu       sync.RWMutex
	entities map[models.EntityID]map[string]*models.Component
	byType   map[string]map[models.EntityID]struct{}
	ids      IDAllocator
	events   bus.EventBus

	writeMu sync.Mutex
}

type Option func(*World)

// WithIDAllocator overrides the default sequential "e<n>" allocator.
func WithIDAllocator(a IDAllocator) Option {
	return func(w *World) {
		if a != nil {
			w.ids = a
		}
	}
}

// WithEventBus routes notifications through b, e.g. one carrying delivery
// observers. The bus must not be shared with another World.
func WithEventBus(b bus.EventBus) Option {
	return func(w *World) {
		if b != nil {
			w.events = b
		}
	}
}

func New(opts ...Option) *World {
	w := &World{
		entities: make(map[models.EntityID]map[string]*models.Component),
		byType:   make(map[string]map[models.EntityID]struct{}),
		ids:      NewSequentialIDs("e"),
		events:   bus.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type subscribeOptions struct {
	ignore map[string]struct{}
}

type SubscribeOption func(*subscribeOptions)

// IgnoreOrigin drops notifications of batches run with BatchFrom(origin, ...).
func IgnoreOrigin(origin string) SubscribeOption {
	return func(o *subscribeOptions) {
		if o.ignore == nil {
			o.ignore = make(map[string]struct{})
		}
		o.ignore[origin] = struct{}{}
	}
}

// Subscribe registers an observer for every world mutation.
func (w *World) Subscribe(obs Observer, opts ...SubscribeOption) (bus.Subscription, error) {
	if obs == nil {
		return nil, errors.New("world: nil observer")
	}
	var o subscribeOptions
	for _, opt := range opts {
		opt(&o)
	}
	return w.events.SubscribeAll(dispatch(obs, o.ignore))
}

// Batch runs fn as one grouped mutation. Notifications for the mutations
// made through tx are held back and delivered together once fn returns,
// also when fn fails. Mutations already made are kept.
//
// Other writers wait until the batch and its notifications are done. Calling
// the World's own mutators from fn deadlocks; use tx.
func (w *World) Batch(fn func(tx *Tx) error) error {
	return w.BatchFrom("", fn)
}

// BatchFrom is Batch with its notifications stamped with origin.
func (w *World) BatchFrom(origin string, fn func(tx *Tx) error) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	tx := &Tx{w: w, source: eventSource}
	if origin != "" {
		tx.source = origin
	}
	err := fn(tx)
	tx.closed = true
	if len(tx.pending) > 0 {
		_ = w.events.PublishBatch(tx.pending...)
	}
	return err
}

func (w *World) CreateEntity(components ...*models.Component) (models.EntityID, error) {
	var id models.EntityID
	err := w.Batch(func(tx *Tx) (err error) {
		id, err = tx.CreateEntity(components...)
		return err
	})
	return id, err
}

func (w *World) CreateEntityWithID(id models.EntityID, components ...*models.Component) error {
	return w.Batch(func(tx *Tx) error {
		return tx.CreateEntityWithID(id, components...)
	})
}

// DestroyEntity removes the entity and all its components. It reports
// whether the entity existed.
func (w *World) DestroyEntity(id models.EntityID) bool {
	var existed bool
	_ = w.Batch(func(tx *Tx) error {
		existed = tx.DestroyEntity(id)
		return nil
	})
	return existed
}

// SetComponent attaches c to the entity, replacing any component of the same type.
func (w *World) SetComponent(id models.EntityID, c *models.Component) error {
	return w.Batch(func(tx *Tx) error {
		return tx.SetComponent(id, c)
	})
}

// UnsetComponent detaches the component of the given type. Detaching a
// component the entity does not hold is a no-op.
func (w *World) UnsetComponent(id models.EntityID, typeName string) error {
	return w.Batch(func(tx *Tx) error {
		return tx.UnsetComponent(id, typeName)
	})
}

// UpdateComponent applies fn to a copy of the component state and merges
// only the top-level keys fn changed back into the world.
func (w *World) UpdateComponent(id models.EntityID, typeName string, fn func(models.State)) error {
	return w.Batch(func(tx *Tx) error {
		return tx.UpdateComponent(id, typeName, fn)
	})
}

func (w *World) GetComponent(id models.EntityID, typeName string) (*models.Component, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, err := w.componentLocked(id, typeName)
	if err != nil {
		return nil, false
	}
	return c.Clone(), true
}

// GetComponents returns copies of the entity's components ordered by type name.
func (w *World) GetComponents(id models.EntityID) ([]*models.Component, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	set, exists := w.entities[id]
	if !exists {
		return nil, false
	}
	return sortedClones(set), true
}

func (w *World) HasEntity(id models.EntityID) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, exists := w.entities[id]
	return exists
}

// Entities lists every entity id in lexical order.
func (w *World) Entities() []models.EntityID {
	w.mu.RLock()
	ids := make([]models.EntityID, 0, len(w.entities))
	for id := range w.entities {
		ids = append(ids, id)
	}
	w.mu.RUnlock()
	sortIDs(ids)
	return ids
}

// EntitiesWith lists the entities holding a component of typeName.
func (w *World) EntitiesWith(typeName string) []models.EntityID {
	w.mu.RLock()
	idx := w.byType[typeName]
	ids := make([]models.EntityID, 0, len(idx))
	for id := range idx {
		ids = append(ids, id)
	}
	w.mu.RUnlock()
	sortIDs(ids)
	return ids
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entities)
}

func (w *World) componentLocked(id models.EntityID, typeName string) (*models.Component, error) {
	set, exists := w.entities[id]
	if !exists {
		return nil, errors.Wrapf(ErrEntityNotFound, "entity %q", id)
	}
	c, has := set[typeName]
	if !has {
		return nil, errors.Wrapf(ErrComponentNotFound, "entity %q type %q", id, typeName)
	}
	return c, nil
}

func (w *World) insertLocked(id models.EntityID, set map[string]*models.Component) {
	w.entities[id] = set
	for typeName := range set {
		w.indexLocked(typeName, id)
	}
}

func (w *World) indexLocked(typeName string, id models.EntityID) {
	idx, ok := w.byType[typeName]
	if !ok {
		idx = make(map[models.EntityID]struct{})
		w.byType[typeName] = idx
	}
	idx[id] = struct{}{}
}

func (w *World) unindexLocked(typeName string, id models.EntityID) {
	idx, ok := w.byType[typeName]
	if !ok {
		return
	}
	delete(idx, id)
	if len(idx) == 0 {
		delete(w.byType, typeName)
	}
}

// validate copies c with its state passed through the type's schema, so the
// World only holds state a peer could load back.
func validate(c *models.Component) (*models.Component, error) {
	if c == nil || c.Type == nil {
		return nil, ErrInvalidComponent
	}
	state, err := validState(c.Type, c.State)
	if err != nil {
		return nil, err
	}
	return &models.Component{Type: c.Type, State: state}, nil
}

func validState(t *models.ComponentType, state models.State) (models.State, error) {
	if state == nil {
		state = models.State{}
	}
	s := t.Schema()
	if s == nil {
		return state.Clone(), nil
	}
	out, err := s.Deserialize(map[string]any(state))
	if err != nil {
		return nil, errors.Wrapf(err, "component %q", t.Name())
	}
	return out, nil
}

func componentSet(components []*models.Component) (map[string]*models.Component, error) {
	set := make(map[string]*models.Component, len(components))
	for _, c := range components {
		stored, err := validate(c)
		if err != nil {
			return nil, err
		}
		if _, dup := set[stored.TypeName()]; dup {
			return nil, errors.Wrapf(ErrDuplicateComponent, "type %q", stored.TypeName())
		}
		set[stored.TypeName()] = stored
	}
	return set, nil
}

func sortedClones(set map[string]*models.Component) []*models.Component {
	out := make([]*models.Component, 0, len(set))
	for _, c := range set {
		out = append(out, c.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeName() < out[j].TypeName() })
	return out
}

func sortIDs(ids []models.EntityID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

// diffKeys reports which top-level keys differ between two states, using a
// JSON diff so numerically equal values of different Go types compare equal.
func diffKeys(before, after models.State) (map[string]any, []string, error) {
	patch, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, nil, errors.Wrap(err, "diff component state")
	}

	changed := make(map[string]any)
	var removed []string
	seen := make(map[string]struct{})
	for _, op := range patch {
		key, ok := topLevelKey(string(op.Path))
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if v, present := after[key]; present {
			changed[key] = models.CloneValue(v)
		} else {
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return changed, removed, nil
}

func topLevelKey(pointer string) (string, bool) {
	if !strings.HasPrefix(pointer, "/") {
		return "", false
	}
	seg := pointer[1:]
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	seg = strings.ReplaceAll(seg, "~1", "/")
	seg = strings.ReplaceAll(seg, "~0", "~")
	return seg, true
}
