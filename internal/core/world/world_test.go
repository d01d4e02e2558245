package world

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldsync/internal/core/models"
	"github.com/zeusync/worldsync/internal/core/schema"
)

var (
	position = models.NewComponentType("Position", schema.Dynamic())
	velocity = models.NewComponentType("Velocity", schema.Dynamic())
)

type recorder struct {
	events []string
}

func (r *recorder) observer() Observer {
	return ObserverFuncs{
		EntityCreated:   func(e EntityCreated) { r.events = append(r.events, "created:"+e.ID.String()) },
		EntityDestroyed: func(e EntityDestroyed) { r.events = append(r.events, "destroyed:"+e.ID.String()) },
		ComponentSet: func(e ComponentSet) {
			r.events = append(r.events, "set:"+e.ID.String()+":"+e.Component.TypeName())
		},
		ComponentUnset: func(e ComponentUnset) { r.events = append(r.events, "unset:"+e.ID.String()+":"+e.TypeName) },
		FieldsChanged:  func(e FieldsChanged) { r.events = append(r.events, "fields:"+e.ID.String()+":"+e.TypeName) },
	}
}

func TestCreateEntityAllocatesSequentialIDs(t *testing.T) {
	w := New()
	id, err := w.CreateEntity(position.New(models.State{"x": 1.0, "y": 2.0}))
	require.NoError(t, err)
	assert.Equal(t, models.EntityID("e1"), id)

	require.NoError(t, w.CreateEntityWithID("e2"))
	id, err = w.CreateEntity()
	require.NoError(t, err)
	assert.Equal(t, models.EntityID("e3"), id, "taken ids are skipped")

	c, ok := w.GetComponent("e1", "Position")
	require.True(t, ok)
	assert.Equal(t, 1.0, c.State["x"])
}

func TestCreateEntityWithIDRejectsDuplicates(t *testing.T) {
	w := New()
	require.NoError(t, w.CreateEntityWithID("a"))
	err := w.CreateEntityWithID("a")
	assert.True(t, errors.Is(err, ErrEntityExists))

	err = w.CreateEntityWithID("b", position.New(nil), position.New(nil))
	assert.ErrorIs(t, err, ErrDuplicateComponent)
	assert.False(t, w.HasEntity("b"))

	_, err = w.CreateEntity(nil)
	assert.ErrorIs(t, err, ErrInvalidComponent)
}

func TestIndicesStayConsistent(t *testing.T) {
	w := New()
	require.NoError(t, w.CreateEntityWithID("a", position.New(nil)))
	require.NoError(t, w.CreateEntityWithID("b", position.New(nil), velocity.New(nil)))

	assert.Equal(t, []models.EntityID{"a", "b"}, w.EntitiesWith("Position"))
	assert.Equal(t, []models.EntityID{"b"}, w.EntitiesWith("Velocity"))

	require.NoError(t, w.UnsetComponent("b", "Position"))
	assert.Equal(t, []models.EntityID{"a"}, w.EntitiesWith("Position"))

	require.NoError(t, w.SetComponent("a", velocity.New(nil)))
	assert.Equal(t, []models.EntityID{"a", "b"}, w.EntitiesWith("Velocity"))

	assert.True(t, w.DestroyEntity("a"))
	assert.Empty(t, w.EntitiesWith("Position"))
	assert.Equal(t, []models.EntityID{"b"}, w.EntitiesWith("Velocity"))
	assert.Equal(t, []models.EntityID{"b"}, w.Entities())
	assert.Equal(t, 1, w.Len())

	assert.False(t, w.DestroyEntity("a"), "destroying a missing entity is a no-op")
}

func TestMutationsRequireEntity(t *testing.T) {
	w := New()
	assert.ErrorIs(t, w.SetComponent("ghost", position.New(nil)), ErrEntityNotFound)
	assert.ErrorIs(t, w.UnsetComponent("ghost", "Position"), ErrEntityNotFound)
	assert.ErrorIs(t, w.UpdateComponent("ghost", "Position", func(models.State) {}), ErrEntityNotFound)

	require.NoError(t, w.CreateEntityWithID("a"))
	assert.ErrorIs(t, w.UpdateComponent("a", "Position", func(models.State) {}), ErrComponentNotFound)
	assert.NoError(t, w.UnsetComponent("a", "Position"))
	assert.ErrorIs(t, w.SetComponent("a", nil), ErrInvalidComponent)
}

func TestReadsReturnCopies(t *testing.T) {
	w := New()
	require.NoError(t, w.CreateEntityWithID("a", position.New(models.State{"x": 1.0})))

	c, _ := w.GetComponent("a", "Position")
	c.State["x"] = 100.0

	again, _ := w.GetComponent("a", "Position")
	assert.Equal(t, 1.0, again.State["x"])

	comps, ok := w.GetComponents("a")
	require.True(t, ok)
	require.Len(t, comps, 1)
	_, ok = w.GetComponents("ghost")
	assert.False(t, ok)
}

func TestUpdateComponentReportsChangedKeys(t *testing.T) {
	w := New()
	require.NoError(t, w.CreateEntityWithID("a", position.New(models.State{"x": 1.0, "y": 2.0, "z": 3.0})))

	var got []FieldsChanged
	_, err := w.Subscribe(ObserverFuncs{FieldsChanged: func(e FieldsChanged) { got = append(got, e) }})
	require.NoError(t, err)

	require.NoError(t, w.UpdateComponent("a", "Position", func(s models.State) {
		s["x"] = 5.0
		s["y"] = 2 // numerically equal, not a change
		delete(s, "z")
	}))

	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"x": 5.0}, got[0].Changed)
	assert.Equal(t, []string{"z"}, got[0].Removed)

	c, _ := w.GetComponent("a", "Position")
	assert.Equal(t, models.State{"x": 5.0, "y": 2.0}, c.State)

	require.NoError(t, w.UpdateComponent("a", "Position", func(models.State) {}))
	assert.Len(t, got, 1, "no-op updates are silent")
}

func TestObserverOrder(t *testing.T) {
	w := New()
	r := &recorder{}
	sub, err := w.Subscribe(r.observer())
	require.NoError(t, err)

	id, _ := w.CreateEntity()
	_ = w.SetComponent(id, position.New(nil))
	_ = w.UpdateComponent(id, "Position", func(s models.State) { s["x"] = 1.0 })
	_ = w.UnsetComponent(id, "Position")
	w.DestroyEntity(id)

	assert.Equal(t, []string{
		"created:e1",
		"set:e1:Position",
		"fields:e1:Position",
		"unset:e1:Position",
		"destroyed:e1",
	}, r.events)

	require.NoError(t, sub.Cancel())
	_, _ = w.CreateEntity()
	assert.Len(t, r.events, 5)

	_, err = w.Subscribe(nil)
	assert.Error(t, err)
}

func TestBatchDeliversOnce(t *testing.T) {
	w := New()
	r := &recorder{}
	_, _ = w.Subscribe(r.observer())

	var seenDuring int
	err := w.Batch(func(tx *Tx) error {
		require.NoError(t, tx.CreateEntityWithID("a"))
		require.NoError(t, tx.CreateEntityWithID("b"))
		assert.True(t, w.HasEntity("b"), "mutations are visible inside the batch")
		seenDuring = len(r.events)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, seenDuring)
	assert.Equal(t, []string{"created:a", "created:b"}, r.events)
}

func TestBatchFlushesOnError(t *testing.T) {
	w := New()
	r := &recorder{}
	_, _ = w.Subscribe(r.observer())

	boom := errors.New("boom")
	var leaked *Tx
	err := w.Batch(func(tx *Tx) error {
		leaked = tx
		_ = tx.CreateEntityWithID("a")
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, w.HasEntity("a"), "no rollback")
	assert.Equal(t, []string{"created:a"}, r.events)

	assert.ErrorIs(t, leaked.CreateEntityWithID("late"), ErrTxClosed)
	assert.False(t, w.HasEntity("late"))
}

func TestIgnoreOrigin(t *testing.T) {
	w := New()
	all, filtered := &recorder{}, &recorder{}
	_, _ = w.Subscribe(all.observer())
	_, _ = w.Subscribe(filtered.observer(), IgnoreOrigin("remote"))

	require.NoError(t, w.BatchFrom("remote", func(tx *Tx) error {
		return tx.CreateEntityWithID("a")
	}))
	require.NoError(t, w.CreateEntityWithID("b"))

	assert.Equal(t, []string{"created:a", "created:b"}, all.events)
	assert.Equal(t, []string{"created:b"}, filtered.events)
}

func TestWritersDoNotLeakIntoBatch(t *testing.T) {
	w := New()
	local := &recorder{}
	_, _ = w.Subscribe(local.observer(), IgnoreOrigin("remote"))

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = w.BatchFrom("remote", func(tx *Tx) error {
			close(started)
			<-release
			return tx.CreateEntityWithID("in-batch")
		})
	}()
	<-started

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = w.CreateEntity()
		}()
	}
	close(release)
	wg.Wait()
	<-done

	assert.Equal(t, 9, w.Len())
	assert.Len(t, local.events, 8, "writers blocked behind the batch keep their own notifications")
	assert.NotContains(t, local.events, "created:in-batch")
}

type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func TestStateIsValidatedOnWrite(t *testing.T) {
	typed := models.NewComponentType("Point", schema.Reflect[point]())
	w := New()
	r := &recorder{}
	_, _ = w.Subscribe(r.observer())

	require.NoError(t, w.CreateEntityWithID("a", typed.New(models.State{"x": 1})))
	c, _ := w.GetComponent("a", "Point")
	assert.Equal(t, models.State{"x": 1.0, "y": 0.0}, c.State)

	var schemaErr *schema.SchemaError
	err := w.SetComponent("a", typed.New(models.State{"x": "left"}))
	assert.ErrorAs(t, err, &schemaErr)
	err = w.CreateEntityWithID("b", typed.New(models.State{"bogus": true}))
	assert.ErrorAs(t, err, &schemaErr)
	assert.False(t, w.HasEntity("b"))

	err = w.UpdateComponent("a", "Point", func(s models.State) {
		s["x"] = "left"
		s["bogus"] = true
	})
	assert.ErrorAs(t, err, &schemaErr)
	c, _ = w.GetComponent("a", "Point")
	assert.Equal(t, models.State{"x": 1.0, "y": 0.0}, c.State)
	assert.Equal(t, []string{"created:a"}, r.events, "rejected writes are silent")
}

func TestUUIDAllocator(t *testing.T) {
	w := New(WithIDAllocator(UUIDIDs{}))
	id, err := w.CreateEntity()
	require.NoError(t, err)
	assert.Len(t, id.String(), 36)
}
