package docsync

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/document/memory"
	"github.com/zeusync/worldsync/internal/core/models"
	"github.com/zeusync/worldsync/internal/core/schema"
	"github.com/zeusync/worldsync/internal/core/schema/registry"
	"github.com/zeusync/worldsync/internal/core/world"
	"github.com/zeusync/worldsync/internal/game/components"
)

// spyHandle counts commits reaching the document.
type spyHandle struct {
	*memory.Document
	commits int
}

func (h *spyHandle) Commit(fn func(tx document.Tx) error, opts ...document.CommitOption) error {
	h.commits++
	return h.Document.Commit(fn, opts...)
}

type fixture struct {
	reg     *registry.Registry
	world   *world.World
	doc     *memory.Document
	handle  *spyHandle
	session *Session
}

func newFixture(t *testing.T, initial any) *fixture {
	t.Helper()
	reg := registry.New()
	require.NoError(t, components.Register(reg, "Marker"))
	doc, err := memory.New(initial)
	require.NoError(t, err)
	f := &fixture{reg: reg, world: world.New(), doc: doc, handle: &spyHandle{Document: doc}}
	f.session, err = CreateSync(context.Background(), reg, f.world, f.handle)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.session.Dispose() })
	return f
}

func (f *fixture) snapshot(t *testing.T) map[string]any {
	t.Helper()
	snap, err := f.doc.Snapshot()
	require.NoError(t, err)
	return snap.(map[string]any)
}

func pos(x, y float64) *models.Component {
	return components.PositionType.New(models.State{"x": x, "y": y})
}

func TestScenarioEmptyDocument(t *testing.T) {
	f := newFixture(t, map[string]any{})
	assert.Empty(t, f.world.Entities())
	assert.Equal(t, Idle, f.session.Direction())
}

func TestScenarioCreateEntityMirrors(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.world.CreateEntity(pos(1, 2))
	require.NoError(t, err)
	assert.Equal(t, models.EntityID("e1"), id)

	assert.Equal(t, map[string]any{
		"e1": map[string]any{"Position": map[string]any{"x": 1.0, "y": 2.0}},
	}, f.snapshot(t))

	stats := f.session.Stats()
	assert.Equal(t, uint64(1), stats.OutboundCommits)
	assert.Equal(t, uint64(1), stats.EchoesSkipped, "own commit is not interpreted")
	assert.Zero(t, stats.BatchesApplied)
}

func TestScenarioFieldPut(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.world.CreateEntity(pos(1, 2))
	require.NoError(t, err)
	commits := f.handle.commits

	require.NoError(t, f.doc.Merge([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1", "Position", "x"}, Value: 5},
	}))

	c, ok := f.world.GetComponent("e1", "Position")
	require.True(t, ok)
	assert.Equal(t, 5.0, c.State["x"])
	assert.Equal(t, 2.0, c.State["y"])
	assert.Equal(t, commits, f.handle.commits, "inbound change is not echoed")
}

func TestScenarioEntityDelete(t *testing.T) {
	f := newFixture(t, nil)
	_, _ = f.world.CreateEntity(pos(1, 2))
	_, _ = f.world.CreateEntity()

	require.NoError(t, f.doc.Merge([]document.Patch{{Action: document.ActionDelete, Path: document.Path{"e1"}}}))
	assert.Equal(t, []models.EntityID{"e2"}, f.world.Entities())
}

func TestScenarioUnsupportedAction(t *testing.T) {
	f := newFixture(t, nil)
	_, _ = f.world.CreateEntity(pos(1, 2))

	err := f.doc.Merge([]document.Patch{{Action: document.ActionConflict, Path: document.Path{"e1"}}})
	assert.ErrorIs(t, err, ErrUnsupportedPatchAction)
	assert.Equal(t, Idle, f.session.Direction())

	for _, a := range []document.Action{document.ActionIncrement, document.ActionMarkText, document.ActionUnmarkText} {
		err = f.session.Apply([]document.Patch{{Action: a, Path: document.Path{"e1", "Position", "x"}}})
		assert.ErrorIs(t, err, ErrUnsupportedPatchAction, a.String())
	}

	require.NoError(t, f.doc.Merge([]document.Patch{{Action: document.ActionDelete, Path: document.Path{"e1"}}}))
	assert.Empty(t, f.world.Entities(), "session stays usable")
	assert.Equal(t, uint64(4), f.session.Stats().BatchesFailed)
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	w := f.world

	e1, err := w.CreateEntity(pos(1, 2))
	require.NoError(t, err)
	e2, err := w.CreateEntity(components.LabelType.New(models.State{"name": "crate", "tags": []any{"loot"}}))
	require.NoError(t, err)
	e3, err := w.CreateEntity()
	require.NoError(t, err)

	require.NoError(t, w.SetComponent(e1, components.VelocityType.New(models.State{"dx": 0.5, "dy": 0})))
	require.NoError(t, w.UpdateComponent(e1, "Position", func(s models.State) { s["x"] = 3.0 }))
	require.NoError(t, w.SetComponent(e3, f.mustType(t, "Marker").New(models.State{"note": "spawn", "weight": 2})))
	require.NoError(t, w.UnsetComponent(e2, "Label"))
	require.NoError(t, w.SetComponent(e2, components.LabelType.New(models.State{"name": "barrel"})))
	require.NoError(t, w.Batch(func(tx *world.Tx) error {
		if _, err := tx.CreateEntity(pos(7, 7)); err != nil {
			return err
		}
		return tx.UpdateComponent(e1, "Velocity", func(s models.State) { s["dx"] = 1.5 })
	}))
	w.DestroyEntity("e4")

	projected, err := Project(w)
	require.NoError(t, err)
	snap := f.snapshot(t)
	assert.Equal(t, projected, snap)
	assert.Zero(t, f.session.Stats().CommitFailures)

	fresh := world.New()
	doc, err := memory.New(snap)
	require.NoError(t, err)
	s, err := CreateSync(context.Background(), f.reg, fresh, doc)
	require.NoError(t, err)
	defer s.Dispose()

	assert.Equal(t, w.Entities(), fresh.Entities())
	again, err := Project(fresh)
	require.NoError(t, err)
	assert.Equal(t, projected, again)
}

func (f *fixture) mustType(t *testing.T, name string) *models.ComponentType {
	t.Helper()
	ct, err := f.reg.Lookup(name)
	require.NoError(t, err)
	return ct
}

func TestInboundBatchDoesNotCommit(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.doc.Merge([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1"}, Value: map[string]any{"Position": map[string]any{"x": 1, "y": 1}}},
		{Action: document.ActionPut, Path: document.Path{"e1", "Label"}, Value: map[string]any{"name": "a"}},
		{Action: document.ActionPut, Path: document.Path{"e1", "Position", "y"}, Value: 4},
		{Action: document.ActionDelete, Path: document.Path{"e1", "Label"}},
		{Action: document.ActionInsert, Path: document.Path{"e2"}, Values: []any{map[string]any{}}},
		{Action: document.ActionDelete, Path: document.Path{"e2"}},
	}))
	assert.Zero(t, f.handle.commits)

	comps, ok := f.world.GetComponents("e1")
	require.True(t, ok)
	require.Len(t, comps, 1)
	assert.Equal(t, models.State{"x": 1.0, "y": 4.0}, comps[0].State)
	assert.False(t, f.world.HasEntity("e2"))
	assert.Equal(t, uint64(6), f.session.Stats().PatchesApplied)
}

func TestInboundBatchIsAtomicForObservers(t *testing.T) {
	f := newFixture(t, nil)

	var seen []int
	var xs []any
	_, err := f.world.Subscribe(world.ObserverFuncs{
		EntityCreated: func(world.EntityCreated) {
			seen = append(seen, f.world.Len())
			c, _ := f.world.GetComponent("e1", "Position")
			xs = append(xs, c.State["x"])
		},
		FieldsChanged: func(world.FieldsChanged) { seen = append(seen, f.world.Len()) },
	})
	require.NoError(t, err)

	require.NoError(t, f.doc.Merge([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1"}, Value: map[string]any{"Position": map[string]any{"x": 1, "y": 1}}},
		{Action: document.ActionPut, Path: document.Path{"e2"}, Value: map[string]any{}},
		{Action: document.ActionPut, Path: document.Path{"e1", "Position", "x"}, Value: 9},
	}))

	assert.Equal(t, []int{2, 2, 2}, seen, "every notification sees the post-batch world")
	assert.Equal(t, []any{9.0, 9.0}, xs)
}

func TestUnknownTypeAbortsWithoutRollback(t *testing.T) {
	f := newFixture(t, nil)
	err := f.doc.Merge([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1"}, Value: map[string]any{"Position": map[string]any{"x": 1, "y": 0}}},
		{Action: document.ActionPut, Path: document.Path{"e2"}, Value: map[string]any{"Nope": map[string]any{}}},
		{Action: document.ActionPut, Path: document.Path{"e3"}, Value: map[string]any{}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, registry.ErrUnknownComponentType)

	assert.True(t, f.world.HasEntity("e1"), "earlier patches stay applied")
	assert.False(t, f.world.HasEntity("e2"))
	assert.False(t, f.world.HasEntity("e3"), "later patches are not applied")
	assert.Equal(t, Idle, f.session.Direction())

	stats := f.session.Stats()
	assert.Equal(t, uint64(1), stats.BatchesFailed)
	assert.Equal(t, uint64(1), stats.PatchesApplied)

	_, err = f.world.CreateEntity()
	require.NoError(t, err)
	assert.Equal(t, 1, f.handle.commits, "outbound resumes after a failed batch")
}

func TestLastWriteWinsWithinBatch(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.doc.Merge([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1"}, Value: map[string]any{"Position": map[string]any{"x": 1, "y": 1}}},
		{Action: document.ActionPut, Path: document.Path{"e1", "Position"}, Value: map[string]any{"x": 2, "y": 2}},
		{Action: document.ActionDelete, Path: document.Path{"e1", "Position"}},
		{Action: document.ActionPut, Path: document.Path{"e1", "Position"}, Value: map[string]any{"x": 9, "y": 8}},
	}))
	c, ok := f.world.GetComponent("e1", "Position")
	require.True(t, ok)
	assert.Equal(t, models.State{"x": 9.0, "y": 8.0}, c.State)
}

func TestRepeatedFieldPatchesConverge(t *testing.T) {
	f := newFixture(t, map[string]any{
		"e1": map[string]any{
			"Position": map[string]any{"x": 1.0, "y": 1.0},
			"Label":    map[string]any{"name": "ab", "tags": []any{"a"}},
		},
	})

	require.NoError(t, f.doc.Merge([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1", "Position", "x"}, Value: 5},
		{Action: document.ActionPut, Path: document.Path{"e1", "Position", "x"}, Value: 7},
		{Action: document.ActionSplice, Path: document.Path{"e1", "Label", "name", 1}, Value: "XY"},
		{Action: document.ActionSplice, Path: document.Path{"e1", "Label", "name", 0}, Value: ">"},
		{Action: document.ActionInsert, Path: document.Path{"e1", "Label", "tags", 1}, Values: []any{"b"}},
	}))

	c, _ := f.world.GetComponent("e1", "Position")
	assert.Equal(t, 7.0, c.State["x"])

	label, _ := f.world.GetComponent("e1", "Label")
	assert.Equal(t, ">aXYb", label.State["name"])
	assert.Equal(t, []any{"a", "b"}, label.State["tags"])

	projected, err := Project(f.world)
	require.NoError(t, err)
	assert.Equal(t, f.snapshot(t), projected)
}

func TestFieldDeleteRemovesKey(t *testing.T) {
	f := newFixture(t, map[string]any{
		"e1": map[string]any{"Marker": map[string]any{"a": 1.0, "b": 2.0}},
	})
	require.NoError(t, f.doc.Merge([]document.Patch{{Action: document.ActionDelete, Path: document.Path{"e1", "Marker", "a"}}}))
	c, _ := f.world.GetComponent("e1", "Marker")
	assert.Equal(t, models.State{"b": 2.0}, c.State)
}

func TestWholeDocumentPatches(t *testing.T) {
	f := newFixture(t, map[string]any{"e1": map[string]any{}, "e2": map[string]any{}})

	require.NoError(t, f.doc.Merge([]document.Patch{{
		Action: document.ActionPut,
		Path:   document.Path{},
		Value:  map[string]any{"e2": map[string]any{"Marker": map[string]any{"k": "v"}}, "e7": map[string]any{}},
	}}))
	assert.Equal(t, []models.EntityID{"e2", "e7"}, f.world.Entities())
	c, ok := f.world.GetComponent("e2", "Marker")
	require.True(t, ok)
	assert.Equal(t, "v", c.State["k"])

	require.NoError(t, f.doc.Merge([]document.Patch{{Action: document.ActionDelete, Path: document.Path{}}}))
	assert.Empty(t, f.world.Entities())
	assert.Zero(t, f.handle.commits)
}

func TestDocumentDeleteEventClearsWorld(t *testing.T) {
	f := newFixture(t, map[string]any{"e1": map[string]any{}, "e2": map[string]any{}})
	require.NoError(t, f.doc.Delete())
	assert.Empty(t, f.world.Entities())
	assert.Zero(t, f.handle.commits)
}

func TestMalformedPatches(t *testing.T) {
	f := newFixture(t, map[string]any{"e1": map[string]any{}})

	cases := []struct {
		name  string
		patch document.Patch
		want  error
	}{
		{"numeric entity id", document.Patch{Action: document.ActionDelete, Path: document.Path{3}}, ErrMalformedPatchPath},
		{"numeric type name", document.Patch{Action: document.ActionDelete, Path: document.Path{"e1", 0}}, ErrMalformedPatchPath},
		{"numeric field", document.Patch{Action: document.ActionPut, Path: document.Path{"e1", "Position", 1}, Value: 1}, ErrMalformedPatchPath},
		{"splice on entity", document.Patch{Action: document.ActionSplice, Path: document.Path{"e1"}, Value: "x"}, ErrUnsupportedPatchAction},
		{"entity not an object", document.Patch{Action: document.ActionPut, Path: document.Path{"e1"}, Value: 5}, ErrMalformedDocument},
		{"field of missing component", document.Patch{Action: document.ActionPut, Path: document.Path{"e1", "Position", "x"}, Value: 1}, world.ErrComponentNotFound},
		{"component on missing entity", document.Patch{Action: document.ActionPut, Path: document.Path{"e9", "Position"}, Value: map[string]any{}}, world.ErrEntityNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.session.Apply([]document.Patch{tc.patch})
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, Idle, f.session.Direction())
		})
	}
}

func TestSchemaViolationIsFatal(t *testing.T) {
	f := newFixture(t, nil)
	err := f.session.Apply([]document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1"}, Value: map[string]any{"Position": map[string]any{"x": "left"}}},
	})
	require.Error(t, err)
	assert.False(t, f.world.HasEntity("e1"))
}

func TestCreateSyncSeedsWorld(t *testing.T) {
	f := newFixture(t, []byte(`{"e2":{"Position":{"x":1,"y":2}},"e1":{"Label":{"name":"x"}}}`))
	assert.Equal(t, []models.EntityID{"e1", "e2"}, f.world.Entities())
	assert.Zero(t, f.handle.commits, "seeding does not write back")

	id, err := f.world.CreateEntity()
	require.NoError(t, err)
	assert.Equal(t, models.EntityID("e3"), id)
}

func TestCreateSyncFailureLeavesWorldUntouched(t *testing.T) {
	reg := registry.New()
	require.NoError(t, components.Register(reg))

	cases := []struct {
		name    string
		initial any
		prepare func(w *world.World)
		ctx     func() context.Context
		want    error
	}{
		{
			name:    "unknown type",
			initial: map[string]any{"e1": map[string]any{"Position": map[string]any{"x": 1.0, "y": 1.0}}, "e2": map[string]any{"Nope": map[string]any{}}},
			want:    registry.ErrUnknownComponentType,
		},
		{
			name:    "entity not an object",
			initial: map[string]any{"e1": "oops"},
			want:    ErrMalformedDocument,
		},
		{
			name:    "id collision",
			initial: map[string]any{"e1": map[string]any{}},
			prepare: func(w *world.World) { _ = w.CreateEntityWithID("e1") },
			want:    world.ErrEntityExists,
		},
		{
			name:    "cancelled",
			initial: map[string]any{"e1": map[string]any{}},
			ctx: func() context.Context {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				return ctx
			},
			want: context.Canceled,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := world.New()
			if tc.prepare != nil {
				tc.prepare(w)
			}
			before := w.Entities()
			ctx := context.Background()
			if tc.ctx != nil {
				ctx = tc.ctx()
			}
			doc, err := memory.New(tc.initial)
			require.NoError(t, err)

			s, err := CreateSync(ctx, reg, w, doc)
			assert.Nil(t, s)
			var setupErr *SetupError
			require.True(t, errors.As(err, &setupErr))
			assert.ErrorIs(t, err, tc.want)
			assert.Equal(t, before, w.Entities())
			assert.Zero(t, doc.Subscribers())
		})
	}

	_, err := CreateSync(context.Background(), reg, nil, nil)
	var setupErr *SetupError
	assert.ErrorAs(t, err, &setupErr)
}

func TestDispose(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.session.Dispose())
	require.NoError(t, f.session.Dispose())
	assert.Zero(t, f.doc.Subscribers())

	_, err := f.world.CreateEntity(pos(1, 1))
	require.NoError(t, err)
	assert.Zero(t, f.handle.commits)

	require.NoError(t, f.doc.Merge([]document.Patch{{Action: document.ActionPut, Path: document.Path{"e9"}, Value: map[string]any{}}}))
	assert.False(t, f.world.HasEntity("e9"))
	assert.ErrorIs(t, f.session.Apply(nil), ErrSessionDisposed)
}

func TestOutboundFieldMergeWritesChangedKeysOnly(t *testing.T) {
	f := newFixture(t, map[string]any{
		"e1": map[string]any{"Marker": map[string]any{"a": 1.0, "b": 2.0}},
	})
	var patches []document.Patch
	_, err := f.doc.Subscribe(document.EventChange, func(_ document.EventKind, c document.ChangeEvent) error {
		patches = append(patches, c.Patches...)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, f.world.UpdateComponent("e1", "Marker", func(s models.State) {
		s["a"] = 10.0
		s["c"] = 3.0
	}))
	assert.ElementsMatch(t, []document.Patch{
		{Action: document.ActionPut, Path: document.Path{"e1", "Marker", "a"}, Value: 10.0},
		{Action: document.ActionPut, Path: document.Path{"e1", "Marker", "c"}, Value: 3.0},
	}, patches)

	patches = nil
	require.NoError(t, f.world.UpdateComponent("e1", "Marker", func(s models.State) { delete(s, "c") }))
	assert.Equal(t, []document.Patch{{Action: document.ActionDelete, Path: document.Path{"e1", "Marker", "c"}}}, patches)
	assert.Equal(t, map[string]any{"a": 10.0, "b": 2.0}, f.snapshot(t)["e1"].(map[string]any)["Marker"])
}

// failingHandle refuses commits while fail is set.
type failingHandle struct {
	*memory.Document
	fail error
}

func (h *failingHandle) Commit(fn func(tx document.Tx) error, opts ...document.CommitOption) error {
	if h.fail != nil {
		return h.fail
	}
	return h.Document.Commit(fn, opts...)
}

func TestOutboundCommitFailureIsCounted(t *testing.T) {
	reg := registry.New()
	require.NoError(t, components.Register(reg))
	doc, err := memory.New(nil)
	require.NoError(t, err)
	h := &failingHandle{Document: doc, fail: errors.New("offline")}
	w := world.New()
	s, err := CreateSync(context.Background(), reg, w, h)
	require.NoError(t, err)
	defer s.Dispose()

	_, err = w.CreateEntity(pos(1, 1))
	require.NoError(t, err)
	assert.True(t, w.HasEntity("e1"), "world mutation is kept")

	h.fail = nil
	require.NoError(t, w.CreateEntityWithID("bad"))
	var schemaErr *schema.SchemaError
	err = w.SetComponent("bad", components.PositionType.New(models.State{"x": "nope"}))
	assert.ErrorAs(t, err, &schemaErr, "invalid state never reaches the mirror")

	stats := s.Stats()
	assert.Equal(t, uint64(1), stats.CommitFailures)
	assert.Equal(t, uint64(1), stats.OutboundCommits)
	snap, _ := doc.Snapshot()
	assert.Equal(t, map[string]any{"bad": map[string]any{}}, snap)
}

func TestOutboundFieldUpdatesStayLoadable(t *testing.T) {
	f := newFixture(t, nil)
	id, err := f.world.CreateEntity(pos(1, 2))
	require.NoError(t, err)
	commits := f.handle.commits

	var schemaErr *schema.SchemaError
	err = f.world.UpdateComponent(id, "Position", func(s models.State) {
		s["x"] = "left"
		s["bogus"] = true
	})
	assert.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, commits, f.handle.commits)

	require.NoError(t, f.world.UpdateComponent(id, "Position", func(s models.State) {
		s["x"] = 4
		delete(s, "y")
	}))
	assert.Equal(t, map[string]any{"x": 4.0, "y": 0.0}, f.snapshot(t)["e1"].(map[string]any)["Position"])
	assert.Zero(t, f.session.Stats().CommitFailures)

	doc, err := memory.New(f.snapshot(t))
	require.NoError(t, err)
	fresh := world.New()
	s, err := CreateSync(context.Background(), f.reg, fresh, doc)
	require.NoError(t, err)
	defer s.Dispose()
	c, ok := fresh.GetComponent("e1", "Position")
	require.True(t, ok)
	assert.Equal(t, models.State{"x": 4.0, "y": 0.0}, c.State)
}

func TestConcurrentWritersAndRemoteBatches(t *testing.T) {
	f := newFixture(t, nil)

	const writers, perWriter, remotes = 8, 50, 20
	var wg sync.WaitGroup
	for g := 0; g < writers; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := f.world.CreateEntity(pos(float64(g), float64(i)))
				assert.NoError(t, err)
			}
		}()
	}
	for i := 0; i < remotes; i++ {
		require.NoError(t, f.doc.Merge([]document.Patch{
			{Action: document.ActionPut, Path: document.Path{fmt.Sprintf("remote-%d", i)}, Value: map[string]any{}},
		}))
	}
	wg.Wait()

	assert.Equal(t, Idle, f.session.Direction())
	for i := 0; i < remotes; i++ {
		assert.True(t, f.world.HasEntity(models.EntityID(fmt.Sprintf("remote-%d", i))))
	}
	assert.Equal(t, writers*perWriter+remotes, f.world.Len())

	projected, err := Project(f.world)
	require.NoError(t, err)
	assert.Equal(t, projected, f.snapshot(t))

	stats := f.session.Stats()
	assert.Equal(t, uint64(writers*perWriter), stats.OutboundCommits)
	assert.Equal(t, stats.OutboundCommits, stats.EchoesSkipped)
	assert.Equal(t, uint64(remotes), stats.BatchesApplied)
}

func TestDisposeFromObserverDuringInboundBatch(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.world.Subscribe(world.ObserverFuncs{
		EntityCreated: func(world.EntityCreated) { _ = f.session.Dispose() },
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		done <- f.doc.Merge([]document.Patch{{Action: document.ActionPut, Path: document.Path{"e1"}, Value: map[string]any{}}})
	}()
	select {
	case err = <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Dispose blocked inside the inbound batch")
	}

	assert.True(t, f.world.HasEntity("e1"))
	assert.Zero(t, f.doc.Subscribers())
	assert.Zero(t, f.handle.commits)
}
