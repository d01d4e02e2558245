package docsync

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/events/bus"
	"github.com/zeusync/worldsync/internal/core/observability/log"
	"github.com/zeusync/worldsync/internal/core/world"
)

// Session keeps a World and a document convergent in both directions.
type Session struct {
	registry Registry
	world    *world.World
	handle   document.Handle
	log      log.Log

	// origin tags this session's document commits and inbound world
	// batches, so neither is mirrored back to where it came from.
	origin   string
	guard    guard
	disposed atomic.Bool
	once     sync.Once

	docSubs  []bus.Subscription
	worldSub bus.Subscription

	stats counters
}

type Option func(*Session)

func WithLogger(l log.Log) Option {
	return func(s *Session) {
		if l != nil {
			s.log = l
		}
	}
}

// Stats is a point-in-time copy of the session counters.
type Stats struct {
	BatchesApplied  uint64
	BatchesFailed   uint64
	PatchesApplied  uint64
	EchoesSkipped   uint64
	OutboundCommits uint64
	CommitFailures  uint64
}

type counters struct {
	batchesApplied  atomic.Uint64
	batchesFailed   atomic.Uint64
	patchesApplied  atomic.Uint64
	echoesSkipped   atomic.Uint64
	outboundCommits atomic.Uint64
	commitFailures  atomic.Uint64
}

// CreateSync seeds w from the document's current snapshot and starts
// synchronizing. The snapshot is fully validated first; on any failure a
// *SetupError is returned and w is not modified.
func CreateSync(ctx context.Context, reg Registry, w *world.World, handle document.Handle, opts ...Option) (*Session, error) {
	if reg == nil || w == nil || handle == nil {
		return nil, &SetupError{Err: errors.New("registry, world and document handle are required")}
	}
	s := &Session{
		registry: reg,
		world:    w,
		handle:   handle,
		log:      log.NewNop(),
		origin:   "docsync/" + uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}

	snapshot, err := handle.Snapshot()
	if err != nil {
		return nil, setupError(err, "load snapshot")
	}
	entities, err := decodeDocument(reg, snapshot)
	if err != nil {
		return nil, setupError(err, "decode snapshot")
	}
	if err = ctx.Err(); err != nil {
		return nil, setupError(err, "seed world")
	}

	err = w.BatchFrom(s.origin, func(tx *world.Tx) error {
		defer s.guard.enter(ApplyingInbound)()
		for _, e := range entities {
			if w.HasEntity(e.id) {
				return errors.Wrapf(world.ErrEntityExists, "entity %q", e.id)
			}
		}
		for _, e := range entities {
			if err := tx.CreateEntityWithID(e.id, e.components...); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, setupError(err, "seed world")
	}

	if err = s.subscribe(); err != nil {
		s.unsubscribe()
		return nil, setupError(err, "subscribe")
	}

	s.log.Info("sync session started", log.Int("entities", len(entities)))
	return s, nil
}

func (s *Session) subscribe() error {
	change, err := s.handle.Subscribe(document.EventChange, s.onChange)
	if err != nil {
		return err
	}
	s.docSubs = append(s.docSubs, change)

	del, err := s.handle.Subscribe(document.EventDelete, s.onDelete)
	if err != nil {
		return err
	}
	s.docSubs = append(s.docSubs, del)

	s.worldSub, err = s.world.Subscribe(&mirror{s: s}, world.IgnoreOrigin(s.origin))
	return err
}

func (s *Session) unsubscribe() error {
	var first error
	for _, sub := range s.docSubs {
		if err := s.handle.Unsubscribe(sub); err != nil && first == nil {
			first = err
		}
	}
	s.docSubs = nil
	if s.worldSub != nil {
		if err := s.worldSub.Cancel(); err != nil && first == nil {
			first = err
		}
		s.worldSub = nil
	}
	return first
}

// Dispose stops both directions. Mutations already applied stay in place and
// a batch in flight runs to its end. It is safe to call more than once, also
// from a world observer or a document handler.
func (s *Session) Dispose() error {
	var err error
	s.once.Do(func() {
		s.disposed.Store(true)
		err = s.unsubscribe()
		s.log.Info("sync session disposed", log.Uint64("batches", s.stats.batchesApplied.Load()))
	})
	return err
}

// Apply applies one change batch to the world as if the document had
// delivered it. Field patches read the document's current snapshot.
func (s *Session) Apply(batch []document.Patch) error {
	return s.apply(batch, nil)
}

func (s *Session) Direction() Direction {
	return s.guard.current()
}

func (s *Session) Stats() Stats {
	return Stats{
		BatchesApplied:  s.stats.batchesApplied.Load(),
		BatchesFailed:   s.stats.batchesFailed.Load(),
		PatchesApplied:  s.stats.patchesApplied.Load(),
		EchoesSkipped:   s.stats.echoesSkipped.Load(),
		OutboundCommits: s.stats.outboundCommits.Load(),
		CommitFailures:  s.stats.commitFailures.Load(),
	}
}

func (s *Session) onChange(_ document.EventKind, change document.ChangeEvent) error {
	if change.Origin == s.origin {
		s.stats.echoesSkipped.Add(1)
		return nil
	}
	return s.apply(change.Patches, change.Snapshot)
}

func (s *Session) onDelete(document.EventKind, document.ChangeEvent) error {
	return s.apply([]document.Patch{{Action: document.ActionDelete, Path: document.Path{}}}, map[string]any{})
}

// apply runs the batch under the inbound guard inside one world batch, so
// observers see the whole batch at once. The first failing patch aborts the
// rest of the batch; patches before it stay applied.
func (s *Session) apply(batch []document.Patch, snapshot map[string]any) error {
	if s.disposed.Load() {
		return ErrSessionDisposed
	}

	applied := 0
	err := s.world.BatchFrom(s.origin, func(tx *world.Tx) error {
		defer s.guard.enter(ApplyingInbound)()
		if s.disposed.Load() {
			return ErrSessionDisposed
		}
		in := &interpreter{
			registry: s.registry,
			world:    s.world,
			tx:       tx,
			log:      s.log,
			snapshot: snapshot,
			load:     s.handle.Snapshot,
		}
		for i, p := range batch {
			if err := in.apply(p); err != nil {
				return errors.Wrapf(err, "patch %d (%s)", i, p)
			}
			applied++
		}
		return nil
	})
	if errors.Is(err, ErrSessionDisposed) {
		return err
	}
	s.stats.patchesApplied.Add(uint64(applied))

	if err != nil {
		s.stats.batchesFailed.Add(1)
		s.log.Error("inbound batch aborted, world partially applied",
			log.Int("applied", applied),
			log.Int("patches", len(batch)),
			log.Error(err))
		return err
	}
	s.stats.batchesApplied.Add(1)
	s.log.Debug("inbound batch applied", log.Int("patches", len(batch)))
	return nil
}

func (s *Session) commitFailed(op string, err error, fields ...log.Field) {
	s.stats.commitFailures.Add(1)
	s.log.Error("outbound commit failed", append(fields, log.String("op", op), log.Error(err))...)
}
