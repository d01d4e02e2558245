package document

import (
	"github.com/zeusync/worldsync/internal/core/events/bus"
)

// EventKind names the notifications a document emits.
type EventKind string

const (
	EventChange EventKind = "change"
	EventDelete EventKind = "delete"
)

// ChangeEvent is one change batch. Snapshot, when set, is the document
// after the whole batch was applied. Origin is the tag the local commit was
// made with; it is empty for remote changes and untagged commits.
type ChangeEvent struct {
	Patches  []Patch
	Snapshot map[string]any
	Origin   string
}

type CommitOptions struct {
	Origin string
}

type CommitOption func(*CommitOptions)

// WithOrigin tags a commit; the resulting change event carries the tag, so
// the committer can recognize its own change when it is delivered back.
func WithOrigin(origin string) CommitOption {
	return func(o *CommitOptions) { o.Origin = origin }
}

// ApplyCommitOptions folds opts into CommitOptions for Handle implementations.
func ApplyCommitOptions(opts ...CommitOption) CommitOptions {
	var o CommitOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Handler func(kind EventKind, change ChangeEvent) error

// Tx is the mutation surface handed to Commit callbacks.
type Tx interface {
	Put(path Path, value any) error
	Delete(path Path) error
}

// Handle is the replicated document as seen by the synchronizer. The
// shape of the document is { entityId: { typeName: componentJSON } }.
type Handle interface {
	// Snapshot returns a deep copy of the current document.
	Snapshot() (any, error)
	// Commit runs fn as one atomic local change. The change event must be
	// delivered with the origin given through WithOrigin.
	Commit(fn func(tx Tx) error, opts ...CommitOption) error
	Subscribe(kind EventKind, h Handler) (bus.Subscription, error)
	Unsubscribe(sub bus.Subscription) error
}
