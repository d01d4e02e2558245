package memory

import (
	"sync"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"
	"github.com/wI2L/jsondiff"

	"github.com/zeusync/worldsync/internal/core/document"
	"github.com/zeusync/worldsync/internal/core/events/bus"
	"github.com/zeusync/worldsync/internal/core/models"
)

var _ document.Handle = (*Document)(nil)

const eventSource = "memory-document"

// Document is an in-process replica of a shared document. Local commits are
// diffed into change patches; remote batches arrive through Merge. Every
// change is announced synchronously to subscribers.
type Document struct {
	mu      sync.Mutex
	root    map[string]any
	events  bus.EventBus
	commits int
	merges  int
}

// New creates a replica seeded with initial, which may be nil, a JSON
// object value or raw JSON bytes.
func New(initial any) (*Document, error) {
	root := map[string]any{}
	switch v := initial.(type) {
	case nil:
	case []byte:
		if len(v) > 0 {
			if err := json.Unmarshal(v, &root); err != nil {
				return nil, errors.Wrap(err, "decode initial document")
			}
			if root == nil {
				root = map[string]any{}
			}
		}
	case map[string]any:
		root = models.CloneValue(v).(map[string]any)
	default:
		return nil, errors.Errorf("initial document must be an object, got %T", initial)
	}
	return &Document{root: root, events: bus.New()}, nil
}

func (d *Document) Snapshot() (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return models.CloneValue(d.root), nil
}

// Commit applies fn to a working copy and, if it succeeds, swaps it in and
// publishes the resulting change patches. A failing fn leaves the document
// untouched.
func (d *Document) Commit(fn func(tx document.Tx) error, opts ...document.CommitOption) error {
	o := document.ApplyCommitOptions(opts...)
	d.mu.Lock()
	t := &tx{root: models.CloneValue(d.root).(map[string]any)}
	if err := fn(t); err != nil {
		d.mu.Unlock()
		return err
	}
	patches, err := diff(d.root, t.root)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	d.root = t.root
	d.commits++
	snapshot := models.CloneValue(d.root).(map[string]any)
	d.mu.Unlock()

	if len(patches) == 0 {
		return nil
	}
	return d.publish(document.EventChange, document.ChangeEvent{Patches: patches, Snapshot: snapshot, Origin: o.Origin})
}

// Merge applies a batch received from a remote peer and delivers it
// verbatim to subscribers. Actions the replica cannot interpret locally
// (conflicts, counters, marks) leave the tree unchanged but are delivered.
func (d *Document) Merge(batch []document.Patch) error {
	d.mu.Lock()
	root := models.CloneValue(d.root).(map[string]any)
	for _, p := range batch {
		if !p.Action.Supported() {
			continue
		}
		p, err := normalizePatch(p)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		next, err := applyPatch(root, p)
		if err != nil {
			d.mu.Unlock()
			return err
		}
		root = next
	}
	d.root = root
	d.merges++
	snapshot := models.CloneValue(d.root).(map[string]any)
	d.mu.Unlock()

	return d.publish(document.EventChange, document.ChangeEvent{Patches: batch, Snapshot: snapshot})
}

// Delete removes the whole document and notifies delete subscribers.
func (d *Document) Delete() error {
	d.mu.Lock()
	d.root = map[string]any{}
	d.mu.Unlock()
	return d.publish(document.EventDelete, document.ChangeEvent{})
}

func (d *Document) Subscribe(kind document.EventKind, h document.Handler) (bus.Subscription, error) {
	if h == nil {
		return nil, errors.New("memory document: nil handler")
	}
	return d.events.Subscribe(string(kind), func(ev bus.Event) error {
		change, _ := ev.Data().(document.ChangeEvent)
		return h(kind, change)
	})
}

func (d *Document) Unsubscribe(sub bus.Subscription) error {
	return d.events.Unsubscribe(sub)
}

// Commits counts successful local commits.
func (d *Document) Commits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.commits
}

// Merges counts remote batches merged.
func (d *Document) Merges() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.merges
}

// Subscribers reports active change and delete subscriptions.
func (d *Document) Subscribers() int {
	return d.events.Subscribers()
}

func (d *Document) publish(kind document.EventKind, change document.ChangeEvent) error {
	return d.events.Publish(bus.NewEvent(string(kind), eventSource, change))
}

type tx struct {
	root map[string]any
}

func (t *tx) Put(path document.Path, value any) error {
	value, err := normalize(value)
	if err != nil {
		return err
	}
	next, err := applyPatch(t.root, document.Patch{Action: document.ActionPut, Path: path, Value: value})
	if err != nil {
		return err
	}
	t.root = next
	return nil
}

func (t *tx) Delete(path document.Path) error {
	next, err := applyPatch(t.root, document.Patch{Action: document.ActionDelete, Path: path})
	if err != nil {
		return err
	}
	t.root = next
	return nil
}

// diff turns the JSON difference between two trees into change patches.
func diff(before, after map[string]any) ([]document.Patch, error) {
	ops, err := jsondiff.Compare(before, after)
	if err != nil {
		return nil, errors.Wrap(err, "diff document")
	}
	patches := make([]document.Patch, 0, len(ops))
	for _, op := range ops {
		path := parsePointer(before, string(op.Path))
		parent, _ := lookup(before, path[:max(len(path)-1, 0)])
		_, inArray := parent.([]any)

		switch string(op.Type) {
		case "add":
			value, err := normalize(op.Value)
			if err != nil {
				return nil, err
			}
			if inArray {
				patches = append(patches, document.Patch{Action: document.ActionInsert, Path: path, Values: []any{value}})
			} else {
				patches = append(patches, document.Patch{Action: document.ActionPut, Path: path, Value: value})
			}
		case "replace":
			value, err := normalize(op.Value)
			if err != nil {
				return nil, err
			}
			patches = append(patches, document.Patch{Action: document.ActionPut, Path: path, Value: value})
		case "remove":
			patches = append(patches, document.Patch{Action: document.ActionDelete, Path: path})
		default:
			return nil, errors.Errorf("unexpected diff operation %q", op.Type)
		}
	}
	return patches, nil
}

// normalizePatch converts the values carried by p to plain JSON values so
// the tree never holds Go-specific number types.
func normalizePatch(p document.Patch) (document.Patch, error) {
	if p.Value != nil {
		v, err := normalize(p.Value)
		if err != nil {
			return p, err
		}
		p.Value = v
	}
	if p.Values != nil {
		values := make([]any, len(p.Values))
		for i, v := range p.Values {
			n, err := normalize(v)
			if err != nil {
				return p, err
			}
			values[i] = n
		}
		p.Values = values
	}
	return p, nil
}

func normalize(v any) (any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "normalize patch value")
	}
	var out any
	if err = json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "normalize patch value")
	}
	return out, nil
}
