// Package storage persists document snapshots between runs.
package storage

import (
	"context"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

var ErrSnapshotNotFound = errors.New("snapshot not found")

// Record is one stored snapshot. Data is canonical JSON (object keys
// sorted), so equal documents always have equal checksums.
type Record struct {
	DocID    string
	Version  int64
	Checksum uint64
	Data     []byte
	SavedAt  time.Time
}

// Snapshot decodes the stored document.
func (r Record) Snapshot() (map[string]any, error) {
	out := map[string]any{}
	if err := json.Unmarshal(r.Data, &out); err != nil {
		return nil, errors.Wrapf(err, "decode snapshot %q", r.DocID)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// SnapshotStore keeps the latest snapshot of each document.
type SnapshotStore interface {
	// Save stores snapshot as the next version of docID. Saving content
	// identical to the latest version is a no-op and reports saved=false.
	Save(ctx context.Context, docID string, snapshot any) (rec Record, saved bool, err error)
	// Load returns the latest version, or ErrSnapshotNotFound.
	Load(ctx context.Context, docID string) (Record, error)
	// History lists every stored version of docID, oldest first, without data.
	History(ctx context.Context, docID string) ([]Record, error)
	// List returns the stored document ids in order.
	List(ctx context.Context) ([]string, error)
	Close() error
}

// Encode renders snapshot as canonical JSON and returns its checksum.
func Encode(snapshot any) ([]byte, uint64, error) {
	if snapshot == nil {
		snapshot = map[string]any{}
	}
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, 0, errors.Wrap(err, "encode snapshot")
	}
	return data, xxhash.Sum64(data), nil
}
