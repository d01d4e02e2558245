package world

import (
	"strconv"
	"sync"

	"github.com/google/uuid"

	"github.com/zeusync/worldsync/internal/core/models"
)

// IDAllocator hands out fresh entity ids. taken reports ids already in use.
type IDAllocator interface {
	Next(taken func(models.EntityID) bool) models.EntityID
}

// SequentialIDs allocates prefix1, prefix2, ... skipping ids that are taken,
// e.g. entities seeded from a document.
type SequentialIDs struct {
	mu     sync.Mutex
	prefix string
	next   uint64
}

func NewSequentialIDs(prefix string) *SequentialIDs {
	return &SequentialIDs{prefix: prefix}
}

func (s *SequentialIDs) Next(taken func(models.EntityID) bool) models.EntityID {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		s.next++
		id := models.EntityID(s.prefix + strconv.FormatUint(s.next, 10))
		if taken == nil || !taken(id) {
			return id
		}
	}
}

// UUIDIDs allocates random v4 UUIDs, safe for ids minted on several peers.
type UUIDIDs struct{}

func (UUIDIDs) Next(taken func(models.EntityID) bool) models.EntityID {
	for {
		id := models.EntityID(uuid.NewString())
		if taken == nil || !taken(id) {
			return id
		}
	}
}
