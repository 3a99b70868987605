package graphstore

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps snapshots in process memory. It is the default backend when
// no Neo4j endpoint is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snaps: make(map[string]*Snapshot)}
}

// Close releases nothing; it exists to satisfy Repository.
func (s *MemoryStore) Close(ctx context.Context) error {
	return nil
}

// EnsureIndexes is a no-op for the in-memory store.
func (s *MemoryStore) EnsureIndexes(ctx context.Context) error {
	return nil
}

// SaveSnapshot stores the snapshot, replacing any previous one with the same id.
func (s *MemoryStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = snap
	return nil
}

// GetSnapshot returns the snapshot with the given id.
func (s *MemoryStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snaps[id]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return snap, nil
}

// ListSnapshots returns snapshot summaries, newest first.
func (s *MemoryStore) ListSnapshots(ctx context.Context) ([]*SnapshotInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*SnapshotInfo, 0, len(s.snaps))
	for _, snap := range s.snaps {
		out = append(out, info(snap))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// DeleteSnapshot removes the snapshot with the given id.
func (s *MemoryStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snaps[id]; !ok {
		return ErrSnapshotNotFound
	}
	delete(s.snaps, id)
	return nil
}
