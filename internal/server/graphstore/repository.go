// Package graphstore persists built dependency graphs so a canvas frontend can
// re-query nodes and edges without rebuilding the graph against the source
// project.
package graphstore

import (
	"context"
	"errors"
	"time"

	"github.com/schemaport/schemaport/internal/schemaport/graph"
)

// ErrSnapshotNotFound is returned when a snapshot id is unknown to the store.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is one stored graph build.
type Snapshot struct {
	ID        string       `json:"id"`
	Label     string       `json:"label"`
	CreatedAt time.Time    `json:"createdAt"`
	Graph     *graph.Graph `json:"graph"`
}

// SnapshotInfo is the listing view of a snapshot, without the graph payload.
type SnapshotInfo struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
	Nodes     int       `json:"nodes"`
	Edges     int       `json:"edges"`
}

// Repository defines the interface for snapshot storage backends.
// Both the in-memory store and Neo4j implement this interface.
type Repository interface {
	Close(ctx context.Context) error
	EnsureIndexes(ctx context.Context) error

	SaveSnapshot(ctx context.Context, snap *Snapshot) error
	GetSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListSnapshots(ctx context.Context) ([]*SnapshotInfo, error)
	DeleteSnapshot(ctx context.Context, id string) error
}

func info(snap *Snapshot) *SnapshotInfo {
	return &SnapshotInfo{
		ID:        snap.ID,
		Label:     snap.Label,
		CreatedAt: snap.CreatedAt,
		Nodes:     len(snap.Graph.Nodes),
		Edges:     len(snap.Graph.Edges),
	}
}
