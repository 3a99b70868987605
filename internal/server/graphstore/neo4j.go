package graphstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/schemaport/schemaport/internal/schemaport/graph"
)

// Neo4jStore mirrors snapshots into Neo4j. Each snapshot keeps its full graph
// as a JSON payload for faithful reconstruction, and additionally mirrors every
// node and edge as graph entities so the canvas can run subgraph queries
// directly in Cypher.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// Config holds Neo4j connection configuration.
type Config struct {
	URI      string
	Username string
	Password string
}

// NewNeo4jStore creates a store and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg Config) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}

	return &Neo4jStore{driver: driver}, nil
}

// Close closes the Neo4j connection.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

// EnsureIndexes creates the uniqueness constraint and lookup index the store
// queries rely on.
func (s *Neo4jStore) EnsureIndexes(ctx context.Context) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	statements := []string{
		`CREATE CONSTRAINT snapshot_id IF NOT EXISTS
			FOR (s:Snapshot) REQUIRE s.id IS UNIQUE`,
		`CREATE INDEX schema_node_snapshot IF NOT EXISTS
			FOR (n:SchemaNode) ON (n.snapshot_id, n.node_id)`,
	}
	for _, stmt := range statements {
		if _, err := session.Run(ctx, stmt, nil); err != nil {
			return fmt.Errorf("ensuring neo4j indexes: %w", err)
		}
	}
	return nil
}

// SaveSnapshot writes the snapshot, replacing any previous one with the same id.
func (s *Neo4jStore) SaveSnapshot(ctx context.Context, snap *Snapshot) error {
	graphJSON, err := json.Marshal(snap.Graph)
	if err != nil {
		return fmt.Errorf("marshaling graph: %w", err)
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		if err := deleteSnapshotTx(ctx, tx, snap.ID); err != nil {
			return nil, err
		}

		query := `
			CREATE (s:Snapshot {
				id: $id,
				label: $label,
				created: datetime($created),
				nodes: $nodes,
				edges: $edges,
				payload: $payload
			})
		`
		params := map[string]any{
			"id":      snap.ID,
			"label":   snap.Label,
			"created": snap.CreatedAt.UTC().Format(time.RFC3339),
			"nodes":   len(snap.Graph.Nodes),
			"edges":   len(snap.Graph.Edges),
			"payload": string(graphJSON),
		}
		if _, err := tx.Run(ctx, query, params); err != nil {
			return nil, err
		}

		for _, n := range snap.Graph.Nodes {
			if err := mirrorNode(ctx, tx, snap.ID, n); err != nil {
				return nil, err
			}
		}
		for _, e := range snap.Graph.Edges {
			if err := mirrorEdge(ctx, tx, snap.ID, e); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("saving snapshot %s: %w", snap.ID, err)
	}
	return nil
}

func mirrorNode(ctx context.Context, tx neo4j.ManagedTransaction, snapshotID string, n *graph.Node) error {
	query := `
		MATCH (s:Snapshot {id: $snapshot_id})
		CREATE (node:SchemaNode {
			snapshot_id: $snapshot_id,
			node_id: $node_id,
			kind: $kind,
			name: $name,
			excluded: $excluded
		})
		CREATE (s)-[:CONTAINS]->(node)
	`
	params := map[string]any{
		"snapshot_id": snapshotID,
		"node_id":     n.ID,
		"kind":        string(n.Kind),
		"name":        n.DisplayName(),
		"excluded":    n.Excluded,
	}
	_, err := tx.Run(ctx, query, params)
	return err
}

func mirrorEdge(ctx context.Context, tx neo4j.ManagedTransaction, snapshotID string, e *graph.Edge) error {
	// Triggering fields travel as a JSON string; Neo4j properties cannot hold
	// nested maps.
	fieldsJSON, err := json.Marshal(e.Fields)
	if err != nil {
		return fmt.Errorf("marshaling edge fields: %w", err)
	}

	query := `
		MATCH (source:SchemaNode {snapshot_id: $snapshot_id, node_id: $source_id})
		MATCH (target:SchemaNode {snapshot_id: $snapshot_id, node_id: $target_id})
		CREATE (source)-[:DEPENDS_ON {fields: $fields}]->(target)
	`
	params := map[string]any{
		"snapshot_id": snapshotID,
		"source_id":   e.Source,
		"target_id":   e.Target,
		"fields":      string(fieldsJSON),
	}
	_, err = tx.Run(ctx, query, params)
	return err
}

// GetSnapshot reconstructs a snapshot from its stored payload.
func (s *Neo4jStore) GetSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (s:Snapshot {id: $id})
			RETURN s.label AS label, s.created AS created, s.payload AS payload
		`
		result, err := tx.Run(ctx, query, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !result.Next(ctx) {
			return nil, ErrSnapshotNotFound
		}
		record := result.Record()

		snap := &Snapshot{ID: id}
		if label, ok := record.Get("label"); ok {
			snap.Label, _ = label.(string)
		}
		if created, ok := record.Get("created"); ok {
			if t, ok := created.(time.Time); ok {
				snap.CreatedAt = t
			}
		}

		payload, _ := record.Get("payload")
		payloadStr, ok := payload.(string)
		if !ok {
			return nil, fmt.Errorf("snapshot %s has no payload", id)
		}
		var g graph.Graph
		if err := json.Unmarshal([]byte(payloadStr), &g); err != nil {
			return nil, fmt.Errorf("unmarshaling graph payload: %w", err)
		}
		g.Reindex()
		snap.Graph = &g
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Snapshot), nil
}

// ListSnapshots returns snapshot summaries, newest first.
func (s *Neo4jStore) ListSnapshots(ctx context.Context) ([]*SnapshotInfo, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		query := `
			MATCH (s:Snapshot)
			RETURN s.id AS id, s.label AS label, s.created AS created,
				s.nodes AS nodes, s.edges AS edges
			ORDER BY s.created DESC, s.id ASC
		`
		result, err := tx.Run(ctx, query, nil)
		if err != nil {
			return nil, err
		}

		var out []*SnapshotInfo
		for result.Next(ctx) {
			record := result.Record()
			si := &SnapshotInfo{}
			if v, ok := record.Get("id"); ok {
				si.ID, _ = v.(string)
			}
			if v, ok := record.Get("label"); ok {
				si.Label, _ = v.(string)
			}
			if v, ok := record.Get("created"); ok {
				if t, ok := v.(time.Time); ok {
					si.CreatedAt = t
				}
			}
			if v, ok := record.Get("nodes"); ok {
				if n, ok := v.(int64); ok {
					si.Nodes = int(n)
				}
			}
			if v, ok := record.Get("edges"); ok {
				if n, ok := v.(int64); ok {
					si.Edges = int(n)
				}
			}
			out = append(out, si)
		}
		return out, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return result.([]*SnapshotInfo), nil
}

// DeleteSnapshot removes the snapshot and its mirrored graph.
func (s *Neo4jStore) DeleteSnapshot(ctx context.Context, id string) error {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: "neo4j"})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, deleteSnapshotTx(ctx, tx, id)
	})
	if err != nil {
		return fmt.Errorf("deleting snapshot %s: %w", id, err)
	}
	return nil
}

func deleteSnapshotTx(ctx context.Context, tx neo4j.ManagedTransaction, id string) error {
	queries := []string{
		`MATCH (n:SchemaNode {snapshot_id: $id}) DETACH DELETE n`,
		`MATCH (s:Snapshot {id: $id}) DETACH DELETE s`,
	}
	for _, query := range queries {
		if _, err := tx.Run(ctx, query, map[string]any{"id": id}); err != nil {
			return err
		}
	}
	return nil
}
