// Package api exposes the migration engine over HTTP for a canvas frontend:
// graph builds, conflict detection, import jobs, and progress streaming.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/schemaport/schemaport/internal/cma"
	"github.com/schemaport/schemaport/internal/schemaport/conflicts"
	"github.com/schemaport/schemaport/internal/schemaport/core"
	"github.com/schemaport/schemaport/internal/schemaport/document"
	"github.com/schemaport/schemaport/internal/schemaport/graph"
	"github.com/schemaport/schemaport/internal/schemaport/importer"
	"github.com/schemaport/schemaport/internal/schemaport/progress"
	"github.com/schemaport/schemaport/internal/schemaport/refs"
	"github.com/schemaport/schemaport/internal/schemaport/source"
	"github.com/schemaport/schemaport/internal/server/graphstore"
	"github.com/schemaport/schemaport/internal/server/jobs"
)

// Server holds the HTTP server dependencies.
type Server struct {
	snapshots graphstore.Repository
	jobs      *jobs.Manager
}

// New creates a new API server.
func New(snapshots graphstore.Repository, jobManager *jobs.Manager) *Server {
	return &Server{snapshots: snapshots, jobs: jobManager}
}

// Routes mounts every handler under /api plus the health check.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/graphs", s.BuildGraph)
		r.Get("/graphs", s.ListGraphs)
		r.Get("/graphs/{id}", s.GetGraph)
		r.Delete("/graphs/{id}", s.DeleteGraph)
		r.Post("/graphs/{id}/expand", s.ExpandGraph)

		r.Post("/conflicts", s.DetectConflicts)
		r.Post("/imports", s.StartImport)

		r.Get("/jobs", s.ListJobs)
		r.Get("/jobs/{id}", s.GetJob)
		r.Post("/jobs/{id}/cancel", s.CancelJob)
		r.Get("/jobs/{id}/ws", s.JobProgressWS)
	})
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ProjectRef identifies and authenticates one project's schema-management API.
type ProjectRef struct {
	APIURL   string `json:"apiUrl"`
	APIToken string `json:"apiToken"`
}

func (p ProjectRef) open() (*source.RemoteSource, *cma.Client, error) {
	if p.APIURL == "" || p.APIToken == "" {
		return nil, nil, fmt.Errorf("apiUrl and apiToken are required")
	}
	client := cma.NewClient(p.APIURL, p.APIToken)
	src, err := source.NewRemoteSource(client)
	if err != nil {
		return nil, nil, err
	}
	return src, client, nil
}

// BuildGraphRequest is the request body for building a dependency graph.
type BuildGraphRequest struct {
	Project     ProjectRef `json:"project"`
	Label       string     `json:"label"`
	ItemTypeIDs []string   `json:"itemTypeIds"`
	// Selected restricts expansion; empty means every reached item type is
	// selected.
	Selected []string `json:"selected,omitempty"`
}

// BuildGraphResult is the job result of a finished graph build.
type BuildGraphResult struct {
	SnapshotID string       `json:"snapshotId"`
	Graph      *graph.Graph `json:"graph"`
}

// BuildGraph handles POST /api/graphs. The build runs as a job; on success the
// graph is persisted as a snapshot and the snapshot id lands in the job result.
func (s *Server) BuildGraph(w http.ResponseWriter, r *http.Request) {
	var req BuildGraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.ItemTypeIDs) == 0 {
		http.Error(w, "itemTypeIds is required", http.StatusBadRequest)
		return
	}

	src, _, err := req.Project.open()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var selected map[string]bool
	if len(req.Selected) > 0 {
		selected = make(map[string]bool, len(req.Selected))
		for _, id := range req.Selected {
			selected[id] = true
		}
	}

	job := s.jobs.Start("graph", func(ctx context.Context, fn progress.Func, cancel *progress.Canceller) (any, error) {
		installed, err := source.InstalledPluginIDs(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("loading installed plugins: %w", err)
		}
		g, err := graph.Build(ctx, src, req.ItemTypeIDs, graph.BuildOptions{
			Selected:   selected,
			Installed:  refs.NewPluginSet(installed),
			OnProgress: fn,
		})
		if err != nil {
			return nil, err
		}

		snap := &graphstore.Snapshot{
			ID:        uuid.New().String(),
			Label:     req.Label,
			CreatedAt: time.Now(),
			Graph:     g,
		}
		if err := s.snapshots.SaveSnapshot(ctx, snap); err != nil {
			return nil, fmt.Errorf("persisting snapshot: %w", err)
		}
		return &BuildGraphResult{SnapshotID: snap.ID, Graph: g}, nil
	})

	writeJSON(w, http.StatusAccepted, job)
}

// ListGraphs handles GET /api/graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	infos, err := s.snapshots.ListSnapshots(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": infos, "count": len(infos)})
}

// GetGraph handles GET /api/graphs/{id}.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshots.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, graphstore.ErrSnapshotNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteGraph handles DELETE /api/graphs/{id}.
func (s *Server) DeleteGraph(w http.ResponseWriter, r *http.Request) {
	if err := s.snapshots.DeleteSnapshot(r.Context(), chi.URLParam(r, "id")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, graphstore.ErrSnapshotNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExpandRequest is the request body for a selection expansion.
type ExpandRequest struct {
	ItemTypeIDs []string `json:"itemTypeIds"`
	PluginIDs   []string `json:"pluginIds"`
}

// ExpandGraph handles POST /api/graphs/{id}/expand: closes the given selection
// over the stored graph's dependency edges.
func (s *Server) ExpandGraph(w http.ResponseWriter, r *http.Request) {
	var req ExpandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, err := s.snapshots.GetSnapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, graphstore.ErrSnapshotNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	writeJSON(w, http.StatusOK, graph.Expand(snap.Graph, req.ItemTypeIDs, req.PluginIDs))
}

// DocumentRef supplies an export document either inline or by URL.
type DocumentRef struct {
	Document    json.RawMessage `json:"document,omitempty"`
	DocumentURL string          `json:"documentUrl,omitempty"`
}

func (d DocumentRef) resolve(ctx context.Context) (*core.ExportFile, error) {
	switch {
	case len(d.Document) > 0:
		return document.Parse(d.Document)
	case d.DocumentURL != "":
		return document.Fetch(ctx, d.DocumentURL)
	default:
		return nil, fmt.Errorf("document or documentUrl is required")
	}
}

// DetectConflictsRequest is the request body for conflict detection.
type DetectConflictsRequest struct {
	DocumentRef
	Target ProjectRef `json:"target"`
}

// DetectConflicts handles POST /api/conflicts.
func (s *Server) DetectConflicts(w http.ResponseWriter, r *http.Request) {
	var req DetectConflictsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, err := req.resolve(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	export, err := source.NewDocumentSource(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, _, err := req.Target.open()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	m, err := conflicts.Detect(r.Context(), export, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"conflicts": m, "empty": m.Empty()})
}

// StartImportRequest is the request body for starting an import job.
type StartImportRequest struct {
	DocumentRef
	Target      ProjectRef     `json:"target"`
	Resolutions *conflicts.Set `json:"resolutions,omitempty"`
}

// StartImport handles POST /api/imports: parses the document, re-detects and
// validates conflicts against the submitted resolutions, builds the import
// document, and runs the executor as a job.
func (s *Server) StartImport(w http.ResponseWriter, r *http.Request) {
	var req StartImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	file, err := req.resolve(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	export, err := source.NewDocumentSource(file)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target, client, err := req.Target.open()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res := req.Resolutions
	if res == nil {
		res = conflicts.NewSet()
	}

	m, err := conflicts.Detect(r.Context(), export, target, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	if err := conflicts.Validate(r.Context(), export, target, m, res); err != nil {
		if errors.Is(err, conflicts.ErrUnresolvedConflict) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	doc, err := document.BuildImportDocument(r.Context(), export, []string{file.RootItemTypeID}, m, res)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	job := s.jobs.Start("import", func(ctx context.Context, fn progress.Func, cancel *progress.Canceller) (any, error) {
		return importer.New(client).Run(ctx, doc, importer.Options{OnProgress: fn, Cancel: cancel})
	})

	writeJSON(w, http.StatusAccepted, job)
}

// ListJobs handles GET /api/jobs.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	list := s.jobs.List()
	writeJSON(w, http.StatusOK, map[string]any{"jobs": list, "count": len(list)})
}

// GetJob handles GET /api/jobs/{id}.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	snap, err := s.jobs.Get(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// CancelJob handles POST /api/jobs/{id}/cancel. Cancellation is cooperative:
// the job stops at its next unit-of-work boundary and keeps everything already
// created.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := s.jobs.Cancel(chi.URLParam(r, "id")); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
