package api

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/schemaport/schemaport/internal/server/jobs"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The canvas frontend is served from a different origin in development.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsMessage is one frame pushed to a progress watcher.
type wsMessage struct {
	Type     string         `json:"type"` // "job", "progress", "done"
	Job      *jobs.Snapshot `json:"job,omitempty"`
	Progress any            `json:"progress,omitempty"`
}

// JobProgressWS handles GET /api/jobs/{id}/ws: upgrades to a WebSocket, sends
// the current job snapshot, then every progress event until the job finishes,
// closing with a final snapshot.
func (s *Server) JobProgressWS(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, events, unsubscribe, err := s.jobs.Subscribe(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer unsubscribe()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed for job %s: %v", id, err)
		return
	}
	defer conn.Close()

	// Read pump: we never expect client frames, but reading is what surfaces a
	// closed connection.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if err := writeWS(conn, wsMessage{Type: "job", Job: &snap}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				final, err := s.jobs.Get(id)
				if err == nil {
					writeWS(conn, wsMessage{Type: "done", Job: &final})
				}
				return
			}
			if err := writeWS(conn, wsMessage{Type: "progress", Progress: ev}); err != nil {
				return
			}
		case <-gone:
			return
		}
	}
}

func writeWS(conn *websocket.Conn, msg wsMessage) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(msg)
}
