package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termplex/host"
	"pkt.systems/termplex/schema"
)

// StatusResponse is served by the status endpoint.
type StatusResponse struct {
	Seq      uint64                 `json:"seq"`
	Snapshot schema.ManagerSnapshot `json:"snapshot"`
}

// Server serves a read-only view of the session manager over HTTP.
type Server struct {
	cfg      Config
	hub      *Hub
	basePath string
}

// NewServer constructs a status server reading from hub.
func NewServer(cfg Config, hub *Hub) *Server {
	return &Server{
		cfg:      cfg,
		hub:      hub,
		basePath: normalizeBasePath(cfg.BasePath),
	}
}

// Handler returns an http.Handler for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.basePath+"/healthz", s.handleHealth)
	mux.HandleFunc(s.basePath+"/api/status", s.handleStatus)
	mux.HandleFunc(s.basePath+"/api/stream", s.handleStream)
	return withRequestLogging(mux)
}

// ListenAndServe serves until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.cfg.Addr == "" {
		return errors.New("status api addr is required")
	}
	return host.ListenAndServe(ctx, s.cfg.Addr, s.Handler())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
		return
	}
	snapshot, seq := s.hub.Latest()
	writeJSON(w, http.StatusOK, StatusResponse{Seq: seq, Snapshot: snapshot})
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, errors.New("stream unsupported"))
		return
	}
	log := pslog.Ctx(r.Context())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := parseUint(r.Header.Get("Last-Event-ID"))
	ch, unsubscribe, replay := s.hub.Subscribe(lastID)
	defer unsubscribe()

	replayed := 0
	if lastID > 0 {
		for _, event := range replay {
			_ = writeSSEvent(w, event)
			replayed++
		}
	} else {
		snapshot, _ := s.hub.Latest()
		_ = writeSSEvent(w, StreamEvent{
			Type:      "snapshot",
			Snapshot:  &snapshot,
			Timestamp: time.Now(),
		})
	}
	flusher.Flush()

	log.Info("http stream opened", "last_id", lastID, "replay", replayed)
	for {
		select {
		case <-r.Context().Done():
			log.Info("http stream closed")
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			_ = writeSSEvent(w, event)
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	data, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeSSEvent(w http.ResponseWriter, event StreamEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if event.Seq > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", event.Seq)
	}
	_, _ = fmt.Fprintf(w, "data: %s\n\n", strings.TrimSpace(string(data)))
	return nil
}

func parseUint(value string) uint64 {
	if value == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
