package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"intraview/internal/prefs"
)

func validKind(kind string) bool {
	return kind == prefs.KindSymbols || kind == prefs.KindFiles
}

func (s *Server) handleGetRecent(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	kind := chi.URLParam(r, "kind")
	if !validKind(kind) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", kind))
		return
	}
	writeJSON(w, http.StatusOK, s.cfg.Prefs.Recent(kind))
}

func (s *Server) handleTouchRecent(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	kind := chi.URLParam(r, "kind")
	if !validKind(kind) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", kind))
		return
	}
	list, err := s.cfg.Prefs.Touch(kind, chi.URLParam(r, "value"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleClearRecent(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	kind := chi.URLParam(r, "kind")
	if !validKind(kind) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown kind %q", kind))
		return
	}
	if err := s.cfg.Prefs.ClearRecent(kind); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// prefValue is the body of the key/value preference endpoints.
type prefValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *Server) handleGetValue(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	key := chi.URLParam(r, "key")
	v, ok := s.cfg.Prefs.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no preference %q", key))
		return
	}
	writeJSON(w, http.StatusOK, prefValue{Key: key, Value: v})
}

func (s *Server) handleSetValue(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	var body prefValue
	if err := decodeJSON(w, r, &body); err != nil {
		s.writeErr(w, r, err)
		return
	}
	key := chi.URLParam(r, "key")
	if err := s.cfg.Prefs.Set(key, body.Value); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, prefValue{Key: key, Value: body.Value})
}

func (s *Server) handleDeleteValue(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	if err := s.cfg.Prefs.Delete(chi.URLParam(r, "key")); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handlePrefsEvents streams preference changes as server-sent events.
func (s *Server) handlePrefsEvents(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Prefs == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	id, ch := s.cfg.Prefs.Subscribe(16)
	defer s.cfg.Prefs.Unsubscribe(id)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepalive := time.NewTicker(30 * time.Second)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-keepalive.C:
			fmt.Fprint(w, ": keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}
