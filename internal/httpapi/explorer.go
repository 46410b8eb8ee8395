package httpapi

import (
	"net/http"
	"strconv"

	"intraview/internal/prefs"
	"intraview/internal/query"
)

type queryRequest struct {
	FilePath string `json:"file_path"`
	Query    string `json:"query"`
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Tree == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	nodes, err := s.cfg.Tree.Get()
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Runner == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path required")
		return
	}
	cols, err := s.cfg.Runner.Describe(r.Context(), path)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "columns": cols})
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}
	res, err := s.runQuery(r, req.FilePath, req.Query)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// runQuery runs a file query and records the file as recently used.
func (s *Server) runQuery(r *http.Request, file, sql string) (*query.Result, error) {
	if s.cfg.Runner == nil {
		return nil, errUnavailable
	}
	if file == "" {
		return nil, errBadRequestf("file_path required")
	}
	res, err := s.cfg.Runner.Run(r.Context(), query.Request{FilePath: file, SQL: sql})
	if err != nil {
		return nil, err
	}
	if s.cfg.Prefs != nil {
		if _, err := s.cfg.Prefs.Touch(prefs.KindFiles, res.File); err != nil {
			s.log.Warn("recording recent file", "file", res.File, "error", err)
		}
	}
	return res, nil
}

func (s *Server) handleRecentQueries(w http.ResponseWriter, r *http.Request) {
	if s.cfg.History == nil {
		s.writeErr(w, r, errUnavailable)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.cfg.History.RecentQueries(r.Context(), limit)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if recs == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, recs)
}
