package httpapi

import (
	"bytes"
	"net/http"

	"intraview/internal/chart"
)

// chartRequest binds either a file query or inline rows to two axes.
// Empty axis names fall back to the default axes; a zero max_points uses
// the server default.
type chartRequest struct {
	FilePath  string          `json:"file_path"`
	Query     string          `json:"query"`
	Columns   []string        `json:"columns"`
	Rows      [][]chart.Value `json:"rows"`
	X         string          `json:"x"`
	Y         string          `json:"y"`
	MaxPoints int             `json:"max_points"`

	Title  string `json:"title"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

func (s *Server) buildSeries(r *http.Request, req chartRequest) (*chart.Series, error) {
	var t chart.Table
	switch {
	case req.Columns != nil || req.Rows != nil:
		t = chart.Table{Columns: req.Columns, Rows: req.Rows}
	case req.FilePath != "":
		res, err := s.runQuery(r, req.FilePath, req.Query)
		if err != nil {
			return nil, err
		}
		t = res.Table
	default:
		return nil, errBadRequestf("either columns or file_path required")
	}
	return chart.BuildNamed(t, req.X, req.Y, req.MaxPoints, s.cfg.MaxPoints)
}

func (s *Server) decodeChart(w http.ResponseWriter, r *http.Request) (*chart.Series, chartRequest, bool) {
	var req chartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeErr(w, r, err)
		return nil, req, false
	}
	series, err := s.buildSeries(r, req)
	if err != nil {
		s.writeErr(w, r, err)
		return nil, req, false
	}
	return series, req, true
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	series, _, ok := s.decodeChart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, series)
}

func (s *Server) handleEChart(w http.ResponseWriter, r *http.Request) {
	series, _, ok := s.decodeChart(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, series.EChartsOption())
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	format, err := chart.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	series, req, ok := s.decodeChart(w, r)
	if !ok {
		return
	}

	opts := s.cfg.Render
	opts.Format = format
	if req.Title != "" {
		opts.Title = req.Title
	}
	if req.Width > 0 {
		opts.Width = req.Width
	}
	if req.Height > 0 {
		opts.Height = req.Height
	}

	var buf bytes.Buffer
	if err := chart.Render(&buf, series, opts); err != nil {
		s.writeErr(w, r, err)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
