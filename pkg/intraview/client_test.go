package intraview

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c := NewClient("http://localhost:8080/")
	assert.Equal(t, "http://localhost:8080", c.baseURL)
	assert.NotNil(t, c.httpClient)
	assert.Equal(t, 3, c.Attempts)
}

func TestQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/query", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a/b.parquet", body["file_path"])

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"columns":["x","y"],"rows":[["a",1],["b",null]],"row_count":2,"truncated":false,"duration_ms":3,"file":"a/b.parquet"}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL).Query(context.Background(), "a/b.parquet", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, res.Columns)
	assert.Equal(t, []any{"b", nil}, res.Rows[1])
	assert.Equal(t, 2, res.RowCount)
}

func TestChart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"points":[{"x":"09:15","y":1.5},{"x":"09:16","y":null}],
			"meta":{"x_label":"t","y_label":"v","columns":["t","v"],"numeric_columns":[1],"y_numeric":true},
			"selection":{"x":0,"y":1},"stride":1,"total_rows":2}`))
	}))
	defer srv.Close()

	s, err := NewClient(srv.URL).Chart(context.Background(), ChartRequest{Columns: []string{"t", "v"}})
	require.NoError(t, err)
	require.Len(t, s.Points, 2)
	require.NotNil(t, s.Points[0].Y)
	assert.Equal(t, 1.5, *s.Points[0].Y)
	assert.Nil(t, s.Points[1].Y)
	assert.Equal(t, "v", s.Meta.YLabel)
	assert.Equal(t, 1, s.Selection.Y)
}

func TestRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, `{"error":"busy"}`, http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"status":"healthy","service":"intraview"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Backoff = 0
	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", h.Status)
	assert.EqualValues(t, 3, calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"file not found"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	c.Backoff = 0
	_, err := c.Query(context.Background(), "missing.csv", "")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.Contains(t, err.Error(), "file not found")
	assert.EqualValues(t, 1, calls.Load())
}

func TestFiles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/files", r.URL.Path)
		w.Write([]byte(`[{"type":"folder","name":"csv","path":"csv","children":[{"type":"file","name":"a.csv","path":"csv/a.csv","size":12}]}]`))
	}))
	defer srv.Close()

	nodes, err := NewClient(srv.URL).Files(context.Background())
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, int64(12), nodes[0].Children[0].Size)
}
