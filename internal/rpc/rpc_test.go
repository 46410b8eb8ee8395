package rpc

import (
	"context"
	"math"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"intraview/internal/chart"
	"intraview/internal/prefs"
	"intraview/internal/query"
)

func startServer(t *testing.T, svc *Service) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	gs := NewServer(svc)
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return NewClient(conn)
}

func TestBuildSeriesInline(t *testing.T) {
	c := startServer(t, NewService(nil, nil, 0, nil))

	series, err := c.BuildSeries(context.Background(), SeriesRequest{
		Columns: []string{"time", "price"},
		Rows: [][]chart.Value{
			{chart.Text("09:15"), chart.Number(100)},
			{chart.Text("09:16"), chart.Null()},
			{chart.Text("09:17"), chart.Number(102.5)},
		},
	})
	require.NoError(t, err)

	require.Len(t, series.Points, 3)
	assert.Equal(t, "09:15", series.Points[0].X.String())
	assert.Equal(t, 100.0, series.Points[0].Y)
	assert.True(t, math.IsNaN(series.Points[1].Y))
	assert.Equal(t, "time", series.Meta.XLabel)
	assert.Equal(t, "price", series.Meta.YLabel)
	assert.Equal(t, chart.Selection{X: 0, Y: 1}, series.Selection)
	assert.Equal(t, 1, series.Stride)
	assert.Equal(t, 3, series.TotalRows)
}

func TestBuildSeriesEmptyTable(t *testing.T) {
	c := startServer(t, NewService(nil, nil, 0, nil))

	series, err := c.BuildSeries(context.Background(), SeriesRequest{Columns: []string{}})
	require.NoError(t, err)
	assert.Empty(t, series.Points)
	assert.Equal(t, 0, series.TotalRows)

	series, err = c.BuildSeries(context.Background(), SeriesRequest{Columns: []string{"t", "v"}, Rows: [][]chart.Value{}})
	require.NoError(t, err)
	assert.Empty(t, series.Points)
	assert.Equal(t, "v", series.Meta.YLabel)
}

func TestBuildSeriesDownsampleByName(t *testing.T) {
	c := startServer(t, NewService(nil, nil, 0, nil))

	rows := make([][]chart.Value, 10)
	for i := range rows {
		rows[i] = []chart.Value{chart.Number(float64(i)), chart.Number(float64(i * i))}
	}
	series, err := c.BuildSeries(context.Background(), SeriesRequest{
		Columns: []string{"n", "sq"}, Rows: rows, X: "n", Y: "sq", MaxPoints: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, series.Stride)
	require.Len(t, series.Points, 5)
	assert.Equal(t, 16.0, series.Points[2].Y)
}

func TestBuildSeriesErrors(t *testing.T) {
	c := startServer(t, NewService(nil, nil, 0, nil))
	ctx := context.Background()

	tests := []struct {
		name string
		req  SeriesRequest
		code codes.Code
	}{
		{"empty", SeriesRequest{}, codes.InvalidArgument},
		{"unknown column", SeriesRequest{Columns: []string{"a"}, Rows: [][]chart.Value{{chart.Number(1)}}, Y: "b"}, codes.InvalidArgument},
		{"ragged", SeriesRequest{Columns: []string{"a", "b"}, Rows: [][]chart.Value{{chart.Number(1)}}}, codes.InvalidArgument},
		{"file without runner", SeriesRequest{FilePath: "x.csv"}, codes.Unavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.BuildSeries(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestBuildSeriesFromFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p.csv"), []byte("t,v\na,1\nb,2\nc,3\n"), 0o644))
	runner, err := query.NewRunner(context.Background(), query.Options{DataDir: dir})
	require.NoError(t, err)
	t.Cleanup(func() { runner.Close() })

	c := startServer(t, NewService(runner, nil, 0, nil))
	series, err := c.BuildSeries(context.Background(), SeriesRequest{FilePath: "p.csv", Query: "SELECT * FROM data ORDER BY v DESC"})
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2, 1}, series.YValues())
	assert.Equal(t, []string{"c", "b", "a"}, series.XValues())

	_, err = c.BuildSeries(context.Background(), SeriesRequest{FilePath: "missing.csv"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestWatchPrefs(t *testing.T) {
	pf := prefs.NewStore("", 5, nil)
	c := startServer(t, NewService(nil, pf, 0, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events := make(chan prefs.Event, 4)
	done := make(chan error, 1)
	go func() { done <- c.WatchPrefs(ctx, func(ev prefs.Event) { events <- ev }) }()

	// Touch until the subscription is live.
	var got prefs.Event
	require.Eventually(t, func() bool {
		if _, err := pf.Touch(prefs.KindSymbols, "NIFTY"); err != nil {
			return false
		}
		select {
		case got = <-events:
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)

	assert.Equal(t, "recent", got.Type)
	assert.Equal(t, prefs.KindSymbols, got.Kind)
	assert.Equal(t, []string{"NIFTY"}, got.Recent)

	cancel()
	assert.NoError(t, <-done)
}

func TestWatchPrefsUnavailable(t *testing.T) {
	c := startServer(t, NewService(nil, nil, 0, nil))
	err := c.WatchPrefs(context.Background(), func(prefs.Event) {})
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}
