// Package query runs ad-hoc DuckDB SQL over the CSV and Parquet files of
// the data directory and turns the results into chart tables.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/marcboeker/go-duckdb"

	"intraview/internal/chart"
	"intraview/internal/store"
)

// DefaultQuery is run when a request names a file but no SQL.
const DefaultQuery = "SELECT * FROM data LIMIT 100"

// ViewName is the table or view each request's file is bound to.
const ViewName = "data"

var (
	// ErrOutsideDataDir is returned for paths that escape the data directory.
	ErrOutsideDataDir = errors.New("path is outside the data directory")

	// ErrUnsupportedFile is returned for files that are not csv or parquet.
	ErrUnsupportedFile = errors.New("unsupported file type")

	// ErrFileNotFound is returned when the requested file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrQueryTimeout is returned when a query exceeds the configured timeout.
	ErrQueryTimeout = errors.New("query timed out")

	// ErrInvalidQuery wraps errors DuckDB reports for the submitted SQL.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrStatementNotAllowed is returned for SQL that is not a single
	// SELECT or EXPLAIN statement. It is always wrapped with ErrInvalidQuery.
	ErrStatementNotAllowed = errors.New("only a single SELECT statement is allowed")
)

// Request selects a file and the SQL to run against it.
type Request struct {
	FilePath string `json:"file_path"`
	SQL      string `json:"query"`
}

// Result is a query result plus execution metadata.
type Result struct {
	chart.Table
	RowCount   int    `json:"row_count"`
	Truncated  bool   `json:"truncated"`
	DurationMS int64  `json:"duration_ms"`
	File       string `json:"file"`
	QueryID    string `json:"query_id,omitempty"`
}

// Column describes one column of a file.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Options configures a Runner.
type Options struct {
	DataDir    string
	DuckDBPath string // empty for in-memory
	MaxRows    int
	Timeout    time.Duration
	History    store.QueryHistory // optional
	Logger     *slog.Logger
}

// Runner executes explorer queries. It is safe for concurrent use. Each Run
// loads its file into a private in-memory database that then has file
// access and configuration changes disabled, so submitted SQL can only see
// the bound file.
type Runner struct {
	db      *sql.DB
	dataDir string
	maxRows int
	timeout time.Duration
	history store.QueryHistory
	log     *slog.Logger
}

// NewRunner opens DuckDB and returns a Runner rooted at opts.DataDir.
func NewRunner(ctx context.Context, opts Options) (*Runner, error) {
	root, err := filepath.Abs(opts.DataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}
	path := opts.DuckDBPath
	if path == "" {
		path = ":memory:"
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging duckdb: %w", err)
	}

	r := &Runner{
		db:      db,
		dataDir: root,
		maxRows: opts.MaxRows,
		timeout: opts.Timeout,
		history: opts.History,
		log:     opts.Logger,
	}
	if r.maxRows <= 0 {
		r.maxRows = 10000
	}
	if r.log == nil {
		r.log = slog.Default()
	}
	return r, nil
}

// Close releases the DuckDB handle.
func (r *Runner) Close() error {
	return r.db.Close()
}

// DataDir returns the absolute data directory.
func (r *Runner) DataDir() string { return r.dataDir }

// Resolve maps a path relative to the data directory to an absolute path,
// rejecting traversal outside it, unsupported extensions and missing files.
func (r *Runner) Resolve(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("empty file path: %w", ErrFileNotFound)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) {
		if !within(r.dataDir, clean) {
			return "", fmt.Errorf("%s: %w", rel, ErrOutsideDataDir)
		}
	} else {
		clean = filepath.Join(r.dataDir, clean)
		if !within(r.dataDir, clean) {
			return "", fmt.Errorf("%s: %w", rel, ErrOutsideDataDir)
		}
	}

	switch strings.ToLower(filepath.Ext(clean)) {
	case ".parquet", ".csv":
	default:
		return "", fmt.Errorf("%s: %w", rel, ErrUnsupportedFile)
	}

	if info, err := os.Stat(clean); err != nil || info.IsDir() {
		return "", fmt.Errorf("%s: %w", rel, ErrFileNotFound)
	}
	return clean, nil
}

// Run binds req.FilePath as the view "data" and runs req.SQL (DefaultQuery
// when empty), returning at most the configured number of rows.
func (r *Runner) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	sqlText := strings.TrimSpace(req.SQL)
	if sqlText == "" {
		sqlText = DefaultQuery
	}

	res, err := r.run(ctx, req.FilePath, sqlText)
	elapsed := time.Since(start)

	rec := store.QueryRecord{File: req.FilePath, SQL: sqlText, DurationMS: elapsed.Milliseconds()}
	if err != nil {
		rec.Error = err.Error()
		r.log.Warn("query failed", "file", req.FilePath, "error", err, "duration", elapsed)
	} else {
		res.DurationMS = elapsed.Milliseconds()
		rec.RowCount = res.RowCount
		r.log.Debug("query finished", "file", req.FilePath, "rows", res.RowCount, "truncated", res.Truncated, "duration", elapsed)
	}
	if r.history != nil {
		saved, herr := r.history.RecordQuery(context.WithoutCancel(ctx), rec)
		if herr != nil {
			r.log.Warn("recording query history", "error", herr)
		} else if res != nil {
			res.QueryID = saved.ID
		}
	}
	return res, err
}

func (r *Runner) run(ctx context.Context, file, sqlText string) (*Result, error) {
	abs, err := r.Resolve(file)
	if err != nil {
		return nil, err
	}
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	conn, closeSandbox, err := r.sandbox(ctx, abs)
	if err != nil {
		return nil, err
	}
	defer closeSandbox()

	if err := checkStatement(conn, sqlText); err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, r.queryErr(ctx, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	res := &Result{
		Table: chart.Table{Columns: columns, Rows: [][]chart.Value{}},
		File:  filepath.ToSlash(mustRel(r.dataDir, abs)),
	}
	for rows.Next() {
		if len(res.Rows) >= r.maxRows {
			res.Truncated = true
			break
		}
		raw := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		row := make([]chart.Value, len(columns))
		for i, v := range raw {
			row[i] = cell(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, r.queryErr(ctx, err)
	}
	res.RowCount = len(res.Rows)
	return res, nil
}

// Describe returns the columns and DuckDB types of a file.
func (r *Runner) Describe(ctx context.Context, file string) ([]Column, error) {
	abs, err := r.Resolve(file)
	if err != nil {
		return nil, err
	}
	conn, err := r.bind(ctx, abs)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, "DESCRIBE SELECT * FROM "+ViewName)
	if err != nil {
		return nil, fmt.Errorf("describing %s: %w", file, err)
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var cols []Column
	for rows.Next() {
		raw := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range raw {
			ptrs[i] = &raw[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning describe row: %w", err)
		}
		col := Column{}
		for i, n := range names {
			s := cell(raw[i]).String()
			switch n {
			case "column_name":
				col.Name = s
			case "column_type":
				col.Type = s
			case "null":
				col.Nullable = strings.EqualFold(s, "YES")
			}
		}
		cols = append(cols, col)
	}
	return cols, rows.Err()
}

// bind takes a dedicated connection on the shared database and points the
// temp view at abs. Only fixed statements run on it.
func (r *Runner) bind(ctx context.Context, abs string) (*sql.Conn, error) {
	conn, err := r.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring duckdb connection: %w", err)
	}
	stmt := fmt.Sprintf("CREATE OR REPLACE TEMP VIEW %s AS SELECT * FROM %s(%s)", ViewName, readerFor(abs), quoteLiteral(abs))
	if _, err := conn.ExecContext(ctx, stmt); err != nil {
		conn.Close()
		return nil, fmt.Errorf("binding %s: %w", filepath.Base(abs), err)
	}
	return conn, nil
}

// sandbox opens a throwaway database holding abs as the table "data", then
// turns off external access and locks the configuration.
func (r *Runner) sandbox(ctx context.Context, abs string) (*sql.Conn, func(), error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, nil, fmt.Errorf("opening sandbox: %w", err)
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("acquiring sandbox connection: %w", err)
	}
	closeAll := func() {
		conn.Close()
		db.Close()
	}

	stmts := []string{
		fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s(%s)", ViewName, readerFor(abs), quoteLiteral(abs)),
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	}
	for _, stmt := range stmts {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			closeAll()
			if ctx.Err() != nil {
				return nil, nil, r.queryErr(ctx, err)
			}
			return nil, nil, fmt.Errorf("preparing %s: %w", filepath.Base(abs), err)
		}
	}
	return conn, closeAll, nil
}

var statementNames = map[duckdb.StmtType]string{
	duckdb.STATEMENT_TYPE_INSERT:       "INSERT",
	duckdb.STATEMENT_TYPE_UPDATE:       "UPDATE",
	duckdb.STATEMENT_TYPE_DELETE:       "DELETE",
	duckdb.STATEMENT_TYPE_CREATE:       "CREATE",
	duckdb.STATEMENT_TYPE_ALTER:        "ALTER",
	duckdb.STATEMENT_TYPE_DROP:         "DROP",
	duckdb.STATEMENT_TYPE_COPY:         "COPY",
	duckdb.STATEMENT_TYPE_EXPORT:       "EXPORT",
	duckdb.STATEMENT_TYPE_ATTACH:       "ATTACH",
	duckdb.STATEMENT_TYPE_DETACH:       "DETACH",
	duckdb.STATEMENT_TYPE_SET:          "SET",
	duckdb.STATEMENT_TYPE_VARIABLE_SET: "SET",
	duckdb.STATEMENT_TYPE_PRAGMA:       "PRAGMA",
	duckdb.STATEMENT_TYPE_LOAD:         "LOAD",
	duckdb.STATEMENT_TYPE_CALL:         "CALL",
}

// checkStatement prepares sqlText without running it and accepts exactly
// one SELECT or EXPLAIN statement.
func checkStatement(conn *sql.Conn, sqlText string) error {
	return conn.Raw(func(driverConn any) error {
		dc, ok := driverConn.(*duckdb.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		// Prepare refuses multi-statement input.
		st, err := dc.Prepare(sqlText)
		if err != nil {
			return fmt.Errorf("preparing query: %w: %w", ErrInvalidQuery, err)
		}
		defer st.Close()

		stmt, ok := st.(*duckdb.Stmt)
		if !ok {
			return fmt.Errorf("unexpected driver statement %T", st)
		}
		typ, err := stmt.StatementType()
		if err != nil {
			return fmt.Errorf("inspecting query: %w: %w", ErrInvalidQuery, err)
		}
		switch typ {
		case duckdb.STATEMENT_TYPE_SELECT, duckdb.STATEMENT_TYPE_EXPLAIN:
			return nil
		}
		name, ok := statementNames[typ]
		if !ok {
			name = fmt.Sprintf("type %d", typ)
		}
		return fmt.Errorf("%s statement: %w: %w", name, ErrInvalidQuery, ErrStatementNotAllowed)
	})
}

func readerFor(abs string) string {
	if strings.EqualFold(filepath.Ext(abs), ".csv") {
		return "read_csv_auto"
	}
	return "read_parquet"
}

func (r *Runner) queryErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("after %s: %w", r.timeout, ErrQueryTimeout)
	}
	return fmt.Errorf("running query: %w: %w", ErrInvalidQuery, err)
}

// cell tags a value scanned from DuckDB.
func cell(v any) chart.Value {
	switch x := v.(type) {
	case duckdb.Decimal:
		return chart.Number(x.Float64())
	case duckdb.Interval:
		return chart.Text(fmt.Sprintf("%dmon %dd %dus", x.Months, x.Days, x.Micros))
	case []byte:
		return chart.Text(string(x))
	default:
		return chart.FromAny(v)
	}
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func mustRel(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return path
	}
	return rel
}
