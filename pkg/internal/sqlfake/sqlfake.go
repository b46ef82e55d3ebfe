// Package sqlfake is an in-memory database/sql driver for tests. Results are
// keyed by the exact statement text; unknown statements return an empty
// two-column result set.
package sqlfake

import (
    "context"
    "database/sql"
    "database/sql/driver"
    "errors"
    "io"
    "sync"
)

// Result is the canned answer to one statement.
type Result struct {
    Columns []string
    Rows    [][]string
    Err     error
}

// Server holds canned results and counts the statements it sees. It is safe
// for concurrent use.
type Server struct {
    mu      sync.Mutex
    results map[string]Result
    seen    map[string]int
    down    bool
}

func New() *Server {
    return &Server{results: make(map[string]Result), seen: make(map[string]int)}
}

func (s *Server) Set(stmt string, r Result) {
    s.mu.Lock()
    s.results[stmt] = r
    s.mu.Unlock()
}

// SetValue answers stmt with a single cell.
func (s *Server) SetValue(stmt, v string) {
    s.Set(stmt, Result{Columns: []string{"value"}, Rows: [][]string{{v}}})
}

// SetTable answers stmt with (Variable_name, Value) rows.
func (s *Server) SetTable(stmt string, kv map[string]string) {
    r := Result{Columns: []string{"Variable_name", "Value"}}
    for k, v := range kv { r.Rows = append(r.Rows, []string{k, v}) }
    s.Set(stmt, r)
}

// SetDown makes new connections and queries fail.
func (s *Server) SetDown(down bool) {
    s.mu.Lock()
    s.down = down
    s.mu.Unlock()
}

// Queries returns how many times stmt was run.
func (s *Server) Queries(stmt string) int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return s.seen[stmt]
}

// DB opens a new pool backed by s.
func (s *Server) DB() *sql.DB { return sql.OpenDB(connector{s}) }

var errDown = errors.New("sqlfake: server down")

func (s *Server) query(stmt string) (driver.Rows, error) {
    s.mu.Lock()
    defer s.mu.Unlock()
    if s.down { return nil, errDown }
    s.seen[stmt]++
    r, ok := s.results[stmt]
    if !ok { r = Result{Columns: []string{"Variable_name", "Value"}} }
    if r.Err != nil { return nil, r.Err }
    return &rows{cols: r.Columns, data: r.Rows}, nil
}

type connector struct{ s *Server }

func (c connector) Connect(context.Context) (driver.Conn, error) {
    c.s.mu.Lock()
    down := c.s.down
    c.s.mu.Unlock()
    if down { return nil, errDown }
    return &conn{s: c.s}, nil
}

func (c connector) Driver() driver.Driver { return drv{} }

type drv struct{}

func (drv) Open(string) (driver.Conn, error) { return nil, errors.New("sqlfake: use Server.DB") }

type conn struct{ s *Server }

func (c *conn) Prepare(query string) (driver.Stmt, error) { return &stmt{c: c, q: query}, nil }
func (c *conn) Close() error                             { return nil }
func (c *conn) Begin() (driver.Tx, error)                { return nil, errors.New("sqlfake: transactions not supported") }

func (c *conn) QueryContext(ctx context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
    if err := ctx.Err(); err != nil { return nil, err }
    return c.s.query(query)
}

func (c *conn) Ping(context.Context) error {
    c.s.mu.Lock()
    defer c.s.mu.Unlock()
    if c.s.down { return driver.ErrBadConn }
    return nil
}

type stmt struct {
    c *conn
    q string
}

func (s *stmt) Close() error  { return nil }
func (s *stmt) NumInput() int { return -1 }
func (s *stmt) Exec([]driver.Value) (driver.Result, error) {
    return nil, errors.New("sqlfake: exec not supported")
}
func (s *stmt) Query([]driver.Value) (driver.Rows, error) { return s.c.s.query(s.q) }

type rows struct {
    cols []string
    data [][]string
    i    int
}

func (r *rows) Columns() []string { return r.cols }
func (r *rows) Close() error      { return nil }

func (r *rows) Next(dest []driver.Value) error {
    if r.i >= len(r.data) { return io.EOF }
    row := r.data[r.i]
    r.i++
    for i := range dest {
        if i < len(row) {
            dest[i] = row[i]
        } else {
            dest[i] = nil
        }
    }
    return nil
}
