// Package node manages the monitor's connection to one database server.
//
// A Handle never blocks the caller on connection setup: Execute on a
// disconnected handle starts (or piggybacks on) an asynchronous connect and
// returns no value immediately. The next cycle finds the connection ready.
package node

import (
    "context"
    "database/sql"
    "log"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
    "github.com/amirimatin/go-clustermon/pkg/statuscache"
)

// CredentialSource resolves the database login for a node at connect time.
type CredentialSource interface {
    NodeCredentials(ctx context.Context, systemID, nodeID int) (api.Credentials, error)
}

// Options tunes a Handle. Zero values select the defaults.
type Options struct {
    Dialer Dialer
    Pinger Pinger

    QueryTimeout   time.Duration // default 60s
    PingTimeout    time.Duration // default 4s
    ConnectTimeout time.Duration // default 10s
    // MaxConnectAttempts is how many Connect calls may pile up on one
    // in-flight attempt before it is abandoned (default 10).
    MaxConnectAttempts int
    CacheTTL           time.Duration // status cache TTL, default 2s

    Logger *log.Logger
}

func (o Options) withDefaults() Options {
    if o.Dialer == nil { o.Dialer = MySQLDialer{} }
    if o.Pinger == nil { o.Pinger = ICMPPinger{} }
    if o.QueryTimeout <= 0 { o.QueryTimeout = 60 * time.Second }
    if o.PingTimeout <= 0 { o.PingTimeout = 4 * time.Second }
    if o.ConnectTimeout <= 0 { o.ConnectTimeout = 10 * time.Second }
    if o.MaxConnectAttempts <= 0 { o.MaxConnectAttempts = 10 }
    if o.CacheTTL <= 0 { o.CacheTTL = statuscache.DefaultTTL }
    if o.Logger == nil { o.Logger = log.Default() }
    return o
}

// Handle owns the connection to one node.
type Handle struct {
    info   api.NodeInfo
    creds  CredentialSource
    opts   Options
    cache  *statuscache.Cache
    buf    Buffer
    label  string
    base   context.Context
    cancel context.CancelFunc

    mu         sync.Mutex
    db         *sql.DB
    connected  bool
    connecting bool
    attempts   int
    gen        uint64
    closed     bool
}

// New returns a disconnected handle. The first Execute starts connecting.
func New(info api.NodeInfo, creds CredentialSource, opts Options) *Handle {
    opts = opts.withDefaults()
    base, cancel := context.WithCancel(context.Background())
    h := &Handle{
        info:   info,
        creds:  creds,
        opts:   opts,
        label:  strconv.Itoa(info.SystemID),
        base:   base,
        cancel: cancel,
    }
    h.cache = statuscache.New(h, opts.CacheTTL)
    return h
}

func (h *Handle) ID() int             { return h.info.ID }
func (h *Handle) SystemID() int       { return h.info.SystemID }
func (h *Handle) Info() api.NodeInfo  { return h.info }
func (h *Handle) Hostname() string    { return h.info.Hostname }

// Address is the IP (or hostname) used to reach the node.
func (h *Handle) Address() string { return h.info.Address() }

// Connected reports whether the handle holds an open connection.
func (h *Handle) Connected() bool {
    h.mu.Lock()
    defer h.mu.Unlock()
    return h.connected
}

// Connecting reports whether a connect attempt is in flight.
func (h *Handle) Connecting() bool {
    h.mu.Lock()
    defer h.mu.Unlock()
    return h.connecting
}

// Credentials resolves the node's database login.
func (h *Handle) Credentials(ctx context.Context) (api.Credentials, error) {
    return h.creds.NodeCredentials(ctx, h.info.SystemID, h.info.ID)
}

// Connect starts an asynchronous connection attempt unless one is already in
// flight. Calls that arrive while an attempt is pending are counted; once
// MaxConnectAttempts pile up the pending attempt is abandoned so the next
// call starts a fresh one.
func (h *Handle) Connect() {
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.closed { return }
    if h.connecting {
        h.attempts++
        if h.attempts >= h.opts.MaxConnectAttempts {
            h.connecting = false
            obsmetrics.NodeConnects.WithLabelValues("reset").Inc()
            logutil.Warnf(h.opts.Logger, "node %d/%d: connect pending after %d attempts, abandoning", h.info.SystemID, h.info.ID, h.attempts)
            return
        }
        obsmetrics.NodeConnects.WithLabelValues("coalesced").Inc()
        return
    }
    h.attempts = 1
    h.connecting = true
    h.gen++
    if h.db != nil {
        _ = h.db.Close()
        h.db = nil
    }
    h.setConnectedLocked(false)
    obsmetrics.NodeConnects.WithLabelValues("started").Inc()
    go h.dial(h.gen)
}

func (h *Handle) dial(gen uint64) {
    ctx, cancel := context.WithTimeout(h.base, h.opts.ConnectTimeout)
    defer cancel()
    var db *sql.DB
    creds, err := h.Credentials(ctx)
    if err == nil {
        db, err = h.opts.Dialer.Open(ctx, h.info.DialAddr(), creds)
    }

    h.mu.Lock()
    defer h.mu.Unlock()
    if gen != h.gen || h.closed {
        // superseded by a newer attempt or by Close
        if db != nil { _ = db.Close() }
        obsmetrics.NodeConnects.WithLabelValues("stale").Inc()
        return
    }
    h.connecting = false
    if err != nil {
        obsmetrics.NodeConnects.WithLabelValues("failed").Inc()
        logutil.Warnf(h.opts.Logger, "node %d/%d: connect to %s failed: %v", h.info.SystemID, h.info.ID, h.info.DialAddr(), err)
        return
    }
    h.db = db
    h.setConnectedLocked(true)
    obsmetrics.NodeConnects.WithLabelValues("ok").Inc()
    logutil.Infof(h.opts.Logger, "node %d/%d: connected to %s", h.info.SystemID, h.info.ID, h.info.DialAddr())
}

func (h *Handle) setConnectedLocked(v bool) {
    if h.connected == v { return }
    h.connected = v
    if v {
        obsmetrics.NodesConnected.WithLabelValues(h.label).Inc()
    } else {
        obsmetrics.NodesConnected.WithLabelValues(h.label).Dec()
    }
}

// current returns the open connection, or triggers Connect and returns nil.
func (h *Handle) current() *sql.DB {
    h.mu.Lock()
    db, ok := h.db, h.connected
    h.mu.Unlock()
    if !ok || db == nil {
        h.Connect()
        return nil
    }
    return db
}

// fail closes db if it is still the handle's connection so that the next
// call reconnects.
func (h *Handle) fail(db *sql.DB, stmt string, err error) {
    logutil.Warnf(h.opts.Logger, "node %d/%d: %q failed: %v", h.info.SystemID, h.info.ID, stmt, err)
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.db != db { return }
    _ = h.db.Close()
    h.db = nil
    h.setConnectedLocked(false)
}

// Execute runs stmt and returns the first column of the first row. It
// returns false when the node is not connected, the statement fails, the
// result set is empty or the value is NULL.
func (h *Handle) Execute(ctx context.Context, stmt string) (string, bool) {
    db := h.current()
    if db == nil { return "", false }
    qctx, cancel := context.WithTimeout(ctx, h.opts.QueryTimeout)
    defer cancel()
    rows, err := db.QueryContext(qctx, stmt)
    if err != nil {
        h.fail(db, stmt, err)
        return "", false
    }
    defer rows.Close()
    vals, err := scanRow(rows)
    if err != nil {
        h.fail(db, stmt, err)
        return "", false
    }
    if len(vals) == 0 || !vals[0].Valid { return "", false }
    return vals[0].String, true
}

// FetchTable maps a two column result (name, value) into a table keyed by
// the lowercased first column.
func (h *Handle) FetchTable(ctx context.Context, stmt string) (map[string]string, bool) {
    db := h.current()
    if db == nil { return nil, false }
    qctx, cancel := context.WithTimeout(ctx, h.opts.QueryTimeout)
    defer cancel()
    rows, err := db.QueryContext(qctx, stmt)
    if err != nil {
        h.fail(db, stmt, err)
        return nil, false
    }
    defer rows.Close()
    cols, err := rows.Columns()
    if err != nil {
        h.fail(db, stmt, err)
        return nil, false
    }
    if len(cols) < 2 {
        logutil.Warnf(h.opts.Logger, "node %d/%d: %q returned %d columns, want 2", h.info.SystemID, h.info.ID, stmt, len(cols))
        return nil, false
    }
    out := make(map[string]string)
    vals := make([]sql.NullString, len(cols))
    ptrs := make([]any, len(cols))
    for i := range vals { ptrs[i] = &vals[i] }
    for rows.Next() {
        if err := rows.Scan(ptrs...); err != nil {
            h.fail(db, stmt, err)
            return nil, false
        }
        if !vals[0].Valid { continue }
        out[strings.ToLower(vals[0].String)] = vals[1].String
    }
    if err := rows.Err(); err != nil {
        h.fail(db, stmt, err)
        return nil, false
    }
    return out, true
}

func scanRow(rows *sql.Rows) ([]sql.NullString, error) {
    cols, err := rows.Columns()
    if err != nil { return nil, err }
    if !rows.Next() { return nil, rows.Err() }
    vals := make([]sql.NullString, len(cols))
    ptrs := make([]any, len(cols))
    for i := range vals { ptrs[i] = &vals[i] }
    if err := rows.Scan(ptrs...); err != nil { return nil, err }
    return vals, nil
}

// IsReachable checks the host independently of the SQL connection.
func (h *Handle) IsReachable(ctx context.Context) bool {
    ctx, cancel := context.WithTimeout(ctx, h.opts.PingTimeout)
    defer cancel()
    port := h.info.Port
    if port == 0 { port = api.DefaultSQLPort }
    return h.opts.Pinger.Reachable(ctx, h.Address(), port)
}

// Globals returns the node's cached status/variables snapshot.
func (h *Handle) Globals(ctx context.Context) *statuscache.Snapshot {
    return h.cache.Snapshot(ctx)
}

// Record buffers an observation until the next Flush.
func (h *Handle) Record(probeID int, value string) { h.buf.Record(probeID, value) }

// Flush sends the buffered observations in one batch.
func (h *Handle) Flush(ctx context.Context, sink api.ObservationSink) error {
    return h.buf.Flush(ctx, sink, h.info.SystemID, h.info.ID)
}

// Close drops the connection and abandons any pending connect.
func (h *Handle) Close() error {
    h.mu.Lock()
    defer h.mu.Unlock()
    if h.closed { return nil }
    h.closed = true
    h.gen++
    h.connecting = false
    h.cancel()
    var err error
    if h.db != nil {
        err = h.db.Close()
        h.db = nil
    }
    h.setConnectedLocked(false)
    return err
}
