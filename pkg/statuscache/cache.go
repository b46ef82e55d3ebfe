// Package statuscache keeps a short-lived, per-node copy of the server's
// global status and global variables tables.
package statuscache

import (
    "context"
    "strings"
    "sync"
    "time"
)

const (
    StatusStatement    = "SHOW GLOBAL STATUS"
    VariablesStatement = "SHOW GLOBAL VARIABLES"

    DefaultTTL = 2 * time.Second
)

// Fetcher runs a two-column statement and returns it as a lowercased table.
type Fetcher interface {
    FetchTable(ctx context.Context, stmt string) (map[string]string, bool)
}

// Snapshot is one immutable refresh of both tables.
type Snapshot struct {
    status    map[string]string
    variables map[string]string
    FetchedAt time.Time
}

// NewSnapshot builds a snapshot from already fetched tables. Keys are
// lowercased.
func NewSnapshot(status, variables map[string]string, at time.Time) *Snapshot {
    return &Snapshot{status: lower(status), variables: lower(variables), FetchedAt: at}
}

func lower(in map[string]string) map[string]string {
    out := make(map[string]string, len(in))
    for k, v := range in { out[strings.ToLower(k)] = v }
    return out
}

func (s *Snapshot) Status(key string) (string, bool) {
    if s == nil { return "", false }
    v, ok := s.status[strings.ToLower(key)]
    return v, ok
}

func (s *Snapshot) Variable(key string) (string, bool) {
    if s == nil { return "", false }
    v, ok := s.variables[strings.ToLower(key)]
    return v, ok
}

// Get looks in the status table first, then in the variables table.
func (s *Snapshot) Get(key string) (string, bool) {
    if v, ok := s.Status(key); ok { return v, true }
    return s.Variable(key)
}

// Len returns the number of entries in both tables.
func (s *Snapshot) Len() int {
    if s == nil { return 0 }
    return len(s.status) + len(s.variables)
}

// Cache refreshes a Snapshot from a Fetcher at most once per TTL.
type Cache struct {
    src Fetcher
    ttl time.Duration
    now func() time.Time

    mu   sync.Mutex
    snap *Snapshot
}

// New returns a cache over src. A non-positive ttl selects DefaultTTL.
func New(src Fetcher, ttl time.Duration) *Cache {
    if ttl <= 0 { ttl = DefaultTTL }
    return &Cache{src: src, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source (tests).
func (c *Cache) WithClock(now func() time.Time) *Cache { c.now = now; return c }

// Snapshot returns the current snapshot, refetching both tables when the
// previous one is older than the TTL. The lock is held across the fetch so
// concurrent readers wait for and share a single refresh.
func (c *Cache) Snapshot(ctx context.Context) *Snapshot {
    c.mu.Lock()
    defer c.mu.Unlock()
    now := c.now()
    if c.snap != nil && now.Sub(c.snap.FetchedAt) < c.ttl {
        return c.snap
    }
    status, _ := c.src.FetchTable(ctx, StatusStatement)
    vars, _ := c.src.FetchTable(ctx, VariablesStatement)
    // a failed fetch still stamps the snapshot so an unreachable node is not
    // queried on every call
    c.snap = NewSnapshot(status, vars, now)
    return c.snap
}

// Invalidate drops the current snapshot.
func (c *Cache) Invalidate() {
    c.mu.Lock()
    c.snap = nil
    c.mu.Unlock()
}
