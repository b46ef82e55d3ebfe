package statuscache

import (
    "context"
    "sync"
    "testing"
    "time"
)

type countingFetcher struct {
    mu    sync.Mutex
    calls map[string]int
}

func (f *countingFetcher) FetchTable(ctx context.Context, stmt string) (map[string]string, bool) {
    f.mu.Lock()
    defer f.mu.Unlock()
    if f.calls == nil { f.calls = make(map[string]int) }
    f.calls[stmt]++
    if stmt == StatusStatement {
        return map[string]string{"wsrep_local_state": "4", "uptime": "10"}, true
    }
    return map[string]string{"version": "10.6", "uptime": "shadowed"}, true
}

func TestSnapshotReusedWithinTTL(t *testing.T) {
    f := &countingFetcher{}
    now := time.Unix(100, 0)
    c := New(f, 2*time.Second).WithClock(func() time.Time { return now })
    a := c.Snapshot(context.Background())
    now = now.Add(time.Second)
    b := c.Snapshot(context.Background())
    if a != b { t.Fatalf("snapshot refetched within TTL") }
    now = now.Add(2 * time.Second)
    if c.Snapshot(context.Background()) == a { t.Fatalf("snapshot not refreshed after TTL") }
    if f.calls[StatusStatement] != 2 || f.calls[VariablesStatement] != 2 {
        t.Fatalf("fetches = %v, want 2 each", f.calls)
    }
}

func TestConcurrentReadersShareOneRefresh(t *testing.T) {
    f := &countingFetcher{}
    c := New(f, time.Minute)
    var wg sync.WaitGroup
    for i := 0; i < 8; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            c.Snapshot(context.Background())
        }()
    }
    wg.Wait()
    if f.calls[StatusStatement] != 1 { t.Fatalf("status fetched %d times, want 1", f.calls[StatusStatement]) }
}

func TestGetPrefersStatus(t *testing.T) {
    s := NewSnapshot(map[string]string{"Uptime": "10"}, map[string]string{"uptime": "x", "Version": "10.6"}, time.Now())
    if v, _ := s.Get("UPTIME"); v != "10" { t.Fatalf("Get(uptime) = %q, want status value", v) }
    if v, _ := s.Get("version"); v != "10.6" { t.Fatalf("Get(version) = %q", v) }
    if _, ok := s.Get("missing"); ok { t.Fatalf("missing key found") }
    var nilSnap *Snapshot
    if _, ok := nilSnap.Get("x"); ok || nilSnap.Len() != 0 { t.Fatalf("nil snapshot not empty") }
}

func TestInvalidate(t *testing.T) {
    f := &countingFetcher{}
    c := New(f, time.Minute)
    a := c.Snapshot(context.Background())
    c.Invalidate()
    if c.Snapshot(context.Background()) == a { t.Fatalf("invalidate kept the snapshot") }
}
