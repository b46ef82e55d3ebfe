package supervisor

import (
    "context"
    "database/sql"
    "encoding/json"
    "errors"
    "io"
    "log"
    "slices"
    "testing"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/api/static"
    "github.com/amirimatin/go-clustermon/pkg/node"
    "github.com/amirimatin/go-clustermon/pkg/scheduler"
)

type ownOdd struct{}

func (ownOdd) Owns(id int) bool { return id%2 == 1 }

func catalog(ids ...int) static.Catalog {
    var c static.Catalog
    for _, id := range ids {
        c.Systems = append(c.Systems, static.SystemSpec{
            System: api.System{ID: id, Kind: "galera"},
            Nodes:  []static.NodeSpec{{NodeInfo: api.NodeInfo{ID: 1, PrivateIP: "10.0.0.1"}}},
        })
    }
    return c
}

func newSupervisor(t *testing.T, store *static.Store, opts Options) *Supervisor {
    t.Helper()
    logger := log.New(io.Discard, "", 0)
    opts.Logger = logger
    opts.Scheduler = scheduler.Options{
        TickUnit:       time.Millisecond,
        EmptyRetryWait: time.Millisecond,
        Node: node.Options{
            Dialer: node.DialerFunc(func(context.Context, string, api.Credentials) (*sql.DB, error) { return nil, errors.New("refused") }),
            Pinger: node.PingerFunc(func(context.Context, string, int) bool { return false }),
        },
    }
    s, err := New(store, opts)
    if err != nil { t.Fatalf("new: %v", err) }
    t.Cleanup(s.wait)
    return s
}

func TestRoundFollowsCatalogAndOwnership(t *testing.T) {
    store := static.New(catalog(1, 2, 3), log.New(io.Discard, "", 0))
    s := newSupervisor(t, store, Options{Ownership: ownOdd{}})
    ctx, cancel := context.WithCancel(context.Background())
    defer cancel()

    if n := s.round(ctx); n != 3 { t.Fatalf("round listed %d systems, want 3", n) }
    if got := s.Running(); !slices.Equal(got, []int{1, 3}) { t.Fatalf("running = %v, want [1 3]", got) }

    store.SetCatalog(catalog(1, 2))
    s.round(ctx)
    if got := s.Running(); !slices.Equal(got, []int{1}) { t.Fatalf("running = %v, want [1]", got) }
}

func TestRegisterCadence(t *testing.T) {
    store := static.New(catalog(), log.New(io.Discard, "", 0))
    s := newSupervisor(t, store, Options{RegisterEvery: 2})
    for i := 0; i < 3; i++ { s.round(context.Background()) }
    if n := store.Registrations(); n != 2 { t.Fatalf("registrations = %d, want 2", n) }
}

func TestSystemWithoutNodesIsDropped(t *testing.T) {
    cat := static.Catalog{Systems: []static.SystemSpec{{System: api.System{ID: 5, Kind: "galera"}}}}
    store := static.New(cat, log.New(io.Discard, "", 0))
    s := newSupervisor(t, store, Options{})
    s.opts.Scheduler.EmptyRetries = 1
    s.round(context.Background())
    deadline := time.Now().Add(2 * time.Second)
    for len(s.Running()) > 0 {
        if time.Now().After(deadline) { t.Fatalf("scheduler for empty system still running") }
        time.Sleep(5 * time.Millisecond)
    }
}

func TestRunOneUnknownSystem(t *testing.T) {
    store := static.New(catalog(1), log.New(io.Discard, "", 0))
    s := newSupervisor(t, store, Options{})
    err := s.RunOne(context.Background(), 42)
    if !errors.Is(err, ErrUnknownSystem) { t.Fatalf("RunOne = %v, want ErrUnknownSystem", err) }
}

func TestRunStopsSchedulersOnCancel(t *testing.T) {
    store := static.New(catalog(1, 3), log.New(io.Discard, "", 0))
    s := newSupervisor(t, store, Options{PollEvery: time.Millisecond})
    ctx, cancel := context.WithCancel(context.Background())
    done := make(chan error, 1)
    go func() { done <- s.Run(ctx) }()

    deadline := time.Now().Add(2 * time.Second)
    for len(s.Running()) < 2 {
        if time.Now().After(deadline) { t.Fatalf("schedulers not started: %v", s.Running()) }
        time.Sleep(2 * time.Millisecond)
    }
    b, err := s.StatusJSON(ctx)
    if err != nil { t.Fatalf("status: %v", err) }
    var rep Report
    if err := json.Unmarshal(b, &rep); err != nil { t.Fatalf("decode: %v", err) }
    if len(rep.Systems) != 2 || rep.Systems[0].SystemID != 1 { t.Fatalf("report systems = %+v", rep.Systems) }

    cancel()
    select {
    case err := <-done:
        if err != nil { t.Fatalf("Run = %v", err) }
    case <-time.After(2 * time.Second):
        t.Fatalf("Run did not return")
    }
    if got := s.Running(); len(got) != 0 { t.Fatalf("running after stop = %v", got) }
}
