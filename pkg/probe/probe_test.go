package probe

import (
    "context"
    "io"
    "log"
    "testing"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/api/static"
    "github.com/amirimatin/go-clustermon/pkg/statuscache"
)

type fakeTarget struct {
    id, system int
    results    []string // consumed by Execute in order; "" means no result
    reachable  bool
    status     map[string]string
    recorded   map[int][]string
}

func newTarget(id int) *fakeTarget {
    return &fakeTarget{id: id, system: 1, reachable: true, recorded: make(map[int][]string)}
}

func (f *fakeTarget) ID() int          { return f.id }
func (f *fakeTarget) SystemID() int    { return f.system }
func (f *fakeTarget) Address() string  { return "10.0.0.1" }
func (f *fakeTarget) Hostname() string { return "db1" }

func (f *fakeTarget) Execute(ctx context.Context, stmt string) (string, bool) {
    if len(f.results) == 0 { return "", false }
    v := f.results[0]
    f.results = f.results[1:]
    return v, v != ""
}

func (f *fakeTarget) IsReachable(ctx context.Context) bool { return f.reachable }

func (f *fakeTarget) Globals(ctx context.Context) *statuscache.Snapshot {
    return statuscache.NewSnapshot(f.status, nil, time.Now())
}

func (f *fakeTarget) Credentials(ctx context.Context) (api.Credentials, error) {
    return api.Credentials{User: "monitor", Password: "secret"}, nil
}

func (f *fakeTarget) Record(probeID int, value string) {
    f.recorded[probeID] = append(f.recorded[probeID], value)
}

func testEnv() (Env, *static.Store) {
    logger := log.New(io.Discard, "", 0)
    store := static.New(static.Catalog{}, logger)
    return Env{API: store, States: api.NewStateTable(api.DefaultGaleraStates), Logger: logger}, store
}

func mustNew(t *testing.T, def api.ProbeDefinition, tg Target, env Env) Probe {
    t.Helper()
    p, err := New(def, tg, env)
    if err != nil { t.Fatalf("new %s: %v", def.Kind, err) }
    return p
}

func TestSQLDeltaClampsNegative(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    tg.results = []string{"10", "15", "12", "20"}
    p := mustNew(t, api.ProbeDefinition{ID: 7, Kind: KindSQL, Statement: "select c", Interval: 30, Delta: true}, tg, env)
    for i := 0; i < 4; i++ { p.Probe(context.Background()) }
    got := tg.recorded[7]
    want := []string{"5", "0", "8"}
    if len(got) != len(want) { t.Fatalf("recorded %v, want %v", got, want) }
    for i := range want {
        if got[i] != want[i] { t.Fatalf("recorded %v, want %v", got, want) }
    }
}

func TestSQLRawMissingResultIsZero(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    p := mustNew(t, api.ProbeDefinition{ID: 1, Kind: "sql", Statement: "select 1", Interval: 30}, tg, env)
    p.Probe(context.Background())
    if v, ok := p.Value(); !ok || v != "0" { t.Fatalf("value = %q %v, want 0", v, ok) }
    if !p.HasSystemValue() { t.Fatalf("sql probe should contribute to the system value") }
}

func TestGlobalDeltaUsesDecimals(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    p := mustNew(t, api.ProbeDefinition{ID: 2, Kind: KindGlobal, Statement: "Uptime", Interval: 10, Delta: true}, tg, env)
    tg.status = map[string]string{"uptime": "1.5"}
    p.Probe(context.Background())
    if _, ok := p.Value(); ok { t.Fatalf("first reading should not produce a value") }
    tg.status = map[string]string{"uptime": "4.0"}
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "2.5" { t.Fatalf("delta = %q, want 2.5", v) }
}

func TestGlobalMissingKeyClearsValue(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    tg.status = map[string]string{"threads_connected": "3"}
    p := mustNew(t, api.ProbeDefinition{ID: 2, Kind: KindGlobal, Statement: "threads_connected", Interval: 10}, tg, env)
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "3" { t.Fatalf("value = %q, want 3", v) }
    tg.status = nil
    p.Probe(context.Background())
    if _, ok := p.Value(); ok { t.Fatalf("value should be cleared when the key is missing") }
}

func TestPingMarksMachineDownAfterTwoFailures(t *testing.T) {
    env, store := testEnv()
    tg := newTarget(3)
    tg.reachable = false
    p := mustNew(t, api.ProbeDefinition{ID: 4, Kind: KindPing, Interval: 30}, tg, env)
    p.Probe(context.Background())
    if _, ok := store.NodeState(1, 3); ok { t.Fatalf("state set after a single failure") }
    p.Probe(context.Background())
    if st, _ := store.NodeState(1, 3); st != 2 { t.Fatalf("state = %d, want machine-down (2)", st) }
    if v, _ := p.Value(); v != "0" { t.Fatalf("value = %q, want 0", v) }
}

func TestNodeStateFallsBackToStopped(t *testing.T) {
    env, store := testEnv()
    tg := newTarget(2)
    p := mustNew(t, api.ProbeDefinition{ID: 5, Kind: KindNodeState, Statement: "select state", Interval: 30}, tg, env)
    p.Probe(context.Background())
    if st, _ := store.NodeState(1, 2); st != 100 { t.Fatalf("state = %d, want 100", st) }
    if p.HasSystemValue() { t.Fatalf("node state probe must not aggregate") }
    tg.results = []string{"104"}
    p.Probe(context.Background())
    if st, _ := store.NodeState(1, 2); st != 104 { t.Fatalf("state = %d, want 104", st) }
}

func TestCommandRunsEveryNthCall(t *testing.T) {
    env, _ := testEnv()
    var calls []string
    env.Runner = RunnerFunc(func(ctx context.Context, name string, args ...string) ([]byte, error) {
        calls = append(calls, name+" "+args[len(args)-1])
        return []byte("  42 ms \nsecond line\n"), nil
    })
    tg := newTarget(1)
    p := mustNew(t, api.ProbeDefinition{ID: 6, Kind: KindCommand, Statement: "/usr/bin/check -q", Interval: 30}, tg, env)
    for i := 0; i < 6; i++ { p.Probe(context.Background()) }
    if len(calls) != 2 { t.Fatalf("runner called %d times, want 2", len(calls)) }
    if calls[0] != "/usr/bin/check 10.0.0.1" { t.Fatalf("command = %q", calls[0]) }
    if v, _ := p.Value(); v != "42 ms" { t.Fatalf("value = %q, want first line", v) }
}

func TestUnknownKind(t *testing.T) {
    env, _ := testEnv()
    if _, err := New(api.ProbeDefinition{ID: 1, Kind: "SNMP"}, newTarget(1), env); err == nil {
        t.Fatalf("expected ErrUnknownKind")
    }
}

func TestEmptyKindIsSQL(t *testing.T) {
    env, _ := testEnv()
    tg := newTarget(1)
    tg.results = []string{"7"}
    p := mustNew(t, api.ProbeDefinition{ID: 2, Statement: "select 7", Interval: 30}, tg, env)
    if _, ok := p.(*sqlRaw); !ok { t.Fatalf("probe = %T, want *sqlRaw", p) }
    p.Probe(context.Background())
    if v, _ := p.Value(); v != "7" { t.Fatalf("value = %q, want 7", v) }
}

func TestGaleraStatusNeedsDetector(t *testing.T) {
    env, _ := testEnv()
    if _, err := New(api.ProbeDefinition{ID: 1, Kind: KindGaleraStatus, Interval: 10}, newTarget(1), env); err == nil {
        t.Fatalf("expected error without a detector")
    }
}
