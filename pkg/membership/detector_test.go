package membership

import (
    "context"
    "errors"
    "io"
    "log"
    "testing"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/api/static"
    "github.com/amirimatin/go-clustermon/pkg/statuscache"
)

type fakeMember struct {
    id       int
    ip, host string
    status   map[string]string
    vars     map[string]string
}

func (m *fakeMember) ID() int          { return m.id }
func (m *fakeMember) Address() string  { return m.ip }
func (m *fakeMember) Hostname() string { return m.host }
func (m *fakeMember) Globals(context.Context) *statuscache.Snapshot {
    return statuscache.NewSnapshot(m.status, m.vars, time.Now())
}

type noReverse struct{}

func (noReverse) LookupAddr(context.Context, string) ([]string, error) {
    return nil, errors.New("no reverse zone")
}

func joinedMember(id int, ip, uuid, incoming string) *fakeMember {
    return &fakeMember{id: id, ip: ip, status: map[string]string{
        KeyLocalState:  "4",
        KeyClusterSize: "3",
        KeyStateUUID:   uuid,
        KeyIncoming:    incoming,
    }}
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newDetector(t *testing.T, members ...*fakeMember) (*Detector, *static.Store, *clock) {
    t.Helper()
    logger := log.New(io.Discard, "", 0)
    store := static.New(static.Catalog{}, logger)
    reg := NewRegistry()
    for _, m := range members { reg.Register(1, m) }
    c := &clock{t: time.Unix(1700000000, 0)}
    d := NewDetector(reg, store, api.NewStateTable(api.DefaultGaleraStates), Options{Resolver: noReverse{}, Logger: logger, Now: c.now})
    return d, store, c
}

const mesh = "10.0.0.1:3306,10.0.0.2:3306,10.0.0.3:3306"

func TestFullMeshIsRunning(t *testing.T) {
    d, store, _ := newDetector(t,
        joinedMember(1, "10.0.0.1", "A", mesh),
        joinedMember(2, "10.0.0.2", "A", mesh),
        joinedMember(3, "10.0.0.3", "A", mesh),
    )
    v, ran := d.Run(context.Background(), 1)
    if !ran { t.Fatalf("detection did not run") }
    if v.SystemState != api.SystemRunning || v.Joined != 3 {
        t.Fatalf("verdict = %+v, want running with 3 joined", v)
    }
    for id := 1; id <= 3; id++ {
        if st, _ := store.NodeState(1, id); st != 104 { t.Fatalf("node %d state = %d, want 104", id, st) }
    }
    if st, _ := store.SystemState(1); st != api.SystemRunning { t.Fatalf("system state = %q", st) }
}

func TestSplitBrainIsInconsistent(t *testing.T) {
    pair := "10.0.0.1:3306,10.0.0.2:3306"
    d, store, _ := newDetector(t,
        joinedMember(1, "10.0.0.1", "A", pair),
        joinedMember(2, "10.0.0.2", "A", pair),
        joinedMember(3, "10.0.0.3", "B", "10.0.0.3:3306"),
    )
    v, _ := d.Run(context.Background(), 1)
    if v.NodeStates[1] != api.StateJoined || v.NodeStates[2] != api.StateJoined {
        t.Fatalf("majority not joined: %v", v.NodeStates)
    }
    if v.NodeStates[3] != api.StateIncorrectlyJoined {
        t.Fatalf("node 3 = %q, want incorrectly-joined", v.NodeStates[3])
    }
    if v.SystemState != api.SystemInconsistent { t.Fatalf("system = %q, want inconsistent", v.SystemState) }
    if st, _ := store.NodeState(1, 3); st != 4 { t.Fatalf("node 3 state id = %d, want 4", st) }
}

func TestOneUUIDWithoutMeshFallsBackToMajority(t *testing.T) {
    pair := "10.0.0.1:3306,10.0.0.2:3306"
    d, store, _ := newDetector(t,
        joinedMember(1, "10.0.0.1", "A", pair),
        joinedMember(2, "10.0.0.2", "A", pair),
        joinedMember(3, "10.0.0.3", "A", "10.0.0.3:3306"),
    )
    v, _ := d.Run(context.Background(), 1)
    if v.NodeStates[1] != api.StateJoined || v.NodeStates[2] != api.StateJoined {
        t.Fatalf("majority not joined: %v", v.NodeStates)
    }
    if v.NodeStates[3] != api.StateIncorrectlyJoined {
        t.Fatalf("node 3 = %q, want incorrectly-joined", v.NodeStates[3])
    }
    if v.SystemState != api.SystemInconsistent { t.Fatalf("system = %q, want inconsistent", v.SystemState) }
    if st, _ := store.SystemState(1); st != api.SystemInconsistent { t.Fatalf("stored system state = %q", st) }
}

func TestNoStateIsDownOrIsolated(t *testing.T) {
    down := &fakeMember{id: 1, ip: "10.0.0.1"}
    isolated := &fakeMember{id: 2, ip: "10.0.0.2", status: map[string]string{KeyClusterSize: "0"}}
    d, store, _ := newDetector(t, down, isolated)
    v, _ := d.Run(context.Background(), 1)
    if v.NodeStates[1] != api.StateDown || v.NodeStates[2] != api.StateIsolated {
        t.Fatalf("states = %v", v.NodeStates)
    }
    if v.SystemState != api.SystemDown { t.Fatalf("system = %q, want down", v.SystemState) }
    if st, _ := store.NodeState(1, 2); st != 3 { t.Fatalf("isolated id = %d, want 3", st) }
}

func TestTwoOfFourIsLimited(t *testing.T) {
    pair := "10.0.0.1:3306,10.0.0.2:3306"
    donor := &fakeMember{id: 3, ip: "10.0.0.3", status: map[string]string{KeyLocalState: "2"}}
    d, _, _ := newDetector(t,
        joinedMember(1, "10.0.0.1", "A", pair),
        joinedMember(2, "10.0.0.2", "A", pair),
        donor,
        &fakeMember{id: 4, ip: "10.0.0.4"},
    )
    v, _ := d.Run(context.Background(), 1)
    if v.NodeStates[3] != "donor" { t.Fatalf("node 3 = %q, want donor", v.NodeStates[3]) }
    if v.SystemState != api.SystemLimitedAvailability {
        t.Fatalf("system = %q, want limited-availability", v.SystemState)
    }
}

func TestRunIsGatedByWindow(t *testing.T) {
    d, _, c := newDetector(t, joinedMember(1, "10.0.0.1", "A", "10.0.0.1:3306"))
    if _, ran := d.Run(context.Background(), 1); !ran { t.Fatalf("first run skipped") }
    c.t = c.t.Add(2 * time.Second)
    if _, ran := d.Run(context.Background(), 1); ran { t.Fatalf("second run inside the window") }
    c.t = c.t.Add(5 * time.Second)
    if _, ran := d.Run(context.Background(), 1); !ran { t.Fatalf("run after the window skipped") }
    if _, ran := d.Run(context.Background(), 2); ran { t.Fatalf("run for a system without members") }
}

func TestDatabaseVersionWrittenOnChange(t *testing.T) {
    m := joinedMember(1, "10.0.0.1", "A", "10.0.0.1:3306")
    m.vars = map[string]string{KeyVersion: "10.6.12-MariaDB", KeyVersionNotes: "MariaDB Server"}
    d, store, c := newDetector(t, m)
    d.Run(context.Background(), 1)
    typ, ver, ok := store.NodeDatabase(1, 1)
    if !ok || typ != "MariaDB Server" || ver != "10.6.12-MariaDB" {
        t.Fatalf("database = %q %q %v", typ, ver, ok)
    }
    _ = store.SetNodeDatabase(context.Background(), 1, 1, "", "")
    c.t = c.t.Add(time.Minute)
    d.Run(context.Background(), 1)
    if typ, _, _ := store.NodeDatabase(1, 1); typ != "" { t.Fatalf("unchanged version was written again") }
}

func TestDeriveSystemState(t *testing.T) {
    j := api.StateJoined
    cases := []struct {
        in   []string
        want string
    }{
        {[]string{j, j, j}, api.SystemRunning},
        {[]string{j, j, j, "donor"}, api.SystemAvailable},
        {[]string{j, j, "down"}, api.SystemLimitedAvailability},
        {[]string{j}, api.SystemLimitedAvailability},
        {[]string{"down", "isolated"}, api.SystemDown},
        {[]string{j, j, api.StateIncorrectlyJoined}, api.SystemInconsistent},
    }
    for _, c := range cases {
        if got := DeriveSystemState(c.in); got != c.want {
            t.Fatalf("DeriveSystemState(%v) = %q, want %q", c.in, got, c.want)
        }
    }
}
