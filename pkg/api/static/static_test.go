package static

import (
    "context"
    "errors"
    "io"
    "log"
    "os"
    "path/filepath"
    "testing"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
)

const doc = `
systems:
  - id: 2
    kind: galera
    name: shop
    nodes:
      - {id: 3, hostname: db3, ip: 10.0.0.3}
      - {id: 1, hostname: db1, ip: 10.0.0.1, port: 3307, user: monitor, password: secret}
probes:
  galera:
    - {id: 9, key: conns, kind: GLOBAL, statement: threads_connected, interval: 30}
    - {id: 4, key: qps, kind: SQL, statement: "select 1", interval: 10, delta: true, average: true}
nodeStates:
  galera: {joined: 4, down: 1}
`

func quiet() *log.Logger { return log.New(io.Discard, "", 0) }

func TestParseAndServe(t *testing.T) {
    cat, err := Parse([]byte(doc))
    if err != nil { t.Fatalf("parse: %v", err) }
    s := New(cat, quiet())
    ctx := context.Background()

    nodes, err := s.ListNodes(ctx, 2)
    if err != nil { t.Fatalf("nodes: %v", err) }
    if len(nodes) != 2 || nodes[0].ID != 1 || nodes[0].SystemID != 2 { t.Fatalf("nodes = %+v", nodes) }
    if nodes[0].DialAddr() != "10.0.0.1:3307" || nodes[1].DialAddr() != "10.0.0.3:3306" { t.Fatalf("dial addrs = %s %s", nodes[0].DialAddr(), nodes[1].DialAddr()) }

    creds, err := s.NodeCredentials(ctx, 2, 1)
    if err != nil || creds.User != "monitor" || creds.Password != "secret" { t.Fatalf("creds = %+v, %v", creds, err) }
    if _, err := s.NodeCredentials(ctx, 2, 7); !errors.Is(err, api.ErrNotFound) { t.Fatalf("missing node err = %v", err) }
    if _, err := s.GetSystem(ctx, 5); !errors.Is(err, api.ErrNotFound) { t.Fatalf("missing system err = %v", err) }

    defs, _ := s.ListProbeDefinitions(ctx, "galera")
    if len(defs) != 2 || defs[0].ID != 4 || !defs[0].Delta || !defs[0].SystemAverage { t.Fatalf("defs = %+v", defs) }

    st, _ := s.NodeStates(ctx, "galera")
    if id, _ := st.ID("joined"); id != 4 { t.Fatalf("joined id = %d", id) }
    st, _ = s.NodeStates(ctx, "other")
    if id, _ := st.ID(api.StateJoined); id != 104 { t.Fatalf("default joined id = %d", id) }
    ms, _ := s.ManagerStates(ctx)
    if ms["Started"] != 104 { t.Fatalf("manager states = %v", ms) }
}

func TestParseRejectsDuplicateSystems(t *testing.T) {
    if _, err := Parse([]byte("systems:\n  - {id: 1}\n  - {id: 1}\n")); err == nil { t.Fatalf("expected duplicate id error") }
}

func TestWritesAreReadable(t *testing.T) {
    cat, _ := Parse([]byte(doc))
    s := New(cat, quiet())
    ctx := context.Background()
    _ = s.SetNodeState(ctx, 2, 1, 104)
    _ = s.SetSystemState(ctx, 2, api.SystemRunning)
    _ = s.SetNodeDatabase(ctx, 2, 1, "MariaDB", "10.6")
    _ = s.WriteObservations(ctx, []api.Observation{{ProbeID: 4, SystemID: 2, Value: "1"}})
    _ = s.Register(ctx, "v1")

    if v, ok := s.NodeState(2, 1); !ok || v != 104 { t.Fatalf("node state = %d %v", v, ok) }
    if v, _ := s.SystemState(2); v != api.SystemRunning { t.Fatalf("system state = %q", v) }
    if typ, ver, ok := s.NodeDatabase(2, 1); !ok || typ != "MariaDB" || ver != "10.6" { t.Fatalf("db = %q %q", typ, ver) }
    if len(s.Observations()) != 1 || s.Registrations() != 1 { t.Fatalf("observations/registrations not recorded") }
    sys, _ := s.GetSystem(ctx, 2)
    if sys.State != api.SystemRunning { t.Fatalf("GetSystem state = %q", sys.State) }
    nodes, _ := s.ListNodes(ctx, 2)
    if nodes[0].StateID != 104 { t.Fatalf("ListNodes state id = %d", nodes[0].StateID) }
}

func TestLoadReloadsOnChange(t *testing.T) {
    p := filepath.Join(t.TempDir(), "catalog.yaml")
    if err := os.WriteFile(p, []byte("systems:\n  - {id: 1, kind: galera}\n"), 0o644); err != nil { t.Fatalf("write: %v", err) }
    s, err := Load(p, quiet())
    if err != nil { t.Fatalf("load: %v", err) }
    systems, _ := s.ListSystems(context.Background())
    if len(systems) != 1 { t.Fatalf("systems = %+v", systems) }

    if err := os.WriteFile(p, []byte("systems:\n  - {id: 1, kind: galera}\n  - {id: 2, kind: galera}\n"), 0o644); err != nil { t.Fatalf("rewrite: %v", err) }
    later := time.Now().Add(time.Minute)
    if err := os.Chtimes(p, later, later); err != nil { t.Fatalf("chtimes: %v", err) }
    systems, _ = s.ListSystems(context.Background())
    if len(systems) != 2 || systems[1].ID != 2 { t.Fatalf("after reload systems = %+v", systems) }
}

func TestLoadMissingFile(t *testing.T) {
    if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), quiet()); err == nil { t.Fatalf("expected error") }
}
