// Package static implements api.API on top of a YAML catalog file. Writes
// are kept in memory so a standalone monitor (and tests) can inspect what the
// engine reported.
package static

import (
    "context"
    "fmt"
    "log"
    "os"
    "sort"
    "sync"
    "time"

    "gopkg.in/yaml.v3"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
)

// Catalog is the on-disk document.
//
//  systems:
//    - id: 1
//      kind: galera
//      name: demo
//      nodes:
//        - {id: 1, hostname: db1, ip: 10.0.0.11, user: monitor, password: secret}
//  probes:
//    galera:
//      - {id: 1, key: connections, kind: GLOBAL, statement: threads_connected, interval: 30}
//  nodeStates:
//    galera: {joined: 104, down: 1}
//  managerStates: {Started: 104}
type Catalog struct {
    Systems       []SystemSpec                     `yaml:"systems"`
    Probes        map[string][]api.ProbeDefinition `yaml:"probes"`
    NodeStates    map[string]map[string]int        `yaml:"nodeStates"`
    ManagerStates map[string]int                   `yaml:"managerStates"`
}

type SystemSpec struct {
    api.System `yaml:",inline"`
    Nodes      []NodeSpec `yaml:"nodes"`
}

type NodeSpec struct {
    api.NodeInfo    `yaml:",inline"`
    api.Credentials `yaml:",inline"`
}

// Parse decodes a YAML catalog.
func Parse(data []byte) (Catalog, error) {
    var c Catalog
    if err := yaml.Unmarshal(data, &c); err != nil { return c, fmt.Errorf("static: parse catalog: %w", err) }
    seen := make(map[int]struct{}, len(c.Systems))
    for _, s := range c.Systems {
        if _, dup := seen[s.ID]; dup { return c, fmt.Errorf("static: duplicate system id %d", s.ID) }
        seen[s.ID] = struct{}{}
    }
    return c, nil
}

// Store serves a Catalog and records writes.
type Store struct {
    mu     sync.Mutex
    path   string
    mtime  time.Time
    cat    Catalog
    logger *log.Logger

    nodeStates   map[[2]int]int
    dbProps      map[[2]int][2]string
    systemStates map[int]string
    observations []api.Observation
    registered   []string
}

// New serves an in-memory catalog.
func New(cat Catalog, logger *log.Logger) *Store {
    if logger == nil { logger = log.Default() }
    return &Store{
        cat:          cat,
        logger:       logger,
        nodeStates:   make(map[[2]int]int),
        dbProps:      make(map[[2]int][2]string),
        systemStates: make(map[int]string),
    }
}

// Load reads the catalog at path. The file is re-read whenever its mtime
// changes, so edits are picked up by the next configuration refresh.
func Load(path string, logger *log.Logger) (*Store, error) {
    s := New(Catalog{}, logger)
    s.path = path
    if err := s.reloadLocked(true); err != nil { return nil, err }
    return s, nil
}

func (s *Store) reloadLocked(force bool) error {
    if s.path == "" { return nil }
    st, err := os.Stat(s.path)
    if err != nil { return fmt.Errorf("static: %w", err) }
    if !force && !st.ModTime().After(s.mtime) { return nil }
    data, err := os.ReadFile(s.path)
    if err != nil { return fmt.Errorf("static: %w", err) }
    cat, err := Parse(data)
    if err != nil { return err }
    s.cat = cat
    s.mtime = st.ModTime()
    return nil
}

func (s *Store) lock() {
    s.mu.Lock()
    if err := s.reloadLocked(false); err != nil {
        logutil.Warnf(s.logger, "static catalog reload: %v", err)
    }
}

func (s *Store) system(id int) (SystemSpec, bool) {
    for _, sys := range s.cat.Systems {
        if sys.ID == id { return sys, true }
    }
    return SystemSpec{}, false
}

func (s *Store) ListSystems(ctx context.Context) ([]api.System, error) {
    s.lock()
    defer s.mu.Unlock()
    out := make([]api.System, 0, len(s.cat.Systems))
    for _, sys := range s.cat.Systems {
        v := sys.System
        if st, ok := s.systemStates[v.ID]; ok { v.State = st }
        out = append(out, v)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (s *Store) GetSystem(ctx context.Context, systemID int) (api.System, error) {
    s.lock()
    defer s.mu.Unlock()
    sys, ok := s.system(systemID)
    if !ok { return api.System{}, fmt.Errorf("system %d: %w", systemID, api.ErrNotFound) }
    v := sys.System
    if st, ok := s.systemStates[v.ID]; ok { v.State = st }
    return v, nil
}

func (s *Store) ListNodes(ctx context.Context, systemID int) ([]api.NodeInfo, error) {
    s.lock()
    defer s.mu.Unlock()
    sys, ok := s.system(systemID)
    if !ok { return nil, fmt.Errorf("system %d: %w", systemID, api.ErrNotFound) }
    out := make([]api.NodeInfo, 0, len(sys.Nodes))
    for _, n := range sys.Nodes {
        info := n.NodeInfo
        info.SystemID = systemID
        if st, ok := s.nodeStates[[2]int{systemID, info.ID}]; ok { info.StateID = st }
        out = append(out, info)
    }
    sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
    return out, nil
}

func (s *Store) NodeCredentials(ctx context.Context, systemID, nodeID int) (api.Credentials, error) {
    s.lock()
    defer s.mu.Unlock()
    sys, ok := s.system(systemID)
    if !ok { return api.Credentials{}, fmt.Errorf("system %d: %w", systemID, api.ErrNotFound) }
    for _, n := range sys.Nodes {
        if n.ID == nodeID { return n.Credentials, nil }
    }
    return api.Credentials{}, fmt.Errorf("node %d/%d: %w", systemID, nodeID, api.ErrNotFound)
}

func (s *Store) ListProbeDefinitions(ctx context.Context, kind string) ([]api.ProbeDefinition, error) {
    s.lock()
    defer s.mu.Unlock()
    defs := append([]api.ProbeDefinition(nil), s.cat.Probes[kind]...)
    sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
    return defs, nil
}

func (s *Store) NodeStates(ctx context.Context, kind string) (api.StateTable, error) {
    s.lock()
    defer s.mu.Unlock()
    if m, ok := s.cat.NodeStates[kind]; ok && len(m) > 0 { return api.NewStateTable(m), nil }
    return api.NewStateTable(api.DefaultGaleraStates), nil
}

func (s *Store) ManagerStates(ctx context.Context) (map[string]int, error) {
    s.lock()
    defer s.mu.Unlock()
    src := s.cat.ManagerStates
    if len(src) == 0 { src = api.DefaultManagerStates }
    out := make(map[string]int, len(src))
    for k, v := range src { out[k] = v }
    return out, nil
}

func (s *Store) SetNodeState(ctx context.Context, systemID, nodeID, stateID int) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.nodeStates[[2]int{systemID, nodeID}] = stateID
    return nil
}

func (s *Store) SetNodeDatabase(ctx context.Context, systemID, nodeID int, dbType, dbVersion string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.dbProps[[2]int{systemID, nodeID}] = [2]string{dbType, dbVersion}
    return nil
}

func (s *Store) SetSystemState(ctx context.Context, systemID int, state string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.systemStates[systemID] = state
    return nil
}

func (s *Store) WriteObservations(ctx context.Context, batch []api.Observation) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.observations = append(s.observations, batch...)
    for _, o := range batch {
        logutil.Debugf(s.logger, "observation system=%d node=%d probe=%d value=%s", o.SystemID, o.NodeID, o.ProbeID, o.Value)
    }
    return nil
}

func (s *Store) Register(ctx context.Context, version string) error {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.registered = append(s.registered, version)
    return nil
}

// Observations returns a copy of every observation written so far.
func (s *Store) Observations() []api.Observation {
    s.mu.Lock()
    defer s.mu.Unlock()
    return append([]api.Observation(nil), s.observations...)
}

// NodeState returns the last state id written for a node.
func (s *Store) NodeState(systemID, nodeID int) (int, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.nodeStates[[2]int{systemID, nodeID}]
    return v, ok
}

// SystemState returns the last state written for a system.
func (s *Store) SystemState(systemID int) (string, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.systemStates[systemID]
    return v, ok
}

// NodeDatabase returns the last database type and version written for a node.
func (s *Store) NodeDatabase(systemID, nodeID int) (string, string, bool) {
    s.mu.Lock()
    defer s.mu.Unlock()
    v, ok := s.dbProps[[2]int{systemID, nodeID}]
    return v[0], v[1], ok
}

// Registrations returns how many times the monitor registered itself.
func (s *Store) Registrations() int {
    s.mu.Lock()
    defer s.mu.Unlock()
    return len(s.registered)
}

// SetCatalog swaps the served catalog (in-memory stores only).
func (s *Store) SetCatalog(cat Catalog) {
    s.mu.Lock()
    defer s.mu.Unlock()
    s.cat = cat
}

var _ api.API = (*Store)(nil)
