// Package membership classifies the nodes of a Galera cluster from the
// replication metadata each node reports about itself and derives the
// cluster's availability state.
package membership

import (
    "context"
    "log"
    "net"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
    "github.com/amirimatin/go-clustermon/pkg/observability/tracing"
)

// Status and variable names read from each node.
const (
    KeyLocalState   = "wsrep_local_state"
    KeyClusterSize  = "wsrep_cluster_size"
    KeyStateUUID    = "wsrep_local_state_uuid"
    KeyIncoming     = "wsrep_incoming_addresses"
    KeyVersion      = "version"
    KeyVersionNotes = "version_comment"
)

// Resolver performs reverse lookups; *net.Resolver satisfies it.
type Resolver interface {
    LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Options tunes a Detector.
type Options struct {
    // Window is the minimum spacing between two rounds for one system (default 5s).
    Window time.Duration
    // Offset maps a raw wsrep_local_state to a node state id (default 100).
    Offset   int
    Resolver Resolver
    Logger   *log.Logger
    Now      func() time.Time
}

// Detector runs membership rounds for the systems of a Registry.
type Detector struct {
    reg    *Registry
    sink   api.StateSink
    states api.StateTable
    opts   Options

    mu     sync.Mutex
    lastDB map[[2]int]string
}

func NewDetector(reg *Registry, sink api.StateSink, states api.StateTable, opts Options) *Detector {
    if opts.Window <= 0 { opts.Window = 5 * time.Second }
    if opts.Offset == 0 { opts.Offset = 100 }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    if opts.Logger == nil { opts.Logger = log.Default() }
    if opts.Now == nil { opts.Now = time.Now }
    return &Detector{reg: reg, sink: sink, states: states, opts: opts, lastDB: make(map[[2]int]string)}
}

func (d *Detector) Registry() *Registry { return d.reg }

// candidate is a member still in play after the local state check.
type candidate struct {
    m        Member
    uuid     string
    incoming map[string]struct{}
}

// Run performs one detection round for systemID unless another round ran
// within the window or is still running. It reports whether a round ran.
func (d *Detector) Run(ctx context.Context, systemID int) (Verdict, bool) {
    if !d.reg.claim(systemID, d.opts.Now(), d.opts.Window) { return Verdict{}, false }
    var v *Verdict
    defer func() { d.reg.complete(systemID, v, d.opts.Now()) }()

    ctx, end := tracing.StartSpan(ctx, "membership.detect", "system", systemID)
    defer end()
    obsmetrics.MembershipRuns.WithLabelValues(strconv.Itoa(systemID)).Inc()

    members := d.reg.Members(systemID)
    names := make(map[int]string, len(members))
    var inPlay []*candidate

    for _, m := range members {
        snap := m.Globals(ctx)
        d.recordDatabase(ctx, systemID, m, snap.Variable)

        id, name := d.localState(snap.Status)
        if name != api.StateJoined {
            names[m.ID()] = name
            d.setNode(ctx, systemID, m.ID(), id, name)
            logutil.Debugf(d.opts.Logger, "membership %d: node %d is %s", systemID, m.ID(), name)
            continue
        }
        uuid, _ := snap.Status(KeyStateUUID)
        incoming, _ := snap.Status(KeyIncoming)
        inPlay = append(inPlay, &candidate{m: m, uuid: uuid, incoming: parseIncoming(incoming)})
    }

    joined := d.classify(ctx, inPlay)
    for _, c := range inPlay {
        name := api.StateIncorrectlyJoined
        if joined[c.m.ID()] { name = api.StateJoined }
        names[c.m.ID()] = name
        id, _ := d.states.ID(name)
        d.setNode(ctx, systemID, c.m.ID(), id, name)
    }

    all := make([]string, 0, len(names))
    nJoined := 0
    for _, n := range names {
        all = append(all, n)
        if n == api.StateJoined { nJoined++ }
    }
    sysState := DeriveSystemState(all)
    if err := d.sink.SetSystemState(ctx, systemID, sysState); err != nil {
        logutil.Warnf(d.opts.Logger, "membership %d: set system state %s: %v", systemID, sysState, err)
    }
    obsmetrics.JoinedNodes.WithLabelValues(strconv.Itoa(systemID)).Set(float64(nJoined))
    logutil.Debugf(d.opts.Logger, "membership %d: %d/%d joined, system %s", systemID, nJoined, len(names), sysState)

    v = &Verdict{SystemID: systemID, NodeStates: names, SystemState: sysState, Joined: nJoined, At: d.opts.Now()}
    return *v, true
}

// localState maps the node's reported replication state to a state id and
// name. A missing state means isolated when the node reports a cluster of
// size zero, down otherwise.
func (d *Detector) localState(status func(string) (string, bool)) (int, string) {
    if raw, ok := status(KeyLocalState); ok {
        if n, err := strconv.Atoi(strings.TrimSpace(raw)); err == nil {
            id := n + d.opts.Offset
            if name, ok := d.states.Name(id); ok { return id, name }
            return id, strconv.Itoa(id)
        }
    }
    name := api.StateDown
    if size, ok := status(KeyClusterSize); ok && strings.TrimSpace(size) == "0" {
        name = api.StateIsolated
    }
    id, _ := d.states.ID(name)
    return id, name
}

// classify returns the IDs of the candidates that form the primary
// partition.
func (d *Detector) classify(ctx context.Context, inPlay []*candidate) map[int]bool {
    joined := make(map[int]bool, len(inPlay))
    if len(inPlay) == 0 { return joined }

    groups := make(map[string][]*candidate)
    for _, c := range inPlay { groups[c.uuid] = append(groups[c.uuid], c) }
    uuids := make([]string, 0, len(groups))
    for u := range groups { uuids = append(uuids, u) }
    sort.Strings(uuids)

    if len(groups) == 1 && d.fullMesh(ctx, inPlay) {
        for _, c := range inPlay { joined[c.m.ID()] = true }
        return joined
    }

    total := len(inPlay)
    for _, u := range uuids {
        for _, n := range groups[u] {
            part := []*candidate{n}
            for _, m := range inPlay {
                if m == n { continue }
                if m.sees(n.m.Hostname()) || m.sees(n.m.Address()) { part = append(part, m) }
            }
            if 2*len(part) > total {
                for _, c := range part { joined[c.m.ID()] = true }
                return joined
            }
        }
    }
    return joined
}

// fullMesh reports whether every candidate is listed in the incoming
// addresses of every other candidate.
func (d *Detector) fullMesh(ctx context.Context, cs []*candidate) bool {
    for _, n := range cs {
        name := d.reverseName(ctx, n.m.Address())
        for _, m := range cs {
            if m == n { continue }
            if !m.sees(name) && !m.sees(n.m.Address()) { return false }
        }
    }
    return true
}

func (d *Detector) reverseName(ctx context.Context, ip string) string {
    if ip == "" { return "" }
    names, err := d.opts.Resolver.LookupAddr(ctx, ip)
    if err != nil || len(names) == 0 { return ip }
    return strings.TrimSuffix(names[0], ".")
}

func (c *candidate) sees(host string) bool {
    if host == "" { return false }
    _, ok := c.incoming[strings.ToLower(host)]
    return ok
}

// parseIncoming splits a wsrep_incoming_addresses value into a set of
// lowercased hosts with the port removed.
func parseIncoming(s string) map[string]struct{} {
    out := make(map[string]struct{})
    for _, part := range strings.Split(s, ",") {
        part = strings.TrimSpace(part)
        if part == "" { continue }
        if h, _, err := net.SplitHostPort(part); err == nil { part = h }
        out[strings.ToLower(part)] = struct{}{}
    }
    return out
}

func (d *Detector) setNode(ctx context.Context, systemID, nodeID, stateID int, name string) {
    if stateID == 0 {
        if id, ok := d.states.ID(name); ok {
            stateID = id
        } else {
            logutil.Warnf(d.opts.Logger, "membership %d: no state id for %q, node %d not updated", systemID, name, nodeID)
            return
        }
    }
    if err := d.sink.SetNodeState(ctx, systemID, nodeID, stateID); err != nil {
        logutil.Warnf(d.opts.Logger, "membership %d: set node %d state %s: %v", systemID, nodeID, name, err)
    }
}

// recordDatabase reports the server flavour and version when they change.
func (d *Detector) recordDatabase(ctx context.Context, systemID int, m Member, variable func(string) (string, bool)) {
    comment, ok1 := variable(KeyVersionNotes)
    version, ok2 := variable(KeyVersion)
    if !ok1 && !ok2 { return }
    key := [2]int{systemID, m.ID()}
    sig := comment + "\x00" + version
    d.mu.Lock()
    same := d.lastDB[key] == sig
    d.lastDB[key] = sig
    d.mu.Unlock()
    if same { return }
    if err := d.sink.SetNodeDatabase(ctx, systemID, m.ID(), comment, version); err != nil {
        logutil.Warnf(d.opts.Logger, "membership %d: set node %d database: %v", systemID, m.ID(), err)
    }
}
