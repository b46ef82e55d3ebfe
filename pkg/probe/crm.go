package probe

import (
    "bufio"
    "bytes"
    "context"
    "regexp"
    "strconv"
    "strings"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// crm parses `crm status` output grouped by node and pushes the pacemaker
// view of every node into the node states. It only runs on node 1 so the
// system is parsed once per cycle.
type crm struct {
    base
    states map[string]int
}

func (p *crm) HasSystemValue() bool { return false }

// CRMEntry is one node state read from crm output.
type CRMEntry struct {
    Node  int
    State string
}

var (
    nodeNumRe  = regexp.MustCompile(`node(\d+)`)
    failNodeRe  = regexp.MustCompile(`node=node(\d+)`)
)

// ParseCRM extracts node states from `crm status` output. Resource lines
// are attributed to the most recent Node line; after "Failed actions:" the
// node is read from the node=nodeN field and the state from the text after
// the last ": ". Failed demote and monitor operations are ignored.
func ParseCRM(out []byte, resource string) []CRMEntry {
    var (
        entries  []CRMEntry
        current  = -1
        failures bool
    )
    s := bufio.NewScanner(bytes.NewReader(out))
    for s.Scan() {
        line := s.Text()
        if strings.HasPrefix(line, "Node") {
            if m := nodeNumRe.FindStringSubmatch(line); m != nil {
                current, _ = strconv.Atoi(m[1])
                if strings.Contains(line, "OFFLINE") {
                    entries = append(entries, CRMEntry{Node: current, State: "OFFLINE"})
                }
            }
        }
        if resource != "" && strings.Contains(line, resource) {
            if failures {
                if strings.Contains(line, "demote") || strings.Contains(line, "monitor") { continue }
                m := failNodeRe.FindStringSubmatch(line)
                i := strings.LastIndex(line, ": ")
                if m == nil || i < 0 { continue }
                n, _ := strconv.Atoi(m[1])
                entries = append(entries, CRMEntry{Node: n, State: strings.TrimSpace(line[i+2:])})
            } else if current >= 0 {
                words := strings.Fields(line)
                if len(words) > 0 {
                    entries = append(entries, CRMEntry{Node: current, State: words[len(words)-1]})
                }
            }
        }
        if strings.TrimSpace(line) == "Failed actions:" {
            failures = true
        }
    }
    return entries
}

// ManagerSystemState derives the system state from pacemaker node states.
func ManagerSystemState(states []string) string {
    starting := false
    for _, s := range states {
        switch s {
        case "Master", "Started":
            return api.SystemRunning
        case "Stopped", "OFFLINE":
        default:
            starting = true
        }
    }
    if starting { return api.SystemStarting }
    return api.SystemStopped
}

func (p *crm) Probe(ctx context.Context) {
    if p.t.ID() != 1 { return }
    args := strings.Fields(p.def.Statement)
    if len(args) == 0 { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindCRM).Inc()
    out, err := p.env.Runner.Run(ctx, args[0], args[1:]...)
    if err != nil {
        logutil.Warnf(p.env.Logger, "probe %s: %s: %v", p.def.Key, p.def.Statement, err)
        return
    }
    if p.states == nil {
        m, err := p.env.API.ManagerStates(ctx)
        if err != nil {
            logutil.Warnf(p.env.Logger, "probe %s: manager states: %v", p.def.Key, err)
            return
        }
        p.states = m
    }

    systemID := p.t.SystemID()
    final := make(map[int]string)
    for _, e := range ParseCRM(out, p.env.CRMResource) {
        logutil.Debugf(p.env.Logger, "crm: node %d is %s", e.Node, e.State)
        final[e.Node] = e.State
        id, ok := p.states[e.State]
        if !ok {
            logutil.Warnf(p.env.Logger, "probe %s: unable to map crm state %q", p.def.Key, e.State)
            continue
        }
        value := strconv.Itoa(id)
        obs := []api.Observation{{ProbeID: p.def.ID, SystemID: systemID, NodeID: e.Node, Value: value, At: time.Now()}}
        if err := p.env.API.WriteObservations(ctx, obs); err != nil {
            obsmetrics.WriteFailures.Inc()
            logutil.Warnf(p.env.Logger, "probe %s node %d: write: %v", p.def.Key, e.Node, err)
        }
        if err := p.env.API.SetNodeState(ctx, systemID, e.Node, id); err != nil {
            logutil.Warnf(p.env.Logger, "probe %s node %d: set state %d: %v", p.def.Key, e.Node, id, err)
        }
    }
    if len(final) == 0 { return }
    words := make([]string, 0, len(final))
    for _, w := range final { words = append(words, w) }
    state := ManagerSystemState(words)
    if err := p.env.API.SetSystemState(ctx, systemID, state); err != nil {
        logutil.Warnf(p.env.Logger, "probe %s: set system state %s: %v", p.def.Key, state, err)
    }
}
