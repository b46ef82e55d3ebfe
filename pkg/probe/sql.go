package probe

import (
    "context"
    "strconv"
    "strings"

    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// sqlRaw records the statement's result; a missing result counts as "0".
type sqlRaw struct{ base }

func (p *sqlRaw) Probe(ctx context.Context) {
    if strings.TrimSpace(p.def.Statement) == "" { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindSQL).Inc()
    v, ok := p.t.Execute(ctx, p.def.Statement)
    if !ok { v = "0" }
    p.record(v)
}

// sqlDelta records the increase of a counter between two runs.
type sqlDelta struct {
    base
    d delta
}

func (p *sqlDelta) Probe(ctx context.Context) {
    if strings.TrimSpace(p.def.Statement) == "" { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindSQL).Inc()
    v, ok := p.t.Execute(ctx, p.def.Statement)
    if !ok { return }
    cur, err := parseNumber(v)
    if err != nil {
        logutil.Warnf(p.env.Logger, "probe %s node %d: non numeric value %q", p.def.Key, p.t.ID(), v)
        return
    }
    d, ok, negative := p.d.next(cur)
    if !ok { return }
    if negative {
        logutil.Warnf(p.env.Logger, "probe %s node %d: counter went backwards, recording 0", p.def.Key, p.t.ID())
    }
    p.record(strconv.FormatInt(int64(d), 10))
}

// nodeState sets the node's state from a numeric statement result.
type nodeState struct{ base }

func (p *nodeState) HasSystemValue() bool { return false }

func (p *nodeState) Probe(ctx context.Context) {
    if strings.TrimSpace(p.def.Statement) == "" { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindNodeState).Inc()
    state := p.env.StoppedState
    if v, ok := p.t.Execute(ctx, p.def.Statement); ok {
        n, err := strconv.Atoi(strings.TrimSpace(v))
        if err != nil {
            logutil.Warnf(p.env.Logger, "probe %s node %d: state %q is not a number", p.def.Key, p.t.ID(), v)
            return
        }
        state = n
    }
    if err := p.env.API.SetNodeState(ctx, p.t.SystemID(), p.t.ID(), state); err != nil {
        logutil.Warnf(p.env.Logger, "probe %s node %d: set state %d: %v", p.def.Key, p.t.ID(), state, err)
    }
    p.record(strconv.Itoa(state))
}
