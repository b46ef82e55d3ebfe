package probe

import (
    "context"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// ping records host reachability and marks the node machine-down after two
// consecutive failures.
type ping struct {
    base
    fails int
}

func (p *ping) Probe(ctx context.Context) {
    obsmetrics.ProbeRuns.WithLabelValues(KindPing).Inc()
    if p.t.IsReachable(ctx) {
        p.fails = 0
        p.record("1")
        return
    }
    p.fails++
    p.record("0")
    if p.fails < 2 { return }
    id, ok := p.env.States.ID(api.StateMachineDown)
    if !ok {
        logutil.Warnf(p.env.Logger, "probe %s node %d: no %s state id", p.def.Key, p.t.ID(), api.StateMachineDown)
        return
    }
    if err := p.env.API.SetNodeState(ctx, p.t.SystemID(), p.t.ID(), id); err != nil {
        logutil.Warnf(p.env.Logger, "probe %s node %d: set machine-down: %v", p.def.Key, p.t.ID(), err)
    }
}
