package probe

import (
    "context"
    "strings"

    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// global reads one key from the node's status cache instead of issuing a
// statement. With Delta set it records the increase between runs.
type global struct {
    base
    d delta
}

func (p *global) Probe(ctx context.Context) {
    key := strings.TrimSpace(p.def.Statement)
    if key == "" { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindGlobal).Inc()
    v, ok := p.t.Globals(ctx).Get(key)
    if !p.def.Delta {
        if !ok {
            p.clear()
            return
        }
        p.record(v)
        return
    }
    if !ok {
        p.d.reset()
        p.clear()
        return
    }
    cur, err := parseNumber(v)
    if err != nil {
        logutil.Warnf(p.env.Logger, "probe %s node %d: non numeric %s=%q", p.def.Key, p.t.ID(), key, v)
        return
    }
    d, ok, negative := p.d.next(cur)
    if !ok { return }
    if negative {
        logutil.Warnf(p.env.Logger, "probe %s node %d: %s went backwards, recording 0", p.def.Key, p.t.ID(), key)
    }
    p.record(formatDecimal(d))
}
