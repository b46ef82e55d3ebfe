package probe

import (
    "context"
    "strconv"
    "strings"

    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
    "github.com/amirimatin/go-clustermon/pkg/script"
    "github.com/amirimatin/go-clustermon/pkg/statuscache"
)

// Globals is the object bound as `globals` in scripted probes. Methods are
// visible to scripts with a lowercase first letter (globals.getStatus(...)).
type Globals struct{ snap *statuscache.Snapshot }

func (g Globals) GetStatus(key string) any {
    if v, ok := g.snap.Status(key); ok { return v }
    return nil
}

func (g Globals) GetVariable(key string) any {
    if v, ok := g.snap.Variable(key); ok { return v }
    return nil
}

func (g Globals) Get(key string) any {
    if v, ok := g.snap.Get(key); ok { return v }
    return nil
}

// scripted evaluates an expression against the node's cached globals and
// its address and login.
type scripted struct {
    base
    d delta
}

func (p *scripted) Probe(ctx context.Context) {
    src := strings.ReplaceAll(p.def.Statement, `\`, "")
    if strings.TrimSpace(src) == "" { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindScript).Inc()

    b := script.Bindings{
        "globals": &Globals{snap: p.t.Globals(ctx)},
        "address": p.t.Address(),
    }
    if creds, err := p.t.Credentials(ctx); err == nil {
        b["dbUserName"] = creds.User
        b["dbPassword"] = creds.Password
    }
    res, err := p.env.Evaluator.Eval(ctx, src, b)
    if err != nil {
        logutil.Warnf(p.env.Logger, "probe %s node %d: script: %v", p.def.Key, p.t.ID(), err)
        res = nil
    }
    v, isNum := script.Float(res)
    if !p.def.Delta {
        switch {
        case res == nil:
            p.record("0")
        case isNum:
            p.record(strconv.FormatFloat(v, 'f', -1, 64))
        default:
            p.record(strings.TrimSpace(toString(res)))
        }
        return
    }
    if res == nil || !isNum {
        p.d.reset()
        return
    }
    d, ok, negative := p.d.next(v)
    if !ok { return }
    if negative {
        logutil.Warnf(p.env.Logger, "probe %s node %d: script value went backwards, recording 0", p.def.Key, p.t.ID())
    }
    p.record(formatDecimal(d))
}

func toString(v any) string {
    if s, ok := v.(string); ok { return s }
    if f, ok := script.Float(v); ok { return strconv.FormatFloat(f, 'f', -1, 64) }
    return ""
}
