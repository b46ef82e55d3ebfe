package fleet

import (
    "context"
    "log"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// Runner starts the gossip layer, keeps joining discovered seeds until at
// least one peer is seen, and tracks fleet size until ctx ends.
type Runner struct {
    Gossip    Gossip
    Discovery Discovery
    // RejoinEvery is the seed retry period while alone (default 5s).
    RejoinEvery time.Duration
    Logger      *log.Logger
}

func (r *Runner) Run(ctx context.Context) error {
    if r.Logger == nil { r.Logger = log.Default() }
    if r.RejoinEvery <= 0 { r.RejoinEvery = 5 * time.Second }
    if err := r.Gossip.Start(ctx); err != nil { return err }
    defer func() {
        _ = r.Gossip.Leave()
        _ = r.Gossip.Stop()
    }()
    local := r.Gossip.Local()
    logutil.Infof(r.Logger, "fleet: %s gossiping on %s", local.ID, local.Addr)
    r.join(ctx)

    t := time.NewTicker(r.RejoinEvery)
    defer t.Stop()
    events := r.Gossip.Events()
    for {
        select {
        case <-ctx.Done():
            return nil
        case ev, ok := <-events:
            if !ok { return nil }
            logutil.Infof(r.Logger, "fleet: %s %s (%s)", ev.Peer.ID, ev.Type, ev.Peer.Addr)
            obsmetrics.FleetMembers.Set(float64(len(r.Gossip.Peers())))
        case <-t.C:
            if hr, ok := r.Gossip.(HealthReporter); ok { obsmetrics.FleetHealth.Set(float64(hr.HealthScore())) }
            if len(r.Gossip.Peers()) <= 1 { r.join(ctx) }
        }
    }
}

func (r *Runner) join(ctx context.Context) {
    if r.Discovery == nil { return }
    seeds := r.Discovery.Seeds(ctx)
    if len(seeds) == 0 { return }
    if err := r.Gossip.Join(seeds); err != nil {
        logutil.Debugf(r.Logger, "fleet: join %v: %v", seeds, err)
        return
    }
    obsmetrics.FleetMembers.Set(float64(len(r.Gossip.Peers())))
}
