package probe

import (
    "context"

    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// galeraStatus triggers membership detection for the node's system. Every
// node of the system carries one instance; the detector runs at most once
// per window no matter how many instances call it.
type galeraStatus struct{ base }

func (p *galeraStatus) HasSystemValue() bool { return false }

func (p *galeraStatus) Probe(ctx context.Context) {
    obsmetrics.ProbeRuns.WithLabelValues(KindGaleraStatus).Inc()
    p.env.Detector.Run(ctx, p.t.SystemID())
}
