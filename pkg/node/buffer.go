package node

import (
    "context"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// Buffer accumulates probe values between flushes. A value recorded twice
// for the same probe keeps its original position and takes the newer value.
type Buffer struct {
    mu    sync.Mutex
    order []int
    vals  map[int]string
}

func (b *Buffer) Record(probeID int, value string) {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.vals == nil { b.vals = make(map[int]string) }
    if _, ok := b.vals[probeID]; !ok { b.order = append(b.order, probeID) }
    b.vals[probeID] = value
}

func (b *Buffer) Len() int {
    b.mu.Lock()
    defer b.mu.Unlock()
    return len(b.order)
}

// Drain returns the buffered observations stamped with the given identity
// and empties the buffer.
func (b *Buffer) Drain(systemID, nodeID int, at time.Time) []api.Observation {
    b.mu.Lock()
    defer b.mu.Unlock()
    if len(b.order) == 0 { return nil }
    out := make([]api.Observation, 0, len(b.order))
    for _, id := range b.order {
        out = append(out, api.Observation{ProbeID: id, SystemID: systemID, NodeID: nodeID, Value: b.vals[id], At: at})
    }
    b.order = nil
    b.vals = nil
    return out
}

// Flush drains the buffer into one WriteObservations call. The buffer is
// emptied even when the write fails.
func (b *Buffer) Flush(ctx context.Context, sink api.ObservationSink, systemID, nodeID int) error {
    batch := b.Drain(systemID, nodeID, time.Now())
    if len(batch) == 0 { return nil }
    scope := "node"
    if nodeID == 0 { scope = "system" }
    if err := sink.WriteObservations(ctx, batch); err != nil {
        obsmetrics.WriteFailures.Inc()
        return err
    }
    obsmetrics.ObservationsWritten.WithLabelValues(scope).Add(float64(len(batch)))
    return nil
}
