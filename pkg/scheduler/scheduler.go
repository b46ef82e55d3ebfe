// Package scheduler drives the probes of one monitored system. All probe
// intervals are multiples of a common tick (the GCD of the base interval and
// every probe interval); each cycle runs the probes that are due, aggregates
// their values per probe and writes them back in batches.
package scheduler

import (
    "context"
    "errors"
    "fmt"
    "log"
    "runtime/debug"
    "slices"
    "sort"
    "strconv"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    "github.com/amirimatin/go-clustermon/pkg/membership"
    "github.com/amirimatin/go-clustermon/pkg/node"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
    "github.com/amirimatin/go-clustermon/pkg/observability/tracing"
    "github.com/amirimatin/go-clustermon/pkg/probe"
)

// row is one probe definition bound to every node of the system.
type row struct {
    def    api.ProbeDefinition
    probes []probe.Probe
}

// Scheduler runs the monitoring loop of one system.
type Scheduler struct {
    systemID int
    api      api.API
    opts     Options
    log      *log.Logger
    label    string

    system   api.System
    states   api.StateTable
    detector *membership.Detector
    nodes    map[int]*node.Handle
    order    []int
    defs     []api.ProbeDefinition
    rows     []row
    tick     int
    cycle    int
    empty    int
    sysBuf   node.Buffer

    // defaultStates is set while the API state table could not be loaded.
    defaultStates bool

    mu     sync.Mutex
    status Status
}

// New validates opts and returns a scheduler for systemID. No I/O happens
// until Run.
func New(systemID int, a api.API, opts Options) (*Scheduler, error) {
    if a == nil { return nil, errors.New("scheduler: nil API") }
    opts = opts.withDefaults()
    if err := opts.Validate(); err != nil { return nil, err }
    if opts.Node.Logger == nil { opts.Node.Logger = opts.Logger }
    if opts.Membership.Logger == nil { opts.Membership.Logger = opts.Logger }
    if opts.Probe.Logger == nil { opts.Probe.Logger = opts.Logger }
    s := &Scheduler{
        systemID: systemID,
        api:      a,
        opts:     opts,
        log:      opts.Logger,
        label:    strconv.Itoa(systemID),
        nodes:    make(map[int]*node.Handle),
        tick:     opts.BaseInterval,
        cycle:    -1,
    }
    s.status.SystemID = systemID
    return s, nil
}

// SystemID returns the monitored system.
func (s *Scheduler) SystemID() int { return s.systemID }

// Run loops until ctx is cancelled or the system runs out of nodes. On
// return every node connection is closed and the system's membership
// registration is dropped.
func (s *Scheduler) Run(ctx context.Context) error {
    obsmetrics.SchedulersRunning.Inc()
    defer obsmetrics.SchedulersRunning.Dec()
    defer s.shutdown()
    logutil.Infof(s.log, "scheduler %d: starting", s.systemID)
    for {
        if err := ctx.Err(); err != nil { return err }
        if err := s.safeCycle(ctx); err != nil {
            if errors.Is(err, ErrNoNodes) {
                logutil.Warnf(s.log, "scheduler %d: %v, stopping", s.systemID, err)
            }
            return err
        }
        wait := time.Duration(s.tick) * s.opts.TickUnit
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(wait):
        }
    }
}

// safeCycle runs one cycle and turns a panic into a log line so the loop
// survives it.
func (s *Scheduler) safeCycle(ctx context.Context) (err error) {
    defer func() {
        if r := recover(); r != nil {
            logutil.Errorf(s.log, "scheduler %d: cycle %d panicked: %v\n%s", s.systemID, s.cycle, r, debug.Stack())
            err = nil
        }
    }()
    return s.runCycle(ctx)
}

func (s *Scheduler) runCycle(ctx context.Context) error {
    s.cycle++
    start := time.Now()
    ctx, end := tracing.StartSpan(ctx, "scheduler.cycle", "system", s.systemID, "cycle", s.cycle)
    defer end()

    elapsed := s.cycle * s.tick
    if s.cycle == 0 || elapsed%s.opts.BaseInterval == 0 {
        if err := s.refresh(ctx); err != nil { return err }
        if err := ctx.Err(); err != nil { return err }
    }

    for _, id := range s.order {
        s.nodes[id].Execute(ctx, s.opts.WarmupStatement)
    }

    for _, r := range s.rows {
        if r.def.Interval <= 0 || elapsed%r.def.Interval != 0 { continue }
        sum, n := 0.0, 0
        for _, p := range r.probes {
            s.runProbe(ctx, p)
            if !p.HasSystemValue() { continue }
            v, ok := p.Value()
            if !ok { continue }
            f, err := strconv.ParseFloat(v, 64)
            if err != nil { continue }
            sum += f
            n++
        }
        if n == 0 { continue }
        if r.def.SystemAverage && len(s.order) > 0 {
            sum /= float64(len(s.order))
        }
        s.sysBuf.Record(r.def.ID, FormatSystemValue(sum, r.def.SystemAverage))
    }

    s.flush(ctx)
    took := time.Since(start)
    obsmetrics.CycleSeconds.WithLabelValues(s.label).Observe(took.Seconds())
    s.publish(start, took)
    return nil
}

// runProbe isolates one probe so that a panic does not take its siblings
// down.
func (s *Scheduler) runProbe(ctx context.Context, p probe.Probe) {
    defer func() {
        if r := recover(); r != nil {
            def := p.Definition()
            obsmetrics.ProbePanics.WithLabelValues(def.Kind).Inc()
            logutil.Errorf(s.log, "scheduler %d: probe %s (%d) panicked: %v", s.systemID, def.Key, def.ID, r)
        }
    }()
    p.Probe(ctx)
}

func (s *Scheduler) flush(ctx context.Context) {
    if err := s.sysBuf.Flush(ctx, s.api, s.systemID, 0); err != nil {
        logutil.Warnf(s.log, "scheduler %d: write system observations: %v", s.systemID, err)
    }
    for _, id := range s.order {
        if err := s.nodes[id].Flush(ctx, s.api); err != nil {
            logutil.Warnf(s.log, "scheduler %d: write node %d observations: %v", s.systemID, id, err)
        }
    }
}

// refresh reloads the system, its nodes and the probe definitions and
// rebuilds whatever changed.
func (s *Scheduler) refresh(ctx context.Context) error {
    sys, err := s.api.GetSystem(ctx, s.systemID)
    switch {
    case err == nil:
        s.system = sys
    case s.system.Kind == "":
        return fmt.Errorf("scheduler %d: load system: %w", s.systemID, err)
    default:
        logutil.Warnf(s.log, "scheduler %d: load system: %v, keeping last configuration", s.systemID, err)
        return nil
    }

    infos, err := s.waitForNodes(ctx)
    if err != nil { return err }
    if infos == nil { return nil }

    nodesChanged := s.syncNodes(infos)

    statesChanged := false
    if s.detector == nil || s.defaultStates {
        st, err := s.api.NodeStates(ctx, s.system.Kind)
        switch {
        case err == nil && st.Len() > 0:
            s.states, s.defaultStates, statesChanged = st, false, true
        case s.detector == nil:
            logutil.Warnf(s.log, "scheduler %d: node states for %s unavailable (%v), using defaults", s.systemID, s.system.Kind, err)
            s.states, s.defaultStates, statesChanged = api.NewStateTable(api.DefaultGaleraStates), true, true
        }
        if statesChanged {
            s.detector = membership.NewDetector(s.opts.Registry, s.api, s.states, s.opts.Membership)
        }
    }

    defs, err := s.api.ListProbeDefinitions(ctx, s.system.Kind)
    if err != nil {
        logutil.Warnf(s.log, "scheduler %d: probe definitions: %v, keeping last set", s.systemID, err)
        defs = s.defs
    }
    if nodesChanged || statesChanged || !slices.Equal(defs, s.defs) {
        s.rebuild(defs)
    }
    return nil
}

// waitForNodes fetches the node list, retrying while it is empty. It
// returns nil, nil when the list could not be fetched.
func (s *Scheduler) waitForNodes(ctx context.Context) ([]api.NodeInfo, error) {
    for {
        infos, err := s.api.ListNodes(ctx, s.systemID)
        if err != nil {
            logutil.Warnf(s.log, "scheduler %d: list nodes: %v", s.systemID, err)
            return nil, nil
        }
        if len(infos) > 0 {
            s.empty = 0
            return infos, nil
        }
        s.empty++
        if s.empty > s.opts.EmptyRetries {
            return nil, fmt.Errorf("system %d: %w", s.systemID, ErrNoNodes)
        }
        logutil.Warnf(s.log, "scheduler %d: no nodes (%d/%d), retrying in %s", s.systemID, s.empty, s.opts.EmptyRetries, s.opts.EmptyRetryWait)
        if err := s.api.SetSystemState(ctx, s.systemID, api.SystemCreated); err != nil {
            logutil.Warnf(s.log, "scheduler %d: set system state: %v", s.systemID, err)
        }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(s.opts.EmptyRetryWait):
        }
    }
}

// syncNodes replaces the node handles when the node set or any address
// changed. It reports whether it did.
func (s *Scheduler) syncNodes(infos []api.NodeInfo) bool {
    same := len(infos) == len(s.nodes)
    if same {
        for _, info := range infos {
            h, ok := s.nodes[info.ID]
            if !ok || h.Info().DialAddr() != info.DialAddr() || h.Hostname() != info.Hostname {
                same = false
                break
            }
        }
    }
    if same { return false }

    for _, h := range s.nodes { _ = h.Close() }
    s.opts.Registry.Forget(s.systemID)
    s.nodes = make(map[int]*node.Handle, len(infos))
    s.order = s.order[:0]
    for _, info := range infos {
        info.SystemID = s.systemID
        s.nodes[info.ID] = node.New(info, s.api, s.opts.Node)
        s.order = append(s.order, info.ID)
    }
    sort.Ints(s.order)
    logutil.Infof(s.log, "scheduler %d: monitoring %d nodes", s.systemID, len(s.order))
    return true
}

// rebuild binds every definition to every node and recomputes the tick.
func (s *Scheduler) rebuild(defs []api.ProbeDefinition) {
    // galera probes register their node again below
    s.opts.Registry.Forget(s.systemID)
    env := s.opts.Probe
    env.API = s.api
    env.States = s.states
    env.Detector = s.detector

    s.rows = s.rows[:0]
    intervals := make([]int, 0, len(defs))
    for _, def := range defs {
        if def.Interval <= 0 {
            logutil.Debugf(s.log, "scheduler %d: probe %s (%d) has no interval, using %ds", s.systemID, def.Key, def.ID, s.opts.BaseInterval)
            def.Interval = s.opts.BaseInterval
        }
        r := row{def: def}
        for _, id := range s.order {
            p, err := probe.New(def, s.nodes[id], env)
            if err != nil {
                logutil.Warnf(s.log, "scheduler %d: %v", s.systemID, err)
                break
            }
            r.probes = append(r.probes, p)
        }
        if len(r.probes) == 0 { continue }
        s.rows = append(s.rows, r)
        intervals = append(intervals, def.Interval)
    }
    s.defs = slices.Clone(defs)
    s.tick = tickFor(s.opts.BaseInterval, intervals...)
    logutil.Infof(s.log, "scheduler %d: %d probes, tick %ds", s.systemID, len(s.rows), s.tick)
}

func (s *Scheduler) shutdown() {
    for _, h := range s.nodes { _ = h.Close() }
    s.opts.Registry.Forget(s.systemID)
    logutil.Infof(s.log, "scheduler %d: stopped", s.systemID)
}

