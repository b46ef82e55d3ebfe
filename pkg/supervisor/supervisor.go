// Package supervisor runs one scheduler per monitored system. It polls the
// catalog, starts schedulers for systems it owns, stops the ones it no longer
// owns and re-registers the monitor with the API at a fixed cadence.
package supervisor

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "log"
    "sort"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    "github.com/amirimatin/go-clustermon/pkg/membership"
    "github.com/amirimatin/go-clustermon/pkg/scheduler"
)

type running struct {
    sched  *scheduler.Scheduler
    cancel context.CancelFunc
    done   chan struct{}
}

// Supervisor owns the schedulers of the process.
type Supervisor struct {
    api  api.API
    opts Options
    log  *log.Logger

    mu     sync.Mutex
    scheds map[int]*running
    rounds int
    wg     sync.WaitGroup
}

func New(a api.API, opts Options) (*Supervisor, error) {
    if a == nil { return nil, errors.New("supervisor: nil API") }
    opts = opts.withDefaults()
    if err := opts.Validate(); err != nil { return nil, err }
    if opts.Scheduler.Registry == nil { opts.Scheduler.Registry = membership.NewRegistry() }
    return &Supervisor{api: a, opts: opts, log: opts.Logger, scheds: make(map[int]*running)}, nil
}

// Run polls the catalog until ctx ends, then stops every scheduler and waits
// for them to return.
func (s *Supervisor) Run(ctx context.Context) error {
    defer s.wait()
    logutil.Infof(s.log, "supervisor: monitoring all systems")
    for {
        if err := ctx.Err(); err != nil { return nil }
        n := s.round(ctx)
        wait := s.opts.PollEvery
        if n == 0 { wait = s.opts.EmptyPollEvery }
        select {
        case <-ctx.Done():
            return nil
        case <-time.After(wait):
        }
    }
}

// round reconciles the running schedulers with the catalog and returns the
// number of systems the catalog listed.
func (s *Supervisor) round(ctx context.Context) int {
    s.mu.Lock()
    r := s.rounds
    s.rounds++
    s.mu.Unlock()
    if s.opts.RegisterEvery > 0 && r%s.opts.RegisterEvery == 0 { s.register(ctx) }

    systems, err := s.api.ListSystems(ctx)
    if err != nil {
        logutil.Warnf(s.log, "supervisor: list systems: %v", err)
        return 0
    }
    want := make(map[int]bool, len(systems))
    for _, sys := range systems {
        if s.opts.Ownership.Owns(sys.ID) { want[sys.ID] = true }
    }

    s.mu.Lock()
    defer s.mu.Unlock()
    for id, rs := range s.scheds {
        if !want[id] {
            logutil.Infof(s.log, "supervisor: system %d no longer monitored here, stopping", id)
            rs.cancel()
            delete(s.scheds, id)
        }
    }
    for id := range want {
        if _, ok := s.scheds[id]; ok { continue }
        if err := s.spawnLocked(ctx, id); err != nil {
            logutil.Errorf(s.log, "supervisor: start system %d: %v", id, err)
        }
    }
    return len(systems)
}

func (s *Supervisor) spawnLocked(ctx context.Context, systemID int) error {
    sched, err := scheduler.New(systemID, s.api, s.opts.Scheduler)
    if err != nil { return err }
    sctx, cancel := context.WithCancel(ctx)
    rs := &running{sched: sched, cancel: cancel, done: make(chan struct{})}
    s.scheds[systemID] = rs
    s.wg.Add(1)
    go func() {
        defer s.wg.Done()
        defer close(rs.done)
        defer cancel()
        err := sched.Run(sctx)
        if err != nil && !errors.Is(err, context.Canceled) {
            logutil.Warnf(s.log, "supervisor: system %d stopped: %v", systemID, err)
        }
        s.mu.Lock()
        if s.scheds[systemID] == rs { delete(s.scheds, systemID) }
        s.mu.Unlock()
    }()
    logutil.Infof(s.log, "supervisor: started system %d", systemID)
    return nil
}

func (s *Supervisor) register(ctx context.Context) {
    if err := s.api.Register(ctx, s.opts.Version); err != nil {
        logutil.Warnf(s.log, "supervisor: register: %v", err)
    }
}

func (s *Supervisor) wait() {
    s.mu.Lock()
    for id, rs := range s.scheds {
        rs.cancel()
        delete(s.scheds, id)
    }
    s.mu.Unlock()
    s.wg.Wait()
}

// RunOne monitors a single system in the foreground. It fails with
// ErrUnknownSystem when the catalog does not know systemID.
func (s *Supervisor) RunOne(ctx context.Context, systemID int) error {
    if _, err := s.api.GetSystem(ctx, systemID); err != nil {
        if errors.Is(err, api.ErrNotFound) { return fmt.Errorf("system %d: %w", systemID, ErrUnknownSystem) }
        return fmt.Errorf("supervisor: get system %d: %w", systemID, err)
    }
    s.register(ctx)
    sched, err := scheduler.New(systemID, s.api, s.opts.Scheduler)
    if err != nil { return err }
    rs := &running{sched: sched, cancel: func() {}, done: make(chan struct{})}
    s.mu.Lock()
    s.scheds[systemID] = rs
    s.mu.Unlock()
    defer func() {
        s.mu.Lock()
        delete(s.scheds, systemID)
        s.mu.Unlock()
        close(rs.done)
    }()
    err = sched.Run(ctx)
    if errors.Is(err, context.Canceled) { return nil }
    return err
}

// Running returns the IDs of the systems with a live scheduler.
func (s *Supervisor) Running() []int {
    s.mu.Lock()
    defer s.mu.Unlock()
    ids := make([]int, 0, len(s.scheds))
    for id := range s.scheds { ids = append(ids, id) }
    sort.Ints(ids)
    return ids
}

// Report is the management view of the whole process.
type Report struct {
    Version string             `json:"version"`
    At      time.Time          `json:"at"`
    Systems []scheduler.Status `json:"systems"`
}

func (s *Supervisor) Report() Report {
    s.mu.Lock()
    scheds := make([]*scheduler.Scheduler, 0, len(s.scheds))
    for _, rs := range s.scheds { scheds = append(scheds, rs.sched) }
    s.mu.Unlock()
    rep := Report{Version: s.opts.Version, At: time.Now(), Systems: make([]scheduler.Status, 0, len(scheds))}
    for _, sc := range scheds { rep.Systems = append(rep.Systems, sc.Status()) }
    sort.Slice(rep.Systems, func(i, j int) bool { return rep.Systems[i].SystemID < rep.Systems[j].SystemID })
    return rep
}

// StatusJSON serves Report to the management transports.
func (s *Supervisor) StatusJSON(context.Context) ([]byte, error) {
    return json.Marshal(s.Report())
}
