package membership

import (
    "context"
    "sort"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/statuscache"
)

// Member is one node taking part in membership detection.
type Member interface {
    ID() int
    // Address is the node's configured IP.
    Address() string
    // Hostname is the node's configured host name.
    Hostname() string
    Globals(ctx context.Context) *statuscache.Snapshot
}

// Verdict is the outcome of one detection round.
type Verdict struct {
    SystemID    int            `json:"systemId"`
    NodeStates  map[int]string `json:"nodeStates"`
    SystemState string         `json:"systemState"`
    Joined      int            `json:"joined"`
    At          time.Time      `json:"at"`
}

type entry struct {
    members map[int]Member
    lastRun time.Time
    running bool
    verdict *Verdict
}

// Registry holds, per system, the members registered for detection and the
// timestamp gating how often detection runs. It is shared by every
// detector-bound probe instance; all access goes through its mutex.
type Registry struct {
    mu      sync.Mutex
    systems map[int]*entry
}

func NewRegistry() *Registry { return &Registry{systems: make(map[int]*entry)} }

// Register adds m to the system, replacing a member with the same ID.
func (r *Registry) Register(systemID int, m Member) {
    r.mu.Lock()
    defer r.mu.Unlock()
    e, ok := r.systems[systemID]
    if !ok {
        e = &entry{members: make(map[int]Member)}
        r.systems[systemID] = e
    }
    e.members[m.ID()] = m
}

// Forget drops every member and the run gate of a system.
func (r *Registry) Forget(systemID int) {
    r.mu.Lock()
    defer r.mu.Unlock()
    delete(r.systems, systemID)
}

// Members returns the registered members ordered by ID.
func (r *Registry) Members(systemID int) []Member {
    r.mu.Lock()
    defer r.mu.Unlock()
    e, ok := r.systems[systemID]
    if !ok { return nil }
    out := make([]Member, 0, len(e.members))
    for _, m := range e.members { out = append(out, m) }
    sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
    return out
}

// Verdict returns the last completed detection for a system.
func (r *Registry) Verdict(systemID int) (Verdict, bool) {
    r.mu.Lock()
    defer r.mu.Unlock()
    e, ok := r.systems[systemID]
    if !ok || e.verdict == nil { return Verdict{}, false }
    v := *e.verdict
    v.NodeStates = make(map[int]string, len(e.verdict.NodeStates))
    for k, s := range e.verdict.NodeStates { v.NodeStates[k] = s }
    return v, true
}

// Systems lists the system IDs with registered members.
func (r *Registry) Systems() []int {
    r.mu.Lock()
    defer r.mu.Unlock()
    out := make([]int, 0, len(r.systems))
    for id := range r.systems { out = append(out, id) }
    sort.Ints(out)
    return out
}

// claim reserves the next detection round for a system. It fails while a
// round is running or when the previous one started less than window ago.
func (r *Registry) claim(systemID int, now time.Time, window time.Duration) bool {
    r.mu.Lock()
    defer r.mu.Unlock()
    e, ok := r.systems[systemID]
    if !ok || len(e.members) == 0 || e.running { return false }
    if !e.lastRun.IsZero() && now.Sub(e.lastRun) < window { return false }
    e.running = true
    e.lastRun = now
    return true
}

func (r *Registry) complete(systemID int, v *Verdict, now time.Time) {
    r.mu.Lock()
    defer r.mu.Unlock()
    e, ok := r.systems[systemID]
    if !ok { return }
    e.running = false
    e.lastRun = now
    if v != nil { e.verdict = v }
}
