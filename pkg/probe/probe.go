// Package probe implements the measurement units run by the scheduler. Each
// variant is bound to one node and selected by the kind string of its
// definition.
package probe

import (
    "context"
    "errors"
    "fmt"
    "log"
    "math"
    "strconv"
    "strings"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/membership"
    "github.com/amirimatin/go-clustermon/pkg/script"
    "github.com/amirimatin/go-clustermon/pkg/statuscache"
)

// Probe kinds as declared by probe definitions.
const (
    KindSQL          = "SQL"
    KindGlobal       = "GLOBAL"
    KindCommand      = "COMMAND"
    KindCRM          = "CRM"
    KindPing         = "PING"
    KindNodeState    = "SQL_NODE_STATE"
    KindScript       = "JS"
    KindGaleraStatus = "GALERA_STATUS"
)

var ErrUnknownKind = errors.New("probe: unknown kind")

// Probe is one definition bound to one node.
type Probe interface {
    // Probe runs the measurement. Failures are logged, never returned.
    Probe(ctx context.Context)
    // Value is the last observed value, if any.
    Value() (string, bool)
    // HasSystemValue reports whether Value contributes to the system aggregate.
    HasSystemValue() bool
    IsSystemAverage() bool
    // Interval is the declared interval in seconds.
    Interval() int
    Definition() api.ProbeDefinition
}

// Target is the node a probe is bound to.
type Target interface {
    ID() int
    SystemID() int
    Address() string
    Hostname() string
    Execute(ctx context.Context, stmt string) (string, bool)
    IsReachable(ctx context.Context) bool
    Globals(ctx context.Context) *statuscache.Snapshot
    Credentials(ctx context.Context) (api.Credentials, error)
    Record(probeID int, value string)
}

// Env carries the collaborators shared by all probes of a scheduler.
type Env struct {
    API       api.API
    States    api.StateTable
    Detector  *membership.Detector
    Evaluator script.Evaluator
    Runner    Runner
    // CommandRatio runs COMMAND probes on every Nth call (default 5).
    CommandRatio int
    // StoppedState is recorded by SQL_NODE_STATE probes when the statement
    // yields nothing (default: the "stopped" id, else 100).
    StoppedState int
    // CRMResource is the pacemaker resource name looked for in crm output.
    CRMResource string
    Logger      *log.Logger
}

func (e Env) withDefaults() Env {
    if e.CommandRatio <= 0 { e.CommandRatio = 5 }
    if e.StoppedState == 0 {
        if id, ok := e.States.ID(api.StateStopped); ok {
            e.StoppedState = id
        } else {
            e.StoppedState = 100
        }
    }
    if e.CRMResource == "" { e.CRMResource = "resMySQL" }
    if e.Runner == nil { e.Runner = ExecRunner{} }
    if e.Evaluator == nil { e.Evaluator = script.NewGoja() }
    if e.Logger == nil { e.Logger = log.Default() }
    return e
}

// New builds the probe variant selected by def.Kind. An empty kind is SQL.
func New(def api.ProbeDefinition, t Target, env Env) (Probe, error) {
    env = env.withDefaults()
    kind := strings.ToUpper(strings.TrimSpace(def.Kind))
    if kind == "" { kind = KindSQL }
    b := base{def: def, t: t, env: env}
    switch kind {
    case KindSQL:
        if def.Delta { return &sqlDelta{base: b}, nil }
        return &sqlRaw{base: b}, nil
    case KindGlobal:
        return &global{base: b}, nil
    case KindCommand:
        return &command{base: b}, nil
    case KindCRM:
        return &crm{base: b}, nil
    case KindPing:
        return &ping{base: b}, nil
    case KindNodeState:
        return &nodeState{base: b}, nil
    case KindScript:
        return &scripted{base: b}, nil
    case KindGaleraStatus:
        if env.Detector == nil { return nil, fmt.Errorf("probe %d: %s needs a membership detector", def.ID, def.Kind) }
        m, ok := t.(membership.Member)
        if !ok { return nil, fmt.Errorf("probe %d: target cannot take part in membership detection", def.ID) }
        env.Detector.Registry().Register(t.SystemID(), m)
        return &galeraStatus{base: b}, nil
    }
    return nil, fmt.Errorf("%w %q (probe %d)", ErrUnknownKind, def.Kind, def.ID)
}

// base carries the definition, target and last value shared by all variants.
type base struct {
    def  api.ProbeDefinition
    t    Target
    env  Env
    last string
    has  bool
}

func (b *base) Value() (string, bool)              { return b.last, b.has }
func (b *base) HasSystemValue() bool               { return true }
func (b *base) IsSystemAverage() bool              { return b.def.SystemAverage }
func (b *base) Interval() int                      { return b.def.Interval }
func (b *base) Definition() api.ProbeDefinition    { return b.def }

// record stores v as the last value and buffers it on the node.
func (b *base) record(v string) {
    b.last, b.has = v, true
    b.t.Record(b.def.ID, v)
}

func (b *base) clear() { b.last, b.has = "", false }

// delta tracks the previous absolute reading of a counter.
type delta struct {
    prev float64
    seen bool
}

// next returns cur-prev clamped at zero, and false on the first reading.
// The second return reports a counter that went backwards.
func (d *delta) next(cur float64) (v float64, ok bool, negative bool) {
    if !d.seen {
        d.prev, d.seen = cur, true
        return 0, false, false
    }
    v = cur - d.prev
    d.prev = cur
    if v < 0 { return 0, true, true }
    return v, true, false
}

func (d *delta) reset() { d.prev, d.seen = 0, false }

func parseNumber(s string) (float64, error) {
    return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// formatDecimal renders v with at most two decimals and no trailing zeros.
func formatDecimal(v float64) string {
    return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
