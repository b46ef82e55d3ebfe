package api

import "sort"

// Canonical node state names.
const (
    StateDown              = "down"
    StateMachineDown       = "machine-down"
    StateIsolated          = "isolated"
    StateIncorrectlyJoined = "incorrectly-joined"
    StateStopped           = "stopped"
    StateJoined            = "joined"
)

// System availability states.
const (
    SystemCreated             = "created"
    SystemStopped             = "stopped"
    SystemStarting            = "starting"
    SystemRunning             = "running"
    SystemAvailable           = "available"
    SystemLimitedAvailability = "limited-availability"
    SystemInconsistent        = "inconsistent"
    SystemDown                = "down"
)

// DefaultGaleraStates is the node state table used when a catalog does not
// provide one. Replication engine states are offset by 100.
var DefaultGaleraStates = map[string]int{
    StateDown:              1,
    StateMachineDown:       2,
    StateIsolated:          3,
    StateIncorrectlyJoined: 4,
    StateStopped:           100,
    "joining":              101,
    "donor":                102,
    "catching-up":          103,
    StateJoined:            104,
}

// DefaultManagerStates maps pacemaker resource states to node states.
var DefaultManagerStates = map[string]int{
    "OFFLINE": 2,
    "Stopped": 100,
    "Started": 104,
    "Master":  104,
    "Slave":   104,
}

// StateTable is an immutable name <-> id lookup for one cluster kind.
type StateTable struct {
    byName map[string]int
    byID   map[int]string
}

func NewStateTable(m map[string]int) StateTable {
    t := StateTable{byName: make(map[string]int, len(m)), byID: make(map[int]string, len(m))}
    for name, id := range m {
        t.byName[name] = id
        t.byID[id] = name
    }
    return t
}

func (t StateTable) ID(name string) (int, bool) {
    id, ok := t.byName[name]
    return id, ok
}

func (t StateTable) Name(id int) (string, bool) {
    name, ok := t.byID[id]
    return name, ok
}

// Names returns the known state names in id order.
func (t StateTable) Names() []string {
    out := make([]string, 0, len(t.byName))
    for n := range t.byName { out = append(out, n) }
    sort.Slice(out, func(i, j int) bool { return t.byName[out[i]] < t.byName[out[j]] })
    return out
}

func (t StateTable) Len() int { return len(t.byName) }
