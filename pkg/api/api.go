package api

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net"
    "strconv"
    "strings"
    "time"
)

var (
    ErrNotFound    = errors.New("api: not found")
    ErrUnavailable = errors.New("api: unavailable")
)

// DefaultSQLPort is used when a node does not declare its own port.
const DefaultSQLPort = 3306

// System is one monitored database cluster.
type System struct {
    ID    int    `json:"systemid" yaml:"id"`
    Kind  string `json:"systemtype" yaml:"kind"`
    Name  string `json:"name" yaml:"name"`
    State string `json:"state,omitempty" yaml:"state,omitempty"`
}

// NodeInfo is the catalog view of one node of a system.
type NodeInfo struct {
    ID        int    `json:"nodeid" yaml:"id"`
    SystemID  int    `json:"systemid" yaml:"-"`
    Name      string `json:"name" yaml:"name"`
    Hostname  string `json:"hostname" yaml:"hostname"`
    PrivateIP string `json:"privateip" yaml:"ip"`
    Port      int    `json:"port,omitempty" yaml:"port,omitempty"`
    StateID   int    `json:"stateid,omitempty" yaml:"-"`
}

// Address returns the IP the engine connects to, falling back to the hostname.
func (n NodeInfo) Address() string {
    if n.PrivateIP != "" { return n.PrivateIP }
    return n.Hostname
}

// DialAddr returns host:port for the SQL connection.
func (n NodeInfo) DialAddr() string {
    port := n.Port
    if port == 0 { port = DefaultSQLPort }
    return net.JoinHostPort(n.Address(), strconv.Itoa(port))
}

// Credentials are the database login used by the monitor for one node.
type Credentials struct {
    User     string `json:"dbusername" yaml:"user"`
    Password string `json:"dbpassword" yaml:"password"`
}

// ProbeDefinition describes one monitor class of a cluster kind.
type ProbeDefinition struct {
    ID            int    `json:"monitorid" yaml:"id"`
    Key           string `json:"monitor" yaml:"key"`
    Kind          string `json:"type" yaml:"kind"`
    Statement     string `json:"sql" yaml:"statement"`
    Interval      int    `json:"interval" yaml:"interval"`
    Delta         bool   `json:"delta" yaml:"delta"`
    SystemAverage bool   `json:"systemaverage" yaml:"average"`
}

// UnmarshalJSON accepts delta and systemaverage either as booleans or as the
// 0/1 integers the REST API sends.
func (d *ProbeDefinition) UnmarshalJSON(b []byte) error {
    type plain ProbeDefinition
    aux := struct {
        *plain
        Delta         flexBool `json:"delta"`
        SystemAverage flexBool `json:"systemaverage"`
    }{plain: (*plain)(d)}
    if err := json.Unmarshal(b, &aux); err != nil { return err }
    d.Delta, d.SystemAverage = bool(aux.Delta), bool(aux.SystemAverage)
    return nil
}

type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
    switch s := strings.Trim(string(b), `"`); s {
    case "true", "1":
        *f = true
    case "false", "0", "", "null":
        *f = false
    default:
        return fmt.Errorf("api: invalid boolean %s", b)
    }
    return nil
}

// Observation is one value written back to the API. NodeID 0 denotes a
// system level aggregate.
type Observation struct {
    ProbeID  int       `json:"monitorid"`
    SystemID int       `json:"systemid"`
    NodeID   int       `json:"nodeid"`
    Value    string    `json:"value"`
    At       time.Time `json:"timestamp"`
}

// Catalog is the read side of the configuration API.
type Catalog interface {
    ListSystems(ctx context.Context) ([]System, error)
    GetSystem(ctx context.Context, systemID int) (System, error)
    ListNodes(ctx context.Context, systemID int) ([]NodeInfo, error)
    NodeCredentials(ctx context.Context, systemID, nodeID int) (Credentials, error)
    ListProbeDefinitions(ctx context.Context, kind string) ([]ProbeDefinition, error)
    NodeStates(ctx context.Context, kind string) (StateTable, error)
    ManagerStates(ctx context.Context) (map[string]int, error)
}

// StateSink persists node and system state changes.
type StateSink interface {
    SetNodeState(ctx context.Context, systemID, nodeID, stateID int) error
    SetNodeDatabase(ctx context.Context, systemID, nodeID int, dbType, dbVersion string) error
    SetSystemState(ctx context.Context, systemID int, state string) error
}

// ObservationSink receives batched observations. Implementations may queue
// and retry; callers log and drop on error.
type ObservationSink interface {
    WriteObservations(ctx context.Context, batch []Observation) error
}

// API is the full collaborator surface used by the monitoring engine.
type API interface {
    Catalog
    StateSink
    ObservationSink
    Register(ctx context.Context, version string) error
}
