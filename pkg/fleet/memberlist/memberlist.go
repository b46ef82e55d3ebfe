// Package memberlist implements fleet.Gossip with HashiCorp memberlist.
package memberlist

import (
    "context"
    "encoding/json"
    "fmt"
    "log"
    "net"
    "strconv"
    "sync"
    "time"

    "github.com/hashicorp/memberlist"

    "github.com/amirimatin/go-clustermon/pkg/fleet"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
)

// Options configures the gossip layer of one monitor.
type Options struct {
    // ID names this monitor in the fleet; it must be unique.
    ID string
    // Bind is host:port for gossip traffic (e.g. ":7946").
    Bind string
    // Advertise is the host:port peers use; empty derives it from Bind.
    Advertise string
    // Meta is gossiped to peers, typically the management address.
    Meta   map[string]string
    Logger *log.Logger

    // Zero values keep the memberlist LAN defaults.
    ProbeInterval time.Duration
    ProbeTimeout  time.Duration
    SuspicionMult int
}

type gossip struct {
    mu     sync.RWMutex
    opts   Options
    ml     *memberlist.Memberlist
    closed bool

    // evMu guards sends on events against its close; memberlist delivers
    // events from its own goroutines, including during Shutdown.
    evMu     sync.Mutex
    events   chan fleet.Event
    evClosed bool
}

// New validates opts; nothing listens until Start.
func New(opts Options) (fleet.Gossip, error) {
    if opts.ID == "" { return nil, fmt.Errorf("memberlist: empty ID") }
    if opts.Bind == "" { return nil, fmt.Errorf("memberlist: empty Bind address") }
    if opts.Logger == nil { opts.Logger = log.Default() }
    return &gossip{opts: opts, events: make(chan fleet.Event, 64)}, nil
}

func splitAddr(addr string) (string, int, error) {
    host, ps, err := net.SplitHostPort(addr)
    if err != nil { return "", 0, fmt.Errorf("memberlist: invalid address %q: %w", addr, err) }
    port, err := strconv.Atoi(ps)
    if err != nil || port < 0 || port > 65535 { return "", 0, fmt.Errorf("memberlist: invalid port in %q", addr) }
    return host, port, nil
}

func (g *gossip) Start(ctx context.Context) error {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.ml != nil { return nil }
    if g.closed { return fmt.Errorf("memberlist: stopped") }

    cfg := memberlist.DefaultLANConfig()
    cfg.Name = g.opts.ID
    host, port, err := splitAddr(g.opts.Bind)
    if err != nil { return err }
    cfg.BindAddr, cfg.BindPort = host, port
    if g.opts.Advertise != "" {
        ah, ap, err := splitAddr(g.opts.Advertise)
        if err != nil { return err }
        cfg.AdvertiseAddr, cfg.AdvertisePort = ah, ap
    }
    if g.opts.ProbeInterval > 0 { cfg.ProbeInterval = g.opts.ProbeInterval }
    if g.opts.ProbeTimeout > 0 { cfg.ProbeTimeout = g.opts.ProbeTimeout }
    if g.opts.SuspicionMult > 0 { cfg.SuspicionMult = g.opts.SuspicionMult }
    cfg.LogOutput = g.opts.Logger.Writer()

    meta, _ := json.Marshal(g.opts.Meta)
    cfg.Delegate = metaDelegate(meta)
    cfg.Events = &eventDelegate{emit: g.emit}

    ml, err := memberlist.Create(cfg)
    if err != nil { return fmt.Errorf("memberlist: create: %w", err) }
    g.ml = ml
    go func() {
        <-ctx.Done()
        _ = g.Stop()
    }()
    return nil
}

func (g *gossip) Join(seeds []string) error {
    g.mu.RLock()
    ml := g.ml
    g.mu.RUnlock()
    if ml == nil { return fmt.Errorf("memberlist: not started") }
    if len(seeds) == 0 { return nil }
    _, err := ml.Join(seeds)
    return err
}

func peerOf(n *memberlist.Node) fleet.Peer {
    meta := map[string]string{}
    if len(n.Meta) > 0 { _ = json.Unmarshal(n.Meta, &meta) }
    return fleet.Peer{ID: n.Name, Addr: net.JoinHostPort(n.Addr.String(), strconv.Itoa(int(n.Port))), Meta: meta}
}

func (g *gossip) Local() fleet.Peer {
    g.mu.RLock()
    defer g.mu.RUnlock()
    if g.ml == nil { return fleet.Peer{} }
    return peerOf(g.ml.LocalNode())
}

func (g *gossip) Peers() []fleet.Peer {
    g.mu.RLock()
    defer g.mu.RUnlock()
    if g.ml == nil { return nil }
    nodes := g.ml.Members()
    out := make([]fleet.Peer, 0, len(nodes))
    for _, n := range nodes { out = append(out, peerOf(n)) }
    return out
}

func (g *gossip) Events() <-chan fleet.Event { return g.events }

func (g *gossip) Leave() error {
    g.mu.RLock()
    ml := g.ml
    g.mu.RUnlock()
    if ml == nil { return nil }
    return ml.Leave(time.Second)
}

func (g *gossip) Stop() error {
    g.mu.Lock()
    if g.closed {
        g.mu.Unlock()
        return nil
    }
    g.closed = true
    ml := g.ml
    g.ml = nil
    g.mu.Unlock()

    var err error
    if ml != nil { err = ml.Shutdown() }
    g.evMu.Lock()
    g.evClosed = true
    close(g.events)
    g.evMu.Unlock()
    return err
}

// HealthScore reports memberlist's awareness score.
func (g *gossip) HealthScore() int {
    g.mu.RLock()
    defer g.mu.RUnlock()
    if g.ml == nil { return -1 }
    return g.ml.GetHealthScore()
}

func (g *gossip) emit(e fleet.Event) {
    g.evMu.Lock()
    defer g.evMu.Unlock()
    if g.evClosed { return }
    select {
    case g.events <- e:
    default:
        logutil.Warnf(g.opts.Logger, "memberlist: event channel full, dropping %s of %s", e.Type, e.Peer.ID)
    }
}

type eventDelegate struct{ emit func(fleet.Event) }

func (d *eventDelegate) NotifyJoin(n *memberlist.Node) {
    d.emit(fleet.Event{Type: fleet.EventJoin, Peer: peerOf(n), At: time.Now()})
}

// NotifyLeave covers both graceful leaves and failures.
func (d *eventDelegate) NotifyLeave(n *memberlist.Node) {
    d.emit(fleet.Event{Type: fleet.EventLeave, Peer: peerOf(n), At: time.Now()})
}

func (d *eventDelegate) NotifyUpdate(n *memberlist.Node) {
    d.emit(fleet.Event{Type: fleet.EventJoin, Peer: peerOf(n), At: time.Now()})
}

// metaDelegate gossips static node metadata and nothing else.
type metaDelegate []byte

func (d metaDelegate) NodeMeta(limit int) []byte {
    if len(d) <= limit { return d }
    return nil
}
func (metaDelegate) NotifyMsg([]byte)                {}
func (metaDelegate) GetBroadcasts(int, int) [][]byte { return nil }
func (metaDelegate) LocalState(bool) []byte          { return nil }
func (metaDelegate) MergeRemoteState([]byte, bool)   {}
