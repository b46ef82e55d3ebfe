// Package fleet lets several monitor processes share the monitored systems.
// Processes find each other over gossip; each system is monitored by the one
// live process that wins its rendezvous hash.
package fleet

import (
    "context"
    "time"
)

// Meta keys gossiped by every monitor.
const (
    MetaMgmtAddr = "mgmt"
    MetaVersion  = "version"
)

// Peer is one monitor process as seen over gossip.
type Peer struct {
    ID   string
    Addr string
    Meta map[string]string
}

type EventType string

const (
    EventJoin  EventType = "join"
    EventLeave EventType = "leave"
)

type Event struct {
    Type EventType
    Peer Peer
    At   time.Time
}

// Gossip is the membership layer between monitors.
type Gossip interface {
    Start(ctx context.Context) error
    Join(seeds []string) error
    Local() Peer
    Peers() []Peer
    Events() <-chan Event
    Leave() error
    Stop() error
}

// HealthReporter is implemented by gossip layers that expose a health
// score; -1 means not started.
type HealthReporter interface {
    HealthScore() int
}

// Discovery yields the seed addresses to join.
type Discovery interface {
    Seeds(ctx context.Context) []string
}
