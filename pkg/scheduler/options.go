package scheduler

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/membership"
    "github.com/amirimatin/go-clustermon/pkg/node"
    "github.com/amirimatin/go-clustermon/pkg/probe"
)

// Options configures one system scheduler.
type Options struct {
    // BaseInterval is the base tick in seconds and the configuration refresh
    // period (default 30).
    BaseInterval int
    // TickUnit is the length of one interval second (default time.Second).
    TickUnit time.Duration
    // EmptyRetryWait is the pause between two empty node lists (default 10s).
    EmptyRetryWait time.Duration
    // EmptyRetries is how many consecutive empty node lists are tolerated
    // before Run returns ErrNoNodes (default 3).
    EmptyRetries int
    // WarmupStatement is run on every node each cycle to drive connects.
    WarmupStatement string

    // Node is the template for every node handle.
    Node node.Options
    // Registry is shared by all schedulers of the process.
    Registry *membership.Registry
    // Membership tunes the detector built for the system.
    Membership membership.Options
    // Probe is the template environment for probe instances; API, States
    // and Detector are filled in by the scheduler.
    Probe probe.Env

    Logger *log.Logger
}

func (o Options) withDefaults() Options {
    if o.BaseInterval == 0 { o.BaseInterval = 30 }
    if o.TickUnit == 0 { o.TickUnit = time.Second }
    if o.EmptyRetryWait == 0 { o.EmptyRetryWait = 10 * time.Second }
    if o.EmptyRetries == 0 { o.EmptyRetries = 3 }
    if o.WarmupStatement == "" { o.WarmupStatement = "show status like 'wsrep_local_state'" }
    if o.Logger == nil { o.Logger = log.Default() }
    return o
}

// Validate checks the options after defaults are applied.
func (o Options) Validate() error {
    if o.Registry == nil {
        return errors.New("scheduler: nil Registry")
    }
    if o.BaseInterval <= 0 {
        return errors.New("scheduler: BaseInterval must be positive")
    }
    if o.TickUnit <= 0 || o.EmptyRetryWait <= 0 {
        return errors.New("scheduler: durations must be positive")
    }
    if o.EmptyRetries < 0 {
        return errors.New("scheduler: negative EmptyRetries")
    }
    return nil
}
