package supervisor

import (
    "errors"
    "log"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/fleet"
    "github.com/amirimatin/go-clustermon/pkg/scheduler"
)

// Options configures a Supervisor. Zero values select the defaults.
type Options struct {
    // PollEvery is the catalog polling period (default 30s).
    PollEvery time.Duration
    // EmptyPollEvery replaces PollEvery while the catalog lists no system
    // (default 10s).
    EmptyPollEvery time.Duration
    // RegisterEvery re-registers the monitor every so many rounds (default 10).
    RegisterEvery int
    // Version is reported by Register.
    Version string

    // Scheduler is the template for every spawned scheduler. A shared
    // membership registry is created when it has none.
    Scheduler scheduler.Options
    // Ownership restricts the systems this process monitors (default all).
    Ownership fleet.Ownership

    Logger *log.Logger
}

func (o Options) withDefaults() Options {
    if o.PollEvery <= 0 { o.PollEvery = 30 * time.Second }
    if o.EmptyPollEvery <= 0 { o.EmptyPollEvery = 10 * time.Second }
    if o.RegisterEvery == 0 { o.RegisterEvery = 10 }
    if o.Version == "" { o.Version = "dev" }
    if o.Ownership == nil { o.Ownership = fleet.Solo{} }
    if o.Logger == nil { o.Logger = log.Default() }
    if o.Scheduler.Logger == nil { o.Scheduler.Logger = o.Logger }
    return o
}

func (o Options) Validate() error {
    if o.RegisterEvery < 0 {
        return errors.New("supervisor: negative RegisterEvery")
    }
    return nil
}
