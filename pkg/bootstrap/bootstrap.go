// Package bootstrap assembles a monitor from Config: the API client, the
// supervisor and its schedulers, the management endpoint and the optional
// monitor fleet.
package bootstrap

import (
    "context"
    "crypto/tls"
    "errors"
    "fmt"
    "log"
    "os"
    "time"

    "golang.org/x/sync/errgroup"

    "github.com/amirimatin/go-clustermon/pkg/api"
    "github.com/amirimatin/go-clustermon/pkg/api/httpapi"
    "github.com/amirimatin/go-clustermon/pkg/api/static"
    "github.com/amirimatin/go-clustermon/pkg/fleet"
    "github.com/amirimatin/go-clustermon/pkg/fleet/discovery"
    ml "github.com/amirimatin/go-clustermon/pkg/fleet/memberlist"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
    "github.com/amirimatin/go-clustermon/pkg/observability/tracing"
    "github.com/amirimatin/go-clustermon/pkg/probe"
    "github.com/amirimatin/go-clustermon/pkg/scheduler"
    "github.com/amirimatin/go-clustermon/pkg/supervisor"
    "github.com/amirimatin/go-clustermon/pkg/transport"
    mgmtgrpc "github.com/amirimatin/go-clustermon/pkg/transport/grpc"
    httpjson "github.com/amirimatin/go-clustermon/pkg/transport/httpjson"
)

// App is an assembled monitor. Nothing runs until Run.
type App struct {
    Config     Config
    API        api.API
    Supervisor *supervisor.Supervisor
    // Mgmt is nil when no management address is configured.
    Mgmt transport.Server
    // Fleet is nil outside fleet mode.
    Fleet *fleet.Runner
}

// Build assembles an App from cfg without starting anything.
func Build(cfg Config) (*App, error) {
    if err := cfg.Validate(); err != nil { return nil, err }
    if cfg.Logger == nil { cfg.Logger = log.Default() }
    app := &App{Config: cfg}

    a, err := buildAPI(cfg)
    if err != nil { return nil, err }
    app.API = a

    var own fleet.Ownership = fleet.Solo{}
    if cfg.Fleet {
        r, err := buildFleet(cfg)
        if err != nil { return nil, err }
        app.Fleet = r
        own = fleet.Rendezvous{G: r.Gossip}
    }

    sup, err := supervisor.New(a, supervisor.Options{
        PollEvery: cfg.PollEvery,
        Version:   cfg.Version,
        Ownership: own,
        Logger:    cfg.Logger,
        Scheduler: scheduler.Options{
            BaseInterval: cfg.BaseInterval,
            Probe:        probe.Env{CRMResource: cfg.CRMResource},
            Logger:       cfg.Logger,
        },
    })
    if err != nil { return nil, err }
    app.Supervisor = sup

    if cfg.MgmtAddr != "" {
        srvTLS, err := cfg.TLS.Server()
        if err != nil { return nil, fmt.Errorf("bootstrap: management tls: %w", err) }
        app.Mgmt = buildMgmt(cfg, srvTLS)
    }
    return app, nil
}

func buildAPI(cfg Config) (api.API, error) {
    if cfg.API == "static" {
        return static.Load(cfg.Catalog, cfg.Logger)
    }
    cliTLS, err := cfg.APITLS.Client()
    if err != nil { return nil, fmt.Errorf("bootstrap: api tls: %w", err) }
    token := cfg.APIToken
    if token == "" { token = os.Getenv("CLUSTERMON_API_TOKEN") }
    return httpapi.New(httpapi.Options{BaseURL: cfg.APIURL, Token: token, Timeout: cfg.APITimeout, TLS: cliTLS, Logger: cfg.Logger})
}

func buildMgmt(cfg Config, srvTLS *tls.Config) transport.Server {
    if cfg.MgmtProto == "grpc" {
        s := mgmtgrpc.NewServer(cfg.MgmtAddr)
        if srvTLS != nil { s.UseTLS(srvTLS) }
        return s
    }
    s := httpjson.NewServer(cfg.MgmtAddr, cfg.Logger)
    if srvTLS != nil { s.UseTLS(srvTLS) }
    return s
}

func buildFleet(cfg Config) (*fleet.Runner, error) {
    id := cfg.FleetID
    if id == "" {
        h, err := os.Hostname()
        if err != nil { return nil, fmt.Errorf("bootstrap: fleet id: %w", err) }
        id = h
    }
    meta := map[string]string{fleet.MetaVersion: cfg.Version}
    if cfg.MgmtAddr != "" { meta[fleet.MetaMgmtAddr] = cfg.MgmtAddr }
    g, err := ml.New(ml.Options{ID: id, Bind: cfg.FleetBind, Advertise: cfg.FleetAdv, Meta: meta, Logger: cfg.Logger})
    if err != nil { return nil, err }

    var disc fleet.Discovery
    switch cfg.Discovery {
    case "dns":
        disc = discovery.DNS(discovery.DNSOptions{Names: discovery.Split(cfg.DNSNames), Port: cfg.DNSPort, TTL: cfg.DiscRefresh})
    case "file":
        disc = discovery.File(discovery.FileOptions{Path: cfg.FilePath, Env: cfg.FileEnv})
    default:
        disc = discovery.Static(discovery.Split(cfg.Join)...)
    }
    return &fleet.Runner{Gossip: g, Discovery: disc, Logger: cfg.Logger}, nil
}

// Run starts every component and blocks until ctx ends or the monitored
// system stops. The first component error cancels the others.
func (a *App) Run(ctx context.Context) error {
    obsmetrics.Register()
    shutdown, err := tracing.Setup(a.Config.Trace)
    if err != nil {
        logutil.Warnf(a.Config.Logger, "tracing disabled: %v", err)
    } else {
        defer func() { _ = shutdown(context.Background()) }()
    }

    ctx, cancel := context.WithCancel(ctx)
    defer cancel()
    g, gctx := errgroup.WithContext(ctx)

    if a.Mgmt != nil {
        if err := a.Mgmt.Start(gctx, a.Supervisor.StatusJSON); err != nil {
            return fmt.Errorf("bootstrap: management endpoint: %w", err)
        }
        g.Go(func() error {
            <-gctx.Done()
            sctx, scancel := context.WithTimeout(context.Background(), 3*time.Second)
            defer scancel()
            return a.Mgmt.Stop(sctx)
        })
    }
    if a.Fleet != nil {
        g.Go(func() error { return a.Fleet.Run(gctx) })
    }
    g.Go(func() error {
        // the engine finishing ends the process, whatever the mode
        defer cancel()
        if a.Config.SystemID == AllSystems { return a.Supervisor.Run(gctx) }
        return a.Supervisor.RunOne(gctx, a.Config.SystemID)
    })
    err = g.Wait()
    if errors.Is(err, context.Canceled) { return nil }
    return err
}

// Run builds and runs a monitor from cfg.
func Run(ctx context.Context, cfg Config) error {
    app, err := Build(cfg)
    if err != nil { return err }
    return app.Run(ctx)
}
