// Package cli holds the cobra commands of the clustermon binary.
package cli

import (
    "context"
    "errors"
    "fmt"
    "log"
    "os"
    "os/signal"
    "strconv"
    "syscall"
    "time"

    "github.com/spf13/cobra"
    "github.com/spf13/pflag"

    "github.com/amirimatin/go-clustermon/pkg/bootstrap"
    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    tlsx "github.com/amirimatin/go-clustermon/pkg/security/tlsconfig"
    "github.com/amirimatin/go-clustermon/pkg/supervisor"
    "github.com/amirimatin/go-clustermon/pkg/transport"
    mgmtgrpc "github.com/amirimatin/go-clustermon/pkg/transport/grpc"
    httpjson "github.com/amirimatin/go-clustermon/pkg/transport/httpjson"
)

// NewRootCmd returns the monitor command: clustermon [flags] <systemID|all>.
func NewRootCmd(version string) *cobra.Command {
    var (
        cfg        bootstrap.Config
        configPath string
    )
    cmd := &cobra.Command{
        Use:     "clustermon [flags] <systemID|all>",
        Short:   "Monitor Galera database clusters",
        Version: version,
        Args:    cobra.ExactArgs(1),
        RunE: func(cmd *cobra.Command, args []string) error {
            id, err := ParseTarget(args[0])
            if err != nil { return err }
            if configPath != "" {
                if err := overlayFile(cmd.Flags(), configPath, &cfg); err != nil { return err }
            }
            // usage is only useful for argument errors
            cmd.SilenceUsage = true
            if cfg.APITLS.Enable && cfg.APITLS.CAFile == "" && cfg.APITLS.CertFile == "" {
                cfg.APITLS = cfg.TLS
                cfg.APITLS.Enable = true
            }
            cfg.SystemID = id
            cfg.Version = version
            if cfg.Logger == nil { cfg.Logger = log.Default() }
            logutil.SetVerbose(cfg.Verbose)
            if cfg.LogJSON { logutil.SetJSON(true) }

            ctx, cancel := signalContext()
            defer cancel()
            err = bootstrap.Run(ctx, cfg)
            if errors.Is(err, supervisor.ErrUnknownSystem) { cmd.SilenceUsage = false }
            return err
        },
    }
    f := cmd.Flags()
    f.StringVar(&configPath, "config", "", "YAML configuration file; flags given on the command line win")
    f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log debug messages")
    f.BoolVar(&cfg.LogJSON, "log-json", false, "log JSON lines")
    f.BoolVar(&cfg.Trace, "trace", false, "enable OpenTelemetry stdout tracing (dev)")

    f.StringVar(&cfg.API, "api", "http", "configuration API backend: http|static")
    f.StringVar(&cfg.APIURL, "api-url", "http://127.0.0.1/restfulapi", "REST API root")
    f.StringVar(&cfg.APIToken, "api-token", "", "REST API bearer token (default $CLUSTERMON_API_TOKEN)")
    f.DurationVar(&cfg.APITimeout, "api-timeout", 10*time.Second, "REST API request timeout")
    f.StringVar(&cfg.Catalog, "catalog", "", "YAML catalog file used by --api static")
    f.BoolVar(&cfg.APITLS.Enable, "api-tls", false, "use TLS options below for the REST API as well")

    f.IntVar(&cfg.BaseInterval, "base-interval", 30, "base tick and configuration refresh period in seconds")
    f.DurationVar(&cfg.PollEvery, "poll-every", 30*time.Second, "catalog polling period in all mode")
    f.StringVar(&cfg.CRMResource, "crm-resource", "resMySQL", "pacemaker resource checked by CRM probes")

    f.StringVar(&cfg.MgmtAddr, "mgmt-addr", "", "management endpoint address (host:port); empty disables it")
    f.StringVar(&cfg.MgmtProto, "mgmt-proto", "http", "management protocol: http|grpc")

    f.BoolVar(&cfg.Fleet, "fleet", false, "share systems with other monitors over gossip")
    f.StringVar(&cfg.FleetID, "fleet-id", "", "unique monitor id in the fleet (default hostname)")
    f.StringVar(&cfg.FleetBind, "fleet-bind", ":7946", "gossip bind address (host:port)")
    f.StringVar(&cfg.FleetAdv, "fleet-adv", "", "gossip advertise address (host:port, optional)")
    f.StringVar(&cfg.Discovery, "discovery", "static", "fleet discovery backend: static|dns|file")
    f.StringVar(&cfg.Join, "join", "", "comma-separated gossip seeds (host:port), used by discovery=static")
    f.StringVar(&cfg.DNSNames, "dns-names", "", "comma-separated DNS names or SRV records (e.g. _clustermon._tcp.example.com)")
    f.IntVar(&cfg.DNSPort, "dns-port", 7946, "port used for A/AAAA answers")
    f.DurationVar(&cfg.DiscRefresh, "disc-refresh", 5*time.Second, "discovery cache duration")
    f.StringVar(&cfg.FilePath, "file-path", "", "file with gossip seeds (one per line or CSV)")
    f.StringVar(&cfg.FileEnv, "file-env", "", "env var with CSV seeds; overrides the file when set")

    addTLSFlags(f, &cfg.TLS)
    cmd.AddCommand(NewStatusCmd())
    return cmd
}

func addTLSFlags(f *pflag.FlagSet, o *tlsx.Options) {
    f.BoolVar(&o.Enable, "tls-enable", false, "enable TLS")
    f.StringVar(&o.CAFile, "tls-ca", "", "path to CA cert (PEM)")
    f.StringVar(&o.CertFile, "tls-cert", "", "path to certificate (PEM)")
    f.StringVar(&o.KeyFile, "tls-key", "", "path to private key (PEM)")
    f.BoolVar(&o.InsecureSkipVerify, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
    f.StringVar(&o.ServerName, "tls-server-name", "", "expected server name")
}

// ParseTarget maps the positional argument to a system id, or
// bootstrap.AllSystems for "all".
func ParseTarget(arg string) (int, error) {
    if arg == "all" { return bootstrap.AllSystems, nil }
    id, err := strconv.Atoi(arg)
    if err != nil || id <= 0 { return 0, fmt.Errorf("invalid target %q: want a system id or \"all\"", arg) }
    return id, nil
}

// overlayFile loads the YAML file over cfg and then reapplies every flag set
// on the command line.
func overlayFile(fs *pflag.FlagSet, path string, cfg *bootstrap.Config) error {
    given := map[string]string{}
    fs.Visit(func(f *pflag.Flag) { given[f.Name] = f.Value.String() })
    if err := bootstrap.LoadFile(path, cfg); err != nil { return err }
    for name, v := range given {
        if err := fs.Set(name, v); err != nil { return fmt.Errorf("flag --%s: %w", name, err) }
    }
    return nil
}

// NewStatusCmd returns the "status" command that prints a monitor's
// management status.
func NewStatusCmd() *cobra.Command {
    var (
        addr, proto string
        timeout     time.Duration
        topts       tlsx.Options
    )
    cmd := &cobra.Command{
        Use:   "status",
        Short: "Fetch a monitor's status as JSON",
        Args:  cobra.NoArgs,
        RunE: func(cmd *cobra.Command, args []string) error {
            cliTLS, err := topts.Client()
            if err != nil { return fmt.Errorf("tls client config: %w", err) }
            var client transport.Client
            switch proto {
            case "grpc":
                c := mgmtgrpc.NewClient(timeout)
                if cliTLS != nil { c.UseTLS(cliTLS) }
                defer c.Close()
                client = c
            case "http":
                c := httpjson.NewClient(timeout)
                if cliTLS != nil { c.UseTLS(cliTLS) }
                client = c
            default:
                return fmt.Errorf("unknown management protocol %q", proto)
            }
            cmd.SilenceUsage = true
            ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
            defer cancel()
            data, err := client.GetStatus(ctx, addr)
            if err != nil { return fmt.Errorf("status error: %w", err) }
            out := cmd.OutOrStdout()
            _, _ = out.Write(data)
            if len(data) == 0 || data[len(data)-1] != '\n' { _, _ = out.Write([]byte("\n")) }
            return nil
        },
    }
    cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:17946", "management address of a monitor (host:port)")
    cmd.Flags().StringVar(&proto, "mgmt-proto", "http", "management protocol: http|grpc")
    cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "request timeout")
    addTLSFlags(cmd.Flags(), &topts)
    return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
    return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
