package bootstrap

import (
    "bytes"
    "errors"
    "fmt"
    "io"
    "log"
    "os"
    "time"

    "gopkg.in/yaml.v3"

    tlsx "github.com/amirimatin/go-clustermon/pkg/security/tlsconfig"
)

// AllSystems selects the supervisor mode that monitors every system in the
// catalog.
const AllSystems = 0

// Config holds every input needed to assemble a monitor. The CLI fills it
// from flags; a YAML file can provide the same keys.
type Config struct {
    // SystemID is the system to monitor, or AllSystems.
    SystemID int    `yaml:"-"`
    Version  string `yaml:"-"`

    // Configuration/metrics API
    API        string        `yaml:"api"` // "http" (default) or "static"
    APIURL     string        `yaml:"apiURL"`
    APIToken   string        `yaml:"apiToken"`
    APITLS     tlsx.Options  `yaml:"apiTLS"`
    Catalog    string        `yaml:"catalog"` // used when API=static
    APITimeout time.Duration `yaml:"apiTimeout"`

    // Engine tuning
    BaseInterval int           `yaml:"baseInterval"`
    PollEvery    time.Duration `yaml:"pollEvery"`
    CRMResource  string        `yaml:"crmResource"`

    // Management endpoint (status/healthz/metrics); empty disables it.
    MgmtAddr  string       `yaml:"mgmtAddr"`
    MgmtProto string       `yaml:"mgmtProto"` // "http" (default) or "grpc"
    TLS       tlsx.Options `yaml:"tls"`

    // Monitor fleet
    Fleet       bool          `yaml:"fleet"`
    FleetID     string        `yaml:"fleetID"`
    FleetBind   string        `yaml:"fleetBind"`
    FleetAdv    string        `yaml:"fleetAdvertise"`
    Discovery   string        `yaml:"discovery"` // "static" (default), "dns" or "file"
    Join        string        `yaml:"join"`
    DNSNames    string        `yaml:"dnsNames"`
    DNSPort     int           `yaml:"dnsPort"`
    DiscRefresh time.Duration `yaml:"discoveryRefresh"`
    FilePath    string        `yaml:"filePath"`
    FileEnv     string        `yaml:"fileEnv"`

    Trace   bool `yaml:"trace"`
    Verbose bool `yaml:"verbose"`
    LogJSON bool `yaml:"logJSON"`

    Logger *log.Logger `yaml:"-"`
}

// LoadFile decodes the YAML file at path over cfg. Keys absent from the file
// leave cfg untouched; unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
    data, err := os.ReadFile(path)
    if err != nil { return fmt.Errorf("bootstrap: %w", err) }
    dec := yaml.NewDecoder(bytes.NewReader(data))
    dec.KnownFields(true)
    if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
        return fmt.Errorf("bootstrap: %s: %w", path, err)
    }
    return nil
}

// Validate checks the combination of settings.
func (c Config) Validate() error {
    switch c.API {
    case "", "http":
        if c.APIURL == "" { return errors.New("bootstrap: --api-url required for the http API") }
    case "static":
        if c.Catalog == "" { return errors.New("bootstrap: --catalog required for the static API") }
    default:
        return fmt.Errorf("bootstrap: unknown api %q", c.API)
    }
    switch c.MgmtProto {
    case "", "http", "grpc":
    default:
        return fmt.Errorf("bootstrap: unknown management protocol %q", c.MgmtProto)
    }
    switch c.Discovery {
    case "", "static", "dns", "file":
    default:
        return fmt.Errorf("bootstrap: unknown discovery %q", c.Discovery)
    }
    if c.Fleet {
        if c.SystemID != AllSystems { return errors.New("bootstrap: fleet mode requires monitoring all systems") }
        if c.FleetBind == "" { return errors.New("bootstrap: --fleet-bind required in fleet mode") }
    }
    if c.SystemID < 0 { return fmt.Errorf("bootstrap: invalid system id %d", c.SystemID) }
    return nil
}
