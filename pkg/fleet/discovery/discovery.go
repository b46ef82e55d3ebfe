// Package discovery provides the seed sources for joining the monitor fleet:
// a fixed list, DNS (SRV or A/AAAA) and a seed file.
package discovery

import (
    "bufio"
    "context"
    "net"
    "os"
    "sort"
    "strconv"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/fleet"
)

// DefaultPort is the gossip port assumed for seeds given without one.
const DefaultPort = 7946

// Split parses a comma separated seed list, dropping blanks.
func Split(csv string) []string {
    var out []string
    for _, p := range strings.Split(csv, ",") {
        if p = strings.TrimSpace(p); p != "" { out = append(out, p) }
    }
    return out
}

type static []string

func (s static) Seeds(context.Context) []string { return append([]string(nil), s...) }

// Static always returns the given seeds.
func Static(seeds ...string) fleet.Discovery {
    var out static
    for _, s := range seeds {
        out = append(out, Split(s)...)
    }
    return out
}

// DNSOptions configures DNS discovery.
type DNSOptions struct {
    // Names are SRV names (_svc._proto.domain), host names or host:port.
    Names []string
    // Port is used for A/AAAA answers (default DefaultPort).
    Port int
    // TTL caches answers (default 5s).
    TTL      time.Duration
    Resolver *net.Resolver
}

type dnsSeeds struct {
    opts  DNSOptions
    mu    sync.Mutex
    at    time.Time
    cache []string
}

// DNS resolves seeds through DNS and caches them for TTL.
func DNS(opts DNSOptions) fleet.Discovery {
    if opts.Port == 0 { opts.Port = DefaultPort }
    if opts.TTL <= 0 { opts.TTL = 5 * time.Second }
    if opts.Resolver == nil { opts.Resolver = net.DefaultResolver }
    return &dnsSeeds{opts: opts}
}

func (d *dnsSeeds) Seeds(ctx context.Context) []string {
    d.mu.Lock()
    defer d.mu.Unlock()
    if len(d.cache) > 0 && time.Since(d.at) < d.opts.TTL {
        return append([]string(nil), d.cache...)
    }
    set := make(map[string]struct{})
    for _, name := range d.opts.Names {
        for _, hp := range d.resolve(ctx, strings.TrimSpace(name)) { set[hp] = struct{}{} }
    }
    d.cache = sorted(set)
    d.at = time.Now()
    return append([]string(nil), d.cache...)
}

func (d *dnsSeeds) resolve(ctx context.Context, name string) []string {
    if name == "" { return nil }
    if svc, proto, domain, ok := srvParts(name); ok {
        _, recs, err := d.opts.Resolver.LookupSRV(ctx, svc, proto, domain)
        if err == nil && len(recs) > 0 {
            out := make([]string, 0, len(recs))
            for _, r := range recs {
                out = append(out, net.JoinHostPort(strings.TrimSuffix(r.Target, "."), strconv.Itoa(int(r.Port))))
            }
            return out
        }
    }
    if _, _, err := net.SplitHostPort(name); err == nil { return []string{name} }
    ips, err := d.opts.Resolver.LookupHost(ctx, name)
    if err != nil { return nil }
    out := make([]string, 0, len(ips))
    for _, ip := range ips { out = append(out, net.JoinHostPort(ip, strconv.Itoa(d.opts.Port))) }
    return out
}

// srvParts splits _service._proto.domain.
func srvParts(name string) (svc, proto, domain string, ok bool) {
    if !strings.HasPrefix(name, "_") { return "", "", "", false }
    parts := strings.SplitN(name, ".", 3)
    if len(parts) < 3 || !strings.HasPrefix(parts[1], "_") || parts[2] == "" { return "", "", "", false }
    return strings.TrimPrefix(parts[0], "_"), strings.TrimPrefix(parts[1], "_"), parts[2], true
}

// FileOptions configures file discovery.
type FileOptions struct {
    // Path holds one seed per line (or comma separated); # starts a comment.
    Path string
    // Env, when set and non-empty in the environment, overrides the file.
    Env string
}

type fileSeeds struct {
    opts  FileOptions
    mu    sync.Mutex
    mtime time.Time
    cache []string
}

// File reads seeds from a file, re-reading it when its mtime changes.
func File(opts FileOptions) fleet.Discovery { return &fileSeeds{opts: opts} }

func (f *fileSeeds) Seeds(context.Context) []string {
    if f.opts.Env != "" {
        if v := strings.TrimSpace(os.Getenv(f.opts.Env)); v != "" { return Split(v) }
    }
    f.mu.Lock()
    defer f.mu.Unlock()
    st, err := os.Stat(f.opts.Path)
    if err != nil { return append([]string(nil), f.cache...) }
    if st.ModTime().After(f.mtime) {
        if seeds, err := readSeeds(f.opts.Path); err == nil {
            f.cache = seeds
            f.mtime = st.ModTime()
        }
    }
    return append([]string(nil), f.cache...)
}

func readSeeds(path string) ([]string, error) {
    fh, err := os.Open(path)
    if err != nil { return nil, err }
    defer fh.Close()
    set := make(map[string]struct{})
    sc := bufio.NewScanner(fh)
    for sc.Scan() {
        line := sc.Text()
        if i := strings.IndexByte(line, '#'); i >= 0 { line = line[:i] }
        for _, s := range Split(line) { set[s] = struct{}{} }
    }
    if err := sc.Err(); err != nil { return nil, err }
    return sorted(set), nil
}

func sorted(set map[string]struct{}) []string {
    out := make([]string, 0, len(set))
    for s := range set { out = append(out, s) }
    sort.Strings(out)
    return out
}
