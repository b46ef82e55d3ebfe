package cli

import (
    "bytes"
    "context"
    "net/http"
    "net/http/httptest"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/amirimatin/go-clustermon/pkg/bootstrap"
)

func TestParseTarget(t *testing.T) {
    if id, err := ParseTarget("all"); err != nil || id != bootstrap.AllSystems { t.Fatalf("all = %d, %v", id, err) }
    if id, err := ParseTarget("7"); err != nil || id != 7 { t.Fatalf("7 = %d, %v", id, err) }
    for _, bad := range []string{"", "x", "0", "-2", "3a"} {
        if _, err := ParseTarget(bad); err == nil { t.Fatalf("ParseTarget(%q) accepted", bad) }
    }
}

func TestRootRequiresTarget(t *testing.T) {
    cmd := NewRootCmd("test")
    var out bytes.Buffer
    cmd.SetOut(&out)
    cmd.SetErr(&out)
    cmd.SetArgs(nil)
    if err := cmd.Execute(); err == nil { t.Fatalf("expected error without target") }
    if !strings.Contains(out.String(), "Usage:") { t.Fatalf("usage not printed: %q", out.String()) }
}

func TestRootRejectsBadTarget(t *testing.T) {
    cmd := NewRootCmd("test")
    cmd.SetOut(&bytes.Buffer{})
    cmd.SetErr(&bytes.Buffer{})
    cmd.SetArgs([]string{"primary"})
    if err := cmd.Execute(); err == nil { t.Fatalf("expected error for non-numeric target") }
}

func TestOverlayKeepsCommandLineFlags(t *testing.T) {
    p := filepath.Join(t.TempDir(), "c.yaml")
    if err := os.WriteFile(p, []byte("api: static\ncatalog: /from/file.yaml\nmgmtAddr: \":1\"\n"), 0o644); err != nil { t.Fatalf("write: %v", err) }
    var cfg bootstrap.Config
    cmd := NewRootCmd("test")
    fs := cmd.Flags()
    fs.StringVar(&cfg.Catalog, "x-catalog", "", "")
    fs.StringVar(&cfg.MgmtAddr, "x-mgmt", "", "")
    if err := fs.Parse([]string{"--x-mgmt", ":2"}); err != nil { t.Fatalf("parse: %v", err) }
    if err := overlayFile(fs, p, &cfg); err != nil { t.Fatalf("overlay: %v", err) }
    if cfg.Catalog != "/from/file.yaml" { t.Fatalf("catalog = %q", cfg.Catalog) }
    if cfg.MgmtAddr != ":2" { t.Fatalf("mgmtAddr = %q, want the command line value", cfg.MgmtAddr) }
}

func TestStatusCommand(t *testing.T) {
    srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
        if r.URL.Path != "/status" { http.NotFound(w, r); return }
        _, _ = w.Write([]byte(`{"version":"x"}`))
    }))
    defer srv.Close()
    cmd := NewStatusCmd()
    var out bytes.Buffer
    cmd.SetOut(&out)
    cmd.SetArgs([]string{"--addr", strings.TrimPrefix(srv.URL, "http://")})
    if err := cmd.ExecuteContext(context.Background()); err != nil { t.Fatalf("status: %v", err) }
    if out.String() != "{\"version\":\"x\"}\n" { t.Fatalf("output = %q", out.String()) }
}
