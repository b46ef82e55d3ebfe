package discovery

import (
    "context"
    "os"
    "path/filepath"
    "strings"
    "testing"
    "time"
)

func TestStaticSplitsAndTrims(t *testing.T) {
    got := Static(" a:1 , b:2", "", "c:3").Seeds(context.Background())
    if strings.Join(got, ",") != "a:1,b:2,c:3" { t.Fatalf("seeds = %v", got) }
}

func TestSRVParts(t *testing.T) {
    svc, proto, domain, ok := srvParts("_clustermon._udp.example.com")
    if !ok || svc != "clustermon" || proto != "udp" || domain != "example.com" {
        t.Fatalf("srvParts = %q %q %q %v", svc, proto, domain, ok)
    }
    if _, _, _, ok := srvParts("mon1.example.com"); ok { t.Fatalf("host name parsed as SRV") }
}

func TestDNSPassesHostPortThrough(t *testing.T) {
    got := DNS(DNSOptions{Names: []string{"10.1.1.1:7946"}}).Seeds(context.Background())
    if len(got) != 1 || got[0] != "10.1.1.1:7946" { t.Fatalf("seeds = %v", got) }
}

func TestDNSResolvesLocalhost(t *testing.T) {
    got := DNS(DNSOptions{Names: []string{"localhost"}, Port: 12345}).Seeds(context.Background())
    if len(got) == 0 { t.Fatalf("localhost did not resolve") }
    for _, s := range got {
        if !strings.HasSuffix(s, ":12345") { t.Fatalf("seed %q lacks port", s) }
    }
}

func TestFileReloadsOnChange(t *testing.T) {
    path := filepath.Join(t.TempDir(), "seeds")
    if err := os.WriteFile(path, []byte("# fleet\nb:1, a:1\n"), 0o644); err != nil { t.Fatalf("write: %v", err) }
    d := File(FileOptions{Path: path})
    if got := strings.Join(d.Seeds(context.Background()), ","); got != "a:1,b:1" { t.Fatalf("seeds = %s", got) }

    later := time.Now().Add(2 * time.Second)
    if err := os.WriteFile(path, []byte("c:1\n"), 0o644); err != nil { t.Fatalf("write: %v", err) }
    if err := os.Chtimes(path, later, later); err != nil { t.Fatalf("chtimes: %v", err) }
    if got := strings.Join(d.Seeds(context.Background()), ","); got != "c:1" { t.Fatalf("seeds after edit = %s", got) }
}

func TestFileEnvOverride(t *testing.T) {
    t.Setenv("CLUSTERMON_TEST_SEEDS", "x:1,y:2")
    d := File(FileOptions{Path: "/does/not/exist", Env: "CLUSTERMON_TEST_SEEDS"})
    if got := strings.Join(d.Seeds(context.Background()), ","); got != "x:1,y:2" { t.Fatalf("seeds = %s", got) }
}
