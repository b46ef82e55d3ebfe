package httpjson

import (
    "context"
    "errors"
    "io"
    "log"
    "net/http"
    "strings"
    "testing"
    "time"
)

func startServer(t *testing.T, status func(context.Context) ([]byte, error)) *Server {
    t.Helper()
    s := NewServer("127.0.0.1:0", log.New(io.Discard, "", 0))
    ctx, cancel := context.WithCancel(context.Background())
    t.Cleanup(cancel)
    if err := s.Start(ctx, status); err != nil { t.Fatalf("start: %v", err) }
    return s
}

func TestStatusRoundTrip(t *testing.T) {
    s := startServer(t, func(context.Context) ([]byte, error) { return []byte(`{"systems":[]}`), nil })
    c := NewClient(time.Second)
    got, err := c.GetStatus(context.Background(), s.Addr())
    if err != nil { t.Fatalf("get status: %v", err) }
    if string(got) != `{"systems":[]}` { t.Fatalf("status = %s", got) }
}

func TestHealthzAndMetrics(t *testing.T) {
    s := startServer(t, func(context.Context) ([]byte, error) { return []byte("{}"), nil })
    for _, path := range []string{"/healthz", "/metrics"} {
        resp, err := http.Get("http://" + s.Addr() + path)
        if err != nil { t.Fatalf("GET %s: %v", path, err) }
        resp.Body.Close()
        if resp.StatusCode != http.StatusOK { t.Fatalf("GET %s = %d", path, resp.StatusCode) }
    }
    resp, err := http.Post("http://"+s.Addr()+"/status", "application/json", strings.NewReader("{}"))
    if err != nil { t.Fatalf("POST /status: %v", err) }
    resp.Body.Close()
    if resp.StatusCode != http.StatusMethodNotAllowed { t.Fatalf("POST /status = %d", resp.StatusCode) }
}

func TestStatusErrorIsReported(t *testing.T) {
    s := startServer(t, func(context.Context) ([]byte, error) { return nil, errors.New("boom") })
    c := NewClient(time.Second)
    if _, err := c.GetStatus(context.Background(), s.Addr()); err == nil || !strings.Contains(err.Error(), "500") {
        t.Fatalf("err = %v, want status 500", err)
    }
}
