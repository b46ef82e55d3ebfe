package grpc

import (
    "context"
    "crypto/tls"
    "sync"
    "time"

    "google.golang.org/grpc"
    "google.golang.org/grpc/backoff"
    "google.golang.org/grpc/credentials"
    "google.golang.org/grpc/credentials/insecure"
    "google.golang.org/grpc/keepalive"

    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
    "github.com/amirimatin/go-clustermon/pkg/transport"
)

// Client reads monitor status over gRPC. It keeps the connection to the
// last monitor asked and replaces it when another address is requested.
type Client struct {
    timeout time.Duration
    tlsCfg  *tls.Config

    mu     sync.Mutex
    target string
    cc     *grpc.ClientConn
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    return &Client{timeout: timeout}
}

// UseTLS sets the client TLS config; call before the first request.
func (c *Client) UseTLS(cfg *tls.Config) *Client { c.tlsCfg = cfg; return c }

func (c *Client) dial(target string) (*grpc.ClientConn, error) {
    opts := []grpc.DialOption{
        grpc.WithDefaultCallOptions(grpc.ForceCodec(jsonCodec{})),
        grpc.WithConnectParams(grpc.ConnectParams{Backoff: backoff.DefaultConfig, MinConnectTimeout: 500 * time.Millisecond}),
        grpc.WithKeepaliveParams(keepalive.ClientParameters{Time: 20 * time.Second, Timeout: 5 * time.Second, PermitWithoutStream: true}),
    }
    if c.tlsCfg != nil {
        opts = append(opts, grpc.WithTransportCredentials(credentials.NewTLS(c.tlsCfg)))
    } else {
        opts = append(opts, grpc.WithTransportCredentials(insecure.NewCredentials()))
    }
    return grpc.NewClient(target, opts...)
}

// conn returns the connection for target, dialing it if the cached one
// points elsewhere.
func (c *Client) conn(target string) (*grpc.ClientConn, error) {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.cc != nil && c.target == target {
        obsmetrics.GRPCConnReuse.Inc()
        return c.cc, nil
    }
    cc, err := c.dial(target)
    if err != nil { return nil, err }
    if c.cc != nil {
        _ = c.cc.Close()
        obsmetrics.GRPCConnEvictions.Inc()
        obsmetrics.GRPCConnActive.Dec()
    }
    c.cc, c.target = cc, target
    obsmetrics.GRPCConnDials.Inc()
    obsmetrics.GRPCConnActive.Inc()
    return cc, nil
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    cctx, cancel := context.WithTimeout(ctx, c.timeout)
    defer cancel()
    cc, err := c.conn(addr)
    if err != nil { return nil, err }
    out := new(statusBlob)
    if err := cc.Invoke(cctx, getStatusMethod, &empty{}, out, grpc.WaitForReady(true)); err != nil { return nil, err }
    return out.Data, nil
}

// Target returns the address of the cached connection, or "" when none is
// open.
func (c *Client) Target() string {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.cc == nil { return "" }
    return c.target
}

// Close drops the cached connection.
func (c *Client) Close() {
    c.mu.Lock()
    defer c.mu.Unlock()
    if c.cc == nil { return }
    _ = c.cc.Close()
    obsmetrics.GRPCConnActive.Dec()
    c.cc, c.target = nil, ""
}

var _ transport.Client = (*Client)(nil)
