package httpjson

import (
    "context"
    "crypto/tls"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/transport"
)

// Client reads /status from a monitor, retrying transient failures.
type Client struct {
    httpc *http.Client
    tr    *http.Transport
    isTLS bool
}

func NewClient(timeout time.Duration) *Client {
    if timeout <= 0 { timeout = 3 * time.Second }
    tr := &http.Transport{}
    return &Client{httpc: &http.Client{Timeout: timeout, Transport: tr}, tr: tr}
}

// UseTLS switches the client to https with cfg.
func (c *Client) UseTLS(cfg *tls.Config) *Client {
    c.tr.TLSClientConfig = cfg
    c.isTLS = cfg != nil
    return c
}

func (c *Client) GetStatus(ctx context.Context, addr string) ([]byte, error) {
    scheme := "http"
    if c.isTLS { scheme = "https" }
    url := fmt.Sprintf("%s://%s/status", scheme, addr)
    var lastErr error
    for attempt := 0; attempt < 3; attempt++ {
        body, retry, err := c.get(ctx, url)
        if err == nil { return body, nil }
        lastErr = err
        if !retry { break }
        select {
        case <-ctx.Done():
            return nil, ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return nil, lastErr
}

func (c *Client) get(ctx context.Context, url string) ([]byte, bool, error) {
    req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
    if err != nil { return nil, false, err }
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, true, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return nil, true, err }
    if resp.StatusCode != http.StatusOK {
        return nil, resp.StatusCode >= 500, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
    }
    return b, false, nil
}

var _ transport.Client = (*Client)(nil)
