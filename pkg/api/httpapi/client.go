// Package httpapi is the REST/JSON implementation of api.API used against
// the management service (http://host/restfulapi/...).
package httpapi

import (
    "bytes"
    "context"
    "crypto/tls"
    "encoding/json"
    "errors"
    "fmt"
    "io"
    "log"
    "net/http"
    "strings"
    "sync"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/api"
)

// Options configures the REST client.
type Options struct {
    // BaseURL is the API root, e.g. "http://127.0.0.1/restfulapi".
    BaseURL string
    // Token is sent as a bearer token when non-empty.
    Token string
    // Timeout bounds a single HTTP round trip (default 10s).
    Timeout time.Duration
    // CacheTTL bounds how long catalog GETs are served from memory (default 5s).
    CacheTTL time.Duration
    // Attempts per request, with exponential backoff (default 3).
    Attempts int
    TLS      *tls.Config
    Logger   *log.Logger
}

// Client talks to the REST API.
type Client struct {
    opts  Options
    httpc *http.Client

    mu    sync.Mutex
    cache map[string]cached
}

type cached struct {
    body []byte
    at   time.Time
}

// New constructs a Client. BaseURL is required.
func New(opts Options) (*Client, error) {
    if opts.BaseURL == "" { return nil, errors.New("httpapi: empty BaseURL") }
    if opts.Timeout <= 0 { opts.Timeout = 10 * time.Second }
    if opts.CacheTTL <= 0 { opts.CacheTTL = 5 * time.Second }
    if opts.Attempts <= 0 { opts.Attempts = 3 }
    if opts.Logger == nil { opts.Logger = log.Default() }
    opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
    tr := &http.Transport{TLSClientConfig: opts.TLS}
    return &Client{
        opts:  opts,
        httpc: &http.Client{Timeout: opts.Timeout, Transport: tr},
        cache: make(map[string]cached),
    }, nil
}

type statusError struct {
    code int
    body string
}

func (e *statusError) Error() string { return fmt.Sprintf("status %d: %s", e.code, e.body) }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
    url := c.opts.BaseURL + "/" + path
    var payload []byte
    if in != nil {
        b, err := json.Marshal(in)
        if err != nil { return err }
        payload = b
    }
    if method == http.MethodGet {
        c.mu.Lock()
        hit, ok := c.cache[path]
        c.mu.Unlock()
        if ok && time.Since(hit.at) < c.opts.CacheTTL {
            return decode(hit.body, out)
        }
    }
    var lastErr error
    for attempt := 0; attempt < c.opts.Attempts; attempt++ {
        body, err := c.roundTrip(ctx, method, url, payload)
        if err == nil {
            if method == http.MethodGet {
                c.mu.Lock()
                c.cache[path] = cached{body: body, at: time.Now()}
                c.mu.Unlock()
            } else {
                c.invalidate()
            }
            return decode(body, out)
        }
        lastErr = err
        var se *statusError
        if errors.As(err, &se) {
            if se.code == http.StatusNotFound { return fmt.Errorf("%s %s: %w", method, path, api.ErrNotFound) }
            if se.code < 500 { return fmt.Errorf("%s %s: %w", method, path, err) }
        }
        // backoff unless context is done
        select {
        case <-ctx.Done():
            return ctx.Err()
        case <-time.After(time.Duration(100*(1<<attempt)) * time.Millisecond):
        }
    }
    return fmt.Errorf("%s %s: %w: %v", method, path, api.ErrUnavailable, lastErr)
}

func (c *Client) roundTrip(ctx context.Context, method, url string, payload []byte) ([]byte, error) {
    var rd io.Reader
    if payload != nil { rd = bytes.NewReader(payload) }
    req, err := http.NewRequestWithContext(ctx, method, url, rd)
    if err != nil { return nil, err }
    req.Header.Set("Accept", "application/json")
    if payload != nil { req.Header.Set("Content-Type", "application/json") }
    if c.opts.Token != "" { req.Header.Set("Authorization", "Bearer "+c.opts.Token) }
    resp, err := c.httpc.Do(req)
    if err != nil { return nil, err }
    defer resp.Body.Close()
    b, err := io.ReadAll(resp.Body)
    if err != nil { return nil, err }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return nil, &statusError{code: resp.StatusCode, body: strings.TrimSpace(string(b))}
    }
    return b, nil
}

func (c *Client) invalidate() {
    c.mu.Lock()
    c.cache = make(map[string]cached)
    c.mu.Unlock()
}

func decode(b []byte, out any) error {
    if out == nil || len(b) == 0 { return nil }
    return json.Unmarshal(b, out)
}

func (c *Client) ListSystems(ctx context.Context) ([]api.System, error) {
    var out struct{ Systems []api.System `json:"systems"` }
    if err := c.do(ctx, http.MethodGet, "system", nil, &out); err != nil { return nil, err }
    return out.Systems, nil
}

func (c *Client) GetSystem(ctx context.Context, systemID int) (api.System, error) {
    var out struct{ System *api.System `json:"system"` }
    if err := c.do(ctx, http.MethodGet, fmt.Sprintf("system/%d", systemID), nil, &out); err != nil { return api.System{}, err }
    if out.System == nil { return api.System{}, fmt.Errorf("system %d: %w", systemID, api.ErrNotFound) }
    return *out.System, nil
}

func (c *Client) ListNodes(ctx context.Context, systemID int) ([]api.NodeInfo, error) {
    var out struct{ Nodes []api.NodeInfo `json:"nodes"` }
    if err := c.do(ctx, http.MethodGet, fmt.Sprintf("system/%d/node", systemID), nil, &out); err != nil { return nil, err }
    for i := range out.Nodes { out.Nodes[i].SystemID = systemID }
    return out.Nodes, nil
}

func (c *Client) NodeCredentials(ctx context.Context, systemID, nodeID int) (api.Credentials, error) {
    var out struct{ Node *api.Credentials `json:"node"` }
    if err := c.do(ctx, http.MethodGet, fmt.Sprintf("system/%d/node/%d", systemID, nodeID), nil, &out); err != nil { return api.Credentials{}, err }
    if out.Node == nil { return api.Credentials{}, fmt.Errorf("node %d/%d: %w", systemID, nodeID, api.ErrNotFound) }
    return *out.Node, nil
}

func (c *Client) ListProbeDefinitions(ctx context.Context, kind string) ([]api.ProbeDefinition, error) {
    var out struct{ Classes []api.ProbeDefinition `json:"monitorclasses"` }
    if err := c.do(ctx, http.MethodGet, "monitorclass/"+kind, nil, &out); err != nil { return nil, err }
    return out.Classes, nil
}

type stateRow struct {
    State   string `json:"state"`
    StateID int    `json:"stateid"`
}

func (c *Client) NodeStates(ctx context.Context, kind string) (api.StateTable, error) {
    var out struct{ Rows []stateRow `json:"nodestates"` }
    if err := c.do(ctx, http.MethodGet, "nodestate/"+kind, nil, &out); err != nil { return api.StateTable{}, err }
    m := make(map[string]int, len(out.Rows))
    for _, r := range out.Rows { m[r.State] = r.StateID }
    return api.NewStateTable(m), nil
}

func (c *Client) ManagerStates(ctx context.Context) (map[string]int, error) {
    var out struct{ Rows []stateRow `json:"crmstates"` }
    if err := c.do(ctx, http.MethodGet, "crmstate", nil, &out); err != nil { return nil, err }
    m := make(map[string]int, len(out.Rows))
    for _, r := range out.Rows { m[r.State] = r.StateID }
    return m, nil
}

func (c *Client) SetNodeState(ctx context.Context, systemID, nodeID, stateID int) error {
    body := map[string]int{"stateid": stateID}
    return c.do(ctx, http.MethodPut, fmt.Sprintf("system/%d/node/%d", systemID, nodeID), body, nil)
}

func (c *Client) SetNodeDatabase(ctx context.Context, systemID, nodeID int, dbType, dbVersion string) error {
    body := map[string]string{"dbtype": dbType, "dbversion": dbVersion}
    return c.do(ctx, http.MethodPut, fmt.Sprintf("system/%d/node/%d", systemID, nodeID), body, nil)
}

func (c *Client) SetSystemState(ctx context.Context, systemID int, state string) error {
    body := map[string]string{"state": state}
    return c.do(ctx, http.MethodPut, fmt.Sprintf("system/%d", systemID), body, nil)
}

func (c *Client) WriteObservations(ctx context.Context, batch []api.Observation) error {
    if len(batch) == 0 { return nil }
    body := struct{ Observations []api.Observation `json:"observations"` }{batch}
    return c.do(ctx, http.MethodPost, "monitordata", body, nil)
}

func (c *Client) Register(ctx context.Context, version string) error {
    body := map[string]string{"version": version}
    return c.do(ctx, http.MethodPost, "monitor/register", body, nil)
}

var _ api.API = (*Client)(nil)
