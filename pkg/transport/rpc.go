// Package transport declares the management endpoint a monitor exposes and
// the client the status command uses to read it.
package transport

import "context"

// StatusFunc returns the JSON-encoded monitor status served at /status.
type StatusFunc func(ctx context.Context) ([]byte, error)

// Server exposes the management endpoint.
type Server interface {
    Start(ctx context.Context, status StatusFunc) error
    // Addr is the bound address, valid after Start.
    Addr() string
    Stop(ctx context.Context) error
}

// Client reads the status of a monitor.
type Client interface {
    GetStatus(ctx context.Context, addr string) ([]byte, error)
}
