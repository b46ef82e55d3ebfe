package node

import (
    "context"
    "database/sql"
    "time"

    "github.com/go-sql-driver/mysql"

    "github.com/amirimatin/go-clustermon/pkg/api"
)

// Dialer opens a verified connection pool to one node.
type Dialer interface {
    Open(ctx context.Context, addr string, creds api.Credentials) (*sql.DB, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, addr string, creds api.Credentials) (*sql.DB, error)

func (f DialerFunc) Open(ctx context.Context, addr string, creds api.Credentials) (*sql.DB, error) {
    return f(ctx, addr, creds)
}

// MySQLDialer connects with go-sql-driver/mysql. The pool is limited to a
// single connection since probes of one node run sequentially.
type MySQLDialer struct {
    Timeout     time.Duration // dial timeout, default 10s
    ReadTimeout time.Duration // default 60s
    Params      map[string]string
}

// DSN renders the driver connection string for addr.
func (d MySQLDialer) DSN(addr string, creds api.Credentials) string {
    cfg := mysql.NewConfig()
    cfg.User = creds.User
    cfg.Passwd = creds.Password
    cfg.Net = "tcp"
    cfg.Addr = addr
    cfg.Timeout = d.Timeout
    if cfg.Timeout <= 0 { cfg.Timeout = 10 * time.Second }
    cfg.ReadTimeout = d.ReadTimeout
    if cfg.ReadTimeout <= 0 { cfg.ReadTimeout = 60 * time.Second }
    cfg.AllowNativePasswords = true
    if len(d.Params) > 0 {
        cfg.Params = make(map[string]string, len(d.Params))
        for k, v := range d.Params { cfg.Params[k] = v }
    }
    return cfg.FormatDSN()
}

func (d MySQLDialer) Open(ctx context.Context, addr string, creds api.Credentials) (*sql.DB, error) {
    db, err := sql.Open("mysql", d.DSN(addr, creds))
    if err != nil { return nil, err }
    db.SetMaxOpenConns(1)
    db.SetMaxIdleConns(1)
    if err := db.PingContext(ctx); err != nil {
        _ = db.Close()
        return nil, err
    }
    return db, nil
}
