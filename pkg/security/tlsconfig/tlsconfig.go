// Package tlsconfig builds TLS configurations for the management endpoint
// and the REST API client from certificate files on disk.
package tlsconfig

import (
    "crypto/tls"
    "crypto/x509"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"
)

// ReloadEvery bounds how long a loaded key pair is reused before it is read
// from disk again.
const ReloadEvery = 10 * time.Second

// Options names the certificate files. A zero Options disables TLS.
type Options struct {
    Enable             bool   `yaml:"enable"`
    CAFile             string `yaml:"ca"`
    CertFile           string `yaml:"cert"`
    KeyFile            string `yaml:"key"`
    ServerName         string `yaml:"serverName"`
    InsecureSkipVerify bool   `yaml:"insecureSkipVerify"`
}

// keyPair lazily loads a certificate and reloads it after ReloadEvery so that
// replaced files are picked up without a restart.
type keyPair struct {
    cert, key string

    mu     sync.Mutex
    cached *tls.Certificate
    at     time.Time
}

func (k *keyPair) get() (*tls.Certificate, error) {
    k.mu.Lock()
    defer k.mu.Unlock()
    if k.cached != nil && time.Since(k.at) < ReloadEvery { return k.cached, nil }
    c, err := tls.LoadX509KeyPair(k.cert, k.key)
    if err != nil {
        // keep serving the previous pair while a rotation is half written
        if k.cached != nil { return k.cached, nil }
        return nil, err
    }
    k.cached, k.at = &c, time.Now()
    return k.cached, nil
}

func loadPool(path string) (*x509.CertPool, error) {
    pem, err := os.ReadFile(path)
    if err != nil { return nil, err }
    pool := x509.NewCertPool()
    if !pool.AppendCertsFromPEM(pem) { return nil, fmt.Errorf("tls: no certificates in %s", path) }
    return pool, nil
}

// Server returns the listener configuration, or nil when TLS is disabled.
// With a CA file, clients must present a certificate signed by it.
func (o Options) Server() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    if o.CertFile == "" || o.KeyFile == "" { return nil, errors.New("tls: server cert and key required") }
    kp := &keyPair{cert: o.CertFile, key: o.KeyFile}
    if _, err := kp.get(); err != nil { return nil, err }
    cfg := &tls.Config{
        MinVersion:     tls.VersionTLS12,
        GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) { return kp.get() },
    }
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.ClientCAs = pool
        cfg.ClientAuth = tls.RequireAndVerifyClientCert
    }
    return cfg, nil
}

// Client returns the dialer configuration, or nil when TLS is disabled. The
// client certificate is optional.
func (o Options) Client() (*tls.Config, error) {
    if !o.Enable { return nil, nil }
    cfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: o.ServerName, InsecureSkipVerify: o.InsecureSkipVerify} //nolint:gosec
    if o.CAFile != "" {
        pool, err := loadPool(o.CAFile)
        if err != nil { return nil, err }
        cfg.RootCAs = pool
    }
    if o.CertFile != "" && o.KeyFile != "" {
        kp := &keyPair{cert: o.CertFile, key: o.KeyFile}
        if _, err := kp.get(); err != nil { return nil, err }
        cfg.GetClientCertificate = func(*tls.CertificateRequestInfo) (*tls.Certificate, error) { return kp.get() }
    }
    return cfg, nil
}
