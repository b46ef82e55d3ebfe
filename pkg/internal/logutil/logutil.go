package logutil

import (
    "encoding/json"
    "fmt"
    "log"
    "os"
    "sync/atomic"
    "time"
)

var (
    jsonMode atomic.Bool
    verbose  atomic.Bool
)

func init() {
    if os.Getenv("CLUSTERMON_LOG_JSON") == "1" || os.Getenv("CLUSTERMON_LOG_FORMAT") == "json" {
        jsonMode.Store(true)
    }
}

// SetJSON switches every logger to one JSON object per line.
func SetJSON(enabled bool) { jsonMode.Store(enabled) }

// SetVerbose enables Debugf output (the CLI -v flag).
func SetVerbose(enabled bool) { verbose.Store(enabled) }

// Verbose reports whether Debugf output is enabled.
func Verbose() bool { return verbose.Load() }

func Debugf(l *log.Logger, f string, args ...any) {
    if !verbose.Load() { return }
    logf(l, "debug", f, args...)
}

func Infof(l *log.Logger, f string, args ...any)  { logf(l, "info", f, args...) }
func Warnf(l *log.Logger, f string, args ...any)  { logf(l, "warn", f, args...) }
func Errorf(l *log.Logger, f string, args ...any) { logf(l, "error", f, args...) }

func logf(l *log.Logger, level, f string, args ...any) {
    if l == nil { l = log.Default() }
    msg := fmt.Sprintf(f, args...)
    if jsonMode.Load() {
        evt := map[string]any{
            "ts":    time.Now().UTC().Format(time.RFC3339Nano),
            "level": level,
            "msg":   msg,
        }
        if p := l.Prefix(); p != "" { evt["component"] = p }
        b, _ := json.Marshal(evt)
        log.New(l.Writer(), "", 0).Println(string(b))
        return
    }
    var tag string
    switch level {
    case "debug":
        tag = "DEBUG "
    case "info":
        tag = "INFO "
    case "warn":
        tag = "WARN "
    default:
        tag = "ERROR "
    }
    log.New(l.Writer(), tag+l.Prefix(), l.Flags()).Output(3, msg)
}

// Named returns a child logger whose lines carry the given component name.
func Named(l *log.Logger, name string) *log.Logger {
    if l == nil { l = log.Default() }
    return log.New(l.Writer(), name+": ", l.Flags())
}
