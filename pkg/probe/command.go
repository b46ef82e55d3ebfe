package probe

import (
    "bufio"
    "bytes"
    "context"
    "errors"
    "os/exec"
    "strings"
    "time"

    "github.com/amirimatin/go-clustermon/pkg/internal/logutil"
    obsmetrics "github.com/amirimatin/go-clustermon/pkg/observability/metrics"
)

// Runner executes an external command and returns its standard output.
type Runner interface {
    Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
    return f(ctx, name, args...)
}

// ExecRunner runs commands with os/exec, killing them after Timeout
// (default 30s).
type ExecRunner struct{ Timeout time.Duration }

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
    timeout := r.Timeout
    if timeout <= 0 { timeout = 30 * time.Second }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    out, err := exec.CommandContext(ctx, name, args...).Output()
    var ee *exec.ExitError
    if errors.As(err, &ee) && len(out) > 0 {
        // keep what the command printed before failing
        return out, nil
    }
    return out, err
}

// command runs statement + node address on every CommandRatio-th call and
// records the first line it prints.
type command struct {
    base
    calls int
}

func (p *command) Probe(ctx context.Context) {
    p.calls++
    if (p.calls-1)%p.env.CommandRatio != 0 { return }
    args := strings.Fields(p.def.Statement)
    if len(args) == 0 { return }
    obsmetrics.ProbeRuns.WithLabelValues(KindCommand).Inc()
    args = append(args, p.t.Address())
    out, err := p.env.Runner.Run(ctx, args[0], args[1:]...)
    if err != nil {
        logutil.Warnf(p.env.Logger, "probe %s node %d: %s: %v", p.def.Key, p.t.ID(), args[0], err)
        return
    }
    p.record(firstLine(out))
}

func firstLine(b []byte) string {
    s := bufio.NewScanner(bytes.NewReader(b))
    if s.Scan() { return strings.TrimSpace(s.Text()) }
    return ""
}
