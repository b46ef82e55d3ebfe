// Package script evaluates the expression text of scripted probes.
package script

import (
    "context"
    "errors"
    "fmt"
    "strconv"
    "sync"
    "time"

    "github.com/dop251/goja"
)

// Bindings are the named values visible to an expression.
type Bindings map[string]any

// Evaluator runs an expression and returns its result as a Go value
// (nil, bool, int64, float64 or string).
type Evaluator interface {
    Eval(ctx context.Context, src string, b Bindings) (any, error)
}

var ErrTimeout = errors.New("script: evaluation interrupted")

// Goja evaluates JavaScript with github.com/dop251/goja. Compiled programs
// are cached by source text; every evaluation gets a fresh runtime so
// bindings never leak between probes.
type Goja struct {
    // Timeout bounds evaluations whose context carries no deadline (default 5s).
    Timeout time.Duration

    mu       sync.Mutex
    programs map[string]*goja.Program
}

func NewGoja() *Goja { return &Goja{Timeout: 5 * time.Second, programs: make(map[string]*goja.Program)} }

func (g *Goja) compile(src string) (*goja.Program, error) {
    g.mu.Lock()
    defer g.mu.Unlock()
    if g.programs == nil { g.programs = make(map[string]*goja.Program) }
    if p, ok := g.programs[src]; ok { return p, nil }
    p, err := goja.Compile("probe", src, false)
    if err != nil { return nil, fmt.Errorf("script: compile: %w", err) }
    g.programs[src] = p
    return p, nil
}

func (g *Goja) Eval(ctx context.Context, src string, b Bindings) (any, error) {
    prg, err := g.compile(src)
    if err != nil { return nil, err }
    if _, ok := ctx.Deadline(); !ok && g.Timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, g.Timeout)
        defer cancel()
    }
    vm := goja.New()
    vm.SetFieldNameMapper(goja.UncapFieldNameMapper())
    for k, v := range b {
        if err := vm.Set(k, v); err != nil { return nil, fmt.Errorf("script: bind %s: %w", k, err) }
    }
    done := make(chan struct{})
    defer close(done)
    go func() {
        select {
        case <-ctx.Done():
            vm.Interrupt(ErrTimeout)
        case <-done:
        }
    }()
    v, err := vm.RunProgram(prg)
    if err != nil {
        var ie *goja.InterruptedError
        if errors.As(err, &ie) { return nil, ErrTimeout }
        return nil, fmt.Errorf("script: %w", err)
    }
    if v == nil || goja.IsUndefined(v) || goja.IsNull(v) { return nil, nil }
    return v.Export(), nil
}

// Float converts an evaluation result to a number. Strings are parsed;
// nil reports false.
func Float(v any) (float64, bool) {
    switch x := v.(type) {
    case float64:
        return x, true
    case int64:
        return float64(x), true
    case int:
        return float64(x), true
    case bool:
        if x { return 1, true }
        return 0, true
    case string:
        f, err := strconv.ParseFloat(x, 64)
        return f, err == nil
    }
    return 0, false
}
