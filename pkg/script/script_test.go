package script

import (
    "context"
    "errors"
    "testing"
    "time"
)

func TestEvalBindings(t *testing.T) {
    g := NewGoja()
    v, err := g.Eval(context.Background(), "a * 2 + b.length", Bindings{"a": 20, "b": "xyz"})
    if err != nil { t.Fatalf("eval: %v", err) }
    f, ok := Float(v)
    if !ok || f != 43 { t.Fatalf("result = %v", v) }
}

func TestEvalResultTypes(t *testing.T) {
    g := NewGoja()
    ctx := context.Background()
    if v, _ := g.Eval(ctx, "'up'", nil); v != "up" { t.Fatalf("string = %v", v) }
    if v, _ := g.Eval(ctx, "undefined", nil); v != nil { t.Fatalf("undefined = %v", v) }
    if v, _ := g.Eval(ctx, "null", nil); v != nil { t.Fatalf("null = %v", v) }
    if v, _ := g.Eval(ctx, "1.5", nil); v != 1.5 { t.Fatalf("float = %v", v) }
}

func TestEvalErrors(t *testing.T) {
    g := NewGoja()
    if _, err := g.Eval(context.Background(), "(", nil); err == nil { t.Fatalf("expected compile error") }
    if _, err := g.Eval(context.Background(), "missing.field", nil); err == nil { t.Fatalf("expected runtime error") }
}

func TestEvalIsInterrupted(t *testing.T) {
    g := NewGoja()
    ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
    defer cancel()
    start := time.Now()
    _, err := g.Eval(ctx, "for (;;) {}", nil)
    if !errors.Is(err, ErrTimeout) { t.Fatalf("err = %v, want ErrTimeout", err) }
    if time.Since(start) > 2*time.Second { t.Fatalf("interrupt took %v", time.Since(start)) }
}

func TestFloat(t *testing.T) {
    cases := []struct {
        in   any
        want float64
        ok   bool
    }{
        {int64(3), 3, true},
        {2.5, 2.5, true},
        {true, 1, true},
        {" 7", 0, false},
        {"7.25", 7.25, true},
        {nil, 0, false},
    }
    for _, c := range cases {
        got, ok := Float(c.in)
        if ok != c.ok || got != c.want { t.Fatalf("Float(%v) = %v, %v", c.in, got, ok) }
    }
}
