package tracing

import (
    "context"
    "sync/atomic"

    "go.opentelemetry.io/otel"
    "go.opentelemetry.io/otel/attribute"
    "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
    sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var enabled atomic.Bool

// Setup configures a global tracer provider when enable=true.
// It returns a shutdown function which should be deferred.
func Setup(enable bool) (func(context.Context) error, error) {
    enabled.Store(enable)
    if !enable {
        return func(context.Context) error { return nil }, nil
    }
    exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
    if err != nil {
        enabled.Store(false)
        return nil, err
    }
    tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
    otel.SetTracerProvider(tp)
    return tp.Shutdown, nil
}

// StartSpan starts a tracing span if tracing is enabled. Integer attributes
// are attached as key/value pairs, e.g. StartSpan(ctx, "scheduler.cycle", "system", 3).
func StartSpan(ctx context.Context, name string, kv ...any) (context.Context, func()) {
    if !enabled.Load() {
        return ctx, func() {}
    }
    tr := otel.Tracer("go-clustermon")
    ctx, span := tr.Start(ctx, name)
    for i := 0; i+1 < len(kv); i += 2 {
        k, ok := kv[i].(string)
        if !ok { continue }
        switch v := kv[i+1].(type) {
        case int:
            span.SetAttributes(attribute.Int(k, v))
        case int64:
            span.SetAttributes(attribute.Int64(k, v))
        case string:
            span.SetAttributes(attribute.String(k, v))
        }
    }
    return ctx, func() { span.End() }
}
