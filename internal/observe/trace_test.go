package observe

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func inMemoryTracer(t *testing.T) (*sdktrace.TracerProvider, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp, exp
}

func TestCorrelationIDWithoutSpan(t *testing.T) {
	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}
}

func TestCorrelationIDIsHexTraceID(t *testing.T) {
	tp, _ := inMemoryTracer(t)

	ctx, span := tp.Tracer("t").Start(context.Background(), "op")
	defer span.End()

	cid := CorrelationID(ctx)
	if len(cid) != 32 {
		t.Fatalf("correlation id %q has length %d, want 32", cid, len(cid))
	}
	if strings.Trim(cid, "0123456789abcdef") != "" {
		t.Errorf("correlation id %q contains non-hex characters", cid)
	}
}

func TestStartSpanUsesGlobalProvider(t *testing.T) {
	tp, exp := inMemoryTracer(t)
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	ctx, span := StartSpan(context.Background(), "consent-prompt")
	if CorrelationID(ctx) == "" {
		t.Error("StartSpan produced no trace id")
	}
	span.End()

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "consent-prompt" {
		t.Fatalf("exported spans = %+v, want one named consent-prompt", spans)
	}
}

func TestLoggerCarriesSpanIdentity(t *testing.T) {
	tp, _ := inMemoryTracer(t)

	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(slog.Default()) })

	ctx, span := tp.Tracer("t").Start(context.Background(), "op")
	defer span.End()
	Logger(ctx).Info("hello")

	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Errorf("log line missing trace identity: %s", out)
	}
}

func TestLoggerWithoutSpanIsPlain(t *testing.T) {
	var buf bytes.Buffer
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(slog.Default()) })

	Logger(context.Background()).Info("hello")

	if strings.Contains(buf.String(), "trace_id") {
		t.Errorf("log line carries a trace_id without an active span: %s", buf.String())
	}
}
