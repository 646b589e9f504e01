package observe

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestRecordRecognition_CountsErrors(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRecognition(ctx, "tiny", 0.4, nil)
	m.RecordRecognition(ctx, "tiny", 0.1, errors.New("boom"))

	rm := collect(t, reader)

	if _, ok := findMetric(rm, "quill.recognition.duration"); !ok {
		t.Error("quill.recognition.duration not recorded")
	}
	errMetric, ok := findMetric(rm, "quill.recognition.errors")
	if !ok {
		t.Fatal("quill.recognition.errors not recorded")
	}
	sum, ok := errMetric.Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) == 0 {
		t.Fatalf("unexpected error counter shape: %+v", errMetric.Data)
	}
	if sum.DataPoints[0].Value != 1 {
		t.Errorf("error count = %d, want 1", sum.DataPoints[0].Value)
	}
}

func TestRegisterBacklogGauge(t *testing.T) {
	m, reader := newTestMetrics(t)

	var backlog int64 = 7
	if err := m.RegisterBacklogGauge(func() int64 { return backlog }); err != nil {
		t.Fatalf("RegisterBacklogGauge: %v", err)
	}

	rm := collect(t, reader)
	g, ok := findMetric(rm, "quill.pipeline.queued_windows")
	if !ok {
		t.Fatal("gauge not collected")
	}
	gauge, ok := g.Data.(metricdata.Gauge[int64])
	if !ok || len(gauge.DataPoints) == 0 {
		t.Fatalf("unexpected gauge shape: %+v", g.Data)
	}
	if gauge.DataPoints[0].Value != 7 {
		t.Errorf("backlog gauge = %d, want 7", gauge.DataPoints[0].Value)
	}
}

func TestInstrumentSTT_RecordsLatency(t *testing.T) {
	m, reader := newTestMetrics(t)

	inner := sttFunc(func(ctx context.Context, w stt.Window, p types.ResourceProfile) (*stt.Result, error) {
		return &stt.Result{Text: "x"}, nil
	})
	p := InstrumentSTT(inner, m)

	if _, err := p.Transcribe(context.Background(), stt.Window{}, types.ProfileTiny); err != nil {
		t.Fatal(err)
	}

	rm := collect(t, reader)
	if _, ok := findMetric(rm, "quill.recognition.duration"); !ok {
		t.Error("instrumented provider recorded no latency")
	}
}

func TestInstrumentSTT_NilMetricsPassthrough(t *testing.T) {
	inner := sttFunc(func(ctx context.Context, w stt.Window, p types.ResourceProfile) (*stt.Result, error) {
		return nil, nil
	})
	if got := InstrumentSTT(inner, nil); got == nil {
		t.Error("InstrumentSTT(inner, nil) = nil, want inner")
	}
}

type sttFunc func(context.Context, stt.Window, types.ResourceProfile) (*stt.Result, error)

func (f sttFunc) Transcribe(ctx context.Context, w stt.Window, p types.ResourceProfile) (*stt.Result, error) {
	return f(ctx, w, p)
}
