package observe

import (
	"context"
	"time"

	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

// instrumentedSTT wraps an stt.Provider and records per-call latency.
type instrumentedSTT struct {
	inner   stt.Provider
	metrics *Metrics
}

// InstrumentSTT returns a provider that records recognition latency and
// errors around every Transcribe call. A nil metrics returns inner unchanged.
func InstrumentSTT(inner stt.Provider, metrics *Metrics) stt.Provider {
	if metrics == nil {
		return inner
	}
	return &instrumentedSTT{inner: inner, metrics: metrics}
}

func (p *instrumentedSTT) Transcribe(ctx context.Context, w stt.Window, profile types.ResourceProfile) (*stt.Result, error) {
	start := time.Now()
	res, err := p.inner.Transcribe(ctx, w, profile)
	p.metrics.RecordRecognition(ctx, string(profile), time.Since(start).Seconds(), err)
	return res, err
}

var _ stt.Provider = (*instrumentedSTT)(nil)
