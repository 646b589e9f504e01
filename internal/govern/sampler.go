// Package govern selects the active recognition resource profile from host
// load. Downgrades apply to the next window immediately; upgrades require the
// load to stay below a low watermark for a dwell period first.
package govern

import (
	"context"
	"fmt"
	"runtime"

	"github.com/prometheus/procfs"
)

// Sample is one normalized load observation. Both fields are in [0, 1] where
// 1 means saturated.
type Sample struct {
	// CPULoad is the 1-minute load average divided by the core count.
	CPULoad float64

	// MemUsed is the fraction of physical memory not available for new
	// allocations.
	MemUsed float64
}

// Sampler produces load observations. ProcSampler reads /proc in production;
// tests script their own.
type Sampler interface {
	Sample(ctx context.Context) (Sample, error)
}

// ProcSampler reads loadavg and meminfo from procfs.
type ProcSampler struct {
	fs    procfs.FS
	cores float64
}

// NewProcSampler mounts the default procfs. It fails on hosts without /proc.
func NewProcSampler() (*ProcSampler, error) {
	fs, err := procfs.NewDefaultFS()
	if err != nil {
		return nil, fmt.Errorf("govern: open procfs: %w", err)
	}
	return &ProcSampler{fs: fs, cores: float64(runtime.NumCPU())}, nil
}

// Sample reads the current host load.
func (s *ProcSampler) Sample(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, err
	}

	la, err := s.fs.LoadAvg()
	if err != nil {
		return Sample{}, fmt.Errorf("govern: read loadavg: %w", err)
	}

	mi, err := s.fs.Meminfo()
	if err != nil {
		return Sample{}, fmt.Errorf("govern: read meminfo: %w", err)
	}

	out := Sample{CPULoad: la.Load1 / s.cores}
	if mi.MemTotal != nil && mi.MemAvailable != nil && *mi.MemTotal > 0 {
		out.MemUsed = 1 - float64(*mi.MemAvailable)/float64(*mi.MemTotal)
	}
	return out, nil
}
