// Package mock provides a test double for the stt.Provider interface.
//
// Pre-populate Results (consumed in order) or set TranscribeFunc for full
// control, then inspect TranscribeCalls to verify what the pipeline
// submitted.
//
// Example:
//
//	p := &mock.Provider{Results: []*stt.Result{{Text: "hello world"}}}
//	res, _ := p.Transcribe(ctx, window, types.ProfileTiny)
package mock

import (
	"context"
	"sync"

	"github.com/quillscribe/quill/pkg/provider/stt"
	"github.com/quillscribe/quill/pkg/types"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Window is the audio window passed to Transcribe.
	Window stt.Window

	// Profile is the resource profile passed to Transcribe.
	Profile types.ResourceProfile
}

// Provider is a mock implementation of stt.Provider. All fields are read
// under an internal mutex; the zero value is usable and returns empty
// results.
type Provider struct {
	mu sync.Mutex

	// TranscribeFunc, if non-nil, handles every call. Results and Err are
	// ignored when it is set.
	TranscribeFunc func(ctx context.Context, w stt.Window, profile types.ResourceProfile) (*stt.Result, error)

	// Results are returned one per call, in order. When exhausted, calls
	// return an empty Result.
	Results []*stt.Result

	// Err, if non-nil, is returned by every call (after recording it).
	Err error

	// TranscribeCalls records every call in order.
	TranscribeCalls []TranscribeCall

	next int
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, w stt.Window, profile types.ResourceProfile) (*stt.Result, error) {
	p.mu.Lock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Window: w, Profile: profile})
	fn := p.TranscribeFunc
	err := p.Err
	var res *stt.Result
	if fn == nil {
		if p.next < len(p.Results) {
			res = p.Results[p.next]
			p.next++
		} else {
			res = &stt.Result{Profile: profile}
		}
	}
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, w, profile)
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// CallCount returns the number of Transcribe calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Reset clears all recorded calls and rewinds the scripted results.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.next = 0
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
