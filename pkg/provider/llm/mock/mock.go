// Package mock provides a test double for the llm.Provider interface.
//
// Set Response (or CompleteFunc for full control) and inspect CompleteCalls
// to verify the prompt the dispatcher built.
package mock

import (
	"context"
	"sync"

	"github.com/quillscribe/quill/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider. The zero value is
// usable and returns an empty response.
type Provider struct {
	mu sync.Mutex

	// CompleteFunc, if non-nil, handles every call. Response and Err are
	// ignored when it is set.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	// Response is returned by every Complete call when CompleteFunc is nil.
	Response *llm.CompletionResponse

	// Err, if non-nil, is returned by every call (after recording it).
	Err error

	// CompleteCalls records every call in order.
	CompleteCalls []llm.CompletionRequest
}

// Complete records the call and returns the scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	fn := p.CompleteFunc
	resp := p.Response
	err := p.Err
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if resp != nil {
		return resp, nil
	}
	return &llm.CompletionResponse{}, nil
}

// CallCount returns the number of Complete calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
