// Package mock provides a test double for the llm.Provider interface.
//
// Example:
//
//	p := &mock.Provider{
//	    CompleteResponse: &llm.CompletionResponse{Content: "Hello!"},
//	}
//	resp, err := p.Complete(ctx, req)
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/castmix/pkg/provider/llm"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when CompleteErr is nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned by Complete.
	CompleteErr error

	// CompleteCalls records every request passed to Complete in order.
	CompleteCalls []llm.CompletionRequest
}

// Complete records the call and returns CompleteResponse, CompleteErr.
func (p *Provider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	if p.CompleteErr != nil {
		return nil, p.CompleteErr
	}
	return p.CompleteResponse, nil
}

// Calls returns a copy of the recorded requests.
func (p *Provider) Calls() []llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.CompletionRequest(nil), p.CompleteCalls...)
}

var _ llm.Provider = (*Provider)(nil)
