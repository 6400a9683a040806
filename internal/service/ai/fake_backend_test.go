package ai

import (
	"context"
	"sync"
)

type fakeBackend struct {
	mu       sync.Mutex
	calls    []BackendRequest
	text     string
	err      error
	generate func(ctx context.Context, req BackendRequest) (BackendResponse, error)
}

func (f *fakeBackend) Generate(ctx context.Context, req BackendRequest) (BackendResponse, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.generate != nil {
		return f.generate(ctx, req)
	}
	if f.err != nil {
		return BackendResponse{}, f.err
	}
	return BackendResponse{Text: f.text}, nil
}

func (f *fakeBackend) Name() string  { return "fake" }
func (f *fakeBackend) Model() string { return "fake-model" }

func (f *fakeBackend) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}
