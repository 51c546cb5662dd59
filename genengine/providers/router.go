package providers

import (
	"context"
	"fmt"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// Streamer is the per-provider streaming capability. Implementations return
// a channel that closes when the attempt finishes, fails, or ctx cancels.
type Streamer interface {
	Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.Delta, error)
}

// Router dispatches generation requests to the configured provider adapters.
type Router struct {
	streamers map[domain.Provider]Streamer
}

func NewRouter() *Router {
	return &Router{streamers: make(map[domain.Provider]Streamer)}
}

// Register binds a provider to its adapter, replacing any previous binding.
func (r *Router) Register(p domain.Provider, s Streamer) {
	r.streamers[p] = s
}

// Stream routes the request to its provider's adapter.
func (r *Router) Stream(ctx context.Context, req *domain.GenerationRequest) (<-chan domain.Delta, error) {
	s, ok := r.streamers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", req.Provider)
	}
	return s.Stream(ctx, req)
}
