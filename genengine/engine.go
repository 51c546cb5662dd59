package genengine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hrayleung/Jin-sub003/genengine/contextcache"
	"github.com/hrayleung/Jin-sub003/genengine/domain"
	"github.com/hrayleung/Jin-sub003/genengine/providers"
	"github.com/hrayleung/Jin-sub003/genengine/session"
)

// Engine is the generation pipeline's front door: it validates the request,
// runs cache negotiation, opens the provider stream and hands it to the
// session runner. All state lives in the injected collaborators.
type Engine struct {
	router     *providers.Router
	negotiator *contextcache.Negotiator
	sessions   *session.Store
	runner     *session.Runner
}

func NewEngine(router *providers.Router, negotiator *contextcache.Negotiator, sessions *session.Store, runner *session.Runner) *Engine {
	return &Engine{
		router:     router,
		negotiator: negotiator,
		sessions:   sessions,
		runner:     runner,
	}
}

// Generate starts one generation attempt for a conversation. A conversation
// streams at most one attempt at a time; a second call while streaming is
// rejected rather than queued.
func (e *Engine) Generate(ctx context.Context, conversationID string, req *domain.GenerationRequest) (*session.Session, error) {
	if conversationID == "" {
		return nil, fmt.Errorf("conversation id is required")
	}
	if err := req.CacheOptions.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache options: %w", err)
	}
	// Cheap pre-check before negotiation; the authoritative check is the
	// store's conditional Begin inside StartWith.
	if e.sessions.IsStreaming(conversationID) {
		return nil, fmt.Errorf("conversation %s is already streaming", conversationID)
	}

	e.negotiator.Negotiate(ctx, req)

	// The stream must outlive the HTTP request that triggered it; only the
	// session's cancellation token stops it. Producer and consumer share the
	// token so cancelling tears both down.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	deltas, err := e.router.Stream(runCtx, req)
	if err != nil {
		cancel()
		return nil, err
	}

	sess, err := e.runner.StartWith(runCtx, cancel, conversationID, req.Model, deltas)
	if err != nil {
		// Lost the race to another attempt; tear down the stream just opened.
		cancel()
		return nil, fmt.Errorf("conversation %s: %w", conversationID, err)
	}

	logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"provider":        req.Provider,
		"model":           req.Model,
	}).Info("[ENGINE] Generation started")

	return sess, nil
}

// Cancel requests cooperative cancellation of the conversation's attempt.
func (e *Engine) Cancel(conversationID string) {
	e.sessions.Cancel(conversationID)
}

// Sessions exposes the session store for observation surfaces.
func (e *Engine) Sessions() *session.Store {
	return e.sessions
}
