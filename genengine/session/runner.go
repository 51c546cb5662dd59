package session

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/hrayleung/Jin-sub003/genengine/domain"
)

// ErrAlreadyStreaming is returned when a second attempt is started for a
// conversation whose session is still live.
var ErrAlreadyStreaming = errors.New("conversation is already streaming")

// persistTimeout bounds the final transcript write; the run context is
// already cancelled by then, so the write gets its own deadline.
const persistTimeout = 10 * time.Second

// Runner owns the receive loop of a generation attempt: it is the single
// writer of the session's accumulator, checks the cancellation token at every
// delta receive, and performs teardown itself so End is called exactly once
// on the completion, error and cancellation paths alike.
type Runner struct {
	store       *Store
	transcripts domain.TranscriptStore
}

// NewRunner wires a runner to the session store and the persistence boundary.
// transcripts may be nil; final content is then only observable through the
// store until teardown.
func NewRunner(store *Store, transcripts domain.TranscriptStore) *Runner {
	return &Runner{store: store, transcripts: transcripts}
}

// Start begins the conversation's session, attaches a cancellable unit of
// work and consumes the delta stream on a new goroutine. The deltas channel
// is closed by the transport on completion or error; either way the partial
// content accumulated so far is finalized and persisted. Returns
// ErrAlreadyStreaming when the conversation's session is still live; the
// accumulator has exactly one writer per attempt.
func (r *Runner) Start(ctx context.Context, conversationID, modelLabel string, deltas <-chan domain.Delta) (*Session, error) {
	runCtx, cancel := context.WithCancel(ctx)
	sess, err := r.StartWith(runCtx, cancel, conversationID, modelLabel, deltas)
	if err != nil {
		cancel()
		return nil, err
	}
	return sess, nil
}

// StartWith is Start for callers that already hold the attempt's cancellable
// context because the producing side shares it. Cancelling it must unblock
// the producer too, so consumer and producer tear down together.
func (r *Runner) StartWith(runCtx context.Context, cancel context.CancelFunc, conversationID, modelLabel string, deltas <-chan domain.Delta) (*Session, error) {
	sess, created := r.store.Begin(conversationID, modelLabel)
	if !created {
		return nil, ErrAlreadyStreaming
	}
	r.store.AttachWork(conversationID, cancel)

	go r.consume(runCtx, cancel, sess, deltas)
	return sess, nil
}

func (r *Runner) consume(ctx context.Context, cancel context.CancelFunc, sess *Session, deltas <-chan domain.Delta) {
	attemptID := uuid.NewString()
	cancelled := false

	defer func() {
		cancel()
		r.finalize(sess, attemptID, cancelled)
	}()

	for {
		select {
		case <-ctx.Done():
			cancelled = true
			logrus.WithFields(logrus.Fields{
				"conversation_id": sess.ConversationID,
				"attempt_id":      attemptID,
			}).Info("[RUNNER] Stream cancelled, finalizing partial content")
			return
		case d, ok := <-deltas:
			if !ok {
				return
			}
			sess.Accumulator.Append(d)
		}
	}
}

// finalize snapshots the accumulator, hands the transcript to persistence and
// tears the session down. Persistence failure is logged, never fatal: the
// session must end regardless.
func (r *Runner) finalize(sess *Session, attemptID string, cancelled bool) {
	t := &domain.Transcript{
		ConversationID:   sess.ConversationID,
		AttemptID:        attemptID,
		Model:            sess.ModelLabel,
		Parts:            sess.Accumulator.BuildContentParts(),
		ToolCalls:        sess.Accumulator.BuildToolCalls(),
		SearchActivities: sess.Accumulator.BuildSearchActivities(),
		Cancelled:        cancelled,
		StartedAt:        sess.StartedAt,
		CompletedAt:      time.Now(),
	}

	if r.transcripts != nil {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		defer cancel()
		if err := r.transcripts.SaveTranscript(ctx, t); err != nil {
			logrus.WithError(err).WithField("conversation_id", sess.ConversationID).
				Warn("[RUNNER] Failed to persist transcript")
		}
	}

	r.store.End(sess.ConversationID)

	logrus.WithFields(logrus.Fields{
		"conversation_id": sess.ConversationID,
		"attempt_id":      attemptID,
		"parts":           len(t.Parts),
		"tool_calls":      len(t.ToolCalls),
		"cancelled":       cancelled,
		"elapsed":         t.CompletedAt.Sub(t.StartedAt).Round(time.Millisecond),
	}).Info("[RUNNER] Generation attempt finalized")
}
