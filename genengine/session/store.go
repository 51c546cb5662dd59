package session

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hrayleung/Jin-sub003/genengine/stream"
)

// Session is one live generation attempt for a conversation. The generation
// keeps running while the user navigates elsewhere; the UI finds it again
// through the store and reads the accumulator for incremental rendering.
type Session struct {
	ConversationID string
	Accumulator    *stream.Accumulator
	ModelLabel     string
	StartedAt      time.Time

	cancel context.CancelFunc
}

// Store is the process-wide registry of streaming sessions, at most one per
// conversation. One mutex serializes Begin/AttachWork/Cancel/End against each
// other; session counts are small, so per-conversation locking buys nothing.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewStore returns an empty session store.
func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// Begin creates the session for a conversation, or returns the existing one
// with created=false so the caller can refuse to attach a second writer. The
// check and the insert happen under one lock; concurrent Begins for the same
// conversation see exactly one created=true. A repeat call backfills a
// missing model label but never clobbers a set one with empty.
func (s *Store) Begin(conversationID, modelLabel string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[conversationID]; ok {
		if existing.ModelLabel == "" && modelLabel != "" {
			existing.ModelLabel = modelLabel
		}
		return existing, false
	}

	sess := &Session{
		ConversationID: conversationID,
		Accumulator:    stream.NewAccumulator(),
		ModelLabel:     modelLabel,
		StartedAt:      time.Now(),
	}
	s.sessions[conversationID] = sess
	logrus.WithFields(logrus.Fields{
		"conversation_id": conversationID,
		"model":           modelLabel,
	}).Info("[SESSION] Streaming session started")
	return sess, true
}

// AttachWork associates the cancellable unit of work driving the provider
// stream with an existing session. No-op when the session already ended; that
// race is expected and benign.
func (s *Store) AttachWork(conversationID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[conversationID]
	if !ok {
		logrus.WithField("conversation_id", conversationID).
			Debug("[SESSION] AttachWork after end, ignoring")
		return
	}
	sess.cancel = cancel
}

// Cancel requests cooperative cancellation of the attached work, if any. The
// session stays registered; the work's own cleanup path removes it via End.
// The handle is copied under the lock so AttachWork cannot race the read.
func (s *Store) Cancel(conversationID string) {
	s.mu.RLock()
	var cancel context.CancelFunc
	if sess, ok := s.sessions[conversationID]; ok {
		cancel = sess.cancel
	}
	s.mu.RUnlock()

	if cancel == nil {
		return
	}
	logrus.WithField("conversation_id", conversationID).Info("[SESSION] Cancellation requested")
	cancel()
}

// End removes the session. The only teardown path; idempotent.
func (s *Store) End(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[conversationID]; !ok {
		return
	}
	delete(s.sessions, conversationID)
	logrus.WithField("conversation_id", conversationID).Info("[SESSION] Streaming session ended")
}

// IsStreaming reports whether a session is active for the conversation.
func (s *Store) IsStreaming(conversationID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.sessions[conversationID]
	return ok
}

// Current returns the live accumulator for incremental reads, or nil.
func (s *Store) Current(conversationID string) *stream.Accumulator {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[conversationID]; ok {
		return sess.Accumulator
	}
	return nil
}

// ModelLabel returns the session's model label, or "".
func (s *Store) ModelLabel(conversationID string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sess, ok := s.sessions[conversationID]; ok {
		return sess.ModelLabel
	}
	return ""
}

// Active returns the conversation ids with a live session.
func (s *Store) Active() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}
