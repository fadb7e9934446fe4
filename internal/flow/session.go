package flow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Edge identifies a funnel transition that must fire at most once per
// session generation.
type Edge string

const (
	// EdgeFirstResponse is the user's first reply after the intro video.
	EdgeFirstResponse Edge = "first_response"
	// EdgeCallResponse is the reply to the "can I call you" question.
	EdgeCallResponse Edge = "call_response"
	// EdgePaymentResponse is the reply to the payment question.
	EdgePaymentResponse Edge = "payment_response"
	// EdgeProofResponse is the reply acknowledging the proof request.
	EdgeProofResponse Edge = "proof_response"
)

// RefKey names a reference timestamp recorded when the bot sends a prompt.
// Replies dated before the reference are stale and ignored.
type RefKey string

const (
	// RefVideo is set when the intro video lands.
	RefVideo RefKey = "video"
	// RefQuestion is set when the call question is sent.
	RefQuestion RefKey = "question"
	// RefFollowupArmed is set when the payment question is sent and its
	// follow-up campaign armed.
	RefFollowupArmed RefKey = "followup_armed"
	// RefPaymentAudio is set when the proof-request voice note is sent.
	RefPaymentAudio RefKey = "payment_audio"
)

// Session is one generation of a user's funnel run. A fresh /start mints a
// new Session and cancels the previous one, so in-flight sequences of the
// old generation stop at their next checkpoint.
type Session struct {
	userID int64
	chatID int64
	token  uuid.UUID

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	flags        map[Edge]bool
	refs         map[RefKey]time.Time
	lastActivity time.Time
}

func newSession(parent context.Context, userID, chatID int64, now time.Time) *Session {
	ctx, cancel := context.WithCancel(parent)
	return &Session{
		userID:       userID,
		chatID:       chatID,
		token:        uuid.New(),
		ctx:          ctx,
		cancel:       cancel,
		flags:        make(map[Edge]bool),
		refs:         make(map[RefKey]time.Time),
		lastActivity: now,
	}
}

// UserID returns the session's user id.
func (s *Session) UserID() int64 { return s.userID }

// ChatID returns the chat the session delivers to.
func (s *Session) ChatID() int64 { return s.chatID }

// Token returns the generation token minted for this session.
func (s *Session) Token() uuid.UUID { return s.token }

// Context is cancelled when the session is superseded or the registry shuts
// down. Sequence goroutines check it at every step boundary.
func (s *Session) Context() context.Context { return s.ctx }

// MarkProcessed atomically sets the edge flag, reporting false when it was
// already set. Callers drop the event on false so each edge fires once.
func (s *Session) MarkProcessed(edge Edge) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flags[edge] {
		return false
	}
	s.flags[edge] = true
	return true
}

// Processed reports whether the edge already fired in this generation.
func (s *Session) Processed(edge Edge) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[edge]
}

// SetRef records the reference timestamp for a key.
func (s *Session) SetRef(key RefKey, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[key] = t
}

// Ref returns the reference timestamp for a key if one was recorded.
func (s *Session) Ref(key RefKey) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refs[key]
	return t, ok
}

// Touch updates the session's last-activity time.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActivity = now
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

// Registry holds the live session per user.
type Registry struct {
	mu       sync.Mutex
	sessions map[int64]*Session
	root     context.Context
	cancel   context.CancelFunc
	clock    clockwork.Clock
}

// NewRegistry creates an empty session registry.
func NewRegistry(clock clockwork.Clock) *Registry {
	root, cancel := context.WithCancel(context.Background())
	return &Registry{
		sessions: make(map[int64]*Session),
		root:     root,
		cancel:   cancel,
		clock:    clock,
	}
}

// Get returns the user's live session, or nil.
func (r *Registry) Get(userID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[userID]
}

// GetOrCreate returns the user's live session, creating one with clean flags
// when none exists.
func (r *Registry) GetOrCreate(userID, chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		return s
	}
	s := newSession(r.root, userID, chatID, r.clock.Now())
	r.sessions[userID] = s
	slog.Debug("Registry created session", "userID", userID, "token", s.token)
	return s
}

// Reset supersedes the user's session: the old generation is cancelled and a
// fresh session with clean flags and a new token takes its place.
func (r *Registry) Reset(userID, chatID int64) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.sessions[userID]; ok {
		old.cancel()
		slog.Info("Registry superseded session", "userID", userID, "oldToken", old.token)
	}
	s := newSession(r.root, userID, chatID, r.clock.Now())
	r.sessions[userID] = s
	slog.Info("Registry reset session", "userID", userID, "token", s.token)
	return s
}

// Sweep cancels and drops sessions idle longer than maxIdle, returning how
// many were removed.
func (r *Registry) Sweep(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	removed := 0
	for userID, s := range r.sessions {
		if s.idleSince(now) > maxIdle {
			s.cancel()
			delete(r.sessions, userID)
			removed++
		}
	}
	if removed > 0 {
		slog.Info("Registry swept idle sessions", "count", removed)
	}
	return removed
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close cancels every live session. Used during shutdown.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancel()
	r.sessions = make(map[int64]*Session)
	slog.Info("Registry closed")
}
