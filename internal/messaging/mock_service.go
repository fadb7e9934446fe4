package messaging

import (
	"context"
	"sync"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// SentKind labels a recorded mock send.
type SentKind string

const (
	// SentText is a recorded SendText call.
	SentText SentKind = "text"
	// SentVoice is a recorded SendVoice call.
	SentVoice SentKind = "voice"
	// SentVideo is a recorded SendVideo call.
	SentVideo SentKind = "video"
	// SentChatAction is a recorded SendChatAction call.
	SentChatAction SentKind = "chat_action"
)

// Sent records one outbound call made against the MockService.
type Sent struct {
	Kind     SentKind
	UserID   int64
	Text     string
	Filename string
	Action   models.ChatAction
}

// MockService implements Service for tests, recording every send and
// optionally failing on demand.
type MockService struct {
	mu      sync.Mutex
	sent    []Sent
	failErr error
	// Signals receives one value per recorded send so tests can wait for
	// asynchronous sequences without sleeping.
	Signals chan struct{}
}

// NewMockService creates an empty MockService.
func NewMockService() *MockService {
	return &MockService{Signals: make(chan struct{}, 256)}
}

// FailWith makes all subsequent sends return err (nil restores success).
func (m *MockService) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MockService) record(s Sent) error {
	m.mu.Lock()
	if m.failErr != nil {
		err := m.failErr
		m.mu.Unlock()
		return err
	}
	m.sent = append(m.sent, s)
	m.mu.Unlock()

	select {
	case m.Signals <- struct{}{}:
	default:
	}
	return nil
}

// SendText records a text send.
func (m *MockService) SendText(ctx context.Context, userID int64, text string) error {
	return m.record(Sent{Kind: SentText, UserID: userID, Text: text})
}

// SendVoice records a voice send.
func (m *MockService) SendVoice(ctx context.Context, userID int64, audio []byte, filename string) error {
	return m.record(Sent{Kind: SentVoice, UserID: userID, Filename: filename})
}

// SendVideo records a video send.
func (m *MockService) SendVideo(ctx context.Context, userID int64, video []byte, meta models.VideoMetadata) error {
	return m.record(Sent{Kind: SentVideo, UserID: userID})
}

// SendChatAction records a chat action send.
func (m *MockService) SendChatAction(ctx context.Context, userID int64, action models.ChatAction) error {
	return m.record(Sent{Kind: SentChatAction, UserID: userID, Action: action})
}

// SentCalls returns a copy of all recorded sends.
func (m *MockService) SentCalls() []Sent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sent, len(m.sent))
	copy(out, m.sent)
	return out
}

// TextsTo returns the text bodies sent to a user, in order.
func (m *MockService) TextsTo(userID int64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.Kind == SentText && s.UserID == userID {
			out = append(out, s.Text)
		}
	}
	return out
}

// CountKind returns how many sends of the given kind were recorded for a user.
func (m *MockService) CountKind(userID int64, kind SentKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.Kind == kind && s.UserID == userID {
			n++
		}
	}
	return n
}
