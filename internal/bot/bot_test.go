package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/config"
	"github.com/AtividadeNgk/MaryCall/internal/flow"
	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/media"
	"github.com/AtividadeNgk/MaryCall/internal/messaging"
	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/proof"
	"github.com/AtividadeNgk/MaryCall/internal/ratelimit"
	"github.com/AtividadeNgk/MaryCall/internal/store"
	"github.com/AtividadeNgk/MaryCall/internal/tracking"
)

// stubForwarder counts forwards so routing can be asserted without Telegram.
type stubForwarder struct {
	mu       sync.Mutex
	forwards int
}

func (s *stubForwarder) ForwardPhoto(ctx context.Context, chatID int64, fileID, caption string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwards++
	return 1, nil
}

func (s *stubForwarder) ForwardDocument(ctx context.Context, chatID int64, fileID, caption string, kb tgbotapi.InlineKeyboardMarkup) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forwards++
	return 1, nil
}

func (s *stubForwarder) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	return nil
}

func (s *stubForwarder) AnswerCallback(ctx context.Context, callbackID, text string) error {
	return nil
}

func (s *stubForwarder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.forwards
}

type botFixture struct {
	bot   *Bot
	store *store.MemoryStore
	fw    *stubForwarder
}

func newBotFixture(t *testing.T) *botFixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	svc := messaging.NewMockService()
	st := store.NewMemoryStore(clock)
	followups := followup.NewManager(svc, st, clock, followup.WithArmDelay(0))
	t.Cleanup(followups.Stop)

	engine := flow.NewEngine(flow.EngineConfig{
		Store:        st,
		Limiter:      ratelimit.New(st, config.DefaultRateLimits()),
		Messaging:    svc,
		Assets:       media.NewAssets(t.TempDir()),
		Followups:    followups,
		Tracker:      tracking.NewTracker(clock),
		Clock:        clock,
		CallLinkBase: "https://call.test/",
		StateTTL:     time.Hour,
	})
	t.Cleanup(engine.Sessions().Close)

	fw := &stubForwarder{}
	reviewer := proof.NewReviewer(fw, svc, engine, followups, -100123, clock)
	return &botFixture{bot: New(nil, engine, reviewer, st), store: st, fw: fw}
}

func textMessage(userID int64, text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Date: int(time.Now().Unix()),
		Text: text,
	}
	return msg
}

func TestStartCommandEntersFunnel(t *testing.T) {
	f := newBotFixture(t)

	msg := textMessage(42, "/start")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}
	f.bot.handleMessage(context.Background(), msg)

	state, _ := f.store.GetUserState(context.Background(), 42)
	if state != models.StateSendingInitialContent {
		t.Errorf("state after /start = %q, want %q", state, models.StateSendingInitialContent)
	}
}

func TestBotIgnoresOtherBots(t *testing.T) {
	f := newBotFixture(t)

	msg := textMessage(42, "/start")
	msg.From.IsBot = true
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 6}}
	f.bot.handleMessage(context.Background(), msg)

	state, _ := f.store.GetUserState(context.Background(), 42)
	if state != models.StateNormal {
		t.Errorf("state after bot message = %q, want %q", state, models.StateNormal)
	}
}

func TestUnknownCommandDoesNotReachTextHandler(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	// Mid-funnel, a stray command must not count as the user's reply.
	if err := f.store.SetUserState(ctx, 42, models.StateCanReceiveFirst, time.Hour); err != nil {
		t.Fatalf("SetUserState() error = %v", err)
	}

	msg := textMessage(42, "/help")
	msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: 5}}
	f.bot.handleMessage(ctx, msg)

	state, _ := f.store.GetUserState(ctx, 42)
	if state != models.StateCanReceiveFirst {
		t.Errorf("state after /help = %q, want %q unchanged", state, models.StateCanReceiveFirst)
	}
}

func TestPhotoOutsideProofStateIsIgnored(t *testing.T) {
	f := newBotFixture(t)

	msg := textMessage(42, "")
	msg.Text = ""
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "photo-1"}}
	f.bot.handleMessage(context.Background(), msg)

	if n := f.fw.count(); n != 0 {
		t.Errorf("forwards = %d for photo outside proof state, want 0", n)
	}
}

func TestPhotoInProofStateIsForwarded(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	if err := f.store.SetUserState(ctx, 42, models.StateAwaitingPaymentProof, time.Hour); err != nil {
		t.Fatalf("SetUserState() error = %v", err)
	}

	msg := textMessage(42, "")
	msg.Text = ""
	msg.Photo = []tgbotapi.PhotoSize{{FileID: "small"}, {FileID: "large"}}
	f.bot.handleMessage(ctx, msg)

	if n := f.fw.count(); n != 1 {
		t.Errorf("forwards = %d, want 1", n)
	}
}

func TestDocumentInProofStateIsForwarded(t *testing.T) {
	f := newBotFixture(t)
	ctx := context.Background()

	if err := f.store.SetUserState(ctx, 42, models.StateAwaitingPaymentProof, time.Hour); err != nil {
		t.Fatalf("SetUserState() error = %v", err)
	}

	msg := textMessage(42, "")
	msg.Text = ""
	msg.Document = &tgbotapi.Document{FileID: "doc-1"}
	f.bot.handleMessage(ctx, msg)

	if n := f.fw.count(); n != 1 {
		t.Errorf("forwards = %d, want 1", n)
	}
}
