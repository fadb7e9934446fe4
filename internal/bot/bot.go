// Package bot dispatches Telegram updates to the funnel engine and the
// payment-proof reviewer.
package bot

import (
	"context"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AtividadeNgk/MaryCall/internal/flow"
	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/proof"
	"github.com/AtividadeNgk/MaryCall/internal/store"
)

// Updater provides the long-poll update stream. *telegram.Client satisfies
// it.
type Updater interface {
	Updates() tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot consumes Telegram updates and routes them by kind and funnel state.
type Bot struct {
	updater  Updater
	engine   *flow.Engine
	reviewer *proof.Reviewer
	store    store.Store
}

// New creates a Bot over the given update source.
func New(updater Updater, engine *flow.Engine, reviewer *proof.Reviewer, st store.Store) *Bot {
	return &Bot{updater: updater, engine: engine, reviewer: reviewer, store: st}
}

// Run consumes updates until ctx is cancelled. Each update is handled on its
// own goroutine so a slow handler cannot stall the poll loop.
func (b *Bot) Run(ctx context.Context) {
	updates := b.updater.Updates()
	slog.Info("Bot update loop started")

	for {
		select {
		case <-ctx.Done():
			b.updater.StopReceivingUpdates()
			slog.Info("Bot update loop stopped")
			return
		case update, ok := <-updates:
			if !ok {
				slog.Info("Bot update channel closed")
				return
			}
			go b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Bot recovered from handler panic", "panic", r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	userID := msg.From.ID
	chatID := msg.Chat.ID

	switch {
	case msg.IsCommand() && msg.Command() == "start":
		slog.Info("Bot received /start", "userID", userID)
		b.engine.OnStart(ctx, userID, chatID)

	case msg.IsCommand():
		// Only /start is scripted; other commands must not reach the text
		// handler where they could consume a one-shot transition.
		slog.Debug("Bot ignoring unknown command", "userID", userID, "command", msg.Command())

	case len(msg.Photo) > 0:
		b.handleProofMedia(ctx, userID, msg.Photo[len(msg.Photo)-1].FileID, false)

	case msg.Document != nil:
		b.handleProofMedia(ctx, userID, msg.Document.FileID, true)

	case msg.Text != "":
		// The update carries the sender's send time, which is what the
		// staleness guards compare against.
		msgTime := time.Unix(int64(msg.Date), 0)
		b.engine.OnText(ctx, userID, chatID, msg.Text, msgTime)
	}
}

// handleProofMedia forwards photos and documents for review, but only while
// the user is actually expected to send a proof.
func (b *Bot) handleProofMedia(ctx context.Context, userID int64, fileID string, isDocument bool) {
	state, err := b.store.GetUserState(ctx, userID)
	if err != nil {
		slog.Error("Bot state lookup failed for media", "error", err, "userID", userID)
		return
	}
	if state != models.StateAwaitingPaymentProof {
		slog.Debug("Bot ignoring media outside proof state", "userID", userID, "state", state)
		return
	}
	if err := b.reviewer.HandleProof(ctx, userID, fileID, isDocument); err != nil {
		slog.Error("Bot proof handling failed", "error", err, "userID", userID)
	}
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	slog.Debug("Bot received callback", "data", cb.Data)
	b.reviewer.HandleCallback(ctx, cb.ID, cb.Data)
}
