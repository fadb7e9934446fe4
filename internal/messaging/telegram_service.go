package messaging

import (
	"context"
	"log/slog"

	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/telegram"
)

// TelegramService implements Service using the Telegram Bot API client.
// User ids double as chat ids for direct conversations.
type TelegramService struct {
	client *telegram.Client
}

// NewTelegramService creates a Service backed by the given client.
func NewTelegramService(client *telegram.Client) *TelegramService {
	slog.Debug("Creating TelegramService")
	return &TelegramService{client: client}
}

// SendText sends a plain text message.
func (s *TelegramService) SendText(ctx context.Context, userID int64, text string) error {
	return s.client.SendText(ctx, userID, text)
}

// SendVoice sends a voice note.
func (s *TelegramService) SendVoice(ctx context.Context, userID int64, audio []byte, filename string) error {
	return s.client.SendVoice(ctx, userID, audio, filename)
}

// SendVideo sends a video.
func (s *TelegramService) SendVideo(ctx context.Context, userID int64, video []byte, meta models.VideoMetadata) error {
	return s.client.SendVideo(ctx, userID, video, meta)
}

// SendChatAction shows a chat action indicator.
func (s *TelegramService) SendChatAction(ctx context.Context, userID int64, action models.ChatAction) error {
	return s.client.SendChatAction(ctx, userID, action)
}
