// Package telegram wraps the Telegram Bot API client used by MaryCall.
//
// It exposes the send primitives the funnel engine needs (text, voice,
// video, chat action), a long-poll update channel for the dispatcher, and
// the admin-channel operations used by payment-proof review.
package telegram

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// DefaultUpdateTimeout is the long-poll timeout in seconds.
const DefaultUpdateTimeout = 30

// Client wraps a tgbotapi.BotAPI connection.
type Client struct {
	api *tgbotapi.BotAPI
}

// NewClient authenticates against the Bot API with the given token.
func NewClient(token string) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authentication: %w", err)
	}
	slog.Info("Telegram client connected", "username", api.Self.UserName)
	return &Client{api: api}, nil
}

// SendText sends a plain text message to the chat.
func (c *Client) SendText(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if text == "" {
		return models.ErrEmptyText
	}
	if _, err := c.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		slog.Error("Telegram SendText error", "error", err, "chatID", chatID)
		return fmt.Errorf("telegram send text: %w", err)
	}
	return nil
}

// SendVoice sends a voice note from in-memory audio bytes.
func (c *Client) SendVoice(ctx context.Context, chatID int64, audio []byte, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	voice := tgbotapi.NewVoice(chatID, tgbotapi.FileBytes{Name: filename, Bytes: audio})
	if _, err := c.api.Send(voice); err != nil {
		slog.Error("Telegram SendVoice error", "error", err, "chatID", chatID, "filename", filename)
		return fmt.Errorf("telegram send voice: %w", err)
	}
	return nil
}

// SendVideo sends a video from in-memory bytes with optional metadata.
func (c *Client) SendVideo(ctx context.Context, chatID int64, data []byte, meta models.VideoMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	video := tgbotapi.NewVideo(chatID, tgbotapi.FileBytes{Name: "video.mp4", Bytes: data})
	video.Duration = meta.Duration
	video.SupportsStreaming = meta.SupportsStreaming
	if _, err := c.api.Send(video); err != nil {
		slog.Error("Telegram SendVideo error", "error", err, "chatID", chatID)
		return fmt.Errorf("telegram send video: %w", err)
	}
	return nil
}

// SendChatAction shows a typing/recording/uploading indicator.
func (c *Client) SendChatAction(ctx context.Context, chatID int64, action models.ChatAction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewChatAction(chatID, string(action))); err != nil {
		slog.Error("Telegram SendChatAction error", "error", err, "chatID", chatID, "action", action)
		return fmt.Errorf("telegram chat action: %w", err)
	}
	return nil
}

// Updates opens the long-poll update channel. The channel is closed when
// StopReceivingUpdates is called.
func (c *Client) Updates() tgbotapi.UpdatesChannel {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = DefaultUpdateTimeout
	return c.api.GetUpdatesChan(cfg)
}

// StopReceivingUpdates stops the long-poll loop.
func (c *Client) StopReceivingUpdates() {
	c.api.StopReceivingUpdates()
}

// ForwardPhoto re-sends a user's photo to the admin channel by file id,
// attaching a caption and review keyboard. Returns the posted message id.
func (c *Client) ForwardPhoto(ctx context.Context, chatID int64, fileID, caption string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	photo.Caption = caption
	photo.ReplyMarkup = keyboard
	sent, err := c.api.Send(photo)
	if err != nil {
		return 0, fmt.Errorf("telegram forward photo: %w", err)
	}
	return sent.MessageID, nil
}

// ForwardDocument re-sends a user's document to the admin channel by file
// id, attaching a caption and review keyboard. Returns the posted message id.
func (c *Client) ForwardDocument(ctx context.Context, chatID int64, fileID, caption string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileID(fileID))
	doc.Caption = caption
	doc.ReplyMarkup = keyboard
	sent, err := c.api.Send(doc)
	if err != nil {
		return 0, fmt.Errorf("telegram forward document: %w", err)
	}
	return sent.MessageID, nil
}

// EditCaption rewrites the caption of a previously posted admin message.
func (c *Client) EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Send(tgbotapi.NewEditMessageCaption(chatID, messageID, caption)); err != nil {
		return fmt.Errorf("telegram edit caption: %w", err)
	}
	return nil
}

// AnswerCallback acknowledges an inline-keyboard callback query, optionally
// flashing a short notification to the admin who pressed the button.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("telegram answer callback: %w", err)
	}
	return nil
}
