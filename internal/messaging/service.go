// Package messaging defines the message delivery abstraction used by the
// funnel engine and follow-up campaigns.
package messaging

import (
	"context"

	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// Service defines a pluggable message delivery abstraction. Each primitive
// may fail (network/4xx/5xx); a failure aborts the remainder of the current
// sequence step and is logged, never retried automatically.
type Service interface {
	// SendText sends a plain text message to a user.
	SendText(ctx context.Context, userID int64, text string) error

	// SendVoice sends a voice note from in-memory audio bytes.
	SendVoice(ctx context.Context, userID int64, audio []byte, filename string) error

	// SendVideo sends a video with optional metadata.
	SendVideo(ctx context.Context, userID int64, video []byte, meta models.VideoMetadata) error

	// SendChatAction shows a typing/recording/uploading indicator.
	SendChatAction(ctx context.Context, userID int64, action models.ChatAction) error
}
