// Package proof handles payment-proof review: proofs sent by users are
// forwarded to an admin channel with approve/reject buttons, and the admin's
// decision is relayed back to the user.
package proof

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/flow"
	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/messaging"
)

// Callback data prefixes carried on the review keyboard.
const (
	approvePrefix = "aprovar_"
	rejectPrefix  = "rejeitar_"
)

// Messages relayed to the user around review.
const (
	textProofReceived = "deixa eu ver aqui amor 🥰"
	textProofApproved = "aaaah recebi amor! 🥰 vou te ligar agora ta?"
	textProofRejected = "amor esse comprovante não caiu aqui não 😢 me manda de novo?"
)

type pendingProof struct {
	messageID  int
	receivedAt time.Time
}

// Forwarder posts media to the admin channel and edits review captions.
// *telegram.Client satisfies it; tests substitute a mock.
type Forwarder interface {
	ForwardPhoto(ctx context.Context, chatID int64, fileID, caption string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error)
	ForwardDocument(ctx context.Context, chatID int64, fileID, caption string, keyboard tgbotapi.InlineKeyboardMarkup) (int, error)
	EditCaption(ctx context.Context, chatID int64, messageID int, caption string) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}

// Reviewer routes payment proofs to the admin channel and applies the
// admin's verdict.
type Reviewer struct {
	fw             Forwarder
	svc            messaging.Service
	engine         *flow.Engine
	followups      *followup.Manager
	adminChannelID int64
	clock          clockwork.Clock

	mu      sync.Mutex
	pending map[int64]pendingProof
}

// NewReviewer creates a Reviewer posting to the given admin channel.
func NewReviewer(fw Forwarder, svc messaging.Service, engine *flow.Engine, followups *followup.Manager, adminChannelID int64, clock clockwork.Clock) *Reviewer {
	return &Reviewer{
		fw:             fw,
		svc:            svc,
		engine:         engine,
		followups:      followups,
		adminChannelID: adminChannelID,
		clock:          clock,
		pending:        make(map[int64]pendingProof),
	}
}

// HandleProof forwards a user's photo or document to the admin channel with
// a review keyboard, acknowledges the user, and stops the proof follow-up
// campaign while the review is pending.
func (r *Reviewer) HandleProof(ctx context.Context, userID int64, fileID string, isDocument bool) error {
	if r.adminChannelID == 0 {
		slog.Warn("Reviewer admin channel not configured, dropping proof", "userID", userID)
		return nil
	}

	caption := fmt.Sprintf("💰 Comprovante recebido\nUser: %d", userID)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Aprovar", approvePrefix+strconv.FormatInt(userID, 10)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Rejeitar", rejectPrefix+strconv.FormatInt(userID, 10)),
		),
	)

	var (
		messageID int
		err       error
	)
	if isDocument {
		messageID, err = r.fw.ForwardDocument(ctx, r.adminChannelID, fileID, caption, keyboard)
	} else {
		messageID, err = r.fw.ForwardPhoto(ctx, r.adminChannelID, fileID, caption, keyboard)
	}
	if err != nil {
		slog.Error("Reviewer failed to forward proof", "error", err, "userID", userID)
		return fmt.Errorf("forward proof: %w", err)
	}

	r.mu.Lock()
	r.pending[userID] = pendingProof{messageID: messageID, receivedAt: r.clock.Now()}
	r.mu.Unlock()

	r.followups.Cancel(userID, followup.KindProof)

	if err := r.svc.SendText(ctx, userID, textProofReceived); err != nil {
		slog.Warn("Reviewer failed to acknowledge proof", "error", err, "userID", userID)
	}
	slog.Info("Reviewer proof forwarded for review", "userID", userID, "messageID", messageID)
	return nil
}

// HandleCallback applies an admin verdict from the review keyboard. Unknown
// callback data is ignored.
func (r *Reviewer) HandleCallback(ctx context.Context, callbackID, data string) {
	switch {
	case strings.HasPrefix(data, approvePrefix):
		r.resolve(ctx, callbackID, data[len(approvePrefix):], true)
	case strings.HasPrefix(data, rejectPrefix):
		r.resolve(ctx, callbackID, data[len(rejectPrefix):], false)
	default:
		slog.Debug("Reviewer ignoring unknown callback", "data", data)
	}
}

func (r *Reviewer) resolve(ctx context.Context, callbackID, rawID string, approved bool) {
	userID, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		slog.Error("Reviewer callback carried invalid user id", "raw", rawID)
		return
	}

	r.mu.Lock()
	p, ok := r.pending[userID]
	if ok {
		delete(r.pending, userID)
	}
	r.mu.Unlock()
	if !ok {
		slog.Warn("Reviewer verdict for unknown proof", "userID", userID, "approved", approved)
		if err := r.fw.AnswerCallback(ctx, callbackID, "Comprovante já revisado"); err != nil {
			slog.Warn("Reviewer callback answer failed", "error", err)
		}
		return
	}

	if approved {
		r.approve(ctx, callbackID, userID, p)
	} else {
		r.reject(ctx, callbackID, userID, p)
	}
}

func (r *Reviewer) approve(ctx context.Context, callbackID string, userID int64, p pendingProof) {
	if err := r.svc.SendText(ctx, userID, textProofApproved); err != nil {
		slog.Warn("Reviewer approval message failed", "error", err, "userID", userID)
	}
	if err := r.engine.SendCallLinkNow(ctx, userID); err != nil {
		slog.Error("Reviewer failed to send call link", "error", err, "userID", userID)
	}

	caption := fmt.Sprintf("✅ APROVADO\nUser: %d", userID)
	if err := r.fw.EditCaption(ctx, r.adminChannelID, p.messageID, caption); err != nil {
		slog.Warn("Reviewer caption edit failed", "error", err, "userID", userID)
	}
	if err := r.fw.AnswerCallback(ctx, callbackID, "Aprovado ✅"); err != nil {
		slog.Warn("Reviewer callback answer failed", "error", err)
	}
	slog.Info("Reviewer proof approved", "userID", userID)
}

func (r *Reviewer) reject(ctx context.Context, callbackID string, userID int64, p pendingProof) {
	if err := r.svc.SendText(ctx, userID, textProofRejected); err != nil {
		slog.Warn("Reviewer rejection message failed", "error", err, "userID", userID)
	}

	// Re-arm the proof campaign so a silent user still gets nudged.
	r.followups.Arm(userID, followup.KindProof)

	caption := fmt.Sprintf("❌ REJEITADO\nUser: %d", userID)
	if err := r.fw.EditCaption(ctx, r.adminChannelID, p.messageID, caption); err != nil {
		slog.Warn("Reviewer caption edit failed", "error", err, "userID", userID)
	}
	if err := r.fw.AnswerCallback(ctx, callbackID, "Rejeitado ❌"); err != nil {
		slog.Warn("Reviewer callback answer failed", "error", err)
	}
	slog.Info("Reviewer proof rejected", "userID", userID)
}

// PendingCount reports proofs awaiting a verdict.
func (r *Reviewer) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}
