package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/media"
	"github.com/AtividadeNgk/MaryCall/internal/models"
)

// Scripted message texts.
const (
	textCallQuestion    = "amor já posso te ligar?"
	textPaymentQuestion = "pode ser meu bemm?"
	textPixExplainer    = "é chave pix e-mail ta amor? o banco é no meu nome mesmo 🥰"
	textPixKey          = "pixdamary22@gmail.com"
	textClosingTease    = "pra gente terminar a nossa chamadinha vida 🤤"
	textClosingWaiting  = "tô só te esperando amor"
)

// runInitialSequence delivers the greeting voice note and the intro video,
// then opens the funnel for the user's first reply.
func (e *Engine) runInitialSequence(sess *Session) {
	defer e.recoverSequence(sess, "initial")
	ctx := sess.Context()

	if !e.wait(ctx, e.timing.InitialDelay) {
		return
	}
	if err := e.sendVoiceStep(ctx, sess, media.VoiceGreeting); err != nil {
		slog.Error("Engine initial sequence aborted", "error", err, "userID", sess.UserID())
		return
	}

	if !e.wait(ctx, e.timing.VideoDelay) {
		return
	}
	if err := e.sendVideoStep(ctx, sess, media.VideoIntro); err != nil {
		slog.Error("Engine initial sequence aborted at video", "error", err, "userID", sess.UserID())
		return
	}

	// A restart between the last send and this write must not let the old
	// generation clobber the fresh session's state.
	if ctx.Err() != nil {
		return
	}
	sess.SetRef(RefVideo, e.clock.Now())
	e.setState(ctx, sess.UserID(), models.StateCanReceiveFirst)
	slog.Info("Engine initial sequence completed", "userID", sess.UserID())
}

// runCallQuestionSequence answers the user's first message with a voice note
// and then asks whether the bot may call.
func (e *Engine) runCallQuestionSequence(sess *Session) {
	defer e.recoverSequence(sess, "call_question")
	ctx := sess.Context()

	if !e.wait(ctx, e.timing.TeaseDelay) {
		return
	}
	if err := e.sendVoiceStep(ctx, sess, media.VoiceTease); err != nil {
		slog.Error("Engine call question sequence aborted", "error", err, "userID", sess.UserID())
		return
	}

	if !e.wait(ctx, e.timing.QuestionDelay) {
		return
	}
	if err := e.sendTextStep(ctx, sess, textCallQuestion); err != nil {
		slog.Error("Engine call question send failed", "error", err, "userID", sess.UserID())
		return
	}

	if ctx.Err() != nil {
		return
	}
	sess.SetRef(RefQuestion, e.clock.Now())
	slog.Info("Engine call question sent", "userID", sess.UserID())
}

// runCallLinkSequence apologizes by voice and sends the personalized call
// link. A delivery failure resets the user so they can /start over.
func (e *Engine) runCallLinkSequence(sess *Session) {
	defer e.recoverSequence(sess, "call_link")
	ctx := sess.Context()

	if !e.wait(ctx, e.timing.ApologyDelay) {
		return
	}
	if err := e.sendVoiceStep(ctx, sess, media.VoiceApology); err != nil {
		slog.Error("Engine call link sequence aborted", "error", err, "userID", sess.UserID())
		e.setState(ctx, sess.UserID(), models.StateNormal)
		return
	}

	if !e.wait(ctx, e.timing.LinkDelay) {
		return
	}
	link := fmt.Sprintf("%s?t=%d&u=%d", e.callLinkBase, e.clock.Now().Unix(), sess.UserID())
	if err := e.sendTextStep(ctx, sess, link); err != nil {
		slog.Error("Engine call link send failed", "error", err, "userID", sess.UserID())
		e.setState(ctx, sess.UserID(), models.StateNormal)
		return
	}

	if ctx.Err() != nil {
		return
	}
	e.setState(ctx, sess.UserID(), models.StateWaitingForCall)
	slog.Info("Engine call link sent", "userID", sess.UserID())
}

// runPostCallSequence plays after the video call drops: a flustered voice
// note, a video, the pix voice note, and finally the payment question that
// arms the payment follow-up campaign.
func (e *Engine) runPostCallSequence(sess *Session) {
	defer e.recoverSequence(sess, "post_call")
	ctx := sess.Context()

	if err := e.sendVoiceStep(ctx, sess, media.VoiceCallDropped); err != nil {
		slog.Error("Engine post-call sequence aborted", "error", err, "userID", sess.UserID())
		return
	}

	if !e.wait(ctx, e.timing.PostCallVideoDelay) {
		return
	}
	if err := e.sendVideoStep(ctx, sess, media.VideoAfterCall); err != nil {
		slog.Error("Engine post-call sequence aborted at video", "error", err, "userID", sess.UserID())
		return
	}

	if !e.wait(ctx, e.timing.PostCallPixDelay) {
		return
	}
	if err := e.sendVoiceStep(ctx, sess, media.VoicePixDetails); err != nil {
		slog.Error("Engine post-call sequence aborted at pix audio", "error", err, "userID", sess.UserID())
		return
	}

	if !e.wait(ctx, e.timing.PostCallQuestionDelay) {
		return
	}
	if err := e.sendTextStep(ctx, sess, textPaymentQuestion); err != nil {
		slog.Error("Engine payment question send failed", "error", err, "userID", sess.UserID())
		return
	}

	if ctx.Err() != nil {
		return
	}
	e.armPaymentFollowup(ctx, sess)
	slog.Info("Engine post-call sequence completed", "userID", sess.UserID())
}

// runPaymentSequence sends the pix details after the user agrees to pay,
// then moves them to the proof-waiting state and arms the proof campaign.
// A missing voice asset is skipped so the funnel can still advance.
func (e *Engine) runPaymentSequence(sess *Session) {
	defer e.recoverSequence(sess, "payment")
	ctx := sess.Context()

	if err := e.sendTextStep(ctx, sess, textPixExplainer); err != nil {
		slog.Error("Engine payment sequence aborted", "error", err, "userID", sess.UserID())
		return
	}
	if !e.wait(ctx, e.timing.TextPause) {
		return
	}
	if err := e.sendTextStep(ctx, sess, textPixKey); err != nil {
		slog.Error("Engine pix key send failed", "error", err, "userID", sess.UserID())
		return
	}
	if !e.wait(ctx, e.timing.TextPause) {
		return
	}

	if err := e.sendVoiceStep(ctx, sess, media.VoicePaymentAsk); err != nil {
		if !errors.Is(err, media.ErrAssetMissing) {
			slog.Error("Engine proof-request audio send failed", "error", err, "userID", sess.UserID())
			return
		}
		slog.Warn("Engine proof-request audio missing, continuing", "userID", sess.UserID())
	}

	if ctx.Err() != nil {
		return
	}
	sess.SetRef(RefPaymentAudio, e.clock.Now())
	e.setState(ctx, sess.UserID(), models.StateAwaitingPaymentProof)
	e.followups.Arm(sess.UserID(), followup.KindProof)
	slog.Info("Engine payment sequence completed", "userID", sess.UserID())
}

// runClosingSequence thanks the user after the proof acknowledgement. A
// missing closing voice note is skipped.
func (e *Engine) runClosingSequence(sess *Session) {
	defer e.recoverSequence(sess, "closing")
	ctx := sess.Context()

	if err := e.sendVoiceStep(ctx, sess, media.VoiceClosing); err != nil {
		if !errors.Is(err, media.ErrAssetMissing) {
			slog.Error("Engine closing sequence aborted", "error", err, "userID", sess.UserID())
			return
		}
		slog.Warn("Engine closing audio missing, continuing", "userID", sess.UserID())
	}

	if !e.wait(ctx, e.timing.TextPause) {
		return
	}
	if err := e.sendTextStep(ctx, sess, textClosingTease); err != nil {
		slog.Error("Engine closing text send failed", "error", err, "userID", sess.UserID())
		return
	}
	if !e.wait(ctx, e.timing.TextPause) {
		return
	}
	if err := e.sendTextStep(ctx, sess, textClosingWaiting); err != nil {
		slog.Error("Engine closing text send failed", "error", err, "userID", sess.UserID())
		return
	}
	slog.Info("Engine closing sequence completed", "userID", sess.UserID())
}

// SendCallLinkNow sends a fresh call link immediately, outside the scripted
// delays. Used when an admin approves a payment proof.
func (e *Engine) SendCallLinkNow(ctx context.Context, userID int64) error {
	sess := e.sessions.GetOrCreate(userID, userID)
	link := fmt.Sprintf("%s?t=%d&u=%d", e.callLinkBase, e.clock.Now().Unix(), userID)
	if err := e.svc.SendText(ctx, sess.ChatID(), link); err != nil {
		return fmt.Errorf("send call link: %w", err)
	}
	e.setState(ctx, userID, models.StateWaitingForCall)
	return nil
}

// wait sleeps for d, returning false when the session is superseded first.
// A non-positive delay only checks for cancellation.
func (e *Engine) wait(ctx context.Context, d time.Duration) bool {
	if ctx.Err() != nil {
		return false
	}
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-e.clock.After(d):
		return ctx.Err() == nil
	}
}

// sendVoiceStep shows the recording indicator, then loads and sends the
// voice asset.
func (e *Engine) sendVoiceStep(ctx context.Context, sess *Session, name string) error {
	if err := e.svc.SendChatAction(ctx, sess.ChatID(), models.ChatActionRecordVoice); err != nil {
		slog.Warn("Engine chat action failed", "error", err, "userID", sess.UserID())
	}
	if !e.wait(ctx, e.timing.ActionPause) {
		return ctx.Err()
	}
	audio, err := e.assets.Voice(name)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e.svc.SendVoice(ctx, sess.ChatID(), audio, name)
}

// sendVideoStep shows the uploading indicator, then loads and sends the
// video asset.
func (e *Engine) sendVideoStep(ctx context.Context, sess *Session, name string) error {
	if err := e.svc.SendChatAction(ctx, sess.ChatID(), models.ChatActionUploadVideo); err != nil {
		slog.Warn("Engine chat action failed", "error", err, "userID", sess.UserID())
	}
	if !e.wait(ctx, e.timing.ActionPause) {
		return ctx.Err()
	}
	video, err := e.assets.Video(name)
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e.svc.SendVideo(ctx, sess.ChatID(), video, models.VideoMetadata{SupportsStreaming: true})
}

// sendTextStep shows the typing indicator, then sends the text.
func (e *Engine) sendTextStep(ctx context.Context, sess *Session, text string) error {
	if err := e.svc.SendChatAction(ctx, sess.ChatID(), models.ChatActionTyping); err != nil {
		slog.Warn("Engine chat action failed", "error", err, "userID", sess.UserID())
	}
	if !e.wait(ctx, e.timing.ActionPause) {
		return ctx.Err()
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return e.svc.SendText(ctx, sess.ChatID(), text)
}

func (e *Engine) recoverSequence(sess *Session, name string) {
	if r := recover(); r != nil {
		slog.Error("Engine sequence recovered from panic", "panic", r, "sequence", name, "userID", sess.UserID())
	}
}
