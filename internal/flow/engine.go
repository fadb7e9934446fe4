// Package flow implements the conversational funnel: the per-user state
// machine that reacts to /start commands, text replies, and call-ended
// notifications, and the timed content sequences each transition launches.
package flow

import (
	"context"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/media"
	"github.com/AtividadeNgk/MaryCall/internal/messaging"
	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/ratelimit"
	"github.com/AtividadeNgk/MaryCall/internal/store"
	"github.com/AtividadeNgk/MaryCall/internal/tracking"
)

// ProofProcessingDelay is how long after the proof-request voice note a reply
// can be treated as an actual proof acknowledgement. Earlier replies are
// assumed to be reactions to the pix details still being typed out.
const ProofProcessingDelay = 5 * time.Minute

// rateLimitedReply is sent when a /start is rejected by the rate limiter.
const rateLimitedReply = "⏰ Aguarde alguns minutos antes de reiniciar a conversa!"

// EngineConfig wires the engine's collaborators.
type EngineConfig struct {
	Store        store.Store
	Limiter      *ratelimit.Limiter
	Messaging    messaging.Service
	Assets       *media.Assets
	Followups    *followup.Manager
	Tracker      *tracking.Tracker
	Clock        clockwork.Clock
	Timing       Timing
	CallLinkBase string
	StateTTL     time.Duration
}

// Engine drives the funnel. It owns the session registry and launches the
// timed content sequences as goroutines bound to each session's context.
type Engine struct {
	store        store.Store
	limiter      *ratelimit.Limiter
	svc          messaging.Service
	assets       *media.Assets
	followups    *followup.Manager
	tracker      *tracking.Tracker
	clock        clockwork.Clock
	sessions     *Registry
	timing       Timing
	callLinkBase string
	stateTTL     time.Duration
}

// NewEngine creates an Engine from its wired collaborators.
func NewEngine(cfg EngineConfig) *Engine {
	e := &Engine{
		store:        cfg.Store,
		limiter:      cfg.Limiter,
		svc:          cfg.Messaging,
		assets:       cfg.Assets,
		followups:    cfg.Followups,
		tracker:      cfg.Tracker,
		clock:        cfg.Clock,
		sessions:     NewRegistry(cfg.Clock),
		timing:       cfg.Timing,
		callLinkBase: cfg.CallLinkBase,
		stateTTL:     cfg.StateTTL,
	}
	slog.Debug("Engine created", "stateTTL", e.stateTTL, "callLinkBase", e.callLinkBase)
	return e
}

// Sessions exposes the registry for the scheduler's idle sweep.
func (e *Engine) Sessions() *Registry { return e.sessions }

// OnStart handles a /start command: it supersedes any previous session,
// cancels the user's follow-up campaigns, and launches the initial content
// sequence. Rate-limited starts get a polite refusal and change nothing.
func (e *Engine) OnStart(ctx context.Context, userID, chatID int64) {
	e.tracker.Track(userID, "start_command")

	if !e.limiter.Allow(ctx, ratelimit.ActionStart, userID) {
		slog.Warn("Engine start rejected by rate limit", "userID", userID)
		if err := e.svc.SendText(ctx, chatID, rateLimitedReply); err != nil {
			slog.Error("Engine failed to send rate-limit reply", "error", err, "userID", userID)
		}
		return
	}

	sess := e.sessions.Reset(userID, chatID)
	e.followups.CancelAll(userID)
	e.setState(ctx, userID, models.StateSendingInitialContent)

	slog.Info("Engine starting initial sequence", "userID", userID, "token", sess.Token())
	go e.runInitialSequence(sess)
}

// OnText handles a plain text message. msgTime is the client-side timestamp
// of the message; replies dated before the relevant reference timestamp are
// stale echoes from a previous prompt and are dropped.
func (e *Engine) OnText(ctx context.Context, userID, chatID int64, text string, msgTime time.Time) {
	e.tracker.Track(userID, "message")

	if !e.limiter.Allow(ctx, ratelimit.ActionMessages, userID) {
		return
	}

	state, err := e.store.GetUserState(ctx, userID)
	if err != nil {
		slog.Error("Engine state lookup failed", "error", err, "userID", userID)
		return
	}

	sess := e.sessions.GetOrCreate(userID, chatID)
	sess.Touch(e.clock.Now())

	slog.Debug("Engine handling text", "userID", userID, "state", state, "msgTime", msgTime)

	switch state {
	case models.StateCanReceiveFirst:
		e.onFirstResponse(ctx, sess, msgTime)
	case models.StateAwaitingCallAnswer:
		e.onCallAnswer(ctx, sess, msgTime)
	case models.StateAwaitingPaymentResponse:
		e.onPaymentResponse(ctx, sess, msgTime)
	case models.StateAwaitingPaymentProof:
		e.onProofResponse(ctx, sess, msgTime)
	case models.StateSendingInitialContent, models.StateSendingCallContent,
		models.StateWaitingForCall, models.StateSequenceCompleted:
		slog.Debug("Engine ignoring text in passive state", "userID", userID, "state", state)
	default:
		slog.Debug("Engine ignoring text outside funnel", "userID", userID, "state", state)
	}
}

func (e *Engine) onFirstResponse(ctx context.Context, sess *Session, msgTime time.Time) {
	if e.stale(sess, RefVideo, msgTime) {
		slog.Info("Engine dropping stale first response", "userID", sess.UserID())
		return
	}
	if !sess.MarkProcessed(EdgeFirstResponse) {
		slog.Debug("Engine first response already processed", "userID", sess.UserID())
		return
	}
	e.setState(ctx, sess.UserID(), models.StateAwaitingCallAnswer)
	go e.runCallQuestionSequence(sess)
}

func (e *Engine) onCallAnswer(ctx context.Context, sess *Session, msgTime time.Time) {
	if e.stale(sess, RefQuestion, msgTime) {
		slog.Info("Engine dropping stale call answer", "userID", sess.UserID())
		return
	}
	if !sess.MarkProcessed(EdgeCallResponse) {
		slog.Debug("Engine call answer already processed", "userID", sess.UserID())
		return
	}
	e.setState(ctx, sess.UserID(), models.StateSendingCallContent)
	go e.runCallLinkSequence(sess)
}

func (e *Engine) onPaymentResponse(ctx context.Context, sess *Session, msgTime time.Time) {
	if e.stale(sess, RefFollowupArmed, msgTime) {
		slog.Info("Engine dropping stale payment response", "userID", sess.UserID())
		return
	}
	if !sess.MarkProcessed(EdgePaymentResponse) {
		slog.Debug("Engine payment response already processed", "userID", sess.UserID())
		return
	}
	e.followups.Cancel(sess.UserID(), followup.KindPayment)
	go e.runPaymentSequence(sess)
}

func (e *Engine) onProofResponse(ctx context.Context, sess *Session, msgTime time.Time) {
	if ref, ok := sess.Ref(RefPaymentAudio); ok && msgTime.Sub(ref) < ProofProcessingDelay {
		slog.Info("Engine proof reply too soon after pix details, ignoring",
			"userID", sess.UserID(), "elapsed", msgTime.Sub(ref))
		return
	}
	if !sess.MarkProcessed(EdgeProofResponse) {
		slog.Debug("Engine proof response already processed", "userID", sess.UserID())
		return
	}
	e.followups.Cancel(sess.UserID(), followup.KindProof)
	e.setState(ctx, sess.UserID(), models.StateSequenceCompleted)
	go e.runClosingSequence(sess)
}

// ResumeAfterCall handles the call-ended webhook: it launches the post-call
// sequence that leads into the payment question. The caller has already
// applied webhook rate limiting.
func (e *Engine) ResumeAfterCall(ctx context.Context, userID int64, duration string) {
	e.tracker.Track(userID, "call_ended")
	sess := e.sessions.GetOrCreate(userID, userID)
	sess.Touch(e.clock.Now())

	slog.Info("Engine resuming after call", "userID", userID, "duration", duration)
	go e.runPostCallSequence(sess)
}

// TriggerPaymentFollowup arms the payment campaign directly, skipping the
// content sequence. Used by the manual-trigger admin endpoint.
func (e *Engine) TriggerPaymentFollowup(ctx context.Context, userID int64) {
	sess := e.sessions.GetOrCreate(userID, userID)
	e.armPaymentFollowup(ctx, sess)
}

// armPaymentFollowup records the follow-up reference, moves the user to the
// payment-response state, and arms the payment campaign.
func (e *Engine) armPaymentFollowup(ctx context.Context, sess *Session) {
	sess.SetRef(RefFollowupArmed, e.clock.Now())
	e.setState(ctx, sess.UserID(), models.StateAwaitingPaymentResponse)
	e.followups.Arm(sess.UserID(), followup.KindPayment)
}

// stale reports whether msgTime predates the reference timestamp. A missing
// reference passes: the prompt send may still be in flight.
func (e *Engine) stale(sess *Session, key RefKey, msgTime time.Time) bool {
	ref, ok := sess.Ref(key)
	return ok && msgTime.Before(ref)
}

func (e *Engine) setState(ctx context.Context, userID int64, state string) {
	if err := e.store.SetUserState(ctx, userID, state, e.stateTTL); err != nil {
		slog.Error("Engine failed to persist state", "error", err, "userID", userID, "state", state)
		return
	}
	slog.Info("Engine state changed", "userID", userID, "state", state)
}
