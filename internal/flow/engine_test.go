package flow

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/config"
	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/media"
	"github.com/AtividadeNgk/MaryCall/internal/messaging"
	"github.com/AtividadeNgk/MaryCall/internal/models"
	"github.com/AtividadeNgk/MaryCall/internal/ratelimit"
	"github.com/AtividadeNgk/MaryCall/internal/store"
	"github.com/AtividadeNgk/MaryCall/internal/tracking"
)

const testUser int64 = 42

type fixture struct {
	engine    *Engine
	svc       *messaging.MockService
	store     *store.MemoryStore
	followups *followup.Manager
	clock     clockwork.FakeClock
}

// writeTestAssets lays out every audio and video asset the sequences load.
func writeTestAssets(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, sub := range []string{"audio", "video"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	voices := []string{
		media.VoiceGreeting, media.VoiceTease, media.VoiceApology,
		media.VoiceCallDropped, media.VoicePixDetails, media.VoicePaymentAsk,
		media.VoiceClosing,
	}
	for _, name := range voices {
		if err := os.WriteFile(filepath.Join(dir, "audio", name), []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	for _, name := range []string{media.VideoIntro, media.VideoAfterCall} {
		if err := os.WriteFile(filepath.Join(dir, "video", name), []byte("video"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func newFixture(t *testing.T, limits config.RateLimits) *fixture {
	t.Helper()
	svc := messaging.NewMockService()
	return newFixtureWith(t, limits, svc, svc)
}

// newFixtureWith lets a test wrap the mock sender to inject side effects
// mid-sequence.
func newFixtureWith(t *testing.T, limits config.RateLimits, sender messaging.Service, svc *messaging.MockService) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	st := store.NewMemoryStore(clock)
	followups := followup.NewManager(svc, st, clock, followup.WithArmDelay(0))
	t.Cleanup(followups.Stop)

	engine := NewEngine(EngineConfig{
		Store:        st,
		Limiter:      ratelimit.New(st, limits),
		Messaging:    sender,
		Assets:       media.NewAssets(writeTestAssets(t)),
		Followups:    followups,
		Tracker:      tracking.NewTracker(clock),
		Clock:        clock,
		Timing:       Timing{}, // no delays, sequences run straight through
		CallLinkBase: "https://call.test/",
		StateTTL:     time.Hour,
	})
	t.Cleanup(engine.Sessions().Close)

	return &fixture{engine: engine, svc: svc, store: st, followups: followups, clock: clock}
}

func (f *fixture) waitForState(t *testing.T, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		state, err := f.store.GetUserState(context.Background(), testUser)
		if err != nil {
			t.Fatalf("GetUserState() error = %v", err)
		}
		if state == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	state, _ := f.store.GetUserState(context.Background(), testUser)
	t.Fatalf("state = %q, want %q", state, want)
}

func (f *fixture) waitForRef(t *testing.T, key RefKey) time.Time {
	t.Helper()
	sess := f.engine.Sessions().GetOrCreate(testUser, testUser)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ref, ok := sess.Ref(key); ok {
			return ref
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("reference %q never recorded", key)
	return time.Time{}
}

func (f *fixture) state(t *testing.T) string {
	t.Helper()
	state, err := f.store.GetUserState(context.Background(), testUser)
	if err != nil {
		t.Fatalf("GetUserState() error = %v", err)
	}
	return state
}

func TestStartRunsInitialSequence(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)
	f.waitForState(t, models.StateCanReceiveFirst)

	if n := f.svc.CountKind(testUser, messaging.SentVoice); n != 1 {
		t.Errorf("voice sends = %d, want 1", n)
	}
	if n := f.svc.CountKind(testUser, messaging.SentVideo); n != 1 {
		t.Errorf("video sends = %d, want 1", n)
	}
	if _, ok := f.engine.Sessions().Get(testUser).Ref(RefVideo); !ok {
		t.Error("intro video reference not recorded")
	}
}

func TestStartIsRateLimited(t *testing.T) {
	limits := config.DefaultRateLimits()
	limits.Start = config.RateLimitPolicy{Limit: 1, Window: 5 * time.Minute}
	f := newFixture(t, limits)
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)
	f.waitForState(t, models.StateCanReceiveFirst)
	firstToken := f.engine.Sessions().Get(testUser).Token()

	f.engine.OnStart(ctx, testUser, testUser)

	texts := f.svc.TextsTo(testUser)
	if len(texts) == 0 || texts[len(texts)-1] != rateLimitedReply {
		t.Errorf("last text = %v, want rate-limit reply", texts)
	}
	if f.engine.Sessions().Get(testUser).Token() != firstToken {
		t.Error("rate-limited start still superseded the session")
	}
}

func TestStartSupersedesSession(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)
	f.waitForState(t, models.StateCanReceiveFirst)
	old := f.engine.Sessions().Get(testUser)

	f.engine.OnStart(ctx, testUser, testUser)

	if old.Context().Err() == nil {
		t.Error("old session context not cancelled by restart")
	}
	if f.engine.Sessions().Get(testUser) == old {
		t.Error("restart kept the old session")
	}
}

func TestRestartMidSequenceSendsNothingFromOldRun(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	// Give the initial sequence a real first delay so the restart lands
	// while the first run is still parked at its opening checkpoint.
	f.engine.timing = Timing{InitialDelay: 3 * time.Second}

	f.engine.OnStart(ctx, testUser, testUser)
	f.engine.OnStart(ctx, testUser, testUser)

	// Walk the clock forward until the surviving run finishes. The timer of
	// the superseded run fires along the way; it must abort silently.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f.state(t) == models.StateCanReceiveFirst {
			break
		}
		f.clock.Advance(500 * time.Millisecond)
		time.Sleep(2 * time.Millisecond)
	}
	if got := f.state(t); got != models.StateCanReceiveFirst {
		t.Fatalf("state = %q, want %q", got, models.StateCanReceiveFirst)
	}

	if n := f.svc.CountKind(testUser, messaging.SentVoice); n != 1 {
		t.Errorf("voice sends = %d, want 1 (old run must stay silent)", n)
	}
	if n := f.svc.CountKind(testUser, messaging.SentVideo); n != 1 {
		t.Errorf("video sends = %d, want 1 (old run must stay silent)", n)
	}
}

// supersedingService restarts the user's session from inside a video send,
// landing the supersession between the sequence's last send and its state
// write.
type supersedingService struct {
	*messaging.MockService
	reset func()
	once  sync.Once
}

func (s *supersedingService) SendVideo(ctx context.Context, userID int64, video []byte, meta models.VideoMetadata) error {
	err := s.MockService.SendVideo(ctx, userID, video, meta)
	s.once.Do(s.reset)
	return err
}

func TestSupersededRunSkipsTerminalStateWrite(t *testing.T) {
	mock := messaging.NewMockService()
	wrapper := &supersedingService{MockService: mock}
	f := newFixtureWith(t, config.DefaultRateLimits(), wrapper, mock)
	wrapper.reset = func() { f.engine.Sessions().Reset(testUser, testUser) }
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)

	// Wait for the intro video, then give the aborting goroutine a moment.
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && f.svc.CountKind(testUser, messaging.SentVideo) == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if f.svc.CountKind(testUser, messaging.SentVideo) != 1 {
		t.Fatal("intro video never sent")
	}
	time.Sleep(50 * time.Millisecond)

	if got := f.state(t); got != models.StateSendingInitialContent {
		t.Errorf("state = %q, want %q (old run must not write past supersession)", got, models.StateSendingInitialContent)
	}
	if _, ok := f.engine.Sessions().GetOrCreate(testUser, testUser).Ref(RefVideo); ok {
		t.Error("fresh session carries the old run's video reference")
	}
}

func TestFunnelHappyPath(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)
	f.waitForState(t, models.StateCanReceiveFirst)
	videoRef := f.waitForRef(t, RefVideo)

	// First reply opens the call question.
	f.engine.OnText(ctx, testUser, testUser, "oi", videoRef.Add(time.Second))
	f.waitForState(t, models.StateAwaitingCallAnswer)
	questionRef := f.waitForRef(t, RefQuestion)

	texts := f.svc.TextsTo(testUser)
	if texts[len(texts)-1] != textCallQuestion {
		t.Fatalf("last text = %q, want call question", texts[len(texts)-1])
	}

	// Agreeing to the call produces the personalized link.
	f.engine.OnText(ctx, testUser, testUser, "pode sim", questionRef.Add(time.Second))
	f.waitForState(t, models.StateWaitingForCall)

	texts = f.svc.TextsTo(testUser)
	link := texts[len(texts)-1]
	if !strings.HasPrefix(link, "https://call.test/") || !strings.Contains(link, "u=42") {
		t.Fatalf("call link = %q, want personalized link", link)
	}

	// The call drops: post-call content plays and the payment campaign arms.
	f.engine.ResumeAfterCall(ctx, testUser, "65")
	f.waitForState(t, models.StateAwaitingPaymentResponse)
	armedRef := f.waitForRef(t, RefFollowupArmed)
	if !f.followups.IsActive(testUser, followup.KindPayment) {
		t.Fatal("payment campaign not armed after call")
	}

	// Agreeing to pay sends the pix details and swaps the campaigns.
	f.engine.OnText(ctx, testUser, testUser, "pode sim amor", armedRef.Add(time.Second))
	if f.followups.IsActive(testUser, followup.KindPayment) {
		t.Error("payment campaign still active after payment response")
	}
	f.waitForState(t, models.StateAwaitingPaymentProof)
	audioRef := f.waitForRef(t, RefPaymentAudio)
	if !f.followups.IsActive(testUser, followup.KindProof) {
		t.Fatal("proof campaign not armed after pix details")
	}

	texts = f.svc.TextsTo(testUser)
	foundPix := false
	for _, text := range texts {
		if text == textPixKey {
			foundPix = true
		}
	}
	if !foundPix {
		t.Error("pix key never sent")
	}

	// A reply right after the pix details is treated as chatter, not proof.
	f.engine.OnText(ctx, testUser, testUser, "ja fiz", audioRef.Add(time.Minute))
	if got := f.state(t); got != models.StateAwaitingPaymentProof {
		t.Fatalf("state after early proof reply = %q, want unchanged", got)
	}

	// A reply past the processing delay completes the funnel.
	f.engine.OnText(ctx, testUser, testUser, "mandei o comprovante", audioRef.Add(ProofProcessingDelay+time.Minute))
	f.waitForState(t, models.StateSequenceCompleted)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		texts = f.svc.TextsTo(testUser)
		if texts[len(texts)-1] == textClosingWaiting {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if texts[len(texts)-1] != textClosingWaiting {
		t.Errorf("last text = %q, want closing message", texts[len(texts)-1])
	}
}

func TestStaleReplyIsIgnored(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)
	f.waitForState(t, models.StateCanReceiveFirst)
	videoRef := f.waitForRef(t, RefVideo)

	// Message dated before the intro video landed: a leftover from before.
	f.engine.OnText(ctx, testUser, testUser, "oi", videoRef.Add(-time.Minute))

	if got := f.state(t); got != models.StateCanReceiveFirst {
		t.Errorf("state after stale reply = %q, want unchanged", got)
	}
	if f.engine.Sessions().Get(testUser).Processed(EdgeFirstResponse) {
		t.Error("stale reply consumed the first-response edge")
	}
}

func TestDuplicateReplyFiresEdgeOnce(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	f.engine.OnStart(ctx, testUser, testUser)
	f.waitForState(t, models.StateCanReceiveFirst)
	videoRef := f.waitForRef(t, RefVideo)

	f.engine.OnText(ctx, testUser, testUser, "oi", videoRef.Add(time.Second))
	f.waitForRef(t, RefQuestion)

	// Even if the persisted state regresses (expiry, backend hiccup), the
	// consumed edge must not fire a second question sequence.
	if err := f.store.SetUserState(ctx, testUser, models.StateCanReceiveFirst, time.Hour); err != nil {
		t.Fatalf("SetUserState() error = %v", err)
	}
	f.engine.OnText(ctx, testUser, testUser, "oi de novo", videoRef.Add(2*time.Second))

	if got := f.state(t); got != models.StateCanReceiveFirst {
		t.Errorf("state after replayed edge = %q, want unchanged", got)
	}
	questions := 0
	for _, text := range f.svc.TextsTo(testUser) {
		if text == textCallQuestion {
			questions++
		}
	}
	if questions != 1 {
		t.Errorf("call question sent %d times, want 1", questions)
	}
}

func TestTextsInPassiveStatesAreIgnored(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	for _, state := range []string{
		models.StateWaitingForCall,
		models.StateSequenceCompleted,
	} {
		if err := f.store.SetUserState(ctx, testUser, state, time.Hour); err != nil {
			t.Fatalf("SetUserState() error = %v", err)
		}
		f.engine.OnText(ctx, testUser, testUser, "oi", f.clock.Now())
		if got := f.state(t); got != state {
			t.Errorf("state after text in %q = %q, want unchanged", state, got)
		}
	}
	if n := f.svc.CountKind(testUser, messaging.SentText); n != 0 {
		t.Errorf("texts sent from passive states = %d, want 0", n)
	}
}

func TestTriggerPaymentFollowup(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	f.engine.TriggerPaymentFollowup(ctx, testUser)

	if got := f.state(t); got != models.StateAwaitingPaymentResponse {
		t.Errorf("state = %q, want %q", got, models.StateAwaitingPaymentResponse)
	}
	if !f.followups.IsActive(testUser, followup.KindPayment) {
		t.Error("payment campaign not armed by manual trigger")
	}
}

func TestSendCallLinkNow(t *testing.T) {
	f := newFixture(t, config.DefaultRateLimits())
	ctx := context.Background()

	if err := f.engine.SendCallLinkNow(ctx, testUser); err != nil {
		t.Fatalf("SendCallLinkNow() error = %v", err)
	}

	texts := f.svc.TextsTo(testUser)
	if len(texts) != 1 || !strings.Contains(texts[0], "u=42") {
		t.Errorf("texts = %v, want one personalized link", texts)
	}
	if got := f.state(t); got != models.StateWaitingForCall {
		t.Errorf("state = %q, want %q", got, models.StateWaitingForCall)
	}
}
