// MaryCall is a Telegram conversational funnel bot: it walks users through a
// scripted media sequence, hands off to an external video-call page, and
// follows up on payment over timed nudge campaigns.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/AtividadeNgk/MaryCall/internal/api"
	"github.com/AtividadeNgk/MaryCall/internal/bot"
	"github.com/AtividadeNgk/MaryCall/internal/config"
	"github.com/AtividadeNgk/MaryCall/internal/flow"
	"github.com/AtividadeNgk/MaryCall/internal/followup"
	"github.com/AtividadeNgk/MaryCall/internal/media"
	"github.com/AtividadeNgk/MaryCall/internal/messaging"
	"github.com/AtividadeNgk/MaryCall/internal/proof"
	"github.com/AtividadeNgk/MaryCall/internal/ratelimit"
	"github.com/AtividadeNgk/MaryCall/internal/scheduler"
	"github.com/AtividadeNgk/MaryCall/internal/store"
	"github.com/AtividadeNgk/MaryCall/internal/telegram"
	"github.com/AtividadeNgk/MaryCall/internal/tracking"
)

// Maintenance schedules.
const (
	rateCleanupSpec   = "*/10 * * * *"
	onlineCleanupSpec = "*/5 * * * *"
	sessionSweepSpec  = "*/30 * * * *"
)

func initializeLogger(level string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using environment as-is")
	}

	cfg := config.Load()
	initializeLogger(cfg.LogLevel)

	if cfg.BotToken == "" {
		slog.Error("BOT_TOKEN is required")
		os.Exit(1)
	}

	clock := clockwork.NewRealClock()

	// Storage: Redis primary with in-process fallback so a Redis outage
	// degrades instead of taking the bot down.
	memStore := store.NewMemoryStore(clock)
	var st store.Store = memStore
	redisStore, err := store.NewRedisStore(cfg.RedisURL, clock)
	if err != nil {
		slog.Warn("Redis unavailable, running on in-process store only", "error", err)
	} else {
		st = store.NewFailoverStore(redisStore, memStore)
	}

	tgClient, err := telegram.NewClient(cfg.BotToken)
	if err != nil {
		slog.Error("failed to connect to Telegram", "error", err)
		os.Exit(1)
	}

	svc := messaging.NewTelegramService(tgClient)
	limiter := ratelimit.New(st, cfg.RateLimits)
	tracker := tracking.NewTracker(clock)
	followups := followup.NewManager(svc, st, clock)

	engine := flow.NewEngine(flow.EngineConfig{
		Store:        st,
		Limiter:      limiter,
		Messaging:    svc,
		Assets:       media.NewAssets(cfg.AssetsDir),
		Followups:    followups,
		Tracker:      tracker,
		Clock:        clock,
		Timing:       flow.DefaultTiming(),
		CallLinkBase: cfg.CallLinkBase,
		StateTTL:     cfg.StateTTL,
	})

	reviewer := proof.NewReviewer(tgClient, svc, engine, followups, cfg.AdminChannelID, clock)
	dispatcher := bot.New(tgClient, engine, reviewer, st)
	server := api.NewServer(cfg.APIAddr, engine, limiter, st, tracker, followups, reviewer, clock)

	sched := scheduler.NewScheduler()
	registerMaintenance(sched, st, tracker, engine, cfg)
	sched.Start()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := server.Start(); err != nil {
			slog.Error("API server failed", "error", err)
			stop()
		}
	}()
	go dispatcher.Run(ctx)

	slog.Info("MaryCall started", "api_addr", cfg.APIAddr)
	<-ctx.Done()

	slog.Info("shutting down")
	sched.Stop()
	followups.Stop()
	engine.Sessions().Close()
	if err := server.Shutdown(context.Background()); err != nil {
		slog.Error("API shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}

func registerMaintenance(sched *scheduler.Scheduler, st store.Store, tracker *tracking.Tracker, engine *flow.Engine, cfg config.Config) {
	must := func(err error) {
		if err != nil {
			slog.Error("failed to register maintenance job", "error", err)
			os.Exit(1)
		}
	}

	must(sched.AddJob(rateCleanupSpec, "rate-window-cleanup", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := st.CleanupRateWindows(ctx); err != nil {
			slog.Warn("rate window cleanup failed", "error", err)
		}
	}))
	must(sched.AddJob(onlineCleanupSpec, "online-user-cleanup", tracker.CleanupOnline))
	must(sched.AddJob(sessionSweepSpec, "idle-session-sweep", func() {
		engine.Sessions().Sweep(cfg.SessionIdleTimeout)
	}))
}
