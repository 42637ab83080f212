package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/letsssgooo/quizResults/internal/api"
	"github.com/letsssgooo/quizResults/internal/auth"
	"github.com/letsssgooo/quizResults/internal/cache"
	"github.com/letsssgooo/quizResults/internal/config"
	"github.com/letsssgooo/quizResults/internal/domain/models"
	"github.com/letsssgooo/quizResults/internal/lib/errsink"
	"github.com/letsssgooo/quizResults/internal/lib/slogcustom"
	"github.com/letsssgooo/quizResults/internal/metrics"
	"github.com/letsssgooo/quizResults/internal/submission"
	"github.com/spf13/pflag"
	"github.com/tilinna/clock"
	"golang.org/x/sync/errgroup"
)

// Ключи представлений в кэше
const (
	keyLeaderboard = "leaderboard"
	keyTopUsers    = "topusers"
)

// Ротация журнала ошибок
const (
	errorLogMaxSizeMB  = 10
	errorLogMaxBackups = 3
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.LookupEnv)
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	log, err := setupLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(log)

	log.Info("starting quiz results service...",
		slog.String("listen", cfg.ListenAddr),
		slog.String("storage", cfg.Storage),
	)

	if err = run(cfg, log); err != nil {
		log.Error("quiz results service failed", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("quiz results service stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	sink := errsink.New(errsink.Options{
		Path:       cfg.ErrorLog,
		MaxSizeMB:  errorLogMaxSizeMB,
		MaxBackups: errorLogMaxBackups,
		Observer:   m,
	})
	defer func() {
		if err := sink.Close(); err != nil {
			log.Warn("failed to close error log", slog.Any("error", err))
		}
	}()

	b, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	verifier, err := auth.NewVerifier(auth.Algorithm(cfg.Signature.Algorithm), cfg.Signature.Secrets...)
	if err != nil {
		return err
	}

	clk := clock.Realtime()

	gate := submission.NewGate(b.repo, b.locker, verifier, clk, submission.Config{
		LockTTL:        cfg.LockTTL,
		ThrottleWindow: cfg.ThrottleWindow,
	}, log.With(slog.String("component", "gate")))

	cacheLog := log.With(slog.String("component", "cache"))

	leaderboard := cache.NewView(keyLeaderboard,
		cache.Policy{TTL: cfg.LeaderboardTTL, Mode: cache.ModeLazy, Miss: cache.MissRecompute},
		b.kv,
		func(ctx context.Context) ([]models.LeaderboardEntry, error) {
			return b.repo.Leaderboard(ctx, cfg.TopLimit)
		},
		cache.WithLogger(cacheLog),
		cache.WithObserver(m),
	)

	topUsers := cache.NewView(keyTopUsers,
		cache.Policy{TTL: cfg.TopUsersTTL, Mode: cache.ModePush, Miss: cache.MissUnavailable},
		b.kv,
		func(ctx context.Context) ([]models.TopUser, error) {
			return b.repo.TopUsers(ctx, cfg.TopLimit)
		},
		cache.WithLogger(cacheLog),
		cache.WithObserver(m),
	)

	refresher := cache.NewRefresher(cfg.RefreshPeriod, clk, cacheLog, leaderboard, topUsers)

	handler := api.NewHandler(api.Deps{
		Gate:        gate,
		Results:     b.repo,
		Leaderboard: leaderboard,
		TopUsers:    topUsers,
		Errors:      sink,
		Metrics:     m,
		Ready:       b.ready,
		Log:         log,
	})

	server := api.NewServer(cfg.ListenAddr, api.NewRouter(handler, api.RouterOptions{
		CORSOrigins:    cfg.CORSOrigins,
		MetricsHandler: m.Handler(),
	}), log)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return refresher.Run(ctx)
	})
	g.Go(func() error {
		return server.Run(ctx)
	})

	return g.Wait()
}

func setupLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", cfg.LogLevel, err)
	}

	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})), nil
	}

	return slog.New(slogcustom.NewCustomHandler(os.Stdout, level)), nil
}
