package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	appcfg "github.com/botarena/arena-go/internal/config"
	"github.com/botarena/arena-go/internal/botclient"
	"github.com/botarena/arena-go/internal/domain"
	"github.com/botarena/arena-go/internal/executor"
	"github.com/botarena/arena-go/internal/game"
	"github.com/botarena/arena-go/internal/game/chess"
	"github.com/botarena/arena-go/internal/game/connectfour"
	"github.com/botarena/arena-go/internal/leaderboard"
	"github.com/botarena/arena-go/internal/obslog"
	"github.com/botarena/arena-go/internal/orchestrator"
	"github.com/botarena/arena-go/internal/rating"
	"github.com/botarena/arena-go/internal/server"
	"github.com/botarena/arena-go/internal/store"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	repo, closeRepo, err := buildRepository(cfg)
	if err != nil {
		obslog.L().Fatal("repository init failed", zap.Error(err))
	}
	defer closeRepo()

	var board *leaderboard.Board
	if cfg.RedisURL != "" {
		board, err = leaderboard.NewBoard(cfg.RedisURL)
		if err != nil {
			obslog.L().Fatal("leaderboard init failed", zap.Error(err))
		}
		defer board.Close()
	} else {
		obslog.L().Warn("no REDIS_URL configured, leaderboard served from primary store")
	}

	registry := game.NewRegistry()
	registry.Register(domain.GameChess, chess.NewEngine())
	registry.Register(domain.GameConnectFour, connectfour.NewEngine())

	client := botclient.NewClient(
		botclient.WithConnectTimeout(cfg.BotConnectTimeout),
		botclient.WithReadTimeout(cfg.BotReadTimeout),
	)
	exec := executor.New(registry, repo, client)

	var refresher rating.Refresher
	if board != nil {
		refresher = board
	}
	ratings := rating.NewService(repo, refresher)

	orc := orchestrator.New(repo, registry, exec, ratings,
		orchestrator.WithWorkers(cfg.MaxConcurrentMatches),
		orchestrator.WithQueueSize(cfg.MatchQueueSize),
		orchestrator.WithMoveCeiling(cfg.MoveCeiling),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	orc.Start(ctx)

	srv := server.New(repo, orc, registry, board)
	go func() {
		obslog.L().Info("arena listening", zap.String("addr", cfg.ListenAddr))
		if err := srv.Listen(cfg.ListenAddr); err != nil {
			obslog.L().Error("server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	obslog.L().Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		obslog.L().Warn("server shutdown error", zap.Error(err))
	}
	orc.Shutdown()
}

func buildRepository(cfg *appcfg.AppConfig) (store.Repository, func(), error) {
	if cfg.DatabaseURL != "" {
		repo, err := store.NewPostgresRepository(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if c, ok := repo.(interface{ Close() error }); ok {
				_ = c.Close()
			}
		}
		return repo, closer, nil
	}
	obslog.L().Warn("no DATABASE_URL configured, using in-memory store")
	return store.NewMemoryRepository(), func() {}, nil
}
