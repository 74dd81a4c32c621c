package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
	"go.uber.org/zap"

	"github.com/nottyvote/votebot/internal/broadcast"
	"github.com/nottyvote/votebot/internal/cache"
	"github.com/nottyvote/votebot/internal/config"
	"github.com/nottyvote/votebot/internal/handlers"
	"github.com/nottyvote/votebot/internal/jobs"
	"github.com/nottyvote/votebot/internal/logging"
	"github.com/nottyvote/votebot/internal/storage"
	"github.com/nottyvote/votebot/internal/subscription"
	"github.com/nottyvote/votebot/internal/telegram"
	"github.com/nottyvote/votebot/internal/votes"
)

// pgxTx names the transaction type the river pgx driver is generic over.
type pgxTx = pgx.Tx

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("bot exited", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	store, err := storage.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.WaitReady(ctx); err != nil {
		return err
	}
	if err := store.Migrate(ctx); err != nil {
		return err
	}
	// River keeps its queue tables in the same database.
	migrator, err := rivermigrate.New(riverpgxv5.New(store.Pool), nil)
	if err != nil {
		return err
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return err
	}

	pollCache, err := cache.New(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer pollCache.Close()
	pollStore := cache.NewPollStore(store, pollCache)

	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		return err
	}
	if cfg.BotUsername == "" {
		cfg.BotUsername = api.Self.UserName
	}
	bot := telegram.NewBot(api, logger)
	logger.Info("authorized", zap.String("bot", api.Self.UserName))

	oracle := subscription.New(bot, logger)
	voteSvc := votes.NewService(pollStore, oracle, bot, cfg.RequiredChannels, logger)
	publisher := votes.NewPublisher(pollStore, oracle, bot, cfg.RequiredChannels, logger)
	broadcaster := broadcast.New(store, bot, logger)
	handler := handlers.New(pollStore, voteSvc, publisher, broadcaster, bot, cfg, logger)

	workers := river.NewWorkers()
	river.AddWorker(workers, jobs.NewReconcileWorker(store, oracle, bot, cfg.RequiredChannels, cfg.LogChannelID, logger))
	river.AddWorker(workers, jobs.NewDailyReportWorker(store, bot, cfg.LogChannelID, logger))

	riverClient, err := river.NewClient(riverpgxv5.New(store.Pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 10},
		},
		Workers:      workers,
		PeriodicJobs: jobs.Periodic(cfg.SweepInterval),
	})
	if err != nil {
		return err
	}
	if err := riverClient.Start(ctx); err != nil {
		return err
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := api.GetUpdatesChan(updateCfg)
	logger.Info("listening for updates",
		zap.Duration("sweep_interval", cfg.SweepInterval))

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			return shutdown(riverClient, logger)
		case upd, ok := <-updates:
			if !ok {
				return shutdown(riverClient, logger)
			}
			go handler.HandleUpdate(ctx, upd)
		}
	}
}

// shutdown soft-stops the job client, giving in-flight sweeps a window
// to finish before cancelling them.
func shutdown(riverClient *river.Client[pgxTx], logger *zap.Logger) error {
	softCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := riverClient.Stop(softCtx)
	if err == nil {
		logger.Info("stopped cleanly")
		return nil
	}
	if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
		return err
	}

	hardCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := riverClient.StopAndCancel(hardCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	logger.Info("stopped after cancelling jobs")
	return nil
}
