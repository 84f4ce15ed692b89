package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/adapters/news"
	"news-autopost-bot/internal/adapters/render"
	"news-autopost-bot/internal/adapters/repo"
	"news-autopost-bot/internal/adapters/telegram"
	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/config"
	"news-autopost-bot/internal/infra/db"
	applog "news-autopost-bot/internal/infra/log"
	"news-autopost-bot/internal/infra/metrics"
	"news-autopost-bot/internal/infra/queue"
	"news-autopost-bot/internal/usecase/schedule"
	"news-autopost-bot/internal/usecase/subscription"
	"news-autopost-bot/internal/usecase/testpost"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, logger.With().Str("component", "metrics").Logger(), ":9090")

	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()

	loc := cfg.Location()
	repoAdapter := repo.NewPostgres(pool, loc)

	jobQueue := newJobQueue(cfg, logger)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("scheduler: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger)

	evaluator := schedule.NewEvaluator(repoAdapter, repoAdapter, jobQueue, loc, cfg.Schedule.ExactScanInterval, cfg.Schedule.ResyncInterval, logger)
	subsService := subscription.NewService(repoAdapter, repoAdapter, repoAdapter, sender, logger)
	testService := testpost.NewService(repoAdapter, repoAdapter, news.NewRSSSource(logger), render.NewHTMLRenderer(), sender, cfg.Limits.TestPostCooldown, logger)

	go evaluator.Run(ctx)
	go runExpirySweep(ctx, logger, subsService, cfg.Schedule.ExpirySweepEvery)
	go runTestPostPurge(ctx, logger, testService, cfg.Limits.TestPostRetention)

	logger.Info().Str("tz", cfg.TZ).Msg("scheduler: запущен")
	<-ctx.Done()
	logger.Info().Msg("scheduler: остановка")
}

func runExpirySweep(ctx context.Context, logger zerolog.Logger, subs *subscription.Service, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := subs.SweepExpired(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler: ошибка деактивации подписок")
		}
		if _, err := subs.NotifyExpiring(ctx); err != nil {
			logger.Error().Err(err).Msg("scheduler: ошибка предупреждений об истечении")
		}
	}
}

func runTestPostPurge(ctx context.Context, logger zerolog.Logger, tests *testpost.Service, retentionDays int) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := tests.PurgeOld(time.Duration(retentionDays) * 24 * time.Hour); err != nil {
			logger.Error().Err(err).Msg("scheduler: ошибка очистки тестовых постов")
		}
	}
}

func newJobQueue(cfg config.AppConfig, logger zerolog.Logger) domain.PostJobQueue {
	switch cfg.Queue.Driver {
	case "rabbitmq":
		q, err := queue.NewRabbitPostQueue(cfg.Queue.RabbitURL, cfg.Queue.RabbitMgmtURL, cfg.Queue.PostJobsKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать очередь RabbitMQ")
		}
		return q
	default:
		client := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
		return queue.NewRedisPostQueue(client, cfg.Queue.PostJobsKey)
	}
}

var _ domain.UserRepo = (*repo.Postgres)(nil)
var _ domain.SubscriptionRepo = (*repo.Postgres)(nil)
var _ domain.AutopostRepo = (*repo.Postgres)(nil)
var _ domain.PostLogRepo = (*repo.Postgres)(nil)
var _ domain.TestPostRepo = (*repo.Postgres)(nil)
