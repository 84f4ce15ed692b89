package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

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
	"news-autopost-bot/internal/usecase/autopost"
	"news-autopost-bot/internal/usecase/quota"
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
		logger.Fatal().Err(err).Msg("worker: нет подключения к БД")
	}
	defer pool.Close()

	repoAdapter := repo.NewPostgres(pool, cfg.Location())

	jobQueue := newJobQueue(cfg, logger)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("worker: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger)

	guard := quota.NewGuard(repoAdapter, repoAdapter, cfg.Limits.DailyPostCap)
	autopostService := autopost.NewService(
		guard,
		repoAdapter,
		repoAdapter,
		repoAdapter,
		news.NewRSSSource(logger),
		render.NewHTMLRenderer(),
		sender,
		sender,
		logger,
	)

	logger.Info().Str("queue", cfg.Queue.PostJobsKey).Msg("worker: запущен")
	for {
		job, err := jobQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			logger.Error().Err(err).Msg("worker: ошибка чтения очереди")
			continue
		}
		logger.Info().
			Str("job_id", job.ID).
			Int64("user_id", job.UserID).
			Str("channel", job.ChannelID).
			Str("cause", string(job.Cause)).
			Msg("worker: задача получена")
		if err := autopostService.DeliverGuarded(ctx, job.UserID, job.ChannelID, job.Category, job.Style, job.Cause); err != nil {
			logger.Error().Err(err).Str("job_id", job.ID).Msg("worker: задача завершилась ошибкой")
		}
	}
	logger.Info().Msg("worker: остановка")
}

func newJobQueue(cfg config.AppConfig, logger zerolog.Logger) domain.PostJobQueue {
	switch cfg.Queue.Driver {
	case "rabbitmq":
		q, err := queue.NewRabbitPostQueue(cfg.Queue.RabbitURL, cfg.Queue.RabbitMgmtURL, cfg.Queue.PostJobsKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("worker: не удалось инициализировать очередь RabbitMQ")
		}
		return q
	default:
		client := redis.NewClient(&redis.Options{Addr: cfg.Queue.RedisAddr})
		return queue.NewRedisPostQueue(client, cfg.Queue.PostJobsKey)
	}
}

var _ domain.ChannelSender = (*telegram.Sender)(nil)
var _ domain.Notifier = (*telegram.Sender)(nil)
var _ domain.NewsSource = (*news.RSSSource)(nil)
