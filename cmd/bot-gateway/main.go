package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/adapters/bot"
	"news-autopost-bot/internal/adapters/news"
	"news-autopost-bot/internal/adapters/render"
	"news-autopost-bot/internal/adapters/repo"
	"news-autopost-bot/internal/adapters/telegram"
	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/config"
	"news-autopost-bot/internal/infra/db"
	apphttp "news-autopost-bot/internal/infra/http"
	applog "news-autopost-bot/internal/infra/log"
	"news-autopost-bot/internal/infra/metrics"
	"news-autopost-bot/internal/infra/queue"
	"news-autopost-bot/internal/usecase/autopost"
	"news-autopost-bot/internal/usecase/quota"
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
		logger.Fatal().Err(err).Msg("bot-gateway: нет подключения к БД")
	}
	defer pool.Close()

	loc := cfg.Location()
	repoAdapter := repo.NewPostgres(pool, loc)

	jobQueue := newJobQueue(cfg, logger)

	if cfg.Telegram.Token == "" {
		logger.Fatal().Msg("bot-gateway: не указан токен Telegram (TG_BOT_TOKEN)")
	}
	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось создать бота")
	}
	sender := telegram.NewSender(botAPI, logger)
	newsSource := news.NewRSSSource(logger)
	renderer := render.NewHTMLRenderer()

	guard := quota.NewGuard(repoAdapter, repoAdapter, cfg.Limits.DailyPostCap)
	autopostService := autopost.NewService(guard, repoAdapter, repoAdapter, repoAdapter, newsSource, renderer, sender, sender, logger)
	subsService := subscription.NewService(repoAdapter, repoAdapter, repoAdapter, sender, logger)
	oneshotService := schedule.NewOneShot(jobQueue, loc, cfg.Schedule.OneShotFallback, logger)
	testService := testpost.NewService(repoAdapter, repoAdapter, newsSource, renderer, sender, cfg.Limits.TestPostCooldown, logger)

	handler := bot.NewHandler(botAPI, logger, repoAdapter, subsService, autopostService, oneshotService, testService, jobQueue)

	if cfg.Telegram.WebhookURL != "" {
		runWebhook(ctx, cfg, logger, botAPI, handler)
	} else {
		runPolling(ctx, logger, botAPI, handler)
	}
	logger.Info().Msg("bot-gateway: остановка")
}

// runWebhook регистрирует вебхук и обслуживает его HTTP сервером.
func runWebhook(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger, botAPI *tgbotapi.BotAPI, handler *bot.Handler) {
	wh, err := tgbotapi.NewWebhook(cfg.Telegram.WebhookURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: некорректный адрес вебхука")
	}
	if _, err := botAPI.Request(wh); err != nil {
		logger.Fatal().Err(err).Msg("bot-gateway: не удалось зарегистрировать вебхук")
	}

	srv := apphttp.NewServer(logger)
	srv.Router.Post("/bot/webhook", func(w http.ResponseWriter, r *http.Request) {
		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		handler.HandleUpdate(r.Context(), update)
		w.WriteHeader(http.StatusOK)
	})

	go func() {
		if err := srv.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("bot-gateway: HTTP сервер остановлен")
		}
	}()
	<-ctx.Done()
}

// runPolling читает апдейты long polling, когда вебхук не настроен.
func runPolling(ctx context.Context, logger zerolog.Logger, botAPI *tgbotapi.BotAPI, handler *bot.Handler) {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = 30
	updates := botAPI.GetUpdatesChan(updateCfg)
	logger.Info().Msg("bot-gateway: запущен в режиме long polling")
	for {
		select {
		case <-ctx.Done():
			botAPI.StopReceivingUpdates()
			return
		case update := <-updates:
			handler.HandleUpdate(ctx, update)
		}
	}
}

func newJobQueue(cfg config.AppConfig, logger zerolog.Logger) domain.PostJobQueue {
	switch cfg.Queue.Driver {
	case "rabbitmq":
		q, err := queue.NewRabbitPostQueue(cfg.Queue.RabbitURL, cfg.Queue.RabbitMgmtURL, cfg.Queue.PostJobsKey)
		if err != nil {
			logger.Fatal().Err(err).Msg("bot-gateway: не удалось инициализировать очередь RabbitMQ")
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
