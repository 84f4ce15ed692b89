package config

import (
	"log"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Moscow"`
	Port   int    `envconfig:"PORT" default:"8080"`

	Telegram struct {
		Token      string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL string `envconfig:"TG_WEBHOOK_URL"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	Queue struct {
		Driver        string `envconfig:"QUEUE_DRIVER" default:"redis"`
		RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
		RabbitURL     string `envconfig:"RABBITMQ_URL"`
		RabbitMgmtURL string `envconfig:"RABBITMQ_MANAGEMENT_URL"`
		PostJobsKey   string `envconfig:"POST_JOBS_QUEUE_KEY" default:"post_jobs"`
	} `envconfig:""`

	Limits struct {
		DailyPostCap      int           `envconfig:"DAILY_POST_CAP" default:"3"`
		TestPostCooldown  time.Duration `envconfig:"TEST_POST_COOLDOWN" default:"24h"`
		TestPostRetention int           `envconfig:"TEST_POST_RETENTION_DAYS" default:"30"`
	} `envconfig:""`

	Schedule struct {
		ExactScanInterval time.Duration `envconfig:"EXACT_SCAN_INTERVAL" default:"5m"`
		ResyncInterval    time.Duration `envconfig:"RESYNC_INTERVAL" default:"1h"`
		ExpirySweepEvery  time.Duration `envconfig:"EXPIRY_SWEEP_INTERVAL" default:"6h"`
		OneShotFallback   time.Duration `envconfig:"ONESHOT_FALLBACK_DELAY" default:"5m"`
	} `envconfig:""`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// Location возвращает часовой пояс системы. Вся арифметика расписаний ведётся
// в одном фиксированном поясе, без учёта поясов отдельных пользователей.
func (c AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TZ)
	if err != nil {
		log.Fatalf("некорректный часовой пояс %q: %v", c.TZ, err)
	}
	return loc
}
