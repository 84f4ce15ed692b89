package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PostsSentTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "posts_sent_total",
		Help: "Количество успешно доставленных постов",
	}, []string{"cause"})

	GuardRejectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "guard_rejections_total",
		Help: "Отказы квота-гарда по причинам",
	}, []string{"reason"})

	EvaluatorFiresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evaluator_fires_total",
		Help: "Срабатывания вычислителя расписаний",
	})

	NewsFetchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "news_fetch_errors_total",
		Help: "Ошибки получения новостей",
	})

	DeliveryErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "delivery_errors_total",
		Help: "Ошибки доставки постов в каналы",
	}, []string{"kind"})

	NotifyErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notify_errors_total",
		Help: "Ошибки отправки личных уведомлений",
	})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: prometheus.DefBuckets,
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PostsSentTotal,
		GuardRejectionsTotal,
		EvaluatorFiresTotal,
		NewsFetchErrors,
		DeliveryErrors,
		NotifyErrors,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// IncPostSent увеличивает счётчик доставленных постов.
func IncPostSent(cause string) {
	PostsSentTotal.WithLabelValues(cause).Inc()
}

// IncGuardRejection увеличивает счётчик отказов гарда.
func IncGuardRejection(reason string) {
	GuardRejectionsTotal.WithLabelValues(reason).Inc()
}
