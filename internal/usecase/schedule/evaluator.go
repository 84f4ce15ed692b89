package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// Evaluator просматривает активные настройки автопостинга и ставит в очередь
// задачи, время которых наступило. Сканирование идёт по границам интервала:
// все времена публикации лежат на пятиминутной сетке.
type Evaluator struct {
	configs    domain.AutopostRepo
	subs       domain.SubscriptionRepo
	queue      domain.PostJobQueue
	loc        *time.Location
	interval   time.Duration
	maxCatchUp time.Duration
	log        zerolog.Logger
	now        func() time.Time
}

// NewEvaluator создаёт вычислитель расписаний. maxCatchUp ограничивает глубину
// добора пропущенных границ после простоя.
func NewEvaluator(
	configs domain.AutopostRepo,
	subs domain.SubscriptionRepo,
	queue domain.PostJobQueue,
	loc *time.Location,
	interval, maxCatchUp time.Duration,
	logger zerolog.Logger,
) *Evaluator {
	if loc == nil {
		loc = time.UTC
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if maxCatchUp < interval {
		maxCatchUp = time.Hour
	}
	return &Evaluator{
		configs:    configs,
		subs:       subs,
		queue:      queue,
		loc:        loc,
		interval:   interval,
		maxCatchUp: maxCatchUp,
		log:        logger,
		now:        time.Now,
	}
}

// Tick обрабатывает текущий момент: настройки с точным совпадением "HH:MM"
// попадают в очередь.
func (e *Evaluator) Tick(ctx context.Context) error {
	now := e.now().In(e.loc)
	return e.fireSlot(ctx, now)
}

// Resync обрабатывает все границы интервала в (since, now]. Используется после
// простоя процесса, чтобы не потерять пропущенные времена публикации. Глубина
// добора ограничена maxCatchUp: слоты старше не воспроизводятся.
func (e *Evaluator) Resync(ctx context.Context, since time.Time) error {
	now := e.now().In(e.loc)
	if now.Sub(since) > e.maxCatchUp {
		since = now.Add(-e.maxCatchUp)
	}
	var errs []error
	for t := since.In(e.loc).Truncate(e.interval).Add(e.interval); !t.After(now); t = t.Add(e.interval) {
		if err := e.fireSlot(ctx, t); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// fireSlot ставит в очередь задачи всех настроек, расписание которых содержит
// момент slot. Отказ одной настройки не останавливает остальные.
func (e *Evaluator) fireSlot(ctx context.Context, slot time.Time) error {
	hhmm := slot.Format("15:04")
	configs, err := e.configs.ListActiveByTime(hhmm)
	if err != nil {
		return fmt.Errorf("list configs for %s: %w", hhmm, err)
	}
	if len(configs) == 0 {
		return nil
	}

	weekday := slot.Weekday()
	isWeekend := weekday == time.Saturday || weekday == time.Sunday
	fired := 0
	for _, cfg := range configs {
		// Выборка по LIKE может зацепить лишнее, совпадение проверяется точно.
		if !cfg.MatchesTime(hhmm) {
			continue
		}
		if cfg.WeekdaysOnly && isWeekend {
			continue
		}
		// Подписка проверяется на момент срабатывания, не на момент настройки.
		if _, err := e.subs.ActiveForUser(cfg.UserID, e.now()); err != nil {
			if !errors.Is(err, domain.ErrNotFound) {
				e.log.Error().Err(err).Int64("config_id", cfg.ID).Msg("scheduler: ошибка проверки подписки")
			}
			continue
		}
		job := domain.PostJob{
			ID:          uuid.NewString(),
			UserID:      cfg.UserID,
			ChannelID:   cfg.ChannelID,
			Category:    cfg.Category,
			Style:       cfg.Style,
			Cause:       domain.PostCauseRecurring,
			RequestedAt: e.now(),
		}
		if err := e.queue.Enqueue(ctx, job); err != nil {
			e.log.Error().Err(err).Int64("config_id", cfg.ID).Msg("scheduler: не удалось поставить задачу в очередь")
			continue
		}
		metrics.EvaluatorFiresTotal.Inc()
		fired++
	}
	if fired > 0 {
		e.log.Info().Str("slot", hhmm).Int("fired", fired).Msg("scheduler: задачи поставлены в очередь")
	}
	return nil
}

// Run блокирует до отмены контекста, вызывая Tick на каждой границе интервала.
// Пропущенные границы добираются через Resync.
func (e *Evaluator) Run(ctx context.Context) {
	last := e.now().In(e.loc)
	next := last.Truncate(e.interval).Add(e.interval)
	timer := time.NewTimer(time.Until(next))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := e.Resync(ctx, last); err != nil {
			e.log.Error().Err(err).Msg("scheduler: ошибка обработки расписаний")
		}
		last = e.now().In(e.loc)
		next = last.Truncate(e.interval).Add(e.interval)
		timer.Reset(time.Until(next))
	}
}
