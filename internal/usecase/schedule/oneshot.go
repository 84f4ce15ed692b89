package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
)

// ErrBadTime возвращается при времени вне формата "HH:MM".
type ErrBadTime struct {
	Input string
}

func (e *ErrBadTime) Error() string {
	return fmt.Sprintf("неверный формат времени %q, ожидается ЧЧ:ММ", e.Input)
}

// OneShot планирует разовые публикации на заданное время.
type OneShot struct {
	queue    domain.PostJobQueue
	loc      *time.Location
	fallback time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewOneShot создаёт планировщик разовых публикаций. При сбое постановки
// отложенной задачи публикация переносится на now+fallback немедленной задачей.
func NewOneShot(queue domain.PostJobQueue, loc *time.Location, fallback time.Duration, logger zerolog.Logger) *OneShot {
	if loc == nil {
		loc = time.UTC
	}
	if fallback <= 0 {
		fallback = 5 * time.Minute
	}
	return &OneShot{queue: queue, loc: loc, fallback: fallback, log: logger, now: time.Now}
}

// ParseTargetTime разбирает "HH:MM" и возвращает ближайший будущий момент
// с этим временем: сегодня, если оно ещё не прошло, иначе завтра.
func (o *OneShot) ParseTargetTime(input string) (time.Time, error) {
	parsed, err := time.Parse("15:04", input)
	if err != nil {
		return time.Time{}, &ErrBadTime{Input: input}
	}
	now := o.now().In(o.loc)
	target := time.Date(now.Year(), now.Month(), now.Day(), parsed.Hour(), parsed.Minute(), 0, 0, o.loc)
	if !target.After(now) {
		target = target.AddDate(0, 0, 1)
	}
	return target, nil
}

// Schedule ставит разовую публикацию на указанное "HH:MM" и возвращает момент
// срабатывания вместе с количеством секунд до него.
func (o *OneShot) Schedule(ctx context.Context, userID int64, channelID, category, style, hhmm string) (time.Time, int64, error) {
	fireAt, err := o.ParseTargetTime(hhmm)
	if err != nil {
		return time.Time{}, 0, err
	}

	job := domain.PostJob{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChannelID:   channelID,
		Category:    category,
		Style:       style,
		Cause:       domain.PostCauseOneShot,
		RequestedAt: o.now(),
	}
	if err := o.queue.EnqueueAt(ctx, job, fireAt); err != nil {
		// Очередь недоступна для отложенных задач: публикация не теряется,
		// а уходит немедленной задачей с резервной задержкой.
		o.log.Error().Err(err).Str("channel", channelID).Msg("scheduler: отложенная постановка не удалась, используется резервная задержка")
		fireAt = o.now().Add(o.fallback)
		if err := o.queue.EnqueueAt(ctx, job, fireAt); err != nil {
			if err := o.queue.Enqueue(ctx, job); err != nil {
				return time.Time{}, 0, fmt.Errorf("schedule one-shot post: %w", err)
			}
			fireAt = o.now()
		}
	}

	countdown := int64(fireAt.Sub(o.now()).Seconds())
	if countdown < 0 {
		countdown = 0
	}
	o.log.Info().
		Int64("user_id", userID).
		Str("channel", channelID).
		Time("fire_at", fireAt).
		Msg("scheduler: разовая публикация запланирована")
	return fireAt, countdown, nil
}
