package testpost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
)

// RateLimitedError возвращается, когда интервал между тестовыми постами ещё не истёк.
type RateLimitedError struct {
	Remaining time.Duration
}

func (e *RateLimitedError) Error() string {
	return "следующий тестовый пост будет доступен через " + FormatRemaining(e.Remaining)
}

// FormatRemaining форматирует остаток интервала как "Xч Yм".
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dч %dм", hours, minutes)
}

// Service отправляет тестовые посты. Один тестовый пост в сутки на пользователя,
// интервал скользящий. Активная подписка снимает ограничение.
type Service struct {
	tests    domain.TestPostRepo
	subs     domain.SubscriptionRepo
	news     domain.NewsSource
	renderer domain.ContentRenderer
	sender   domain.ChannelSender
	cooldown time.Duration
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис тестовых постов.
func NewService(
	tests domain.TestPostRepo,
	subs domain.SubscriptionRepo,
	news domain.NewsSource,
	renderer domain.ContentRenderer,
	sender domain.ChannelSender,
	cooldown time.Duration,
	logger zerolog.Logger,
) *Service {
	return &Service{
		tests:    tests,
		subs:     subs,
		news:     news,
		renderer: renderer,
		sender:   sender,
		cooldown: cooldown,
		log:      logger,
		now:      time.Now,
	}
}

// CanCreate сообщает, доступен ли пользователю тестовый пост сейчас.
// При отказе возвращает остаток интервала.
func (s *Service) CanCreate(userID int64) (bool, time.Duration, error) {
	now := s.now()

	if _, err := s.subs.ActiveForUser(userID, now); err == nil {
		return true, 0, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return false, 0, fmt.Errorf("check subscription: %w", err)
	}

	last, err := s.tests.LastForUser(userID)
	if errors.Is(err, domain.ErrNotFound) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, fmt.Errorf("load last test post: %w", err)
	}

	elapsed := now.Sub(last.TestDate)
	if elapsed >= s.cooldown {
		return true, 0, nil
	}
	return false, s.cooldown - elapsed, nil
}

// SendTest отправляет тестовый пост в канал и фиксирует отправку.
func (s *Service) SendTest(ctx context.Context, userID int64, channelUsername, category, style string) error {
	ok, remaining, err := s.CanCreate(userID)
	if err != nil {
		return err
	}
	if !ok {
		return &RateLimitedError{Remaining: remaining}
	}

	item, err := s.news.FetchOne(ctx, category)
	if err != nil {
		return fmt.Errorf("fetch news: %w", err)
	}

	html, err := s.renderer.Render(item, style, category)
	if err != nil {
		return fmt.Errorf("render post: %w", err)
	}
	html = "🧪 <b>ТЕСТОВЫЙ ПОСТ</b>\n\n" + html + "\n\n<i>Это тестовая публикация</i>"

	if err := s.sender.SendToChannel(ctx, channelUsername, html); err != nil {
		return fmt.Errorf("deliver test post: %w", err)
	}

	now := s.now()
	rec := domain.TestPostRecord{
		UserID:          userID,
		ChannelUsername: channelUsername,
		Category:        category,
		Style:           style,
		TestDate:        now,
		CreatedAt:       now,
	}
	if err := s.tests.RecordTest(rec); err != nil {
		// Пост уже доставлен, запись не должна откатывать результат.
		s.log.Error().Err(err).Int64("user_id", userID).Msg("testpost: не удалось записать отправку")
	}
	s.log.Info().Int64("user_id", userID).Str("channel", channelUsername).Msg("testpost: тестовый пост отправлен")
	return nil
}

// PurgeOld удаляет записи тестовых постов старше retention.
func (s *Service) PurgeOld(retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	deleted, err := s.tests.PurgeOlderThan(cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge test post records: %w", err)
	}
	if deleted > 0 {
		s.log.Info().Int64("deleted", deleted).Msg("testpost: старые записи удалены")
	}
	return deleted, nil
}
