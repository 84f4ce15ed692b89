package subscription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// ErrUnknownPlan возвращается при длительности вне закрытого набора тарифов.
var ErrUnknownPlan = errors.New("неизвестный тариф подписки")

// Service управляет жизненным циклом подписок.
type Service struct {
	subs     domain.SubscriptionRepo
	users    domain.UserRepo
	configs  domain.AutopostRepo
	notifier domain.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис подписок.
func NewService(
	subs domain.SubscriptionRepo,
	users domain.UserRepo,
	configs domain.AutopostRepo,
	notifier domain.Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		subs:     subs,
		users:    users,
		configs:  configs,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
}

// Grant выдаёт пользователю подписку на planDays дней.
func (s *Service) Grant(userID int64, planDays int) (domain.Subscription, error) {
	if !domain.ValidPlan(planDays) {
		return domain.Subscription{}, ErrUnknownPlan
	}
	expiresAt := s.now().AddDate(0, 0, planDays)
	sub, err := s.subs.Create(userID, planDays, expiresAt)
	if err != nil {
		return domain.Subscription{}, fmt.Errorf("create subscription: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Int("plan_days", planDays).Time("expires_at", expiresAt).Msg("subscription: подписка выдана")
	return sub, nil
}

// Active возвращает действующую подписку пользователя.
func (s *Service) Active(userID int64) (domain.Subscription, error) {
	return s.subs.ActiveForUser(userID, s.now())
}

// SweepExpired деактивирует истёкшие подписки вместе с настройками
// автопостинга их владельцев и уведомляет пользователей.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	userIDs, err := s.subs.DeactivateExpired(s.now())
	if err != nil {
		return 0, fmt.Errorf("deactivate expired: %w", err)
	}
	for _, userID := range userIDs {
		if err := s.configs.DeactivateForUser(userID); err != nil {
			s.log.Error().Err(err).Int64("user_id", userID).Msg("subscription: не удалось выключить автопостинг")
			continue
		}
		s.notify(ctx, userID, "⏳ Срок подписки истёк. Автопостинг остановлен, продлите подписку чтобы возобновить публикации.")
	}
	if len(userIDs) > 0 {
		s.log.Info().Int("deactivated", len(userIDs)).Msg("subscription: истёкшие подписки деактивированы")
	}
	return len(userIDs), nil
}

// NotifyExpiring предупреждает пользователей, чьи подписки истекают в течение
// суток, с оставшимся числом часов.
func (s *Service) NotifyExpiring(ctx context.Context) (int, error) {
	now := s.now()
	subs, err := s.subs.ListExpiring(now, now.Add(24*time.Hour))
	if err != nil {
		return 0, fmt.Errorf("list expiring: %w", err)
	}
	for _, sub := range subs {
		hoursLeft := int(sub.ExpiresAt.Sub(now).Hours())
		if hoursLeft < 1 {
			hoursLeft = 1
		}
		s.notify(ctx, sub.UserID, fmt.Sprintf("⚠️ Подписка истекает через %d ч. Продлите её, чтобы автопостинг не остановился.", hoursLeft))
	}
	return len(subs), nil
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("subscription: пользователь для уведомления не найден")
		return
	}
	if err := s.notifier.Notify(ctx, user.TGUserID, text); err != nil {
		metrics.NotifyErrors.Inc()
		s.log.Error().Err(err).Int64("user_id", userID).Msg("subscription: не удалось отправить уведомление")
	}
}
