package autopost

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
	"news-autopost-bot/internal/usecase/quota"
)

var (
	// ErrNoSubscription — публикация запрошена без действующей подписки.
	ErrNoSubscription = errors.New("нет активной подписки")
	// ErrDailyLimit — достигнут дневной лимит постов для пары пользователь-канал.
	ErrDailyLimit = errors.New("дневной лимит постов исчерпан")
)

// Service публикует посты в каналы и управляет настройками автопостинга.
type Service struct {
	guard    *quota.Guard
	users    domain.UserRepo
	configs  domain.AutopostRepo
	postLog  domain.PostLogRepo
	news     domain.NewsSource
	renderer domain.ContentRenderer
	sender   domain.ChannelSender
	notifier domain.Notifier
	log      zerolog.Logger
	now      func() time.Time
}

// NewService создаёт сервис автопостинга.
func NewService(
	guard *quota.Guard,
	users domain.UserRepo,
	configs domain.AutopostRepo,
	postLog domain.PostLogRepo,
	news domain.NewsSource,
	renderer domain.ContentRenderer,
	sender domain.ChannelSender,
	notifier domain.Notifier,
	logger zerolog.Logger,
) *Service {
	return &Service{
		guard:    guard,
		users:    users,
		configs:  configs,
		postLog:  postLog,
		news:     news,
		renderer: renderer,
		sender:   sender,
		notifier: notifier,
		log:      logger,
		now:      time.Now,
	}
}

// DeliverGuarded выполняет полный цикл публикации: проверка гарда, получение
// новости, рендеринг, доставка, запись в журнал и уведомление пользователя.
// Журнал пополняется только после успешной доставки.
func (s *Service) DeliverGuarded(ctx context.Context, userID int64, channelID, category, style string, cause domain.PostCause) error {
	dec, err := s.guard.Authorize(userID, channelID, cause)
	if err != nil {
		return fmt.Errorf("authorize: %w", err)
	}
	if !dec.Allowed {
		s.log.Info().
			Int64("user_id", userID).
			Str("channel", channelID).
			Str("cause", string(cause)).
			Str("reason", dec.Reason).
			Msg("autopost: публикация отклонена")
		switch dec.Reason {
		case quota.ReasonNoSubscription:
			s.notify(ctx, userID, "❌ Публикация в "+channelID+" отклонена: нужна активная подписка.")
			return ErrNoSubscription
		case quota.ReasonDailyLimit:
			s.notify(ctx, userID, fmt.Sprintf("❌ Публикация в %s отклонена: лимит %d поста в день исчерпан.", channelID, dec.Cap))
			return ErrDailyLimit
		default:
			return fmt.Errorf("публикация отклонена: %s", dec.Reason)
		}
	}

	item, err := s.news.FetchOne(ctx, category)
	if err != nil {
		metrics.NewsFetchErrors.Inc()
		s.log.Warn().Err(err).Str("category", category).Msg("autopost: новость не получена")
		s.notify(ctx, userID, "⚠️ Не удалось подобрать новость по категории «"+category+"», публикация в "+channelID+" пропущена.")
		return fmt.Errorf("fetch news: %w", err)
	}

	html, err := s.renderer.Render(item, style, category)
	if err != nil {
		return fmt.Errorf("render post: %w", err)
	}

	if err := s.sender.SendToChannel(ctx, channelID, html); err != nil {
		s.notifyDeliveryFailure(ctx, userID, channelID, err)
		return fmt.Errorf("deliver post: %w", err)
	}

	now := s.now()
	if err := s.postLog.Record(userID, channelID, now); err != nil {
		// Пост уже в канале, журнал догоняет по возможности.
		s.log.Error().Err(err).Int64("user_id", userID).Str("channel", channelID).Msg("autopost: не удалось записать пост в журнал")
	}
	metrics.IncPostSent(string(cause))

	count, err := s.postLog.CountToday(userID, channelID, now)
	if err != nil {
		count = dec.PostsToday + 1
	}
	s.notify(ctx, userID, fmt.Sprintf("✅ Пост опубликован в %s (%d/%d сегодня).", channelID, count, dec.Cap))

	s.log.Info().
		Int64("user_id", userID).
		Str("channel", channelID).
		Str("category", category).
		Str("cause", string(cause)).
		Msg("autopost: пост опубликован")
	return nil
}

func (s *Service) notifyDeliveryFailure(ctx context.Context, userID int64, channelID string, err error) {
	switch {
	case errors.Is(err, domain.ErrChannelNotFound):
		metrics.DeliveryErrors.WithLabelValues("channel_not_found").Inc()
		s.notify(ctx, userID, "❌ Канал "+channelID+" не найден. Проверьте имя канала.")
	case errors.Is(err, domain.ErrForbidden):
		metrics.DeliveryErrors.WithLabelValues("forbidden").Inc()
		s.notify(ctx, userID, "❌ У бота нет прав на публикацию в "+channelID+". Добавьте бота администратором.")
	default:
		metrics.DeliveryErrors.WithLabelValues("other").Inc()
		s.notify(ctx, userID, "❌ Не удалось опубликовать пост в "+channelID+". Попробуйте позже.")
	}
}

func (s *Service) notify(ctx context.Context, userID int64, text string) {
	user, err := s.users.GetByID(userID)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("autopost: пользователь для уведомления не найден")
		return
	}
	if err := s.notifier.Notify(ctx, user.TGUserID, text); err != nil {
		metrics.NotifyErrors.Inc()
		s.log.Error().Err(err).Int64("user_id", userID).Msg("autopost: не удалось отправить уведомление")
	}
}

// SaveConfigs заменяет настройки автопостинга пользователя: для каждой пары
// канал-категория создаётся отдельная настройка с общим расписанием.
func (s *Service) SaveConfigs(userID int64, channels, categories []string, style string, postsPerDay int, times []string, weekdaysOnly bool) error {
	if len(channels) == 0 {
		return errors.New("не выбран ни один канал")
	}
	if len(categories) == 0 {
		return errors.New("не выбрана ни одна категория")
	}
	if err := domain.ValidateSlots(postsPerDay, times); err != nil {
		return err
	}

	configs := make([]domain.AutopostConfig, 0, len(channels)*len(categories))
	for _, channel := range channels {
		for _, category := range categories {
			configs = append(configs, domain.AutopostConfig{
				UserID:       userID,
				ChannelID:    channel,
				Category:     category,
				Style:        style,
				PostsPerDay:  postsPerDay,
				Times:        times,
				WeekdaysOnly: weekdaysOnly,
				IsActive:     true,
			})
		}
	}
	if err := s.configs.ReplaceForUser(userID, configs); err != nil {
		return fmt.Errorf("save configs: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Int("configs", len(configs)).Msg("autopost: настройки сохранены")
	return nil
}

// Disable выключает все настройки автопостинга пользователя.
func (s *Service) Disable(userID int64) error {
	if err := s.configs.DeactivateForUser(userID); err != nil {
		return fmt.Errorf("disable autoposting: %w", err)
	}
	s.log.Info().Int64("user_id", userID).Msg("autopost: автопостинг выключен")
	return nil
}

// Stats агрегирует активные настройки пользователя.
func (s *Service) Stats(userID int64) (domain.AutopostStats, error) {
	configs, err := s.configs.ListActiveForUser(userID)
	if err != nil {
		return domain.AutopostStats{}, fmt.Errorf("list configs: %w", err)
	}
	channels := make(map[string]struct{})
	categories := make(map[string]struct{})
	stats := domain.AutopostStats{TotalConfigs: len(configs)}
	for _, cfg := range configs {
		channels[cfg.ChannelID] = struct{}{}
		categories[cfg.Category] = struct{}{}
		stats.TotalPostsPerDay += cfg.PostsPerDay
	}
	stats.UniqueChannels = len(channels)
	stats.UniqueCategories = len(categories)
	return stats, nil
}

// ValidateChannel проверяет, что канал существует и бот может в него публиковать.
func (s *Service) ValidateChannel(ctx context.Context, channelID string) (domain.ChannelAccess, error) {
	access, err := s.sender.CheckChannelAccess(ctx, channelID)
	if err != nil {
		return domain.ChannelAccess{}, err
	}
	if !access.IsAdmin || !access.CanPost {
		return access, domain.ErrForbidden
	}
	return access, nil
}
