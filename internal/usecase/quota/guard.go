package quota

import (
	"errors"
	"fmt"
	"time"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// Причины отказа гарда. Используются и как метки метрик.
const (
	ReasonNoSubscription = "no_subscription"
	ReasonDailyLimit     = "daily_limit"
)

// Decision — результат проверки перед публикацией.
type Decision struct {
	Allowed    bool
	Reason     string
	PostsToday int
	Cap        int
}

// Guard проверяет право пользователя на публикацию в канал.
// Подписка обязательна для любого способа отправки. Дневной лимит
// останавливает только запланированные публикации: ручная отправка
// подписчику разрешена и сверх лимита, счётчик при этом показывается.
type Guard struct {
	subs domain.SubscriptionRepo
	log  domain.PostLogRepo
	cap  int
	now  func() time.Time
}

// NewGuard создаёт гард с дневным лимитом cap.
func NewGuard(subs domain.SubscriptionRepo, log domain.PostLogRepo, cap int) *Guard {
	return &Guard{subs: subs, log: log, cap: cap, now: time.Now}
}

// Authorize решает, можно ли публиковать пост для пары (user, channel).
func (g *Guard) Authorize(userID int64, channelID string, cause domain.PostCause) (Decision, error) {
	now := g.now()

	_, err := g.subs.ActiveForUser(userID, now)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.IncGuardRejection(ReasonNoSubscription)
		return Decision{Allowed: false, Reason: ReasonNoSubscription, Cap: g.cap}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("check subscription: %w", err)
	}

	count, err := g.log.CountToday(userID, channelID, now)
	if err != nil {
		return Decision{}, fmt.Errorf("count posts today: %w", err)
	}

	if cause != domain.PostCauseManual && count >= g.cap {
		metrics.IncGuardRejection(ReasonDailyLimit)
		return Decision{Allowed: false, Reason: ReasonDailyLimit, PostsToday: count, Cap: g.cap}, nil
	}
	return Decision{Allowed: true, PostsToday: count, Cap: g.cap}, nil
}
