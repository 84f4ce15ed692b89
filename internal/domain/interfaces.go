package domain

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound возвращается репозиториями, когда запись отсутствует.
var ErrNotFound = errors.New("запись не найдена")

// ErrNoNews возвращается источником новостей, когда по категории ничего нет.
var ErrNoNews = errors.New("нет доступных новостей")

// ErrChannelNotFound возвращается при доставке в несуществующий канал.
var ErrChannelNotFound = errors.New("канал не найден")

// ErrForbidden возвращается, когда у бота нет прав на публикацию в канале.
var ErrForbidden = errors.New("нет прав на публикацию")

// UserRepo управляет пользователями.
type UserRepo interface {
	UpsertByTGID(tgUserID int64, username, language string) (User, error)
	GetByTGID(tgUserID int64) (User, error)
	GetByID(id int64) (User, error)
}

// SubscriptionRepo управляет подписками.
type SubscriptionRepo interface {
	// ActiveForUser возвращает действующую подписку пользователя:
	// is_active и expires_at > now, при нескольких — с самым поздним истечением.
	ActiveForUser(userID int64, now time.Time) (Subscription, error)
	Create(userID int64, planDays int, expiresAt time.Time) (Subscription, error)
	// ListExpiring возвращает активные подписки, истекающие в интервале (from, to].
	ListExpiring(from, to time.Time) ([]Subscription, error)
	// DeactivateExpired снимает флаг активности у истёкших подписок и возвращает
	// идентификаторы пользователей, которых это затронуло.
	DeactivateExpired(now time.Time) ([]int64, error)
}

// AutopostRepo управляет настройками автопостинга.
type AutopostRepo interface {
	// ReplaceForUser деактивирует прежние настройки пользователя и вставляет новые
	// одной транзакцией (сохранение всегда заменяет всё целиком).
	ReplaceForUser(userID int64, configs []AutopostConfig) error
	ListActiveForUser(userID int64) ([]AutopostConfig, error)
	// ListActiveByTime возвращает активные настройки, расписание которых содержит hhmm.
	ListActiveByTime(hhmm string) ([]AutopostConfig, error)
	DeactivateForUser(userID int64) error
}

// PostLogRepo ведёт журнал доставленных постов.
type PostLogRepo interface {
	Record(userID int64, channelID string, at time.Time) error
	// CountToday считает записи (user, channel) за календарный день, которому
	// принадлежит now в часовом поясе системы.
	CountToday(userID int64, channelID string, now time.Time) (int, error)
}

// TestPostRepo ведёт учёт тестовых постов.
type TestPostRepo interface {
	LastForUser(userID int64) (TestPostRecord, error)
	RecordTest(rec TestPostRecord) error
	PurgeOlderThan(cutoff time.Time) (int64, error)
}

// NewsSource возвращает одну новость по категории.
type NewsSource interface {
	FetchOne(ctx context.Context, category string) (NewsItem, error)
}

// ContentRenderer превращает новость в готовый HTML-текст поста.
type ContentRenderer interface {
	Render(item NewsItem, style, category string) (string, error)
}

// ChannelSender доставляет посты в каналы и проверяет права бота.
type ChannelSender interface {
	SendToChannel(ctx context.Context, channelID, html string) error
	CheckChannelAccess(ctx context.Context, channelID string) (ChannelAccess, error)
}

// Notifier отправляет личные уведомления пользователю. Доставка best-effort:
// ошибка уведомления никогда не должна проваливать основную операцию.
type Notifier interface {
	Notify(ctx context.Context, tgUserID int64, text string) error
}
