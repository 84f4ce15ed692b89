package domain

import "time"

// User описывает пользователя Telegram в системе.
type User struct {
	ID        int64
	TGUserID  int64
	Username  string
	Language  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Subscription описывает оплаченный или выданный администратором период доступа.
type Subscription struct {
	ID        int64
	UserID    int64
	PlanDays  int
	ExpiresAt time.Time
	IsActive  bool
	CreatedAt time.Time
}

// Valid сообщает, действует ли подписка на указанный момент.
// Истечение проверяется напрямую, не полагаясь на фоновую деактивацию.
func (s Subscription) Valid(now time.Time) bool {
	return s.IsActive && s.ExpiresAt.After(now)
}

// AutopostConfig описывает одну настройку автопостинга: канал, категория, стиль
// и список времён публикации в формате "HH:MM".
type AutopostConfig struct {
	ID           int64
	UserID       int64
	ChannelID    string
	Category     string
	Style        string
	PostsPerDay  int
	Times        []string
	WeekdaysOnly bool
	IsActive     bool
	CreatedAt    time.Time
}

// MatchesTime проверяет, содержит ли расписание настройки указанное "HH:MM".
func (c AutopostConfig) MatchesTime(hhmm string) bool {
	for _, t := range c.Times {
		if t == hhmm {
			return true
		}
	}
	return false
}

// PostLogEntry фиксирует одну успешную доставку поста в канал.
type PostLogEntry struct {
	ID        int64
	UserID    int64
	ChannelID string
	CreatedAt time.Time
}

// TestPostRecord фиксирует отправку тестового поста пользователем без подписки.
type TestPostRecord struct {
	ID              int64
	UserID          int64
	ChannelUsername string
	Category        string
	Style           string
	TestDate        time.Time
	CreatedAt       time.Time
}

// NewsItem представляет одну новость из внешнего источника.
type NewsItem struct {
	Title       string
	Description string
	URL         string
	ImageURL    string
	PublishedAt *time.Time
}

// ChannelAccess описывает права бота в целевом канале.
type ChannelAccess struct {
	Title   string
	Type    string
	IsAdmin bool
	CanPost bool
}

// AutopostStats агрегирует активные настройки пользователя.
type AutopostStats struct {
	TotalConfigs     int
	UniqueChannels   int
	UniqueCategories int
	TotalPostsPerDay int
}
