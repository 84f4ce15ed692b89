package autopost

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/usecase/quota"
)

type stubUserRepo struct{}

func (stubUserRepo) UpsertByTGID(tgUserID int64, username, language string) (domain.User, error) {
	return domain.User{}, nil
}

func (stubUserRepo) GetByTGID(tgUserID int64) (domain.User, error) {
	return domain.User{ID: 1, TGUserID: 100}, nil
}

func (stubUserRepo) GetByID(id int64) (domain.User, error) {
	return domain.User{ID: id, TGUserID: 100}, nil
}

type stubSubRepo struct {
	active bool
}

func (s *stubSubRepo) ActiveForUser(userID int64, now time.Time) (domain.Subscription, error) {
	if !s.active {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return domain.Subscription{ID: 1, UserID: userID, IsActive: true, ExpiresAt: now.Add(time.Hour)}, nil
}

func (s *stubSubRepo) Create(userID int64, planDays int, expiresAt time.Time) (domain.Subscription, error) {
	return domain.Subscription{}, nil
}

func (s *stubSubRepo) ListExpiring(from, to time.Time) ([]domain.Subscription, error) {
	return nil, nil
}

func (s *stubSubRepo) DeactivateExpired(now time.Time) ([]int64, error) { return nil, nil }

type stubConfigRepo struct {
	replaced []domain.AutopostConfig
	active   []domain.AutopostConfig
}

func (s *stubConfigRepo) ReplaceForUser(userID int64, configs []domain.AutopostConfig) error {
	s.replaced = configs
	return nil
}

func (s *stubConfigRepo) ListActiveForUser(userID int64) ([]domain.AutopostConfig, error) {
	return s.active, nil
}

func (s *stubConfigRepo) ListActiveByTime(hhmm string) ([]domain.AutopostConfig, error) {
	return nil, nil
}

func (s *stubConfigRepo) DeactivateForUser(userID int64) error { return nil }

type stubPostLog struct {
	count    int
	recorded int
}

func (s *stubPostLog) Record(userID int64, channelID string, at time.Time) error {
	s.recorded++
	s.count++
	return nil
}

func (s *stubPostLog) CountToday(userID int64, channelID string, now time.Time) (int, error) {
	return s.count, nil
}

type stubNews struct {
	err error
}

func (s stubNews) FetchOne(ctx context.Context, category string) (domain.NewsItem, error) {
	if s.err != nil {
		return domain.NewsItem{}, s.err
	}
	return domain.NewsItem{Title: "Заголовок", Description: "Описание", URL: "https://example.com"}, nil
}

type stubRenderer struct{}

func (stubRenderer) Render(item domain.NewsItem, style, category string) (string, error) {
	return "<b>" + item.Title + "</b>", nil
}

type stubSender struct {
	err  error
	sent []string
}

func (s *stubSender) SendToChannel(ctx context.Context, channelID, html string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, html)
	return nil
}

func (s *stubSender) CheckChannelAccess(ctx context.Context, channelID string) (domain.ChannelAccess, error) {
	return domain.ChannelAccess{Title: "Канал", IsAdmin: true, CanPost: true}, nil
}

type stubNotifier struct {
	messages []string
}

func (s *stubNotifier) Notify(ctx context.Context, tgUserID int64, text string) error {
	s.messages = append(s.messages, text)
	return nil
}

type fixture struct {
	svc      *Service
	postLog  *stubPostLog
	sender   *stubSender
	notifier *stubNotifier
	configs  *stubConfigRepo
}

func newFixture(subActive bool, postsToday int, sendErr, newsErr error) *fixture {
	subs := &stubSubRepo{active: subActive}
	postLog := &stubPostLog{count: postsToday}
	sender := &stubSender{err: sendErr}
	notifier := &stubNotifier{}
	configs := &stubConfigRepo{}
	guard := quota.NewGuard(subs, postLog, 3)
	svc := NewService(guard, stubUserRepo{}, configs, postLog, stubNews{err: newsErr}, stubRenderer{}, sender, notifier, zerolog.Nop())
	return &fixture{svc: svc, postLog: postLog, sender: sender, notifier: notifier, configs: configs}
}

func TestDeliverGuardedSuccess(t *testing.T) {
	f := newFixture(true, 0, nil, nil)

	err := f.svc.DeliverGuarded(context.Background(), 1, "@channel", "tech", "formal", domain.PostCauseRecurring)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("ожидалась одна доставка, получили %d", len(f.sender.sent))
	}
	if f.postLog.recorded != 1 {
		t.Fatalf("ожидалась одна запись в журнале, получили %d", f.postLog.recorded)
	}
	if len(f.notifier.messages) != 1 || !strings.Contains(f.notifier.messages[0], "1/3") {
		t.Fatalf("ожидалось уведомление со счётчиком 1/3, получили %v", f.notifier.messages)
	}
}

func TestDeliverGuardedWithoutSubscription(t *testing.T) {
	f := newFixture(false, 0, nil, nil)

	err := f.svc.DeliverGuarded(context.Background(), 1, "@channel", "tech", "formal", domain.PostCauseRecurring)
	if !errors.Is(err, ErrNoSubscription) {
		t.Fatalf("ожидалась ошибка отсутствия подписки, получили %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("без подписки доставки быть не должно")
	}
	if f.postLog.recorded != 0 {
		t.Fatal("без доставки журнал не пополняется")
	}
}

func TestDeliverGuardedScheduledAtLimit(t *testing.T) {
	f := newFixture(true, 3, nil, nil)

	err := f.svc.DeliverGuarded(context.Background(), 1, "@channel", "tech", "formal", domain.PostCauseRecurring)
	if !errors.Is(err, ErrDailyLimit) {
		t.Fatalf("ожидалась ошибка лимита, получили %v", err)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("при достигнутом лимите доставки быть не должно")
	}
}

func TestDeliverGuardedManualAtLimit(t *testing.T) {
	f := newFixture(true, 3, nil, nil)

	err := f.svc.DeliverGuarded(context.Background(), 1, "@channel", "tech", "formal", domain.PostCauseManual)
	if err != nil {
		t.Fatalf("ручная отправка подписчика не должна блокироваться лимитом: %v", err)
	}
	if len(f.sender.sent) != 1 {
		t.Fatalf("ожидалась одна доставка, получили %d", len(f.sender.sent))
	}
}

func TestDeliverGuardedDeliveryFailure(t *testing.T) {
	f := newFixture(true, 0, domain.ErrForbidden, nil)

	err := f.svc.DeliverGuarded(context.Background(), 1, "@channel", "tech", "formal", domain.PostCauseRecurring)
	if err == nil {
		t.Fatal("ожидалась ошибка доставки")
	}
	if f.postLog.recorded != 0 {
		t.Fatal("неудачная доставка не должна попадать в журнал")
	}
	if len(f.notifier.messages) != 1 || !strings.Contains(f.notifier.messages[0], "нет прав") {
		t.Fatalf("ожидалось уведомление об отсутствии прав, получили %v", f.notifier.messages)
	}
}

func TestDeliverGuardedNewsFailure(t *testing.T) {
	f := newFixture(true, 0, nil, domain.ErrNoNews)

	err := f.svc.DeliverGuarded(context.Background(), 1, "@channel", "tech", "formal", domain.PostCauseRecurring)
	if err == nil {
		t.Fatal("ожидалась ошибка получения новости")
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("без новости доставка не должна вызываться")
	}
	if f.postLog.recorded != 0 {
		t.Fatal("без доставки журнал не пополняется")
	}
}

func TestSaveConfigsBuildsGrid(t *testing.T) {
	f := newFixture(true, 0, nil, nil)

	err := f.svc.SaveConfigs(1, []string{"@a", "@b"}, []string{"tech", "business"}, "formal", 2, []string{"09:00", "21:00"}, false)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(f.configs.replaced) != 4 {
		t.Fatalf("ожидалось 4 настройки, получили %d", len(f.configs.replaced))
	}
	for _, cfg := range f.configs.replaced {
		if cfg.PostsPerDay != 2 || len(cfg.Times) != 2 {
			t.Fatalf("настройка должна нести общее расписание: %+v", cfg)
		}
	}
}

func TestSaveConfigsRejectsBadSlots(t *testing.T) {
	f := newFixture(true, 0, nil, nil)

	err := f.svc.SaveConfigs(1, []string{"@a"}, []string{"tech"}, "formal", 2, []string{"10:00", "22:00"}, false)
	if err == nil {
		t.Fatal("расписание вне фиксированных слотов должно отклоняться")
	}
}

func TestStatsAggregates(t *testing.T) {
	f := newFixture(true, 0, nil, nil)
	f.configs.active = []domain.AutopostConfig{
		{ChannelID: "@a", Category: "tech", PostsPerDay: 2},
		{ChannelID: "@a", Category: "business", PostsPerDay: 2},
		{ChannelID: "@b", Category: "tech", PostsPerDay: 1},
	}

	stats, err := f.svc.Stats(1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if stats.TotalConfigs != 3 || stats.UniqueChannels != 2 || stats.UniqueCategories != 2 || stats.TotalPostsPerDay != 5 {
		t.Fatalf("неверная агрегация: %+v", stats)
	}
}
