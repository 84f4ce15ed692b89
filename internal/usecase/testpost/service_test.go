package testpost

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
)

type stubTestRepo struct {
	last     domain.TestPostRecord
	lastErr  error
	recorded []domain.TestPostRecord
}

func (s *stubTestRepo) LastForUser(userID int64) (domain.TestPostRecord, error) {
	if s.lastErr != nil {
		return domain.TestPostRecord{}, s.lastErr
	}
	return s.last, nil
}

func (s *stubTestRepo) RecordTest(rec domain.TestPostRecord) error {
	s.recorded = append(s.recorded, rec)
	return nil
}

func (s *stubTestRepo) PurgeOlderThan(cutoff time.Time) (int64, error) { return 0, nil }

type stubSubRepo struct {
	sub domain.Subscription
	err error
}

func (s *stubSubRepo) ActiveForUser(userID int64, now time.Time) (domain.Subscription, error) {
	if s.err != nil {
		return domain.Subscription{}, s.err
	}
	return s.sub, nil
}

func (s *stubSubRepo) Create(userID int64, planDays int, expiresAt time.Time) (domain.Subscription, error) {
	return domain.Subscription{}, nil
}

func (s *stubSubRepo) ListExpiring(from, to time.Time) ([]domain.Subscription, error) {
	return nil, nil
}

func (s *stubSubRepo) DeactivateExpired(now time.Time) ([]int64, error) { return nil, nil }

type stubNews struct{}

func (stubNews) FetchOne(ctx context.Context, category string) (domain.NewsItem, error) {
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
	return domain.ChannelAccess{IsAdmin: true, CanPost: true}, nil
}

func newTestService(tests *stubTestRepo, subs *stubSubRepo, sender *stubSender) *Service {
	return NewService(tests, subs, stubNews{}, stubRenderer{}, sender, 24*time.Hour, zerolog.Nop())
}

func TestCanCreateFirstTime(t *testing.T) {
	svc := newTestService(&stubTestRepo{lastErr: domain.ErrNotFound}, &stubSubRepo{err: domain.ErrNotFound}, &stubSender{})

	ok, _, err := svc.CanCreate(1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !ok {
		t.Fatal("первый тестовый пост должен быть доступен")
	}
}

func TestCanCreateWithinCooldown(t *testing.T) {
	tests := &stubTestRepo{last: domain.TestPostRecord{UserID: 1}}
	svc := newTestService(tests, &stubSubRepo{err: domain.ErrNotFound}, &stubSender{})

	now := time.Now()
	tests.last.TestDate = now.Add(-1 * time.Hour)
	svc.now = func() time.Time { return now }

	ok, remaining, err := svc.CanCreate(1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if ok {
		t.Fatal("повторный тестовый пост в пределах суток должен быть запрещён")
	}
	if got := FormatRemaining(remaining); got != "23ч 0м" {
		t.Fatalf("неверный остаток интервала: %s", got)
	}
}

func TestCanCreateAfterCooldown(t *testing.T) {
	tests := &stubTestRepo{last: domain.TestPostRecord{UserID: 1}}
	svc := newTestService(tests, &stubSubRepo{err: domain.ErrNotFound}, &stubSender{})

	now := time.Now()
	tests.last.TestDate = now.Add(-25 * time.Hour)
	svc.now = func() time.Time { return now }

	ok, _, err := svc.CanCreate(1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !ok {
		t.Fatal("после истечения интервала тестовый пост должен быть доступен")
	}
}

func TestCanCreateSubscriberBypassesCooldown(t *testing.T) {
	now := time.Now()
	tests := &stubTestRepo{last: domain.TestPostRecord{UserID: 1, TestDate: now.Add(-time.Minute)}}
	subs := &stubSubRepo{sub: domain.Subscription{IsActive: true, ExpiresAt: now.Add(time.Hour)}}
	svc := newTestService(tests, subs, &stubSender{})
	svc.now = func() time.Time { return now }

	ok, _, err := svc.CanCreate(1)
	if err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if !ok {
		t.Fatal("подписчик не должен ограничиваться интервалом тестовых постов")
	}
}

func TestSendTestDeliversAndRecords(t *testing.T) {
	tests := &stubTestRepo{lastErr: domain.ErrNotFound}
	sender := &stubSender{}
	svc := newTestService(tests, &stubSubRepo{err: domain.ErrNotFound}, sender)

	if err := svc.SendTest(context.Background(), 1, "@channel", "tech", "formal"); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("ожидалась одна доставка, получили %d", len(sender.sent))
	}
	if !strings.Contains(sender.sent[0], "ТЕСТОВЫЙ ПОСТ") {
		t.Fatal("тестовый пост должен содержать пометку")
	}
	if len(tests.recorded) != 1 {
		t.Fatalf("ожидалась одна запись, получили %d", len(tests.recorded))
	}
}

func TestSendTestDeliveryFailureNotRecorded(t *testing.T) {
	tests := &stubTestRepo{lastErr: domain.ErrNotFound}
	sender := &stubSender{err: domain.ErrForbidden}
	svc := newTestService(tests, &stubSubRepo{err: domain.ErrNotFound}, sender)

	err := svc.SendTest(context.Background(), 1, "@channel", "tech", "formal")
	if !errors.Is(err, domain.ErrForbidden) {
		t.Fatalf("ошибка доставки должна возвращаться наружу, получили %v", err)
	}
	if len(tests.recorded) != 0 {
		t.Fatalf("неудачная доставка не должна записываться, записей %d", len(tests.recorded))
	}
}

func TestSendTestRateLimited(t *testing.T) {
	now := time.Now()
	tests := &stubTestRepo{last: domain.TestPostRecord{UserID: 1, TestDate: now.Add(-2 * time.Hour)}}
	sender := &stubSender{}
	svc := newTestService(tests, &stubSubRepo{err: domain.ErrNotFound}, sender)
	svc.now = func() time.Time { return now }

	err := svc.SendTest(context.Background(), 1, "@channel", "tech", "formal")
	var rateErr *RateLimitedError
	if !errors.As(err, &rateErr) {
		t.Fatalf("ожидалась ошибка лимита, получили %v", err)
	}
	if len(sender.sent) != 0 {
		t.Fatal("при отказе лимита доставки быть не должно")
	}
}
