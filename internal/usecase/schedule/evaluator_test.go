package schedule

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"news-autopost-bot/internal/domain"
)

type stubConfigRepo struct {
	byTime map[string][]domain.AutopostConfig
}

func (s *stubConfigRepo) ReplaceForUser(userID int64, configs []domain.AutopostConfig) error {
	return nil
}

func (s *stubConfigRepo) ListActiveForUser(userID int64) ([]domain.AutopostConfig, error) {
	return nil, nil
}

func (s *stubConfigRepo) ListActiveByTime(hhmm string) ([]domain.AutopostConfig, error) {
	return s.byTime[hhmm], nil
}

func (s *stubConfigRepo) DeactivateForUser(userID int64) error { return nil }

type stubSubRepo struct {
	activeUsers map[int64]bool
}

func (s *stubSubRepo) ActiveForUser(userID int64, now time.Time) (domain.Subscription, error) {
	if !s.activeUsers[userID] {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return domain.Subscription{UserID: userID, IsActive: true, ExpiresAt: now.Add(time.Hour)}, nil
}

func (s *stubSubRepo) Create(userID int64, planDays int, expiresAt time.Time) (domain.Subscription, error) {
	return domain.Subscription{}, nil
}

func (s *stubSubRepo) ListExpiring(from, to time.Time) ([]domain.Subscription, error) {
	return nil, nil
}

func (s *stubSubRepo) DeactivateExpired(now time.Time) ([]int64, error) { return nil, nil }

type stubQueue struct {
	jobs    []domain.PostJob
	delayed []domain.PostJob
	fireAts []time.Time
	err     error
	failFor string
}

func (s *stubQueue) Enqueue(ctx context.Context, job domain.PostJob) error {
	if s.err != nil {
		return s.err
	}
	if s.failFor != "" && job.ChannelID == s.failFor {
		return errors.New("очередь недоступна")
	}
	s.jobs = append(s.jobs, job)
	return nil
}

func (s *stubQueue) EnqueueAt(ctx context.Context, job domain.PostJob, fireAt time.Time) error {
	if s.err != nil {
		return s.err
	}
	s.delayed = append(s.delayed, job)
	s.fireAts = append(s.fireAts, fireAt)
	return nil
}

func (s *stubQueue) Pop(ctx context.Context) (domain.PostJob, error) {
	return domain.PostJob{}, nil
}

// Понедельник, 09:00 UTC.
var monday9 = time.Date(2026, time.September, 7, 9, 0, 0, 0, time.UTC)

func newEvaluator(configs *stubConfigRepo, subs *stubSubRepo, queue *stubQueue, at time.Time) *Evaluator {
	e := NewEvaluator(configs, subs, queue, time.UTC, 5*time.Minute, time.Hour, zerolog.Nop())
	e.now = func() time.Time { return at }
	return e
}

func TestTickEnqueuesDueConfigs(t *testing.T) {
	configs := &stubConfigRepo{byTime: map[string][]domain.AutopostConfig{
		"09:00": {
			{ID: 1, UserID: 1, ChannelID: "@a", Category: "tech", Style: "formal", Times: []string{"09:00"}, IsActive: true},
			{ID: 2, UserID: 2, ChannelID: "@b", Category: "business", Style: "casual", Times: []string{"09:00", "21:00"}, IsActive: true},
		},
	}}
	subs := &stubSubRepo{activeUsers: map[int64]bool{1: true, 2: true}}
	queue := &stubQueue{}
	ev := newEvaluator(configs, subs, queue, monday9)

	if err := ev.Tick(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("ожидались 2 задачи, получили %d", len(queue.jobs))
	}
	if queue.jobs[0].Cause != domain.PostCauseRecurring {
		t.Fatalf("неверная причина задачи: %s", queue.jobs[0].Cause)
	}
}

func TestTickSkipsLapsedSubscription(t *testing.T) {
	configs := &stubConfigRepo{byTime: map[string][]domain.AutopostConfig{
		"09:00": {{ID: 1, UserID: 1, ChannelID: "@a", Times: []string{"09:00"}, IsActive: true}},
	}}
	subs := &stubSubRepo{activeUsers: map[int64]bool{}}
	queue := &stubQueue{}
	ev := newEvaluator(configs, subs, queue, monday9)

	if err := ev.Tick(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("настройка без действующей подписки не должна срабатывать")
	}
}

func TestTickSkipsWeekendForWeekdaysOnly(t *testing.T) {
	saturday9 := time.Date(2026, time.September, 5, 9, 0, 0, 0, time.UTC)
	configs := &stubConfigRepo{byTime: map[string][]domain.AutopostConfig{
		"09:00": {
			{ID: 1, UserID: 1, ChannelID: "@a", Times: []string{"09:00"}, WeekdaysOnly: true, IsActive: true},
			{ID: 2, UserID: 1, ChannelID: "@b", Times: []string{"09:00"}, IsActive: true},
		},
	}}
	subs := &stubSubRepo{activeUsers: map[int64]bool{1: true}}
	queue := &stubQueue{}
	ev := newEvaluator(configs, subs, queue, saturday9)

	if err := ev.Tick(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].ChannelID != "@b" {
		t.Fatalf("в выходной должна сработать только настройка без ограничения: %+v", queue.jobs)
	}
}

func TestTickIgnoresPartialTimeMatch(t *testing.T) {
	// Выборка по LIKE из БД может вернуть лишние строки.
	configs := &stubConfigRepo{byTime: map[string][]domain.AutopostConfig{
		"09:00": {{ID: 1, UserID: 1, ChannelID: "@a", Times: []string{"21:00"}, IsActive: true}},
	}}
	subs := &stubSubRepo{activeUsers: map[int64]bool{1: true}}
	queue := &stubQueue{}
	ev := newEvaluator(configs, subs, queue, monday9)

	if err := ev.Tick(context.Background()); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 0 {
		t.Fatal("без точного совпадения времени задача не ставится")
	}
}

func TestTickIsolatesEnqueueFailure(t *testing.T) {
	configs := &stubConfigRepo{byTime: map[string][]domain.AutopostConfig{
		"09:00": {
			{ID: 1, UserID: 1, ChannelID: "@a", Times: []string{"09:00"}, IsActive: true},
			{ID: 2, UserID: 1, ChannelID: "@b", Times: []string{"09:00"}, IsActive: true},
			{ID: 3, UserID: 1, ChannelID: "@c", Times: []string{"09:00"}, IsActive: true},
		},
	}}
	subs := &stubSubRepo{activeUsers: map[int64]bool{1: true}}
	queue := &stubQueue{failFor: "@b"}
	ev := newEvaluator(configs, subs, queue, monday9)

	if err := ev.Tick(context.Background()); err != nil {
		t.Fatalf("отказ одной настройки не должен проваливать обход: %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("остальные настройки должны сработать, получили %d", len(queue.jobs))
	}
	for _, job := range queue.jobs {
		if job.ChannelID == "@b" {
			t.Fatal("неудачная постановка не должна попадать в очередь")
		}
	}
}

func TestResyncCatchesMissedSlots(t *testing.T) {
	configs := &stubConfigRepo{byTime: map[string][]domain.AutopostConfig{
		"09:00": {{ID: 1, UserID: 1, ChannelID: "@a", Times: []string{"09:00"}, IsActive: true}},
		"09:05": {{ID: 2, UserID: 1, ChannelID: "@b", Times: []string{"09:05"}, IsActive: true}},
	}}
	subs := &stubSubRepo{activeUsers: map[int64]bool{1: true}}
	queue := &stubQueue{}
	ev := newEvaluator(configs, subs, queue, monday9.Add(6*time.Minute))

	since := monday9.Add(-time.Minute)
	if err := ev.Resync(context.Background(), since); err != nil {
		t.Fatalf("неожиданная ошибка: %v", err)
	}
	if len(queue.jobs) != 2 {
		t.Fatalf("после простоя должны добраться оба слота, получили %d", len(queue.jobs))
	}
}
