package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

var (
	_ domain.UserRepo         = (*Postgres)(nil)
	_ domain.SubscriptionRepo = (*Postgres)(nil)
	_ domain.AutopostRepo     = (*Postgres)(nil)
	_ domain.PostLogRepo      = (*Postgres)(nil)
	_ domain.TestPostRepo     = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД. Границы календарного дня для подсчёта квоты
// вычисляются в переданном часовом поясе.
func NewPostgres(pool *pgxpool.Pool, loc *time.Location) *Postgres {
	if loc == nil {
		loc = time.UTC
	}
	return &Postgres{pool: pool, loc: loc}
}

func (p *Postgres) connCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// UpsertByTGID реализует domain.UserRepo.
func (p *Postgres) UpsertByTGID(tgUserID int64, username, language string) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var user domain.User
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO users (tg_user_id, username, language)
VALUES ($1, NULLIF($2,''), COALESCE(NULLIF($3,''),'ru'))
ON CONFLICT (tg_user_id) DO UPDATE SET username = COALESCE(EXCLUDED.username, users.username), updated_at = now()
RETURNING id, tg_user_id, COALESCE(username,''), language, created_at, updated_at
`, tgUserID, strings.TrimSpace(username), strings.TrimSpace(language)).
		Scan(&user.ID, &user.TGUserID, &user.Username, &user.Language, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_upsert", "users", start, err)
	return user, err
}

// GetByTGID возвращает пользователя по Telegram ID.
func (p *Postgres) GetByTGID(tgUserID int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var user domain.User
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, COALESCE(username,''), language, created_at, updated_at
FROM users WHERE tg_user_id=$1
`, tgUserID).Scan(&user.ID, &user.TGUserID, &user.Username, &user.Language, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_tgid", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, err
}

// GetByID возвращает пользователя по внутреннему идентификатору.
func (p *Postgres) GetByID(id int64) (domain.User, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var user domain.User
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, tg_user_id, COALESCE(username,''), language, created_at, updated_at
FROM users WHERE id=$1
`, id).Scan(&user.ID, &user.TGUserID, &user.Username, &user.Language, &user.CreatedAt, &user.UpdatedAt)
	metrics.ObserveNetworkRequest("postgres", "users_get_by_id", "users", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.User{}, domain.ErrNotFound
	}
	return user, err
}

// ActiveForUser возвращает действующую подписку пользователя.
// При нескольких активных берётся с самым поздним истечением.
func (p *Postgres) ActiveForUser(userID int64, now time.Time) (domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var sub domain.Subscription
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, plan_days, expires_at, is_active, created_at
FROM subscriptions
WHERE user_id=$1 AND is_active AND expires_at > $2
ORDER BY expires_at DESC
LIMIT 1
`, userID, now).Scan(&sub.ID, &sub.UserID, &sub.PlanDays, &sub.ExpiresAt, &sub.IsActive, &sub.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_active_for_user", "subscriptions", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Subscription{}, domain.ErrNotFound
	}
	return sub, err
}

// Create сохраняет новую подписку.
func (p *Postgres) Create(userID int64, planDays int, expiresAt time.Time) (domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var sub domain.Subscription
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
INSERT INTO subscriptions (user_id, plan_days, expires_at, is_active)
VALUES ($1, $2, $3, true)
RETURNING id, user_id, plan_days, expires_at, is_active, created_at
`, userID, planDays, expiresAt).Scan(&sub.ID, &sub.UserID, &sub.PlanDays, &sub.ExpiresAt, &sub.IsActive, &sub.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_insert", "subscriptions", start, err)
	return sub, err
}

// ListExpiring возвращает активные подписки, истекающие в интервале (from, to].
func (p *Postgres) ListExpiring(from, to time.Time) ([]domain.Subscription, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, plan_days, expires_at, is_active, created_at
FROM subscriptions
WHERE is_active AND expires_at > $1 AND expires_at <= $2
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_list_expiring", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subs []domain.Subscription
	for rows.Next() {
		var s domain.Subscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.PlanDays, &s.ExpiresAt, &s.IsActive, &s.CreatedAt); err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// DeactivateExpired снимает флаг активности у истёкших подписок и возвращает
// идентификаторы затронутых пользователей.
func (p *Postgres) DeactivateExpired(now time.Time) ([]int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
UPDATE subscriptions SET is_active=false
WHERE is_active AND expires_at <= $1
RETURNING user_id
`, now)
	metrics.ObserveNetworkRequest("postgres", "subscriptions_deactivate_expired", "subscriptions", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var userIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		userIDs = append(userIDs, id)
	}
	return userIDs, rows.Err()
}

// ReplaceForUser заменяет настройки автопостинга пользователя целиком:
// старые активные деактивируются, новые вставляются одной транзакцией.
func (p *Postgres) ReplaceForUser(userID int64, configs []domain.AutopostConfig) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "autopost_configs", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `UPDATE autopost_configs SET is_active=false WHERE user_id=$1 AND is_active`, userID)
	metrics.ObserveNetworkRequest("postgres", "autopost_configs_deactivate", "autopost_configs", start, err)
	if err != nil {
		return err
	}

	for _, cfg := range configs {
		start = time.Now()
		_, err = tx.Exec(ctx, `
INSERT INTO autopost_configs (user_id, channel_id, category, style, posts_per_day, times, weekdays_only, is_active)
VALUES ($1, $2, $3, $4, $5, $6, $7, true)
`, userID, cfg.ChannelID, cfg.Category, cfg.Style, cfg.PostsPerDay, strings.Join(cfg.Times, ","), cfg.WeekdaysOnly)
		metrics.ObserveNetworkRequest("postgres", "autopost_configs_insert", "autopost_configs", start, err)
		if err != nil {
			return err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "autopost_configs", start, err)
	return err
}

// ListActiveForUser возвращает активные настройки пользователя.
func (p *Postgres) ListActiveForUser(userID int64) ([]domain.AutopostConfig, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, channel_id, category, style, posts_per_day, times, weekdays_only, is_active, created_at
FROM autopost_configs
WHERE user_id=$1 AND is_active
ORDER BY id
`, userID)
	metrics.ObserveNetworkRequest("postgres", "autopost_configs_list_for_user", "autopost_configs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

// ListActiveByTime возвращает активные настройки, расписание которых содержит hhmm.
// Выборка по LIKE сужает множество, точное совпадение перепроверяет вычислитель.
func (p *Postgres) ListActiveByTime(hhmm string) ([]domain.AutopostConfig, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, channel_id, category, style, posts_per_day, times, weekdays_only, is_active, created_at
FROM autopost_configs
WHERE is_active AND times LIKE '%' || $1 || '%'
ORDER BY id
`, hhmm)
	metrics.ObserveNetworkRequest("postgres", "autopost_configs_list_by_time", "autopost_configs", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanConfigs(rows)
}

// DeactivateForUser выключает все настройки пользователя.
func (p *Postgres) DeactivateForUser(userID int64) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE autopost_configs SET is_active=false WHERE user_id=$1 AND is_active`, userID)
	metrics.ObserveNetworkRequest("postgres", "autopost_configs_deactivate_for_user", "autopost_configs", start, err)
	return err
}

func scanConfigs(rows pgx.Rows) ([]domain.AutopostConfig, error) {
	var configs []domain.AutopostConfig
	for rows.Next() {
		var (
			cfg      domain.AutopostConfig
			rawTimes string
		)
		if err := rows.Scan(&cfg.ID, &cfg.UserID, &cfg.ChannelID, &cfg.Category, &cfg.Style,
			&cfg.PostsPerDay, &rawTimes, &cfg.WeekdaysOnly, &cfg.IsActive, &cfg.CreatedAt); err != nil {
			return nil, err
		}
		for _, t := range strings.Split(rawTimes, ",") {
			if trimmed := strings.TrimSpace(t); trimmed != "" {
				cfg.Times = append(cfg.Times, trimmed)
			}
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// Record фиксирует успешную доставку поста.
func (p *Postgres) Record(userID int64, channelID string, at time.Time) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO post_log (user_id, channel_id, created_at)
VALUES ($1, $2, $3)
`, userID, channelID, at)
	metrics.ObserveNetworkRequest("postgres", "post_log_insert", "post_log", start, err)
	return err
}

// CountToday считает доставленные посты пары (user, channel) за календарный
// день в часовом поясе системы.
func (p *Postgres) CountToday(userID int64, channelID string, now time.Time) (int, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	local := now.In(p.loc)
	dayStart := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, p.loc)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var count int
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM post_log
WHERE user_id=$1 AND channel_id=$2 AND created_at >= $3 AND created_at < $4
`, userID, channelID, dayStart, dayEnd).Scan(&count)
	metrics.ObserveNetworkRequest("postgres", "post_log_count_today", "post_log", start, err)
	return count, err
}

// LastForUser возвращает последний тестовый пост пользователя.
func (p *Postgres) LastForUser(userID int64) (domain.TestPostRecord, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	var rec domain.TestPostRecord
	start := time.Now()
	err := p.pool.QueryRow(ctx, `
SELECT id, user_id, channel_username, COALESCE(category,''), COALESCE(style,''), test_date, created_at
FROM test_post_records
WHERE user_id=$1
ORDER BY created_at DESC
LIMIT 1
`, userID).Scan(&rec.ID, &rec.UserID, &rec.ChannelUsername, &rec.Category, &rec.Style, &rec.TestDate, &rec.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "test_post_records_last", "test_post_records", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TestPostRecord{}, domain.ErrNotFound
	}
	return rec, err
}

// RecordTest сохраняет запись о тестовом посте.
func (p *Postgres) RecordTest(rec domain.TestPostRecord) error {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO test_post_records (user_id, channel_username, category, style, test_date, created_at)
VALUES ($1, $2, NULLIF($3,''), NULLIF($4,''), $5, $6)
`, rec.UserID, rec.ChannelUsername, rec.Category, rec.Style, rec.TestDate, rec.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "test_post_records_insert", "test_post_records", start, err)
	return err
}

// PurgeOlderThan удаляет записи тестовых постов старше указанной даты.
func (p *Postgres) PurgeOlderThan(cutoff time.Time) (int64, error) {
	ctx, cancel := p.connCtx()
	defer cancel()

	start := time.Now()
	res, err := p.pool.Exec(ctx, `DELETE FROM test_post_records WHERE test_date < $1`, cutoff)
	metrics.ObserveNetworkRequest("postgres", "test_post_records_purge", "test_post_records", start, err)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected(), nil
}
