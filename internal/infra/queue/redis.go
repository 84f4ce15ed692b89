package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"news-autopost-bot/internal/domain"
	"news-autopost-bot/internal/infra/metrics"
)

// RedisPostQueue реализует очередь задач публикации на базе Redis.
// Немедленные задачи лежат в списке, отложенные — в sorted set со счётом,
// равным моменту срабатывания; Pop сначала переносит созревшие отложенные
// задачи в список, затем блокирующе читает из него.
type RedisPostQueue struct {
	client     *redis.Client
	key        string
	delayedKey string
}

// NewRedisPostQueue создаёт очередь по указанному ключу.
func NewRedisPostQueue(client *redis.Client, key string) *RedisPostQueue {
	return &RedisPostQueue{client: client, key: key, delayedKey: key + ":delayed"}
}

// Enqueue публикует задачу на немедленное выполнение.
func (q *RedisPostQueue) Enqueue(ctx context.Context, job domain.PostJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// EnqueueAt откладывает задачу до указанного момента.
func (q *RedisPostQueue) EnqueueAt(ctx context.Context, job domain.PostJob, fireAt time.Time) error {
	job.ScheduledFor = fireAt
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.ZAdd(ctx, q.delayedKey, redis.Z{
		Score:  float64(fireAt.Unix()),
		Member: payload,
	}).Err()
	metrics.ObserveNetworkRequest("redis", "zadd", q.delayedKey, start, err)
	if err != nil {
		return fmt.Errorf("schedule job: %w", err)
	}
	return nil
}

// Pop блокирующе читает следующую созревшую задачу.
func (q *RedisPostQueue) Pop(ctx context.Context) (domain.PostJob, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.PostJob{}, err
		}

		if err := q.promoteDue(ctx); err != nil && !errors.Is(err, redis.Nil) {
			return domain.PostJob{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.PostJob{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.PostJob{}, err
		}
		if len(res) != 2 {
			return domain.PostJob{}, errors.New("redis queue: unexpected response")
		}
		var job domain.PostJob
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			return domain.PostJob{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
}

// promoteDue переносит задачи с наступившим сроком из sorted set в список.
func (q *RedisPostQueue) promoteDue(ctx context.Context) error {
	now := time.Now().Unix()
	members, err := q.client.ZRangeByScore(ctx, q.delayedKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now),
		Count: 32,
	}).Result()
	if err != nil {
		return err
	}
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, q.delayedKey, member).Result()
		if err != nil {
			return err
		}
		// Другой воркер мог забрать задачу раньше.
		if removed == 0 {
			continue
		}
		if err := q.client.LPush(ctx, q.key, member).Err(); err != nil {
			return err
		}
	}
	return nil
}
