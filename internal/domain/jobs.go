package domain

import (
	"context"
	"time"
)

// PostCause описывает источник запроса на публикацию.
type PostCause string

const (
	// PostCauseManual — пользователь запросил отправку вручную.
	PostCauseManual PostCause = "manual"
	// PostCauseRecurring — публикация по расписанию автопостинга.
	PostCauseRecurring PostCause = "recurring"
	// PostCauseOneShot — разовая публикация на заданное время.
	PostCauseOneShot PostCause = "oneshot"
)

// PostJob содержит информацию о задаче публикации одного поста.
type PostJob struct {
	ID           string    `json:"job_id"`
	UserID       int64     `json:"user_id"`
	ChannelID    string    `json:"channel_id"`
	Category     string    `json:"category"`
	Style        string    `json:"style"`
	Cause        PostCause `json:"cause"`
	ScheduledFor time.Time `json:"scheduled_for"`
	RequestedAt  time.Time `json:"requested_at"`
}

// PostJobQueue описывает очередь задач публикации. EnqueueAt откладывает
// выполнение до указанного момента; Pop блокирующе возвращает следующую
// задачу, срок которой наступил.
type PostJobQueue interface {
	Enqueue(ctx context.Context, job PostJob) error
	EnqueueAt(ctx context.Context, job PostJob, fireAt time.Time) error
	Pop(ctx context.Context) (PostJob, error)
}
