package unban

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/ivankudzin/guardbot/internal/domain/model"
	redisrepo "github.com/ivankudzin/guardbot/internal/repo/redis"
	"github.com/ivankudzin/guardbot/internal/services/moderation"
)

const (
	actorName    = "tempban-expiry"
	defaultBatch = 10
	retryDelay   = time.Minute
)

// Queue is the deferred job backlog the worker drains.
type Queue interface {
	PopDue(ctx context.Context, now time.Time, limit int) ([]redisrepo.Job, error)
	Requeue(ctx context.Context, job redisrepo.Job, delay time.Duration) error
}

// Unbanner lifts an expired temporary ban.
type Unbanner interface {
	Unban(ctx context.Context, userID int64, actor model.Actor, reason string) model.ModerationResult
}

// Worker polls the deferred queue and executes due unban jobs. Delivery is
// at-least-once: a failed unban goes back on the queue with a short delay.
type Worker struct {
	queue    Queue
	mod      Unbanner
	interval time.Duration
	batch    int
	logger   *zap.Logger

	now func() time.Time
}

func NewWorker(queue Queue, mod Unbanner, interval time.Duration, logger *zap.Logger) *Worker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		queue:    queue,
		mod:      mod,
		interval: interval,
		batch:    defaultBatch,
		logger:   logger,
		now:      time.Now,
	}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

func (w *Worker) runOnce(ctx context.Context) {
	jobs, err := w.queue.PopDue(ctx, w.now().UTC(), w.batch)
	if err != nil {
		w.logger.Error("failed to pop due jobs", zap.Error(err))
		return
	}

	for _, job := range jobs {
		w.execute(ctx, job)
	}
}

func (w *Worker) execute(ctx context.Context, job redisrepo.Job) {
	if job.Type != moderation.JobTypeUnban {
		w.logger.Warn("dropping job of unknown type",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type))
		return
	}

	var payload moderation.UnbanJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		w.logger.Error("dropping job with undecodable payload",
			zap.String("job_id", job.ID),
			zap.Error(err))
		return
	}

	res := w.mod.Unban(ctx, payload.UserID, model.SystemActor(actorName), payload.Reason)
	if !res.Success {
		w.logger.Warn("unban job failed, requeueing",
			zap.String("job_id", job.ID),
			zap.Int64("user_id", payload.UserID),
			zap.String("error", res.ErrorMessage))
		if err := w.queue.Requeue(ctx, job, retryDelay); err != nil {
			w.logger.Error("failed to requeue job", zap.String("job_id", job.ID), zap.Error(err))
		}
		return
	}

	w.logger.Info("temporary ban lifted",
		zap.Int64("user_id", payload.UserID),
		zap.Int("chats_affected", res.ChatsAffected),
		zap.Int("chats_failed", res.ChatsFailed))
}
