package unban

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ivankudzin/guardbot/internal/domain/model"
	redisrepo "github.com/ivankudzin/guardbot/internal/repo/redis"
	"github.com/ivankudzin/guardbot/internal/services/moderation"
)

type fakeQueue struct {
	mu       sync.Mutex
	due      []redisrepo.Job
	requeued []redisrepo.Job
}

func (f *fakeQueue) PopDue(_ context.Context, _ time.Time, _ int) ([]redisrepo.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := f.due
	f.due = nil
	return jobs, nil
}

func (f *fakeQueue) Requeue(_ context.Context, job redisrepo.Job, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requeued = append(f.requeued, job)
	return nil
}

type fakeUnbanner struct {
	mu    sync.Mutex
	calls []int64
	fail  bool
}

func (f *fakeUnbanner) Unban(_ context.Context, userID int64, actor model.Actor, _ string) model.ModerationResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	if actor.Kind != model.ActorKindSystem {
		panic("worker must act as a system actor")
	}
	if f.fail {
		return model.ModerationResult{Success: false, ErrorMessage: "chat directory unavailable"}
	}
	return model.ModerationResult{Success: true, ChatsAffected: 2}
}

func unbanJob(t *testing.T, userID int64, reason string) redisrepo.Job {
	t.Helper()
	payload, err := json.Marshal(moderation.UnbanJobPayload{UserID: userID, Reason: reason})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return redisrepo.Job{ID: "job-1", Type: moderation.JobTypeUnban, Payload: payload, DueAt: time.Now()}
}

func TestRunOnceExecutesDueUnban(t *testing.T) {
	queue := &fakeQueue{due: []redisrepo.Job{unbanJob(t, 42, "Temporary ban")}}
	mod := &fakeUnbanner{}
	w := NewWorker(queue, mod, time.Second, nil)

	w.runOnce(context.Background())

	if len(mod.calls) != 1 || mod.calls[0] != 42 {
		t.Fatalf("expected one unban for user 42, got %v", mod.calls)
	}
	if len(queue.requeued) != 0 {
		t.Fatalf("successful job must not be requeued")
	}
}

func TestRunOnceRequeuesFailedUnban(t *testing.T) {
	queue := &fakeQueue{due: []redisrepo.Job{unbanJob(t, 42, "Temporary ban")}}
	mod := &fakeUnbanner{fail: true}
	w := NewWorker(queue, mod, time.Second, nil)

	w.runOnce(context.Background())

	if len(queue.requeued) != 1 {
		t.Fatalf("expected the failed job back on the queue, got %d", len(queue.requeued))
	}
	if queue.requeued[0].ID != "job-1" {
		t.Fatalf("requeued job id = %q, want job-1", queue.requeued[0].ID)
	}
}

func TestRunOnceDropsUnknownJobType(t *testing.T) {
	queue := &fakeQueue{due: []redisrepo.Job{{ID: "job-x", Type: "digest", Payload: json.RawMessage(`{}`)}}}
	mod := &fakeUnbanner{}
	w := NewWorker(queue, mod, time.Second, nil)

	w.runOnce(context.Background())

	if len(mod.calls) != 0 {
		t.Fatalf("unknown job type must not reach the moderation layer")
	}
	if len(queue.requeued) != 0 {
		t.Fatalf("unknown job type must be dropped, not requeued")
	}
}
