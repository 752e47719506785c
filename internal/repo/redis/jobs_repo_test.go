package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type testPayload struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

func TestScheduledJobBecomesDueAfterDelay(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewJobsRepo(client)

	jobID, err := repo.Schedule(context.Background(), "unban", testPayload{UserID: 42, Reason: "expiry"}, 2*time.Hour)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if jobID == "" {
		t.Fatalf("expected a job id")
	}

	early, err := repo.PopDue(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("pop before due: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("job must not be due yet, got %d", len(early))
	}

	due, err := repo.PopDue(context.Background(), time.Now().Add(3*time.Hour), 10)
	if err != nil {
		t.Fatalf("pop after due: %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("expected one due job, got %d", len(due))
	}
	if due[0].ID != jobID || due[0].Type != "unban" {
		t.Fatalf("unexpected job %+v", due[0])
	}

	var payload testPayload
	if err := json.Unmarshal(due[0].Payload, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID != 42 || payload.Reason != "expiry" {
		t.Fatalf("payload mismatch: %+v", payload)
	}
}

func TestPoppedJobIsRemovedAtomically(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewJobsRepo(client)

	if _, err := repo.Schedule(context.Background(), "unban", testPayload{UserID: 1}, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	first, err := repo.PopDue(context.Background(), time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("first pop: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected one job, got %d", len(first))
	}

	second, err := repo.PopDue(context.Background(), time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("second pop: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("a popped job must not be delivered twice, got %d", len(second))
	}
}

func TestRequeueDelaysTheJob(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewJobsRepo(client)

	if _, err := repo.Schedule(context.Background(), "unban", testPayload{UserID: 9}, 0); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	jobs, err := repo.PopDue(context.Background(), time.Now().Add(time.Second), 10)
	if err != nil || len(jobs) != 1 {
		t.Fatalf("pop: %v (%d jobs)", err, len(jobs))
	}

	if err := repo.Requeue(context.Background(), jobs[0], 10*time.Minute); err != nil {
		t.Fatalf("requeue: %v", err)
	}

	now, err := repo.PopDue(context.Background(), time.Now(), 10)
	if err != nil {
		t.Fatalf("pop after requeue: %v", err)
	}
	if len(now) != 0 {
		t.Fatalf("requeued job must not be due immediately")
	}

	later, err := repo.PopDue(context.Background(), time.Now().Add(11*time.Minute), 10)
	if err != nil {
		t.Fatalf("pop later: %v", err)
	}
	if len(later) != 1 || later[0].ID != jobs[0].ID {
		t.Fatalf("requeued job lost: %+v", later)
	}
}

func TestPopDueRespectsLimit(t *testing.T) {
	_, client := newTestRedis(t)
	repo := NewJobsRepo(client)

	for i := 0; i < 5; i++ {
		if _, err := repo.Schedule(context.Background(), "unban", testPayload{UserID: int64(i + 1)}, 0); err != nil {
			t.Fatalf("schedule %d: %v", i, err)
		}
	}

	batch, err := repo.PopDue(context.Background(), time.Now().Add(time.Second), 2)
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	if len(batch) != 2 {
		t.Fatalf("expected batch of 2, got %d", len(batch))
	}

	rest, err := repo.PopDue(context.Background(), time.Now().Add(time.Second), 10)
	if err != nil {
		t.Fatalf("pop rest: %v", err)
	}
	if len(rest) != 3 {
		t.Fatalf("expected 3 remaining jobs, got %d", len(rest))
	}
}
