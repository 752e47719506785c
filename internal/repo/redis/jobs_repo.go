package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const jobsKey = "jobs:deferred"

// popDueScript removes and returns every member whose score (due unix time)
// has passed, up to the requested limit. Pop and remove happen in one script
// so two pollers never execute the same job twice in a single pass.
const popDueScript = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])

local due = redis.call("ZRANGEBYSCORE", key, "-inf", now, "LIMIT", 0, limit)
for _, member in ipairs(due) do
	redis.call("ZREM", key, member)
end

return due
`

// Job is one deferred invocation. Delivery is at-least-once: a failed
// execution is re-scheduled by the worker.
type Job struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	DueAt   time.Time       `json:"due_at"`
}

type JobsRepo struct {
	client *goredis.Client
}

func NewJobsRepo(client *goredis.Client) *JobsRepo {
	return &JobsRepo{client: client}
}

func (r *JobsRepo) Schedule(ctx context.Context, jobType string, payload interface{}, delay time.Duration) (string, error) {
	if r.client == nil {
		return "", fmt.Errorf("redis client is nil")
	}
	if strings.TrimSpace(jobType) == "" {
		return "", fmt.Errorf("job type is required")
	}
	if delay < 0 {
		delay = 0
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	job := Job{
		ID:      uuid.NewString(),
		Type:    jobType,
		Payload: raw,
		DueAt:   time.Now().UTC().Add(delay),
	}

	member, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job: %w", err)
	}

	if err := r.client.ZAdd(ctx, jobsKey, goredis.Z{
		Score:  float64(job.DueAt.Unix()),
		Member: member,
	}).Err(); err != nil {
		return "", fmt.Errorf("schedule job: %w", err)
	}

	return job.ID, nil
}

// Requeue puts a job back with a fresh delay after a failed execution.
func (r *JobsRepo) Requeue(ctx context.Context, job Job, delay time.Duration) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	if delay <= 0 {
		delay = time.Minute
	}

	job.DueAt = time.Now().UTC().Add(delay)
	member, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := r.client.ZAdd(ctx, jobsKey, goredis.Z{
		Score:  float64(job.DueAt.Unix()),
		Member: member,
	}).Err(); err != nil {
		return fmt.Errorf("requeue job: %w", err)
	}

	return nil
}

func (r *JobsRepo) PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 {
		limit = 10
	}

	raw, err := r.client.Eval(ctx, popDueScript, []string{jobsKey}, now.Unix(), limit).Result()
	if err != nil {
		return nil, fmt.Errorf("pop due jobs: %w", err)
	}

	members, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected pop script result type %T", raw)
	}

	jobs := make([]Job, 0, len(members))
	for _, member := range members {
		text, ok := member.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected job member type %T", member)
		}
		var job Job
		if err := json.Unmarshal([]byte(text), &job); err != nil {
			return nil, fmt.Errorf("unmarshal job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, nil
}
