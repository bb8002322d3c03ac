package queue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Keys per queue, all under "<prefix>:<queue>:":
//
//	job:<id>   hash with the job fields
//	wait       list of ready job ids, oldest first
//	active     zset of claimed ids scored by lock expiry (ms)
//	delayed    zset of retrying ids scored by run time (ms)
//	completed  zset of finished ids scored by finish time (ms)
//	failed     zset of terminally failed ids scored by finish time (ms)
//	stalled    list of ids failed by lock expiry, not yet taken by a worker
//
// Terminal job hashes carry a PEXPIRE equal to the queue retention, so the
// status lookup stops finding them once the window has passed.

var addScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 1 then
  return {0, redis.call("HGETALL", KEYS[1])}
end
redis.call("HSET", KEYS[1],
  "id", ARGV[1], "data", ARGV[2], "state", "waiting", "progress", "0",
  "attemptsMade", "0", "maxAttempts", ARGV[4], "createdAt", ARGV[3])
redis.call("RPUSH", KEYS[2], ARGV[1])
return {1, redis.call("HGETALL", KEYS[1])}
`)

// KEYS: wait, active, delayed, failed, stalled
// ARGV: job key prefix, now, lock ms, token, retention ms, stalled reason
var claimScript = redis.NewScript(`
local now = tonumber(ARGV[2])
local due = redis.call("ZRANGEBYSCORE", KEYS[3], "-inf", now)
for _, id in ipairs(due) do
  redis.call("ZREM", KEYS[3], id)
  redis.call("HSET", ARGV[1] .. id, "state", "waiting")
  redis.call("RPUSH", KEYS[1], id)
end
local stalled = redis.call("ZRANGEBYSCORE", KEYS[2], "-inf", now)
for i = #stalled, 1, -1 do
  local id = stalled[i]
  local key = ARGV[1] .. id
  redis.call("ZREM", KEYS[2], id)
  local made = tonumber(redis.call("HGET", key, "attemptsMade") or "0")
  local max = tonumber(redis.call("HGET", key, "maxAttempts") or "1")
  if made >= max then
    redis.call("HSET", key, "state", "failed", "failedReason", ARGV[6], "finishedAt", ARGV[2], "token", "")
    redis.call("ZADD", KEYS[4], now, id)
    redis.call("PEXPIRE", key, ARGV[5])
    redis.call("RPUSH", KEYS[5], id)
  else
    redis.call("HSET", key, "state", "waiting", "token", "")
    redis.call("LPUSH", KEYS[1], id)
  end
end
while true do
  local id = redis.call("LPOP", KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[1] .. id
  if redis.call("HGET", key, "state") == "waiting" then
    redis.call("HSET", key, "state", "active", "token", ARGV[4], "processedAt", ARGV[2])
    redis.call("HINCRBY", key, "attemptsMade", 1)
    redis.call("ZADD", KEYS[2], now + tonumber(ARGV[3]), id)
    return redis.call("HGETALL", key)
  end
end
`)

// KEYS: stalled
// ARGV: job key prefix
var takeStalledScript = redis.NewScript(`
local ids = redis.call("LRANGE", KEYS[1], 0, -1)
redis.call("DEL", KEYS[1])
local out = {}
for _, id in ipairs(ids) do
  local fields = redis.call("HGETALL", ARGV[1] .. id)
  if #fields > 0 then
    table.insert(out, fields)
  end
end
return out
`)

// KEYS: job, active, completed
// ARGV: id, token, result, now, retention ms
var completeScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") ~= ARGV[2] or not redis.call("ZSCORE", KEYS[2], ARGV[1]) then
  return -1
end
local now = tonumber(ARGV[4])
redis.call("ZREM", KEYS[2], ARGV[1])
redis.call("HSET", KEYS[1], "state", "completed", "result", ARGV[3], "finishedAt", ARGV[4], "token", "")
redis.call("ZADD", KEYS[3], now, ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
redis.call("ZREMRANGEBYSCORE", KEYS[3], "-inf", now - tonumber(ARGV[5]))
return 1
`)

// KEYS: job, active, delayed, failed
// ARGV: id, token, reason, now, retry delay ms, retention ms
var failScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") ~= ARGV[2] or not redis.call("ZSCORE", KEYS[2], ARGV[1]) then
  return -1
end
local now = tonumber(ARGV[4])
redis.call("ZREM", KEYS[2], ARGV[1])
local made = tonumber(redis.call("HGET", KEYS[1], "attemptsMade") or "0")
local max = tonumber(redis.call("HGET", KEYS[1], "maxAttempts") or "1")
if made < max then
  redis.call("HSET", KEYS[1], "state", "delayed", "failedReason", ARGV[3], "token", "")
  redis.call("ZADD", KEYS[3], now + tonumber(ARGV[5]), ARGV[1])
  return 1
end
redis.call("HSET", KEYS[1], "state", "failed", "failedReason", ARGV[3], "finishedAt", ARGV[4], "token", "")
redis.call("ZADD", KEYS[4], now, ARGV[1])
redis.call("PEXPIRE", KEYS[1], ARGV[6])
redis.call("ZREMRANGEBYSCORE", KEYS[4], "-inf", now - tonumber(ARGV[6]))
return 2
`)

// KEYS: job, active
// ARGV: id, token, progress
var progressScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], "token") ~= ARGV[2] or not redis.call("ZSCORE", KEYS[2], ARGV[1]) then
  return -1
end
redis.call("HSET", KEYS[1], "progress", ARGV[3])
return 1
`)

// RedisBackend stores jobs in Redis. Every state transition runs as a single
// Lua script so claims stay exclusive across worker processes.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
	now    Clock
}

// NewRedisBackend returns a backend using keys under prefix. A nil clock uses
// time.Now.
func NewRedisBackend(client redis.UniversalClient, prefix string, clock Clock) *RedisBackend {
	if clock == nil {
		clock = time.Now
	}
	if prefix == "" {
		prefix = "queue"
	}
	return &RedisBackend{client: client, prefix: prefix, now: clock}
}

func (b *RedisBackend) key(queue, suffix string) string {
	return b.prefix + ":" + queue + ":" + suffix
}

func (b *RedisBackend) jobKey(queue, id string) string {
	return b.key(queue, "job:"+id)
}

func (b *RedisBackend) Add(ctx context.Context, cfg Config, id string, data []byte) (*Job, bool, error) {
	res, err := addScript.Run(ctx, b.client,
		[]string{b.jobKey(cfg.Name, id), b.key(cfg.Name, "wait")},
		id, string(data), msec(b.now()), cfg.MaxAttempts,
	).Slice()
	if err != nil {
		return nil, false, unavailable(err)
	}
	if len(res) != 2 {
		return nil, false, fmt.Errorf("add job: unexpected reply %v", res)
	}
	created, _ := res[0].(int64)
	fields, _ := res[1].([]any)
	job, err := decodeJob(cfg.Name, fields)
	if err != nil {
		return nil, false, err
	}
	return job, created == 1, nil
}

func (b *RedisBackend) Claim(ctx context.Context, cfg Config, token string) (*Job, error) {
	res, err := claimScript.Run(ctx, b.client,
		[]string{b.key(cfg.Name, "wait"), b.key(cfg.Name, "active"), b.key(cfg.Name, "delayed"), b.key(cfg.Name, "failed"), b.key(cfg.Name, "stalled")},
		b.key(cfg.Name, "job:"), msec(b.now()), cfg.LockDuration.Milliseconds(), token, cfg.Retention.Milliseconds(), stalledReason,
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return decodeJob(cfg.Name, res)
}

func (b *RedisBackend) Complete(ctx context.Context, cfg Config, job *Job, result []byte) error {
	res, err := completeScript.Run(ctx, b.client,
		[]string{b.jobKey(cfg.Name, job.ID), b.key(cfg.Name, "active"), b.key(cfg.Name, "completed")},
		job.ID, job.Token, string(result), msec(b.now()), cfg.Retention.Milliseconds(),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res < 0 {
		return ErrLockLost
	}
	return nil
}

func (b *RedisBackend) Fail(ctx context.Context, cfg Config, job *Job, reason string) (State, error) {
	res, err := failScript.Run(ctx, b.client,
		[]string{b.jobKey(cfg.Name, job.ID), b.key(cfg.Name, "active"), b.key(cfg.Name, "delayed"), b.key(cfg.Name, "failed")},
		job.ID, job.Token, reason, msec(b.now()), cfg.RetryDelay(job.AttemptsMade).Milliseconds(), cfg.Retention.Milliseconds(),
	).Int64()
	if err != nil {
		return "", unavailable(err)
	}
	switch res {
	case 1:
		return StateDelayed, nil
	case 2:
		return StateFailed, nil
	default:
		return "", ErrLockLost
	}
}

func (b *RedisBackend) Progress(ctx context.Context, cfg Config, job *Job, progress int) error {
	res, err := progressScript.Run(ctx, b.client,
		[]string{b.jobKey(cfg.Name, job.ID), b.key(cfg.Name, "active")},
		job.ID, job.Token, clampProgress(progress),
	).Int64()
	if err != nil {
		return unavailable(err)
	}
	if res < 0 {
		return ErrLockLost
	}
	return nil
}

func (b *RedisBackend) TakeStalled(ctx context.Context, cfg Config) ([]*Job, error) {
	res, err := takeStalledScript.Run(ctx, b.client,
		[]string{b.key(cfg.Name, "stalled")},
		b.key(cfg.Name, "job:"),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, unavailable(err)
	}
	jobs := make([]*Job, 0, len(res))
	for _, item := range res {
		fields, ok := item.([]any)
		if !ok {
			return nil, fmt.Errorf("take stalled: unexpected reply %v", item)
		}
		job, err := decodeJob(cfg.Name, fields)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (b *RedisBackend) Get(ctx context.Context, queue, id string) (*Job, error) {
	fields, err := b.client.HGetAll(ctx, b.jobKey(queue, id)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	return jobFromMap(queue, fields)
}

func (b *RedisBackend) Counts(ctx context.Context, queue string) (map[State]int64, error) {
	pipe := b.client.Pipeline()
	wait := pipe.LLen(ctx, b.key(queue, "wait"))
	active := pipe.ZCard(ctx, b.key(queue, "active"))
	delayed := pipe.ZCard(ctx, b.key(queue, "delayed"))
	completed := pipe.ZCard(ctx, b.key(queue, "completed"))
	failed := pipe.ZCard(ctx, b.key(queue, "failed"))
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, unavailable(err)
	}
	return map[State]int64{
		StateWaiting:   wait.Val(),
		StateActive:    active.Val(),
		StateDelayed:   delayed.Val(),
		StateCompleted: completed.Val(),
		StateFailed:    failed.Val(),
	}, nil
}

func (b *RedisBackend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func decodeJob(queue string, flat []any) (*Job, error) {
	if len(flat)%2 != 0 {
		return nil, fmt.Errorf("decode job: odd field count %d", len(flat))
	}
	fields := make(map[string]string, len(flat)/2)
	for i := 0; i < len(flat); i += 2 {
		k, _ := flat[i].(string)
		v, _ := flat[i+1].(string)
		fields[k] = v
	}
	return jobFromMap(queue, fields)
}

func jobFromMap(queue string, f map[string]string) (*Job, error) {
	job := &Job{
		ID:           f["id"],
		Queue:        queue,
		State:        State(f["state"]),
		FailedReason: f["failedReason"],
		Token:        f["token"],
	}
	if d := f["data"]; d != "" {
		job.Data = []byte(d)
	}
	if r := f["result"]; r != "" {
		job.Result = []byte(r)
	}
	var err error
	if job.Progress, err = atoiField(f, "progress"); err != nil {
		return nil, err
	}
	if job.AttemptsMade, err = atoiField(f, "attemptsMade"); err != nil {
		return nil, err
	}
	if job.MaxAttempts, err = atoiField(f, "maxAttempts"); err != nil {
		return nil, err
	}
	created, err := msField(f, "createdAt")
	if err != nil {
		return nil, err
	}
	if created != nil {
		job.CreatedAt = *created
	}
	if job.ProcessedAt, err = msField(f, "processedAt"); err != nil {
		return nil, err
	}
	if job.FinishedAt, err = msField(f, "finishedAt"); err != nil {
		return nil, err
	}
	return job, nil
}

func atoiField(f map[string]string, name string) (int, error) {
	raw := f[name]
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("decode job field %s: %w", name, err)
	}
	return n, nil
}

func msField(f map[string]string, name string) (*time.Time, error) {
	raw := f[name]
	if raw == "" {
		return nil, nil
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("decode job field %s: %w", name, err)
	}
	t := time.UnixMilli(ms)
	return &t, nil
}

func msec(t time.Time) int64 {
	return t.UnixMilli()
}

var _ Backend = (*RedisBackend)(nil)
