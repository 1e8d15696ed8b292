package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore is a Redis implementation of Store[S].
//
// Layout, relative to the key prefix:
//
//	runs                    ZSET  runID scored by last update (unix ms)
//	run:<id>:steps          HASH  step number -> envelope JSON
//	run:<id>:checkpoints    SET   checkpoint IDs belonging to the run
//	checkpoint:<cpID>       STRING envelope JSON
type RedisStore[S any] struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a RedisStore.
type RedisOption func(*redisOptions)

type redisOptions struct {
	prefix string
	ttl    time.Duration
}

// WithKeyPrefix sets the key prefix. Default "litreview:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(o *redisOptions) { o.prefix = prefix }
}

// WithTTL expires run data ttl after the last write. Zero keeps data forever.
func WithTTL(ttl time.Duration) RedisOption {
	return func(o *redisOptions) { o.ttl = ttl }
}

type redisEnvelope struct {
	RunID     string          `json:"run_id"`
	Step      int             `json:"step"`
	NodeID    string          `json:"node_id,omitempty"`
	Next      string          `json:"next,omitempty"`
	State     json.RawMessage `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewRedisStore connects to Redis at addr and verifies the connection.
func NewRedisStore[S any](ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore[S], error) {
	client := backend.NewClient(&backend.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisStoreFromClient[S](client, opts...), nil
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient[S any](client *backend.Client, opts ...RedisOption) *RedisStore[S] {
	o := redisOptions{prefix: "litreview:"}
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisStore[S]{client: client, prefix: o.prefix, ttl: o.ttl}
}

func (r *RedisStore[S]) indexKey() string               { return r.prefix + "runs" }
func (r *RedisStore[S]) stepsKey(runID string) string   { return r.prefix + "run:" + runID + ":steps" }
func (r *RedisStore[S]) cpSetKey(runID string) string   { return r.prefix + "run:" + runID + ":checkpoints" }
func (r *RedisStore[S]) checkpointKey(id string) string { return r.prefix + "checkpoint:" + id }

// SaveStep implements Store.
func (r *RedisStore[S]) SaveStep(ctx context.Context, runID string, rec StepRecord[S]) error {
	state, err := json.Marshal(rec.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	now := time.Now().UTC()
	env, err := json.Marshal(redisEnvelope{
		RunID:     runID,
		Step:      rec.Step,
		NodeID:    rec.NodeID,
		Next:      rec.Next,
		State:     state,
		CreatedAt: now,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal step: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, r.stepsKey(runID), strconv.Itoa(rec.Step), env)
	pipe.ZAdd(ctx, r.indexKey(), backend.Z{Score: float64(now.UnixMilli()), Member: runID})
	if r.ttl > 0 {
		pipe.Expire(ctx, r.stepsKey(runID), r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save step to redis: %w", err)
	}
	return nil
}

func (r *RedisStore[S]) latestEnvelope(ctx context.Context, runID string) (redisEnvelope, int, error) {
	all, err := r.client.HGetAll(ctx, r.stepsKey(runID)).Result()
	if err != nil {
		return redisEnvelope{}, 0, fmt.Errorf("failed to load steps from redis: %w", err)
	}
	if len(all) == 0 {
		return redisEnvelope{}, 0, ErrNotFound
	}

	best := -1
	var raw string
	for field, v := range all {
		n, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		if n > best {
			best, raw = n, v
		}
	}
	if best < 0 {
		return redisEnvelope{}, 0, ErrNotFound
	}

	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return redisEnvelope{}, 0, fmt.Errorf("failed to unmarshal step: %w", err)
	}
	return env, len(all), nil
}

// LoadLatest implements Store.
func (r *RedisStore[S]) LoadLatest(ctx context.Context, runID string) (StepRecord[S], error) {
	env, _, err := r.latestEnvelope(ctx, runID)
	if err != nil {
		return StepRecord[S]{}, err
	}

	rec := StepRecord[S]{Step: env.Step, NodeID: env.NodeID, Next: env.Next, CreatedAt: env.CreatedAt}
	if err := json.Unmarshal(env.State, &rec.State); err != nil {
		return StepRecord[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return rec, nil
}

// SaveCheckpoint implements Store.
func (r *RedisStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	state, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	env, err := json.Marshal(redisEnvelope{
		RunID:     cp.RunID,
		Step:      cp.Step,
		Next:      cp.Next,
		State:     state,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, r.checkpointKey(cp.ID), env, r.ttl)
	if cp.RunID != "" {
		pipe.SAdd(ctx, r.cpSetKey(cp.RunID), cp.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save checkpoint to redis: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (r *RedisStore[S]) LoadCheckpoint(ctx context.Context, cpID string) (Checkpoint[S], error) {
	raw, err := r.client.Get(ctx, r.checkpointKey(cpID)).Result()
	if errors.Is(err, backend.Nil) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint from redis: %w", err)
	}

	var env redisEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	cp := Checkpoint[S]{ID: cpID, RunID: env.RunID, Step: env.Step, Next: env.Next, CreatedAt: env.CreatedAt}
	if err := json.Unmarshal(env.State, &cp.State); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return cp, nil
}

// ListRuns implements Store. Runs whose step hash has expired are pruned
// from the index lazily.
func (r *RedisStore[S]) ListRuns(ctx context.Context) ([]RunSummary, error) {
	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs from redis: %w", err)
	}

	runs := []RunSummary{}
	for _, id := range ids {
		env, count, err := r.latestEnvelope(ctx, id)
		if errors.Is(err, ErrNotFound) {
			r.client.ZRem(ctx, r.indexKey(), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		runs = append(runs, RunSummary{
			RunID:     id,
			Steps:     count,
			LastNode:  env.NodeID,
			Next:      env.Next,
			UpdatedAt: env.CreatedAt,
		})
	}
	sortSummaries(runs)
	return runs, nil
}

// DeleteRun implements Store.
func (r *RedisStore[S]) DeleteRun(ctx context.Context, runID string) error {
	exists, err := r.client.Exists(ctx, r.stepsKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check run in redis: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	cpIDs, err := r.client.SMembers(ctx, r.cpSetKey(runID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list checkpoints in redis: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, r.stepsKey(runID), r.cpSetKey(runID))
	for _, id := range cpIDs {
		pipe.Del(ctx, r.checkpointKey(id))
	}
	pipe.ZRem(ctx, r.indexKey(), runID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete run from redis: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (r *RedisStore[S]) Close() error {
	return r.client.Close()
}
