package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trafficwatch/internal/violation/models"
	"trafficwatch/pkg/platform/sentinel"
)

const (
	defaultRedisPrefix = "trafficwatch:violations:"
	maxWatchRetries    = 3
	mgetBatchSize      = 500
)

// Redis stores violations as JSON documents with a sorted-set id index.
//
// Ids come from INCR so they are never reused, even when a write fails after
// allocation. Each record is written with a single SET, so readers never see
// a partial record. Writers in this process are serialized by mu; transitions
// also WATCH the record key to stay safe against writers elsewhere.
type Redis struct {
	client *redis.Client
	prefix string
	mu     sync.Mutex
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces all keys, e.g. per test.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// NewRedis constructs a Redis-backed store.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Redis) seqKey() string { return s.prefix + "seq" }
func (s *Redis) indexKey() string { return s.prefix + "ids" }
func (s *Redis) recordKey(id int64) string {
	return s.prefix + "record:" + strconv.FormatInt(id, 10)
}

func (s *Redis) Insert(ctx context.Context, v models.Violation, now time.Time) (models.Violation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return models.Violation{}, fmt.Errorf("allocate violation id: %w", classifyRedis(err))
	}
	v.ID = id
	v.Status = models.StatusDetected
	v.CreatedAt = now
	v.UpdatedAt = now

	data, err := json.Marshal(v)
	if err != nil {
		return models.Violation{}, fmt.Errorf("marshal violation: %w", err)
	}
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.recordKey(id), data, 0)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{Score: float64(id), Member: id})
		return nil
	})
	if err != nil {
		return models.Violation{}, fmt.Errorf("write violation: %w", classifyRedis(err))
	}
	return v, nil
}

func (s *Redis) Get(ctx context.Context, id int64) (models.Violation, error) {
	data, err := s.client.Get(ctx, s.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Violation{}, fmt.Errorf("violation %d: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return models.Violation{}, fmt.Errorf("find violation: %w", classifyRedis(err))
	}
	return decodeViolation(data)
}

func (s *Redis) List(ctx context.Context, filter models.Filter, page models.Page) ([]models.Violation, int, error) {
	members, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("read violation index: %w", classifyRedis(err))
	}

	if filter.IsEmpty() {
		start, end := page.Bounds(len(members))
		items, err := s.load(ctx, members[start:end])
		if err != nil {
			return nil, 0, err
		}
		return items, len(members), nil
	}

	all, err := s.load(ctx, members)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]models.Violation, 0)
	for _, v := range all {
		if filter.Matches(v) {
			matched = append(matched, v)
		}
	}
	start, end := page.Bounds(len(matched))
	return matched[start:end], len(matched), nil
}

func (s *Redis) Transition(ctx context.Context, id int64, to models.Status, now time.Time) (models.Violation, models.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.recordKey(id)
	var (
		updated models.Violation
		from    models.Status
	)
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("violation %d: %w", id, sentinel.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("find violation: %w", classifyRedis(err))
		}
		v, err := decodeViolation(data)
		if err != nil {
			return err
		}
		from = v.Status
		if !v.Status.CanTransitionTo(to) {
			return fmt.Errorf("violation %d %s -> %s: %w", id, v.Status, to, sentinel.ErrInvalidState)
		}
		v.ApplyTransition(to, now)
		next, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal violation: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		updated = v
		return nil
	}

	for attempt := 0; attempt < maxWatchRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return updated, from, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, sentinel.ErrNotFound) || errors.Is(err, sentinel.ErrInvalidState) {
			return models.Violation{}, "", err
		}
		return models.Violation{}, "", fmt.Errorf("transition violation: %w", classifyRedis(err))
	}
	return models.Violation{}, "", fmt.Errorf("transition violation %d: concurrent modification: %w", id, sentinel.ErrUnavailable)
}

func (s *Redis) Ping(ctx context.Context) error {
	if err := s.client.ZCard(ctx, s.indexKey()).Err(); err != nil {
		return fmt.Errorf("probe violation index: %w", classifyRedis(err))
	}
	return nil
}

// load fetches records for the given ids, preserving order.
func (s *Redis) load(ctx context.Context, ids []string) ([]models.Violation, error) {
	out := make([]models.Violation, 0, len(ids))
	for start := 0; start < len(ids); start += mgetBatchSize {
		end := min(start+mgetBatchSize, len(ids))
		keys := make([]string, 0, end-start)
		for _, member := range ids[start:end] {
			keys = append(keys, s.prefix+"record:"+member)
		}
		vals, err := s.client.MGet(ctx, keys...).Result()
		if err != nil {
			return nil, fmt.Errorf("load violations: %w", classifyRedis(err))
		}
		for i, val := range vals {
			raw, ok := val.(string)
			if !ok {
				return nil, fmt.Errorf("load violations: missing record for id %s", ids[start+i])
			}
			v, err := decodeViolation([]byte(raw))
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}

func decodeViolation(data []byte) (models.Violation, error) {
	var v models.Violation
	if err := json.Unmarshal(data, &v); err != nil {
		return models.Violation{}, fmt.Errorf("decode violation: %w", err)
	}
	return v, nil
}

// classifyRedis marks network failures as sentinel.ErrUnavailable.
func classifyRedis(err error) error {
	var netErr interface{ Timeout() bool }
	if errors.Is(err, redis.ErrClosed) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	}
	return err
}
