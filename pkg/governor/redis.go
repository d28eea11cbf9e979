package governor

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const execKeyPrefix = "guildflow:exec:"
const cooldownKeyPrefix = "guildflow:cooldown:"

// RedisStore implements Store on Redis for multi-worker deployments.
// Cooldowns map to SET NX PX, which makes Reserve a single atomic
// compare-and-set with server-side expiry; rate windows map to a sorted set
// scored by unix millis.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	err = client.Ping(ctx).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, cooldownKeyPrefix+key, time.Now().UnixMilli(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to reserve cooldown %s: %w", key, err)
	}

	return ok, nil
}

func (s *RedisStore) Live(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, cooldownKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check cooldown %s: %w", key, err)
	}

	return n > 0, nil
}

// reserveExecutionScript prunes the window, refuses when it is full and adds
// the claim otherwise, all inside one script so concurrent events cannot both
// pass the same remaining slot.
// KEYS[1] window key; ARGV: cutoff millis, max, score millis, token, ttl ms.
var reserveExecutionScript = redis.NewScript(`
	redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, ARGV[1])
	if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[2]) then
		return 0
	end
	redis.call('ZADD', KEYS[1], ARGV[3], ARGV[4])
	redis.call('PEXPIRE', KEYS[1], ARGV[5])
	return 1
`)

func (s *RedisStore) ReserveExecution(ctx context.Context, workflowID, token string, window time.Duration, max int) (bool, error) {
	key := execKeyPrefix + workflowID
	now := time.Now()
	cutoff := now.Add(-window).UnixMilli()

	// Entries older than any plausible window are dead weight; expire the
	// whole set alongside the trailing window plus slack.
	ttl := 2 * window

	claimed, err := reserveExecutionScript.Run(ctx, s.client, []string{key},
		cutoff, max, now.UnixMilli(), token, ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("failed to reserve execution slot for workflow %s: %w", workflowID, err)
	}

	return claimed == 1, nil
}

func (s *RedisStore) ReleaseExecution(ctx context.Context, workflowID, token string) error {
	err := s.client.ZRem(ctx, execKeyPrefix+workflowID, token).Err()
	if err != nil {
		return fmt.Errorf("failed to release execution slot for workflow %s: %w", workflowID, err)
	}

	return nil
}

func (s *RedisStore) CountInWindow(ctx context.Context, workflowID string, window time.Duration) (int, error) {
	key := execKeyPrefix + workflowID
	cutoff := time.Now().Add(-window).UnixMilli()

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(cutoff, 10))
	card := pipe.ZCard(ctx, key)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count executions for workflow %s: %w", workflowID, err)
	}

	return int(card.Val()), nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
