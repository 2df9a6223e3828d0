package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"persona-gateway/middleware/guard/domain"
)

// acquireScript implementa o sliding log: remove o que saiu da janela, conta e
// só registra a operação nova se ainda houver capacidade. Tudo num EVAL, então
// dois requests concorrentes nunca veem a mesma última vaga.
//
// KEYS[1] = zset da chave
// ARGV    = now(ms), window(ms), capacity, member
// retorno = {allowed(0|1), count, reset(ms)}
var acquireScript = redis.NewScript(`
local key      = KEYS[1]
local now      = tonumber(ARGV[1])
local window   = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < capacity then
  redis.call('ZADD', key, now, ARGV[4])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
  reset = tonumber(oldest[2]) + window
end
return {allowed, count, reset}
`)

// RedisCounterStore é o CounterStore compartilhado entre instâncias do gateway.
type RedisCounterStore struct {
	rdb    redis.UniversalClient
	prefix string
}

type RedisCounterOption func(*RedisCounterStore)

func WithCounterPrefix(prefix string) RedisCounterOption {
	return func(s *RedisCounterStore) { s.prefix = strings.Trim(prefix, ":") }
}

func NewRedisCounterStore(rdb redis.UniversalClient, opts ...RedisCounterOption) *RedisCounterStore {
	s := &RedisCounterStore{rdb: rdb, prefix: "guard:rl"}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisCounterStore) redisKey(key domain.Key) string {
	return s.prefix + ":" + string(key)
}

// Acquire implementa domain.CounterStore.
func (s *RedisCounterStore) Acquire(ctx context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error) {
	res, err := acquireScript.Run(ctx, s.rdb,
		[]string{s.redisKey(key)},
		now.UnixMilli(), window.Milliseconds(), capacity, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return domain.Usage{}, err
	}
	if len(res) != 3 {
		return domain.Usage{}, fmt.Errorf("unexpected script reply: %v", res)
	}
	return domain.Usage{
		Allowed: res[0] == 1,
		Count:   int(res[1]),
		ResetAt: time.UnixMilli(res[2]),
	}, nil
}

// Peek implementa domain.CounterStore sem escrever nada.
func (s *RedisCounterStore) Peek(ctx context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error) {
	rk := s.redisKey(key)
	floor := "(" + strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	pipe := s.rdb.Pipeline()
	countCmd := pipe.ZCount(ctx, rk, floor, "+inf")
	oldestCmd := pipe.ZRangeByScoreWithScores(ctx, rk, &redis.ZRangeBy{Min: floor, Max: "+inf", Count: 1})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Usage{}, err
	}

	count := int(countCmd.Val())
	resetAt := now.Add(window)
	if oldest := oldestCmd.Val(); len(oldest) > 0 {
		resetAt = time.UnixMilli(int64(oldest[0].Score)).Add(window)
	}
	return domain.Usage{Allowed: count < capacity, Count: count, ResetAt: resetAt}, nil
}
