package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"persona-gateway/middleware/guard/domain"
)

type RedisStatsStore struct {
	rdb redis.UniversalClient

	prefix string
	// ttl aplica apenas em chaves de série temporal / por visitante.
	// total é cumulativo e não expira.
	ttl time.Duration

	bucket string // "minute" (padrão), "hour" ou "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) {
		s.prefix = strings.Trim(prefix, ":")
	}
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb redis.UniversalClient, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		prefix: "guard:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStatsStore) bucketKey(at time.Time) string {
	switch s.bucket {
	case "minute":
		return fmt.Sprintf("%s:minute:%s", s.prefix, at.UTC().Format("200601021504"))
	case "hour":
		return fmt.Sprintf("%s:hour:%s", s.prefix, at.UTC().Format("2006010215"))
	}
	return ""
}

// Record grava contadores em hashes: allowed/denied por operação e, nas
// negações, o motivo (campo "<op>:denied:<reason>").
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := string(ev.Operation) + ":denied"
	if ev.Allowed {
		field = string(ev.Operation) + ":allowed"
	}

	pipe := s.rdb.Pipeline()
	totalKey := s.prefix + ":total"
	pipe.HIncrBy(ctx, totalKey, field, 1)
	if !ev.Allowed && ev.Reason != "" {
		pipe.HIncrBy(ctx, totalKey, field+":"+string(ev.Reason), 1)
	}

	if bk := s.bucketKey(at); bk != "" {
		pipe.HIncrBy(ctx, bk, field, 1)
		if s.ttl > 0 {
			pipe.Expire(ctx, bk, s.ttl)
		}
	}

	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey := s.prefix + ":key:" + k
			pipe.HIncrBy(ctx, keyKey, field, 1)
			if s.ttl > 0 {
				pipe.Expire(ctx, keyKey, s.ttl)
			}
		}
	}

	_, err := pipe.Exec(ctx)
	return err
}
