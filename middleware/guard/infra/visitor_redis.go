package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"persona-gateway/middleware/guard/domain"
)

// RedisVisitorStore guarda cada visitante num hash (guard:visitor:<id>).
//
// Visitantes nunca são apagados; só marcados como bloqueados.
// Os campos de revelação só são escritos com valor, então o tier não cai.
type RedisVisitorStore struct {
	rdb    redis.UniversalClient
	prefix string
	now    func() time.Time
}

type RedisVisitorOption func(*RedisVisitorStore)

func WithVisitorPrefix(prefix string) RedisVisitorOption {
	return func(s *RedisVisitorStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithVisitorClock(now func() time.Time) RedisVisitorOption {
	return func(s *RedisVisitorStore) { s.now = now }
}

func NewRedisVisitorStore(rdb redis.UniversalClient, opts ...RedisVisitorOption) *RedisVisitorStore {
	s := &RedisVisitorStore{rdb: rdb, prefix: "guard:visitor", now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisVisitorStore) key(id string) string { return s.prefix + ":" + id }

func (s *RedisVisitorStore) Resolve(ctx context.Context, id, fingerprint string) (domain.Visitor, error) {
	if err := validVisitorID(id); err != nil {
		return domain.Visitor{}, err
	}
	k := s.key(id)

	pipe := s.rdb.TxPipeline()
	pipe.HSetNX(ctx, k, "first_seen_ms", s.now().UnixMilli())
	if fingerprint != "" {
		pipe.HSetNX(ctx, k, "fingerprint", fingerprint)
	}
	get := pipe.HGetAll(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Visitor{}, fmt.Errorf("resolve visitor %s: %w", id, err)
	}
	return scanVisitor(id, get)
}

func (s *RedisVisitorStore) Disclose(ctx context.Context, id string, d domain.Disclosure) (domain.Visitor, error) {
	if err := validVisitorID(id); err != nil {
		return domain.Visitor{}, err
	}
	field, value, err := disclosureField(d)
	if err != nil {
		return domain.Visitor{}, err
	}
	k := s.key(id)

	pipe := s.rdb.TxPipeline()
	pipe.HSetNX(ctx, k, "first_seen_ms", s.now().UnixMilli())
	pipe.HSet(ctx, k, field, value)
	get := pipe.HGetAll(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Visitor{}, fmt.Errorf("disclose %s for visitor %s: %w", d.Kind, id, err)
	}
	return scanVisitor(id, get)
}

func (s *RedisVisitorStore) SetBlocked(ctx context.Context, id string, blocked bool) error {
	if err := validVisitorID(id); err != nil {
		return err
	}
	v := "0"
	if blocked {
		v = "1"
	}
	return s.rdb.HSet(ctx, s.key(id), "blocked", v).Err()
}

func (s *RedisVisitorStore) RecordUsage(ctx context.Context, id string, op domain.Operation) error {
	if err := validVisitorID(id); err != nil {
		return err
	}
	field := "messages"
	if op == domain.OpSite {
		field = "sites"
	}
	return s.rdb.HIncrBy(ctx, s.key(id), field, 1).Err()
}

func scanVisitor(id string, cmd *redis.MapStringStringCmd) (domain.Visitor, error) {
	var v domain.Visitor
	if err := cmd.Scan(&v); err != nil {
		return domain.Visitor{}, fmt.Errorf("scan visitor %s: %w", id, err)
	}
	v.ID = id
	v.Tier = domain.TierFor(v)
	return v, nil
}

func validVisitorID(id string) error {
	if strings.TrimSpace(id) == "" || len(id) > 128 {
		return domain.ErrInvalidVisitor
	}
	return nil
}

// disclosureField traduz o evento no campo do hash. Valores vazios são
// rejeitados: revelar "nada" não pode apagar um nome já revelado.
func disclosureField(d domain.Disclosure) (string, string, error) {
	switch d.Kind {
	case domain.DiscloseName, domain.DiscloseEmail:
		v := strings.TrimSpace(d.Value)
		if v == "" {
			return "", "", fmt.Errorf("empty %s disclosure", d.Kind)
		}
		return string(d.Kind), v, nil
	case domain.DiscloseContacted:
		return "contacted", "1", nil
	}
	return "", "", fmt.Errorf("unknown disclosure kind %q", d.Kind)
}
