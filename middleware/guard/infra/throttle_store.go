package infra

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"persona-gateway/middleware/guard/domain"
)

// ThrottleStore é um token bucket (x/time/rate) por chave, local ao processo.
// Protege endpoints baratos (cota, revelação) sem ir ao Redis.
type ThrottleStore struct {
	mu      sync.Mutex
	entries map[string]*throttleEntry
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
}

type throttleEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type ThrottleOption func(*ThrottleStore)

func WithIdleTTL(d time.Duration) ThrottleOption {
	return func(s *ThrottleStore) { s.idleTTL = d }
}

func NewThrottleStore(rps float64, burst int, opts ...ThrottleOption) *ThrottleStore {
	s := &ThrottleStore{
		entries: make(map[string]*throttleEntry),
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: 15 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *ThrottleStore) RPS() float64 { return float64(s.rps) }
func (s *ThrottleStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *ThrottleStore) Get(key domain.Key) domain.Limiter {
	return s.limiter(string(key))
}

func (s *ThrottleStore) limiter(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &throttleEntry{lim: lim, lastSeen: now}
	return lim
}

// Cleanup remove chaves inativas há mais de idleTTL. Agendado pelo binário.
func (s *ThrottleStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}
