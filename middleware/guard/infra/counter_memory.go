package infra

import (
	"context"
	"sync"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// MemoryCounterStore é um sliding log em memória para deploy de processo único
// (e testes). Um mutex garante o check-and-consume atômico por chave.
//
// Não é compartilhado entre processos: com mais de uma instância use
// RedisCounterStore.
type MemoryCounterStore struct {
	mu      sync.Mutex
	entries map[domain.Key]*memoryLog
}

type memoryLog struct {
	stamps []time.Time
	window time.Duration
	last   time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{entries: make(map[domain.Key]*memoryLog)}
}

// prune remove carimbos fora da janela (t <= now-window).
func (l *memoryLog) prune(now time.Time) {
	cutoff := now.Add(-l.window)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

func (l *memoryLog) usage(now time.Time, allowed bool) domain.Usage {
	reset := now.Add(l.window)
	if len(l.stamps) > 0 {
		reset = l.stamps[0].Add(l.window)
	}
	return domain.Usage{Allowed: allowed, Count: len(l.stamps), ResetAt: reset}
}

func (s *MemoryCounterStore) Acquire(ctx context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error) {
	if err := ctx.Err(); err != nil {
		return domain.Usage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.entries[key]
	if !ok {
		l = &memoryLog{}
		s.entries[key] = l
	}
	l.window = window
	l.last = now
	l.prune(now)

	allowed := len(l.stamps) < capacity
	if allowed {
		l.stamps = append(l.stamps, now)
	}
	return l.usage(now, allowed), nil
}

func (s *MemoryCounterStore) Peek(ctx context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error) {
	if err := ctx.Err(); err != nil {
		return domain.Usage{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.entries[key]
	if !ok {
		return domain.Usage{Allowed: capacity > 0, ResetAt: now.Add(window)}, nil
	}
	view := memoryLog{window: window}
	cutoff := now.Add(-window)
	for _, t := range l.stamps {
		if t.After(cutoff) {
			view.stamps = append(view.stamps, t)
		}
	}
	return view.usage(now, len(view.stamps) < capacity), nil
}

// Cleanup remove chaves cuja janela já expirou por completo.
func (s *MemoryCounterStore) Cleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, l := range s.entries {
		if !l.last.Add(l.window).After(now) {
			delete(s.entries, k)
		}
	}
}

func (s *MemoryCounterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
