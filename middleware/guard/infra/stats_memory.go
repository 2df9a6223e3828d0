package infra

import (
	"context"
	"sync"

	"persona-gateway/middleware/guard/domain"
)

type Counters struct {
	Allowed int64
	Denied  int64
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não faz expiração e não é indicada para produção.
type MemoryStatsStore struct {
	mu          sync.Mutex
	total       Counters
	byOperation map[domain.Operation]Counters
	byReason    map[domain.Reason]int64
	byKey       map[string]Counters

	trackKeys bool
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		byOperation: make(map[domain.Operation]Counters),
		byReason:    make(map[domain.Reason]int64),
		byKey:       make(map[string]Counters),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func bump(c Counters, allowed bool) Counters {
	if allowed {
		c.Allowed++
	} else {
		c.Denied++
	}
	return c
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total = bump(s.total, ev.Allowed)
	s.byOperation[ev.Operation] = bump(s.byOperation[ev.Operation], ev.Allowed)
	if !ev.Allowed {
		s.byReason[ev.Reason]++
	}
	if s.trackKeys && ev.Key != "" {
		s.byKey[string(ev.Key)] = bump(s.byKey[string(ev.Key)], ev.Allowed)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByOperation() map[domain.Operation]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Operation]Counters, len(s.byOperation))
	for k, v := range s.byOperation {
		out[k] = v
	}
	return out
}

// ByReason conta só as negações.
func (s *MemoryStatsStore) ByReason() map[domain.Reason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Reason]int64, len(s.byReason))
	for k, v := range s.byReason {
		out[k] = v
	}
	return out
}

func (s *MemoryStatsStore) ByKey() map[string]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Counters, len(s.byKey))
	for k, v := range s.byKey {
		out[k] = v
	}
	return out
}
