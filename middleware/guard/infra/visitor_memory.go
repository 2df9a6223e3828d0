package infra

import (
	"context"
	"sync"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// MemoryVisitorStore é útil para testes e desenvolvimento.
type MemoryVisitorStore struct {
	mu       sync.Mutex
	visitors map[string]domain.Visitor
	now      func() time.Time
}

func NewMemoryVisitorStore() *MemoryVisitorStore {
	return &MemoryVisitorStore{visitors: make(map[string]domain.Visitor), now: time.Now}
}

// getOrCreate assume o lock já adquirido.
func (s *MemoryVisitorStore) getOrCreate(id string) domain.Visitor {
	v, ok := s.visitors[id]
	if !ok {
		v = domain.Visitor{ID: id, FirstSeenMs: s.now().UnixMilli()}
		s.visitors[id] = v
	}
	return v
}

func withTier(v domain.Visitor) domain.Visitor {
	v.Tier = domain.TierFor(v)
	return v
}

func (s *MemoryVisitorStore) Resolve(_ context.Context, id, fingerprint string) (domain.Visitor, error) {
	if err := validVisitorID(id); err != nil {
		return domain.Visitor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.getOrCreate(id)
	if v.Fingerprint == "" && fingerprint != "" {
		v.Fingerprint = fingerprint
		s.visitors[id] = v
	}
	return withTier(v), nil
}

func (s *MemoryVisitorStore) Disclose(_ context.Context, id string, d domain.Disclosure) (domain.Visitor, error) {
	if err := validVisitorID(id); err != nil {
		return domain.Visitor{}, err
	}
	field, value, err := disclosureField(d)
	if err != nil {
		return domain.Visitor{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.getOrCreate(id)
	switch field {
	case "name":
		v.Name = value
	case "email":
		v.Email = value
	case "contacted":
		v.Contacted = true
	}
	s.visitors[id] = v
	return withTier(v), nil
}

func (s *MemoryVisitorStore) SetBlocked(_ context.Context, id string, blocked bool) error {
	if err := validVisitorID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.getOrCreate(id)
	v.Blocked = blocked
	s.visitors[id] = v
	return nil
}

func (s *MemoryVisitorStore) RecordUsage(_ context.Context, id string, op domain.Operation) error {
	if err := validVisitorID(id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	v := s.getOrCreate(id)
	if op == domain.OpSite {
		v.Sites++
	} else {
		v.Messages++
	}
	s.visitors[id] = v
	return nil
}
