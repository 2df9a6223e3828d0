package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// fakeCounters é um sliding log em memória que conta as chamadas por chave.
type fakeCounters struct {
	mu       sync.Mutex
	logs     map[domain.Key][]time.Time
	acquires map[domain.Key]int
	peeks    map[domain.Key]int
	err      error
	delay    time.Duration
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{
		logs:     map[domain.Key][]time.Time{},
		acquires: map[domain.Key]int{},
		peeks:    map[domain.Key]int{},
	}
}

func (f *fakeCounters) live(key domain.Key, window time.Duration, now time.Time) []time.Time {
	var out []time.Time
	for _, t := range f.logs[key] {
		if t.After(now.Add(-window)) {
			out = append(out, t)
		}
	}
	return out
}

func (f *fakeCounters) wait(ctx context.Context) error {
	if f.delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeCounters) Acquire(ctx context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error) {
	if err := f.wait(ctx); err != nil {
		return domain.Usage{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acquires[key]++
	if f.err != nil {
		return domain.Usage{}, f.err
	}

	live := f.live(key, window, now)
	allowed := len(live) < capacity
	if allowed {
		live = append(live, now)
	}
	f.logs[key] = live
	return domain.Usage{Allowed: allowed, Count: len(live), ResetAt: live0(live, now).Add(window)}, nil
}

func (f *fakeCounters) Peek(_ context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peeks[key]++
	if f.err != nil {
		return domain.Usage{}, f.err
	}
	live := f.live(key, window, now)
	return domain.Usage{Allowed: len(live) < capacity, Count: len(live), ResetAt: live0(live, now).Add(window)}, nil
}

func (f *fakeCounters) calls(key domain.Key) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires[key]
}

func (f *fakeCounters) fill(key domain.Key, n int, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.logs[key] = append(f.logs[key], at)
	}
}

func live0(live []time.Time, now time.Time) time.Time {
	if len(live) == 0 {
		return now
	}
	return live[0]
}

var errBoom = errors.New("connection refused")

// fakeVisitors implementa domain.VisitorStore em memória.
type fakeVisitors struct {
	mu       sync.Mutex
	visitors map[string]domain.Visitor
	err      error
}

func newFakeVisitors(vs ...domain.Visitor) *fakeVisitors {
	f := &fakeVisitors{visitors: map[string]domain.Visitor{}}
	for _, v := range vs {
		f.visitors[v.ID] = v
	}
	return f
}

func (f *fakeVisitors) Resolve(_ context.Context, id, fingerprint string) (domain.Visitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Visitor{}, f.err
	}
	v, ok := f.visitors[id]
	if !ok {
		v = domain.Visitor{ID: id, Fingerprint: fingerprint}
		f.visitors[id] = v
	}
	v.Tier = domain.TierFor(v)
	return v, nil
}

func (f *fakeVisitors) Disclose(_ context.Context, id string, d domain.Disclosure) (domain.Visitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.visitors[id]
	switch d.Kind {
	case domain.DiscloseName:
		v.Name = d.Value
	case domain.DiscloseEmail:
		v.Email = d.Value
	case domain.DiscloseContacted:
		v.Contacted = true
	}
	f.visitors[id] = v
	v.Tier = domain.TierFor(v)
	return v, nil
}

func (f *fakeVisitors) SetBlocked(_ context.Context, id string, blocked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v := f.visitors[id]
	v.Blocked = blocked
	f.visitors[id] = v
	return nil
}

func (f *fakeVisitors) RecordUsage(context.Context, string, domain.Operation) error { return nil }

// browserMeta são headers de um navegador comum.
var browserMeta = domain.RequestMeta{
	UserAgent:         "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0 Safari/537.36",
	HasAcceptLanguage: true,
	HasAccept:         true,
	HasBrowserHint:    true,
}
