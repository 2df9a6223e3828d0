package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// Limiter é o primitivo de janela deslizante sobre um CounterStore compartilhado.
//
// Falha do store vira domain.ErrStoreUnavailable (fail-closed), a não ser que
// FailOpen esteja ligado explicitamente.
type Limiter struct {
	Store    domain.CounterStore
	Timeout  time.Duration
	FailOpen bool
	Now      func() time.Time
	Logger   *slog.Logger
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l Limiter) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

func (l Limiter) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if l.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, l.Timeout)
}

// TryAcquire consome uma unidade de `key` se ainda houver capacidade na janela.
func (l Limiter) TryAcquire(ctx context.Context, key domain.Key, capacity int, window time.Duration) (domain.Acquisition, error) {
	return l.call(ctx, key, capacity, window, domain.CounterStore.Acquire)
}

// Peek lê o estado de `key` sem consumir nada.
func (l Limiter) Peek(ctx context.Context, key domain.Key, capacity int, window time.Duration) (domain.Acquisition, error) {
	return l.call(ctx, key, capacity, window, domain.CounterStore.Peek)
}

// storeCall recebe o store explicitamente: o método só é resolvido depois da
// checagem de store nulo.
type storeCall func(store domain.CounterStore, ctx context.Context, key domain.Key, capacity int, window time.Duration, now time.Time) (domain.Usage, error)

func (l Limiter) call(ctx context.Context, key domain.Key, capacity int, window time.Duration, fn storeCall) (domain.Acquisition, error) {
	now := l.now()
	if l.Store == nil {
		return l.storeFailure(key, capacity, window, now, fmt.Errorf("%w: no store configured", domain.ErrStoreUnavailable))
	}

	callCtx, cancel := l.withTimeout(ctx)
	defer cancel()

	u, err := fn(l.Store, callCtx, key, capacity, window, now)
	if err != nil {
		return l.storeFailure(key, capacity, window, now, fmt.Errorf("%w: %s: %w", domain.ErrStoreUnavailable, key, err))
	}

	remaining := capacity - u.Count
	if remaining < 0 {
		remaining = 0
	}
	resetAt := u.ResetAt
	if resetAt.IsZero() {
		resetAt = now.Add(window)
	}
	return domain.Acquisition{Allowed: u.Allowed, Remaining: remaining, ResetAt: resetAt}, nil
}

func (l Limiter) storeFailure(key domain.Key, capacity int, window time.Duration, now time.Time, err error) (domain.Acquisition, error) {
	if l.FailOpen {
		l.logger().Warn("counter store failure ignored (fail-open)", "key", string(key), "error", err)
		return domain.Acquisition{Allowed: true, Remaining: capacity, ResetAt: now.Add(window)}, nil
	}
	return domain.Acquisition{Allowed: false, ResetAt: now.Add(window)}, err
}
