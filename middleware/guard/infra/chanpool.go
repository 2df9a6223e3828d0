package infra

import (
	"context"
	"sync"
)

// ChanPool é um semáforo de channel que limita chamadas em voo ao completion.
type ChanPool struct {
	slots chan struct{}
}

func NewChanPool(max int) *ChanPool {
	return &ChanPool{slots: make(chan struct{}, max)}
}

// Acquire implementa domain.SlotPool. O release é idempotente.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.slots <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.slots }) }, true
	case <-ctx.Done():
		return nil, false
	}
}

// InFlight é quantas vagas estão ocupadas agora.
func (p *ChanPool) InFlight() int { return len(p.slots) }

func (p *ChanPool) Capacity() int { return cap(p.slots) }
