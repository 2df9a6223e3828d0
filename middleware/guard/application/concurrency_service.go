package application

import (
	"context"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// ConcurrencyService segura a vaga no completion (pago e lento) antes de o
// request seguir para o upstream. Roda antes do Guard, então um request
// recusado por lotação não consome cota do visitante.
type ConcurrencyService struct {
	Pool           domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire devolve (release, true) com a vaga reservada, ou (nil, false) quando
// o request acabou ou AcquireTimeout passou sem vaga livre. Sem timeout, só o
// ctx do request limita a espera.
func (s ConcurrencyService) Acquire(ctx context.Context) (release func(), ok bool) {
	if s.Pool == nil {
		return func() {}, true
	}
	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}
	return s.Pool.Acquire(ctx)
}
