package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import (
	"context"
	"time"
)

type Key string

// Operation é a classe de operação protegida pelo gate.
type Operation string

const (
	OpMessage Operation = "message"
	OpSite    Operation = "site"
)

func (op Operation) Valid() bool { return op == OpMessage || op == OpSite }

// Usage é o estado de uma chave de janela deslizante após (ou sem) consumo.
type Usage struct {
	Allowed bool
	// Count é o número de operações dentro da janela, já contando a atual se Allowed.
	Count int
	// ResetAt é quando a operação mais antiga da janela sai dela (libera uma vaga).
	ResetAt time.Time
}

// CounterStore é o store compartilhado de contadores.
//
// Acquire precisa ser atômico por chave: checar e consumir num passo só.
// Uma tentativa negada não consome orçamento.
// Peek não pode alterar o estado.
type CounterStore interface {
	Acquire(ctx context.Context, key Key, capacity int, window time.Duration, now time.Time) (Usage, error)
	Peek(ctx context.Context, key Key, capacity int, window time.Duration, now time.Time) (Usage, error)
}

// Acquisition é a resposta do limiter para uma chave.
type Acquisition struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

func (a Acquisition) ResetAtMs() int64 { return a.ResetAt.UnixMilli() }

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Observação: a implementação pode ser token-bucket, leaky-bucket, etc.
// A camada de infra usa golang.org/x/time/rate para o throttle local.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter local por chave (ex: IP).
type LimiterStore interface {
	Get(Key) Limiter
}
