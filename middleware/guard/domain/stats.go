package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão do guard.
//
// Ele é propositalmente "agnóstico de HTTP": Method/Path são strings genéricas.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key/Path sem controle pode
// explodir o número de séries/chaves em uma base como Redis/Prometheus).
type StatsEvent struct {
	Key       Key
	Operation Operation
	Allowed   bool
	Reason    Reason
	BotScore  int

	Method string
	Path   string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas do guard.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O middleware trata erro como best-effort (não derruba request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
