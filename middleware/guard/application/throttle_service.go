package application

import (
	"time"

	"persona-gateway/middleware/guard/domain"
)

// ThrottleService decide o throttle local (token bucket em memória) dos
// endpoints baratos: consulta de cota e revelação de identidade.
//
// Não substitui o Guard; não sabe nada de HTTP.
type ThrottleService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
}

// ThrottleDecision é o resultado do throttle local.
type ThrottleDecision struct {
	Allowed    bool
	RetryAfter time.Duration
}

func (s ThrottleService) Decide(key domain.Key) ThrottleDecision {
	if s.Store == nil {
		return ThrottleDecision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(key)
	if lim == nil || lim.Allow() {
		return ThrottleDecision{Allowed: true}
	}
	return ThrottleDecision{Allowed: false, RetryAfter: s.RetryAfter}
}
