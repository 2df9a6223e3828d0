package domain

import "time"

// Quota é o orçamento diário de um tier. Unlimited dispensa o limiter.
type Quota struct {
	Messages  int
	Sites     int
	Unlimited bool
}

// For devolve a capacidade da operação.
func (q Quota) For(op Operation) int {
	if op == OpSite {
		return q.Sites
	}
	return q.Messages
}

type QuotaTable map[Tier]Quota

// Window é um par capacidade/duração de um limiter.
type Window struct {
	Capacity int
	Period   time.Duration
}

type BotPolicy struct {
	// ClassifyThreshold: a partir daqui o request é classificado como bot.
	ClassifyThreshold int
	// BlockThreshold: a partir daqui o guard nega (o intervalo entre os dois só gera log).
	BlockThreshold int
}

// Policy agrega todos os valores configuráveis do guard.
//
// DevBypass e FailOpen existem apenas para desenvolvimento/testes e devem
// ficar desligados em produção.
type Policy struct {
	Quotas     QuotaTable
	TierPeriod time.Duration

	GlobalBurst Window
	IPHourly    Window
	IPDaily     Window

	Bot BotPolicy

	StoreTimeout time.Duration

	DevBypass bool
	FailOpen  bool
}

func DefaultPolicy() Policy {
	return Policy{
		Quotas: QuotaTable{
			TierAnonymous: {Messages: 10, Sites: 1},
			TierNamed:     {Messages: 50, Sites: 3},
			TierEmailed:   {Messages: 200, Sites: 10},
			TierContacted: {Unlimited: true},
		},
		TierPeriod:   24 * time.Hour,
		GlobalBurst:  Window{Capacity: 60, Period: time.Minute},
		IPHourly:     Window{Capacity: 200, Period: time.Hour},
		IPDaily:      Window{Capacity: 1000, Period: 24 * time.Hour},
		Bot:          BotPolicy{ClassifyThreshold: 50, BlockThreshold: 80},
		StoreTimeout: 500 * time.Millisecond,
	}
}

// QuotasFor faz o lookup na tabela. Tier desconhecido cai no tier anônimo.
func (p Policy) QuotasFor(t Tier) Quota {
	if q, ok := p.Quotas[t]; ok {
		return q
	}
	return p.Quotas[TierAnonymous]
}

// Validate confere a tabela de cotas e as janelas.
func (p Policy) Validate() error {
	var prev *Quota
	for t := TierAnonymous; t <= TierContacted; t++ {
		q, ok := p.Quotas[t]
		if !ok {
			return NewPolicyError("quotas", "missing tier "+t.String())
		}
		if !q.Unlimited && (q.Messages <= 0 || q.Sites <= 0) {
			return NewPolicyError("quotas", "tier "+t.String()+" must have positive quotas")
		}
		if prev != nil {
			if prev.Unlimited && !q.Unlimited {
				return NewPolicyError("quotas", "tier "+t.String()+" is lower than an unlimited tier")
			}
			if !q.Unlimited && (q.Messages < prev.Messages || q.Sites < prev.Sites) {
				return NewPolicyError("quotas", "tier "+t.String()+" quota is lower than the previous tier")
			}
		}
		prev = &q
	}

	windows := []struct {
		name string
		w    Window
	}{
		{"global_burst", p.GlobalBurst},
		{"ip_hourly", p.IPHourly},
		{"ip_daily", p.IPDaily},
	}
	for _, nw := range windows {
		if nw.w.Capacity <= 0 || nw.w.Period <= 0 {
			return NewPolicyError(nw.name, "capacity and period must be > 0")
		}
	}
	if p.TierPeriod <= 0 {
		return NewPolicyError("tier_period", "must be > 0")
	}
	if p.Bot.ClassifyThreshold <= 0 || p.Bot.BlockThreshold < p.Bot.ClassifyThreshold || p.Bot.BlockThreshold > MaxBotScore {
		return NewPolicyError("bot", "thresholds must satisfy 0 < classify <= block <= 100")
	}
	if p.StoreTimeout <= 0 {
		return NewPolicyError("store_timeout", "must be > 0")
	}
	return nil
}
