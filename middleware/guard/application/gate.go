package application

import (
	"context"
	"fmt"
	"time"

	"persona-gateway/middleware/guard/domain"
)

// Check é uma verificação do gate: chave + capacidade + janela.
type Check struct {
	Reason    domain.Reason
	Key       domain.Key
	Capacity  int
	Window    time.Duration
	Unlimited bool
}

// Gate aplica os limiters em ordem, do mais barato/amplo ao mais específico,
// e para na primeira negação.
type Gate struct {
	Limiter Limiter
	Policy  domain.Policy
}

const globalKey domain.Key = "global"

// Plan monta a sequência de verificações da operação.
//
// O tier nunca entra na chave: a capacidade é lida da tabela no momento da
// verificação, então um upgrade de tier reaproveita o consumo já feito.
func (g Gate) Plan(op domain.Operation, s domain.Subject) []Check {
	p := g.Policy
	q := p.QuotasFor(s.Tier)

	checks := []Check{
		{Reason: domain.ReasonGlobal, Key: globalKey, Capacity: p.GlobalBurst.Capacity, Window: p.GlobalBurst.Period},
	}

	tierReason, tierPrefix := domain.ReasonTierMessage, "tier-message:"
	if op == domain.OpSite {
		tierReason, tierPrefix = domain.ReasonTierSite, "tier-site:"
	} else {
		checks = append(checks,
			Check{Reason: domain.ReasonIPHourly, Key: domain.Key("ip-hourly:" + s.IP), Capacity: p.IPHourly.Capacity, Window: p.IPHourly.Period},
			Check{Reason: domain.ReasonIPDaily, Key: domain.Key("ip-daily:" + s.IP), Capacity: p.IPDaily.Capacity, Window: p.IPDaily.Period},
		)
	}

	return append(checks, Check{
		Reason:    tierReason,
		Key:       domain.Key(tierPrefix + s.VisitorID),
		Capacity:  q.For(op),
		Window:    p.TierPeriod,
		Unlimited: q.Unlimited,
	})
}

// Acquire executa as verificações em sequência consumindo orçamento.
//
// Erro só em falha de infraestrutura; negação de cota é um resultado normal.
func (g Gate) Acquire(ctx context.Context, op domain.Operation, s domain.Subject) (domain.GateResult, error) {
	if !op.Valid() {
		return domain.GateResult{}, fmt.Errorf("unknown operation %q", op)
	}

	var last domain.GateResult
	for _, c := range g.Plan(op, s) {
		if c.Unlimited {
			last.Unlimited = true
			continue
		}
		acq, err := g.Limiter.TryAcquire(ctx, c.Key, c.Capacity, c.Window)
		if err != nil {
			return domain.GateResult{Allowed: false, Reason: c.Reason, ResetAt: acq.ResetAt}, err
		}
		if !acq.Allowed {
			return domain.GateResult{Allowed: false, Reason: c.Reason, Remaining: acq.Remaining, ResetAt: acq.ResetAt}, nil
		}
		last.Remaining, last.ResetAt = acq.Remaining, acq.ResetAt
	}
	last.Allowed = true
	return last, nil
}

// Remaining consulta todas as verificações da operação sem consumir nada.
func (g Gate) Remaining(ctx context.Context, op domain.Operation, s domain.Subject) (domain.QuotaReport, error) {
	if !op.Valid() {
		return domain.QuotaReport{}, fmt.Errorf("unknown operation %q", op)
	}

	report := domain.QuotaReport{Operation: op, Tier: s.Tier}
	for _, c := range g.Plan(op, s) {
		if c.Unlimited {
			report.Checks = append(report.Checks, domain.CheckUsage{Reason: c.Reason, Unlimited: true})
			continue
		}
		acq, err := g.Limiter.Peek(ctx, c.Key, c.Capacity, c.Window)
		if err != nil {
			return report, err
		}
		report.Checks = append(report.Checks, domain.CheckUsage{
			Reason:    c.Reason,
			Capacity:  c.Capacity,
			Remaining: acq.Remaining,
			ResetAt:   acq.ResetAt,
		})
	}
	return report, nil
}
