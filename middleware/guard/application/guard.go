package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"persona-gateway/middleware/guard/domain"
)

// Guard é a facade consumida pelos handlers: uma chamada por request de chat
// ou de geração de site.
//
// Ordem: bypass de dev, visitante, bloqueio, bot, gate. Falhas de
// infraestrutura viram Deny(unavailable).
type Guard struct {
	Visitors domain.VisitorStore
	Gate     Gate
	Scorer   BotScorer
	Policy   domain.Policy
	Logger   *slog.Logger
}

// NewGuard monta o Guard com limiter/gate/scorer a partir da policy.
func NewGuard(policy domain.Policy, counters domain.CounterStore, visitors domain.VisitorStore, logger *slog.Logger) *Guard {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		Visitors: visitors,
		Gate: Gate{
			Limiter: Limiter{Store: counters, Timeout: policy.StoreTimeout, FailOpen: policy.FailOpen, Logger: logger},
			Policy:  policy,
		},
		Scorer: BotScorer{Policy: policy.Bot},
		Policy: policy,
		Logger: logger,
	}
}

func (g *Guard) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Guard) blockThreshold() int {
	if g.Policy.Bot.BlockThreshold > 0 {
		return g.Policy.Bot.BlockThreshold
	}
	return domain.DefaultPolicy().Bot.BlockThreshold
}

func (g *Guard) Evaluate(ctx context.Context, req domain.Request) domain.Decision {
	if g.Policy.DevBypass {
		return domain.Decision{Allowed: true, Bypassed: true, Remaining: -1}
	}
	log := g.logger().With("op", string(req.Operation), "visitor", req.VisitorID, "ip", req.IP)

	v, err := g.resolve(ctx, req)
	if err != nil {
		return g.unavailable(log, domain.Decision{}, err)
	}
	dec := domain.Decision{Visitor: v}

	if v.Blocked {
		log.Info("request denied", "reason", domain.ReasonBlocked)
		dec.Reason = domain.ReasonBlocked
		return dec
	}

	dec.Bot = g.Scorer.Score(req.Meta)
	if dec.Bot.Bot {
		if dec.Bot.Score >= g.blockThreshold() {
			log.Warn("request denied", "reason", domain.ReasonBot, "score", dec.Bot.Score, "signals", strings.Join(dec.Bot.Reasons, ","))
			dec.Reason = domain.ReasonBot
			return dec
		}
		log.Info("suspicious request flagged", "score", dec.Bot.Score, "signals", strings.Join(dec.Bot.Reasons, ","))
	}

	res, err := g.Gate.Acquire(ctx, req.Operation, domain.Subject{IP: req.IP, VisitorID: v.ID, Tier: v.Tier})
	dec.Remaining, dec.ResetAt, dec.Unlimited = res.Remaining, res.ResetAt, res.Unlimited
	if err != nil {
		return g.unavailable(log, dec, err)
	}
	if !res.Allowed {
		log.Info("request denied", "reason", res.Reason, "remaining", res.Remaining, "reset_at", res.ResetAt)
		dec.Reason = res.Reason
		return dec
	}

	dec.Allowed = true
	return dec
}

// Remaining consulta a cota restante do visitante sem consumir nada.
func (g *Guard) Remaining(ctx context.Context, req domain.Request) (domain.QuotaReport, error) {
	v, err := g.resolve(ctx, req)
	if err != nil {
		return domain.QuotaReport{}, err
	}
	return g.Gate.Remaining(ctx, req.Operation, domain.Subject{IP: req.IP, VisitorID: v.ID, Tier: v.Tier})
}

func (g *Guard) resolve(ctx context.Context, req domain.Request) (domain.Visitor, error) {
	if strings.TrimSpace(req.VisitorID) == "" {
		return domain.Visitor{}, domain.ErrInvalidVisitor
	}
	if g.Visitors == nil {
		return domain.Visitor{ID: req.VisitorID, Tier: domain.TierAnonymous}, nil
	}
	v, err := g.Visitors.Resolve(ctx, req.VisitorID, req.Fingerprint)
	if err != nil {
		return domain.Visitor{}, fmt.Errorf("resolve visitor: %w", err)
	}
	if !v.Tier.Valid() {
		v.Tier = domain.TierFor(v)
	}
	return v, nil
}

func (g *Guard) unavailable(log *slog.Logger, dec domain.Decision, err error) domain.Decision {
	if errors.Is(err, domain.ErrInvalidVisitor) {
		log.Warn("request denied", "reason", domain.ReasonUnavailable, "error", err)
	} else {
		// alerta operacional, separado das negações de cota.
		log.Error("guard infrastructure failure, denying request", "error", err)
	}
	dec.Allowed = false
	dec.Reason = domain.ReasonUnavailable
	dec.Err = err
	return dec
}
