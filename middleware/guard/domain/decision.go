package domain

import "time"

// Reason identifica qual verificação negou o request.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonGlobal      Reason = "global"
	ReasonIPHourly    Reason = "ip_hourly"
	ReasonIPDaily     Reason = "ip_daily"
	ReasonTierMessage Reason = "tier_message"
	ReasonTierSite    Reason = "tier_site"
	ReasonBot         Reason = "bot"
	ReasonBlocked     Reason = "blocked"
	// ReasonUnavailable: falha de infraestrutura convertida em negação (fail-closed).
	ReasonUnavailable Reason = "unavailable"
)

// Quota indica negação por cota/rate (429). Bot/blocked são 403.
func (r Reason) Quota() bool {
	switch r {
	case ReasonGlobal, ReasonIPHourly, ReasonIPDaily, ReasonTierMessage, ReasonTierSite:
		return true
	}
	return false
}

// Subject é quem está consumindo: IP do cliente + visitante com tier resolvido.
type Subject struct {
	IP        string
	VisitorID string
	Tier      Tier
}

// GateResult é o resultado do gate composto.
type GateResult struct {
	Allowed   bool
	Reason    Reason
	Remaining int
	ResetAt   time.Time
	// Unlimited indica que a verificação por tier foi pulada.
	Unlimited bool
}

// CheckUsage é o estado de uma verificação individual, sem consumo.
type CheckUsage struct {
	Reason    Reason
	Capacity  int
	Remaining int
	ResetAt   time.Time
	Unlimited bool
}

// QuotaReport é o resultado da consulta somente-leitura de cota.
type QuotaReport struct {
	Operation Operation
	Tier      Tier
	Checks    []CheckUsage
}

// Limiting devolve a verificação com menos saldo (a que vai negar primeiro).
func (q QuotaReport) Limiting() (CheckUsage, bool) {
	var out CheckUsage
	found := false
	for _, c := range q.Checks {
		if c.Unlimited {
			continue
		}
		if !found || c.Remaining < out.Remaining {
			out = c
			found = true
		}
	}
	return out, found
}

// Request é a entrada do guard (facade).
type Request struct {
	Operation   Operation
	VisitorID   string
	Fingerprint string
	IP          string
	Meta        RequestMeta
}

// Decision é o resultado final do guard.
type Decision struct {
	Allowed   bool
	Reason    Reason
	Remaining int
	ResetAt   time.Time
	Unlimited bool
	Bypassed  bool

	Visitor Visitor
	Bot     BotScore

	// Err guarda a falha de infraestrutura quando Reason == ReasonUnavailable.
	Err error
}

// RetryAfter é o tempo até o reset, arredondado para cima em segundos.
// Zero quando não há recomendação.
func (d Decision) RetryAfter(now time.Time) time.Duration {
	if d.ResetAt.IsZero() || !d.ResetAt.After(now) {
		return 0
	}
	return (d.ResetAt.Sub(now) + time.Second - 1).Truncate(time.Second)
}
